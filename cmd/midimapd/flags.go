package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// CLIConfig holds command-line configuration for the engine entry point.
type CLIConfig struct {
	ConfigPath     string
	PredefinesPath string

	NoHotReload   bool
	Debug         bool
	DebugFF       bool
	DebugIdleTick bool

	UpdateRate          int
	PersistentJoysticks []string
	EnableIndicator     bool
	IndicatorPort       int
	MetricsPort         int

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	ShowVersion bool
	ShowHelp    bool
}

func newFlagSet(cfg *CLIConfig) *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)

	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv("MIDIMAPD_CONFIG", "config.yaml"),
		"Path to configuration file (env: MIDIMAPD_CONFIG)")
	fs.StringVar(&cfg.PredefinesPath, "predefines",
		getEnv("MIDIMAPD_PREDEFINES", ""),
		"Path to predefined-controls file (env: MIDIMAPD_PREDEFINES)")

	fs.BoolVar(&cfg.NoHotReload, "no-hot-reload",
		getEnvBool("MIDIMAPD_NO_HOT_RELOAD", false),
		"Disable configuration file watching (env: MIDIMAPD_NO_HOT_RELOAD)")
	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("MIDIMAPD_DEBUG", false),
		"Enable debug logging (env: MIDIMAPD_DEBUG)")
	fs.BoolVar(&cfg.DebugFF, "debug-ff", false,
		"Log force-feedback traffic at debug level")
	fs.BoolVar(&cfg.DebugIdleTick, "debug-idle-tick", false,
		"Log ticks that emit output without fresh input")

	fs.IntVarP(&cfg.UpdateRate, "update-rate", "u", 0,
		"Override the configured tick rate in Hz, 0 keeps the document value")
	fs.StringSliceVar(&cfg.PersistentJoysticks, "persistent-joysticks", nil,
		"Force joysticks persistent across reloads: joystick names, or \"all\"")
	fs.BoolVar(&cfg.EnableIndicator, "enable-steering-indicator-window", false,
		"Serve the live steering indicator over WebSocket")
	fs.IntVar(&cfg.IndicatorPort, "indicator-port",
		getEnvInt("MIDIMAPD_INDICATOR_PORT", 0),
		"Indicator listen port, 0 for the default (env: MIDIMAPD_INDICATOR_PORT)")
	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("MIDIMAPD_METRICS_PORT", 0),
		"Prometheus metrics port, 0 disables (env: MIDIMAPD_METRICS_PORT)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("MIDIMAPD_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: MIDIMAPD_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("MIDIMAPD_LOG_FORMAT", "text"),
		"Log format: json, text (env: MIDIMAPD_LOG_FORMAT)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("MIDIMAPD_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Graceful shutdown timeout (env: MIDIMAPD_SHUTDOWN_TIMEOUT)")

	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")

	fs.Usage = func() { printDetailedHelp(fs) }
	return fs
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if cfg.PredefinesPath != "" {
		if _, err := os.Stat(cfg.PredefinesPath); err != nil {
			return fmt.Errorf("predefines file not found: %s", cfg.PredefinesPath)
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.UpdateRate < 0 || cfg.UpdateRate > 10000 {
		return fmt.Errorf("invalid update rate: %d", cfg.UpdateRate)
	}
	if cfg.IndicatorPort < 0 || cfg.IndicatorPort > 65535 {
		return fmt.Errorf("invalid indicator port: %d", cfg.IndicatorPort)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp(fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - MIDI and mouse to virtual joystick mapper

Usage: %s [options]
       %s <subcommand> [args]

Subcommands:
  enum-midi               List MIDI input ports
  monitor-midi [regex]    Print messages from matching MIDI ports
  midi-learn              Print the control literal for whatever you touch
  enum-mice               List evdev input devices
  monitor-mouse [regex]   Print events from matching input devices
  validate-config         Validate the configuration and exit

Options:
%s
Examples:
  # Run with a custom config and live reload
  %s --config=/etc/midimapd/config.yaml

  # Force a 1000 Hz tick rate and keep every joystick across reloads
  %s -u 1000 --persistent-joysticks all

  # Find the literal for a knob before writing a mapping
  %s midi-learn

Version: %s
`, appName, os.Args[0], os.Args[0], fs.FlagUsages(),
		os.Args[0], os.Args[0], os.Args[0], Version)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
