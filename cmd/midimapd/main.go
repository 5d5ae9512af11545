// Package main implements the midimapd entry point: it maps MIDI and
// mouse input onto virtual game controllers through a configurable
// transformation engine, and bundles the enumeration, monitoring, and
// validation tooling used while writing mappings.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"runtime"
	"strings"
	"syscall"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/leosat/MMVJ/component"
	"github.com/leosat/MMVJ/config"
	"github.com/leosat/MMVJ/engine"
	apperrors "github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/health"
	"github.com/leosat/MMVJ/input/midi"
	"github.com/leosat/MMVJ/input/pointer"
	"github.com/leosat/MMVJ/metric"
	"github.com/leosat/MMVJ/observer"
	"github.com/leosat/MMVJ/output/joystick"
	"github.com/leosat/MMVJ/pkg/security"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "midimapd"
)

// Process exit codes.
const (
	exitOK            = 0
	exitFatal         = 1
	exitConfigInvalid = 2
	exitInterrupted   = 130
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitFatal)
		}
	}()

	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return runSubcommand(args[0], args[1:])
	}

	cliCfg, err := parseFlags(args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return exitOK
	}
	if cliCfg.ShowHelp {
		newFlagSet(&CLIConfig{}).Usage()
		return exitOK
	}
	if err := validateFlags(cliCfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid flags: %v\n", err)
		return exitFatal
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting midimapd",
		"version", Version,
		"config_path", cliCfg.ConfigPath)

	checkKernelFacilities(logger)
	return runEngine(cliCfg, logger)
}

// checkKernelFacilities warns early about the usual reasons device
// creation fails later. Neither check is fatal here; the output adapter
// reports the authoritative error when it opens uinput.
func checkKernelFacilities(logger *slog.Logger) {
	if _, err := os.Stat(joystick.DefaultUinputPath); err != nil {
		logger.Warn("uinput device node not found, is the uinput module loaded?",
			"path", joystick.DefaultUinputPath, "error", err)
	}
	u, err := user.Current()
	if err != nil {
		return
	}
	groups, err := u.GroupIds()
	if err != nil {
		return
	}
	inputGroup, err := user.LookupGroup("input")
	if err != nil {
		return
	}
	if !contains(groups, inputGroup.Gid) {
		logger.Warn("User is not in the input group, raw device access may be denied",
			"user", u.Username)
	}
}

// configOverride folds command-line overrides into every loaded document
// so they hold across hot-reloads.
func configOverride(cli *CLIConfig) func(*config.Config) {
	return func(cfg *config.Config) {
		if cli.UpdateRate > 0 {
			cfg.Global.UpdateRate = cli.UpdateRate
		}
		if cli.EnableIndicator {
			cfg.Global.EnableSteeringIndicatorWindow = true
		}
		for _, name := range cli.PersistentJoysticks {
			if name == "all" {
				cfg.Global.PersistentJoysticks = true
				continue
			}
			if vj, ok := cfg.VirtualJoysticks[name]; ok {
				vj.Persistent = true
				cfg.VirtualJoysticks[name] = vj
			}
		}
	}
}

func runEngine(cli *CLIConfig, logger *slog.Logger) int {
	defer gomidi.CloseDriver()

	metricsRegistry := metric.NewMetricsRegistry()

	cfgMgr := config.NewManager(cli.ConfigPath, cli.PredefinesPath, logger)
	cfgMgr.SetOverride(configOverride(cli))
	rev, err := cfgMgr.Load()
	if err != nil {
		logger.Error("Configuration rejected", "error", err, "code", apperrors.CodeOf(err))
		if apperrors.IsInvalid(err) {
			return exitConfigInvalid
		}
		return exitFatal
	}

	// Targeted debug flags lower the level for one component without
	// flooding the rest of the log.
	debugLogger := setupLogger("debug", cli.LogFormat)
	engineLogger := logger
	if cli.DebugIdleTick {
		engineLogger = debugLogger
	}
	outputLogger := logger
	if cli.DebugFF {
		outputLogger = debugLogger
	}

	eng := engine.New(engine.Deps{
		ConfigManager:   cfgMgr,
		MetricsRegistry: metricsRegistry,
		Logger:          engineLogger,
	})

	midiIn := midi.New(midi.Deps{
		Queue:           eng.InputQueue(),
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})
	pointerIn := pointer.New(pointer.Deps{
		Queue:           eng.InputQueue(),
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
	})
	output := joystick.New(joystick.Deps{
		FeedbackQueue:   eng.FeedbackQueue(),
		MetricsRegistry: metricsRegistry,
		Logger:          outputLogger,
	})
	eng.AttachInput(midiIn)
	eng.AttachInput(pointerIn)
	eng.AttachOutput(output)

	components := component.NewManager(logger)
	components.Add(midiIn)
	components.Add(pointerIn)
	components.Add(output)

	if cli.EnableIndicator || rev.Config.Global.EnableSteeringIndicatorWindow {
		indicator := observer.New(observer.Deps{
			Port:            cli.IndicatorPort,
			MetricsRegistry: metricsRegistry,
			Logger:          logger,
		})
		eng.AttachIndicator(indicator)
		components.Add(indicator)
	}
	// The engine starts last: its Initialize materializes the virtual
	// devices through the already-initialized adapters.
	components.Add(eng)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := components.StartAll(ctx, cli.ShutdownTimeout); err != nil {
		logger.Error("Startup failed", "error", err, "code", apperrors.CodeOf(err))
		metricsRegistry.Metrics.RecordError("manager", string(apperrors.CodeOf(err)))
		if apperrors.IsInvalid(err) {
			return exitConfigInvalid
		}
		return exitFatal
	}

	monitor := health.NewMonitor()
	go pollHealth(ctx, components, monitor, metricsRegistry.CoreMetrics())

	if cli.NoHotReload {
		logger.Info("Hot reload disabled")
	} else if err := cfgMgr.Start(ctx); err != nil {
		logger.Warn("Hot reload unavailable", "error", err)
	} else {
		defer func() { _ = cfgMgr.Stop(cli.ShutdownTimeout) }()
	}

	if cli.MetricsPort > 0 {
		metricsServer := metric.NewServer(cli.MetricsPort, "/metrics", metricsRegistry, security.Config{})
		metricsServer.SetHealthMonitor(monitor)
		if err := metricsServer.Start(); err != nil {
			logger.Warn("Metrics server failed to start", "error", err)
		} else {
			defer func() { _ = metricsServer.Stop() }()
			logger.Info("Metrics server listening", "address", metricsServer.Address())
		}
	}

	logger.Info("midimapd running",
		"mappings", len(rev.Resolved.Mappings),
		"update_rate", rev.Config.Global.UpdateRate)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", "signal", sig.String())
	cancel()

	if err := components.StopAll(cli.ShutdownTimeout); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
		metricsRegistry.Metrics.RecordError("manager", string(apperrors.CodeOf(err)))
	}
	logger.Info("midimapd shutdown complete")

	if sig == syscall.SIGINT {
		return exitInterrupted
	}
	return exitOK
}
