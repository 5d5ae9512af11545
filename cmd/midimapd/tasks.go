package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"

	"github.com/holoplot/go-evdev"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/leosat/MMVJ/config"
	apperrors "github.com/leosat/MMVJ/errors"
	"github.com/leosat/MMVJ/event"
	"github.com/leosat/MMVJ/input/midi"
	"github.com/leosat/MMVJ/input/pointer"
)

// runSubcommand dispatches the auxiliary tooling used while writing
// mappings: enumeration, monitoring, learning, and validation.
func runSubcommand(name string, args []string) int {
	switch name {
	case "enum-midi":
		return runEnumMIDI()
	case "monitor-midi":
		return runMonitorMIDI(args)
	case "midi-learn":
		return runMIDILearn()
	case "enum-mice":
		return runEnumMice()
	case "monitor-mouse":
		return runMonitorMouse(args)
	case "validate-config":
		return runValidateConfig(args)
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown subcommand: %s (see --help)\n", name)
		return exitFatal
	}
}

func runEnumMIDI() int {
	defer gomidi.CloseDriver()
	ports := midi.EnumeratePorts()
	if len(ports) == 0 {
		fmt.Println("No MIDI input ports found")
		return exitOK
	}
	for i, name := range ports {
		fmt.Printf("%3d  %s\n", i, name)
	}
	return exitOK
}

func runMonitorMIDI(args []string) int {
	defer gomidi.CloseDriver()

	re, err := compileOptionalRegex(args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}

	opened := 0
	for _, p := range gomidi.GetInPorts() {
		portName := p.String()
		if re != nil && !re.MatchString(portName) {
			continue
		}
		stop, err := gomidi.ListenTo(p, func(msg gomidi.Message, _ int32) {
			fmt.Printf("%-28s %s\n", portName, msg.String())
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "cannot listen on %q: %v\n", portName, err)
			continue
		}
		defer stop()
		opened++
		fmt.Printf("Monitoring %q\n", portName)
	}
	if opened == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "no matching MIDI input ports")
		return exitFatal
	}

	fmt.Println("Press Ctrl-C to stop")
	waitForInterrupt()
	return exitOK
}

func runMIDILearn() int {
	defer gomidi.CloseDriver()

	var mu sync.Mutex
	var last string

	opened := 0
	for _, p := range gomidi.GetInPorts() {
		portName := p.String()
		stop, err := gomidi.ListenTo(p, func(msg gomidi.Message, _ int32) {
			key, ch, ok := learnKey(msg)
			if !ok {
				return
			}
			line := fmt.Sprintf("%-20s (channel %d, port %q)", key.String(), ch, portName)
			mu.Lock()
			if line != last {
				last = line
				fmt.Println(line)
			}
			mu.Unlock()
		})
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "cannot listen on %q: %v\n", portName, err)
			continue
		}
		defer stop()
		opened++
	}
	if opened == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "no MIDI input ports")
		return exitFatal
	}

	fmt.Println("Touch a control to print its literal, Ctrl-C to stop")
	waitForInterrupt()
	return exitOK
}

// learnKey maps one channel message onto the control literal a mapping
// would declare for it.
func learnKey(msg gomidi.Message) (event.Key, uint8, bool) {
	var ch, b1, b2 uint8
	var rel int16
	var abs uint16

	switch {
	case msg.GetNoteOn(&ch, &b1, &b2), msg.GetNoteOff(&ch, &b1, &b2):
		return event.Key{Kind: event.KindNote, Code: int(b1), Channel: int(ch)}, ch, true
	case msg.GetControlChange(&ch, &b1, &b2):
		return event.Key{Kind: event.KindControlChange, Code: int(b1), Channel: int(ch)}, ch, true
	case msg.GetPitchBend(&ch, &rel, &abs):
		return event.Key{Kind: event.KindPitchWheel, Channel: int(ch)}, ch, true
	case msg.GetAfterTouch(&ch, &b1):
		return event.Key{Kind: event.KindChannelPressure, Channel: int(ch)}, ch, true
	case msg.GetPolyAfterTouch(&ch, &b1, &b2):
		return event.Key{Kind: event.KindPolyPressure, Code: int(b1), Channel: int(ch)}, ch, true
	}
	return event.Key{}, 0, false
}

func runEnumMice() int {
	paths, err := pointer.EnumerateDevices()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}
	if len(paths) == 0 {
		fmt.Println("No input devices found")
		return exitOK
	}
	for _, p := range paths {
		fmt.Printf("%-20s %s\n", p.Path, p.Name)
	}
	return exitOK
}

func runMonitorMouse(args []string) int {
	re, err := compileOptionalRegex(args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}

	paths, err := pointer.EnumerateDevices()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}

	var wg sync.WaitGroup
	var devices []*evdev.InputDevice
	for _, p := range paths {
		if re != nil && !re.MatchString(p.Name) {
			continue
		}
		dev, err := evdev.Open(p.Path)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "cannot open %s: %v\n", p.Path, err)
			continue
		}
		devices = append(devices, dev)
		fmt.Printf("Monitoring %s (%s)\n", p.Path, p.Name)

		wg.Add(1)
		go func(dev *evdev.InputDevice, path string) {
			defer wg.Done()
			for {
				ev, err := dev.ReadOne()
				if err != nil {
					return
				}
				if ev.Type == evdev.EV_SYN {
					continue
				}
				fmt.Printf("%-20s %-8s %-16s %d\n", path, ev.TypeName(), ev.CodeName(), ev.Value)
			}
		}(dev, p.Path)
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, "no matching input devices")
		return exitFatal
	}

	fmt.Println("Press Ctrl-C to stop")
	waitForInterrupt()
	for _, dev := range devices {
		_ = dev.Close()
	}
	wg.Wait()
	return exitOK
}

func runValidateConfig(args []string) int {
	cli, err := parseFlags(args)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return exitFatal
	}

	cfg, err := config.LoadFile(cli.ConfigPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v (code %s)\n", err, apperrors.CodeOf(err))
		if apperrors.IsInvalid(err) {
			return exitConfigInvalid
		}
		return exitFatal
	}
	if cli.PredefinesPath != "" {
		pre, err := config.LoadPredefines(cli.PredefinesPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "%v (code %s)\n", err, apperrors.CodeOf(err))
			if apperrors.IsInvalid(err) {
				return exitConfigInvalid
			}
			return exitFatal
		}
		cfg.ResolvePredefines(pre)
	}

	resolved, err := config.Resolve(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%v (code %s)\n", err, apperrors.CodeOf(err))
		return exitConfigInvalid
	}

	fmt.Printf("Configuration valid: %d mappings, %d input devices, %d virtual joysticks\n",
		len(resolved.Mappings), len(resolved.Inputs), len(resolved.Outputs))
	return exitOK
}

func compileOptionalRegex(args []string) (*regexp.Regexp, error) {
	if len(args) == 0 {
		return nil, nil
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid name regex %q: %w", args[0], err)
	}
	return re, nil
}

func waitForInterrupt() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}
