package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"keytap/chord"
	"keytap/config"
	"keytap/doctor"
	"keytap/inject"
	"keytap/keyevent"
	"keytap/log"
	"keytap/monitor"
	"keytap/selection"
	"keytap/shutdown"
)

var version = "dev"

const (
	counterInterval = 250 * time.Millisecond
	maxSelection    = 4096
)

func run() {
	configFlag := flag.String("config", "", "Config file path (default: <UserConfigDir>/keytap/config.yaml)")
	deviceFlag := flag.String("device", "", "Read this keyboard device node (linux raw-device backend)")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	tuiFlag := flag.Bool("tui", false, "Run with terminal UI")
	durationFlag := flag.Duration("duration", 0, "Stop capturing after this long (0 = until interrupted)")
	chordFlag := flag.String("chord", "", "Report taps and holds of a key combination, e.g. ctrl+shift+57")
	longPressFlag := flag.Duration("longpress", 350*time.Millisecond, "Long-press threshold for hold vs tap (e.g., 350ms)")
	setupFlag := flag.Bool("setup", false, "Select keyboard device before capturing (linux)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	selectionFlag := flag.Bool("selection", false, "Print the currently selected text and exit")
	sendFlag := flag.Int("send", -1, "Send one synthetic key press (virtual key code) and exit")
	modFlag := flag.Bool("mod", false, "Hold the primary modifier (Cmd on macOS, Ctrl elsewhere) with -send")
	windowFlag := flag.Bool("window", false, "Print the foreground window and exit (windows)")
	activateFlag := flag.String("activate", "", "Bring the window with this handle to the foreground and exit (windows)")
	clickFlag := flag.String("click", "", "Left-click at screen pixel x,y and exit (windows)")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("keytap %s\n", version)
		return
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = config.DefaultPath()
	}
	cfg, cfgErr := config.Load(cfgPath)

	// Flags given on the command line override the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = *deviceFlag
		case "logpath":
			cfg.LogPath = *logPathFlag
		case "tui":
			cfg.TUI = *tuiFlag
		case "chord":
			cfg.Chord = *chordFlag
		case "longpress":
			cfg.LongPress = *longPressFlag
		}
	})

	// Resolve log directory early
	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog(log.Dir())

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	exit := func(code int) {
		log.Close()
		os.Exit(code)
	}

	if cfgErr != nil {
		log.Warnf("config: %v", cfgErr)
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}
	var notices []string
	for _, w := range config.ConsumeWarnings() {
		log.Warn("config: " + w)
		notices = append(notices, "config: "+w)
	}
	log.Infof("keytap %s config=%s", version, cfgPath)

	opts := monitor.Options{
		Device:       cfg.Device,
		JoinTimeout:  cfg.JoinTimeout,
		StartTimeout: cfg.StartTimeout,
		PollInterval: cfg.PollInterval,
	}

	var det *chord.Detector
	if cfg.Chord != "" {
		combo, err := chord.ParseCombo(cfg.Chord)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(2)
		}
		det = chord.New(combo, cfg.LongPress)
		log.Infof("chord=%s longpress=%s", combo, cfg.LongPress)
	}

	switch {
	case *doctorFlag:
		exit(doctor.Run(opts))
	case *testFlag:
		exit(runTestMode(opts, det, os.Stdin, os.Stdout))
	case *selectionFlag:
		exit(printSelection())
	case *sendFlag >= 0:
		exit(sendKey(*sendFlag, *modFlag))
	case *windowFlag:
		exit(printForeground())
	case *activateFlag != "":
		exit(activateWindow(*activateFlag))
	case *clickFlag != "":
		exit(clickAt(*clickFlag))
	}

	if *setupFlag {
		dev, err := selectKeyboard()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			exit(1)
		}
		if dev == "" {
			exit(0)
		}
		log.Info("selected_device: " + dev)
		opts.Device = dev
	}

	exit(runMonitor(opts, det, cfg.TUI, *durationFlag, notices))
}

// runMonitor captures until a signal, the -duration timer, TUI quit, or the
// backend ending on its own. Each notice is shown once capture is running.
func runMonitor(opts monitor.Options, det *chord.Detector, useTUI bool, duration time.Duration, notices []string) int {
	useTUI = useTUI && term.IsTerminal(int(os.Stdout.Fd()))

	var sink EventSink
	tuiDone := make(chan struct{})
	if useTUI {
		p := NewTUIProgram()
		tuiMu.Lock()
		tuiProgram = p
		tuiMu.Unlock()
		sink = tuiSink{}
		go func() {
			defer close(tuiDone)
			if _, err := p.Run(); err != nil {
				log.Errorf("tui: %v", err)
			}
		}()
	} else {
		sink = newPlainSink(os.Stdout)
	}
	stopTUI := func() {
		if useTUI {
			tuiProgram.Quit()
			<-tuiDone
		}
	}

	handler := sink.Key
	var presses <-chan chord.Press
	if det != nil {
		presses = det.Presses()
		handler = func(ev keyevent.Event) {
			sink.Key(ev)
			det.Feed(ev)
		}
	}

	mon := monitor.New(opts)
	if err := mon.Start(handler); err != nil {
		stopTUI()
		fmt.Fprintf(os.Stderr, "Error: capture failed to start (%s): %v\n", monitor.StatusOf(err), err)
		printStartHint(err)
		return 1
	}
	sink.Status("running")
	sink.Backend(mon.Backend(), mon.Device())
	for _, n := range notices {
		sink.Notice(n)
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	defer shutdown.Stop(sigChan)

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(counterInterval)
	defer ticker.Stop()

	code := 0
	lost := false
loop:
	for {
		select {
		case <-sigChan:
			log.Info("signal received")
			break loop
		case <-deadline:
			break loop
		case <-tuiDone:
			break loop
		case <-mon.Done():
			log.Warn("capture ended without Stop")
			sink.Notice("capture ended unexpectedly")
			lost = true
			code = 1
			break loop
		case <-ticker.C:
			sink.Counters(mon.Counters())
		case p := <-presses:
			log.Infof("chord %s after %s", p.Kind, p.Duration)
			sink.Chord(p)
		}
	}

	sink.Counters(mon.Counters())
	if err := mon.Stop(); err != nil {
		log.Errorf("stop: %v", err)
		sink.Notice("stop failed: " + monitor.StatusOf(err).String())
		fmt.Fprintf(os.Stderr, "Error: stop failed (%s): %v\n", monitor.StatusOf(err), err)
		code = 1
	}
	if det != nil {
		det.Reset()
	}
	sink.Status("stopped")
	stopTUI()

	if lost {
		fmt.Fprintln(os.Stderr, "Capture ended unexpectedly (device removed or access revoked)")
	}
	return code
}

func printStartHint(err error) {
	switch {
	case errors.Is(err, monitor.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "  Hint: run 'keytap -doctor' for permission setup help")
	case errors.Is(err, monitor.ErrDeviceNotFound):
		fmt.Fprintln(os.Stderr, "  Hint: pick a keyboard with -setup or set -device")
	case errors.Is(err, monitor.ErrAlreadyRunning):
		fmt.Fprintln(os.Stderr, "  Hint: another capture session is active in this process")
	}
}

func printSelection() int {
	text, ok := selection.Read(maxSelection)
	if !ok {
		fmt.Fprintln(os.Stderr, "No selection available")
		return 1
	}
	fmt.Println(text)
	return 0
}

func sendKey(code int, useModifier bool) int {
	if err := inject.Init(); err != nil {
		log.Errorf("inject init: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := inject.SendKey(code, useModifier); err != nil {
		log.Errorf("send key %d: %v", code, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Infof("sent key=%d mod=%t", code, useModifier)
	return 0
}
