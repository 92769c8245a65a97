package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"keytap/chord"
	"keytap/keyevent"
	"keytap/log"
	"keytap/monitor"
)

const waitTimeout = 2 * time.Second

// runTestMode drives a monitor over the fake backend from line commands:
//
//	START | STOP | RUNNING
//	DOWN code [mods] | UP code [mods] | REPEAT code [mods] | FLAGS code mods
//	WAIT n        (block until n records have been printed in total)
//	WAIT_CHORD n  (block until n chord results have been printed)
//	SLEEP ms | QUIT
//
// Records are printed as "event ..." lines by a plainSink on out. When det is
// set, its results are printed as "chord <kind>" lines.
func runTestMode(opts monitor.Options, det *chord.Detector, in io.Reader, out io.Writer) int {
	fb := monitor.NewFake()
	opts.Backend = fb
	mon := monitor.New(opts)
	sink := newPlainSink(out)

	var seen, chords atomic.Int64
	handler := func(ev keyevent.Event) {
		sink.Key(ev)
		seen.Add(1)
		if det != nil {
			det.Feed(ev)
		}
	}

	var wg sync.WaitGroup
	quit := make(chan struct{})
	if det != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case p := <-det.Presses():
					sink.printf("chord %s", p.Kind)
					chords.Add(1)
				case <-quit:
					return
				}
			}
		}()
	}
	defer func() {
		if mon.IsRunning() {
			mon.Stop()
		}
		close(quit)
		wg.Wait()
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToUpper(fields[0]), fields[1:]
		switch cmd {
		case "START":
			err := mon.Start(handler)
			sink.Status("start " + monitor.StatusOf(err).String())
			if err == nil {
				sink.Backend(mon.Backend(), "")
			}
		case "STOP":
			sink.Status("stop " + monitor.StatusOf(mon.Stop()).String())
			if det != nil {
				det.Reset()
			}
		case "RUNNING":
			sink.printf("running %t", mon.IsRunning())
		case "DOWN", "UP", "REPEAT", "FLAGS":
			ev, err := parseSimEvent(cmd, args)
			if err != nil {
				sink.Notice(err.Error())
				continue
			}
			if !fb.Inject(ev) {
				sink.Notice("rejected " + ev.String())
			}
		case "WAIT", "WAIT_CHORD":
			n, err := strconv.Atoi(strings.Join(args, ""))
			if err != nil {
				sink.Notice("bad " + cmd + " count")
				continue
			}
			counter := &seen
			if cmd == "WAIT_CHORD" {
				counter = &chords
			}
			if !waitFor(func() bool { return counter.Load() >= int64(n) }, waitTimeout) {
				sink.Notice("wait timeout")
			}
		case "SLEEP":
			if ms, err := strconv.Atoi(strings.Join(args, "")); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case "QUIT":
			return 0
		default:
			sink.Notice("unknown command " + cmd)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("test mode input: %v", err)
		return 1
	}
	return 0
}

// parseSimEvent builds the record for one injection command. Codes are
// platform-native and passed through unchanged.
func parseSimEvent(cmd string, args []string) (keyevent.Event, error) {
	if len(args) == 0 || len(args) > 2 {
		return keyevent.Event{}, errUsage(cmd)
	}
	code, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return keyevent.Event{}, errUsage(cmd)
	}
	var mods keyevent.Modifiers
	if len(args) == 2 {
		if mods, err = keyevent.ParseModifiers(args[1]); err != nil {
			return keyevent.Event{}, err
		}
	} else if cmd == "FLAGS" {
		return keyevent.Event{}, errUsage(cmd)
	}

	ev := keyevent.Event{KeyCode: uint16(code), Modifiers: mods}
	switch cmd {
	case "DOWN":
		ev.Kind = keyevent.KeyDown
	case "REPEAT":
		ev.Kind = keyevent.KeyDown
		ev.IsRepeat = true
	case "UP":
		ev.Kind = keyevent.KeyUp
	case "FLAGS":
		ev.Kind = keyevent.FlagsChanged
	}
	return ev, nil
}

type usageError string

func (e usageError) Error() string { return "usage: " + string(e) }

func errUsage(cmd string) error {
	if cmd == "FLAGS" {
		return usageError("FLAGS code mods")
	}
	return usageError(cmd + " code [mods]")
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}
