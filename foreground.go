package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"keytap/inject"
	"keytap/log"
	"keytap/window"
)

func printForeground() int {
	info, err := window.Foremost()
	if err != nil {
		log.Errorf("foreground window: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Println(info)
	return 0
}

func activateWindow(arg string) int {
	h, err := window.ParseHandle(arg)
	if err == nil {
		err = window.Activate(h)
	}
	if err != nil {
		log.Errorf("activate %s: %v", arg, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Infof("activated window %s", h)
	return 0
}

func clickAt(arg string) int {
	x, y, err := parsePoint(arg)
	if err == nil {
		err = inject.MouseClick(x, y)
	}
	if err != nil {
		log.Errorf("click %s: %v", arg, err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Infof("clicked at %d,%d", x, y)
	return 0
}

// parsePoint reads "x,y" in screen pixels.
func parsePoint(s string) (int, int, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("point %q: want x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	if x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("point %q: negative coordinate", s)
	}
	return x, y, nil
}
