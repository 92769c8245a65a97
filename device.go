package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"keytap/monitor"
)

type pickAction int

const (
	pickNone pickAction = iota
	pickConfirm
	pickCancel
)

// pickerKey applies one read from the raw terminal to the cursor.
func pickerKey(cursor, n int, in []byte) (int, pickAction) {
	if len(in) == 1 {
		switch in[0] {
		case 13: // Enter
			return cursor, pickConfirm
		case 3, 'q': // Ctrl+C
			return cursor, pickCancel
		case 'j':
			if cursor < n-1 {
				cursor++
			}
		case 'k':
			if cursor > 0 {
				cursor--
			}
		}
		return cursor, pickNone
	}
	if len(in) == 3 && in[0] == 0x1b && in[1] == '[' {
		switch in[2] {
		case 'A': // Up arrow
			if cursor > 0 {
				cursor--
			}
		case 'B': // Down arrow
			if cursor < n-1 {
				cursor++
			}
		}
	}
	return cursor, pickNone
}

// selectKeyboard lets the user choose one of the discovered keyboard nodes.
// It returns "" when the user cancels.
func selectKeyboard() (string, error) {
	devices, err := monitor.Keyboards()
	if err != nil {
		return "", fmt.Errorf("enumerating keyboards: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("no keyboard devices found (is user in 'input' group?)")
	}
	if len(devices) == 1 {
		fmt.Printf("Using keyboard: %s\n", devices[0])
		return devices[0], nil
	}

	// Raw mode for arrow key input
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return "", fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	cursor := 0
	renderList := func() {
		fmt.Print("\r\x1b[J")
		fmt.Print("Select keyboard (↑/↓, Enter to confirm):\r\n\r\n")
		for i, d := range devices {
			if i == cursor {
				fmt.Printf("  \x1b[1;36m▶ %s\x1b[0m\r\n", d)
			} else {
				fmt.Printf("    %s\r\n", d)
			}
		}
	}
	renderList()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		var action pickAction
		cursor, action = pickerKey(cursor, len(devices), buf[:n])
		switch action {
		case pickConfirm:
			fmt.Print("\r\n")
			return devices[cursor], nil
		case pickCancel:
			fmt.Print("\r\n")
			return "", nil
		}

		fmt.Printf("\x1b[%dA", len(devices)+2)
		renderList()
	}
}
