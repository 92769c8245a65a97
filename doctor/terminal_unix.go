//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode left behind by keystrokes typed while capture
// was live.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
