//go:build !windows

package inject

import "fmt"

// MouseClick is only available on windows.
func MouseClick(x, y int) error {
	return fmt.Errorf("click (%d,%d): %w", x, y, ErrMouseUnsupported)
}
