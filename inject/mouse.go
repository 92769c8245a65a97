package inject

import (
	"errors"
	"fmt"
)

var ErrMouseUnsupported = errors.New("mouse injection not supported on this platform")

// absoluteSpan is the range SendInput maps onto the primary screen for
// MOUSEEVENTF_ABSOLUTE coordinates.
const absoluteSpan = 65535

// toAbsolute maps pixel (x, y) on a w by h screen onto the normalized
// absolute range, so the last pixel lands on 65535.
func toAbsolute(x, y, w, h int) (int32, int32, error) {
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("screen size %dx%d", w, h)
	}
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0, 0, fmt.Errorf("point (%d,%d) outside %dx%d screen", x, y, w, h)
	}
	return scale(x, w), scale(y, h), nil
}

func scale(v, extent int) int32 {
	if extent == 1 {
		return 0
	}
	return int32((int64(v)*absoluteSpan + int64(extent-1)/2) / int64(extent-1))
}
