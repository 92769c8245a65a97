package selection

import (
	"sync"

	cb "github.com/atotto/clipboard"

	"keytap/log"
)

var primaryMu sync.Mutex

// Read returns up to max bytes of the X11 PRIMARY selection.
func Read(max int) (string, bool) {
	primaryMu.Lock()
	defer primaryMu.Unlock()

	cb.Primary = true
	defer func() { cb.Primary = false }()

	text, err := cb.ReadAll()
	if err != nil {
		log.Warnf("read primary selection: %v", err)
		return "", false
	}
	if text == "" {
		return "", false
	}
	return truncate(text, max), true
}
