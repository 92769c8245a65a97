//go:build !linux

package selection

import (
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"keytap/inject"
	"keytap/log"
)

const (
	copyWait = 500 * time.Millisecond
	copyPoll = 20 * time.Millisecond
)

var copyMu sync.Mutex

// Read copies the selection through the clipboard and returns up to max bytes
// of it. The previous clipboard text is restored afterwards.
func Read(max int) (string, bool) {
	copyMu.Lock()
	defer copyMu.Unlock()

	saved, err := cb.ReadAll()
	if err != nil {
		saved = ""
	}
	defer func() {
		if err := cb.WriteAll(saved); err != nil {
			log.Warnf("restore clipboard: %v", err)
		}
	}()

	if err := cb.WriteAll(""); err != nil {
		log.Warnf("clear clipboard: %v", err)
		return "", false
	}
	if err := inject.SendKey(inject.KeyC, true); err != nil {
		log.Warnf("send copy shortcut: %v", err)
		return "", false
	}

	deadline := time.Now().Add(copyWait)
	for time.Now().Before(deadline) {
		text, err := cb.ReadAll()
		if err == nil && text != "" {
			return truncate(text, max), true
		}
		time.Sleep(copyPoll)
	}
	return "", false
}
