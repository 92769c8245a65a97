package inject

import (
	"time"

	"github.com/micmonay/keybd_event"
)

func setPrimaryModifier(kb *keybd_event.KeyBonding, on bool) {
	kb.HasCTRL(on)
}

// settle waits for udev and the compositor to register the new uinput device;
// keys sent earlier are lost.
func settle() {
	time.Sleep(2 * time.Second)
}
