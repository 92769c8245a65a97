package inject

import "github.com/micmonay/keybd_event"

func setPrimaryModifier(kb *keybd_event.KeyBonding, on bool) {
	kb.HasCTRL(on)
}

func settle() {}
