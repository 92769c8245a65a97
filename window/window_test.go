package window

import (
	"errors"
	"runtime"
	"testing"
)

func TestProductFromPath(t *testing.T) {
	tests := map[string]string{
		`C:\Program Files\Notepad++\notepad++.exe`: "notepad++",
		`C:\Windows\explorer.exe`:                  "explorer",
		"/usr/bin/code":                            "code",
		`C:\tools\.hidden`:                         ".hidden",
		`C:\tools\archive.tar.gz`:                  "archive.tar",
		"":                                         "Unknown",
	}
	for path, want := range tests {
		if got := productFromPath(path); got != want {
			t.Errorf("productFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle(Handle(0x1a2b).String())
	if err != nil {
		t.Fatal(err)
	}
	if h != 0x1a2b {
		t.Errorf("round trip = %s", h)
	}
	if h, err := ParseHandle("4242"); err != nil || h != 4242 {
		t.Errorf("decimal = %d, %v", h, err)
	}
	for _, bad := range []string{"", "0", "hwnd", "-1"} {
		if _, err := ParseHandle(bad); !errors.Is(err, ErrInvalid) {
			t.Errorf("ParseHandle(%q) = %v, want ErrInvalid", bad, err)
		}
	}
}

func TestUnsupportedPlatform(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("introspection available")
	}
	if _, err := Foremost(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Foremost = %v", err)
	}
	if err := Activate(1); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Activate = %v", err)
	}
}
