package window

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")
)

// Foremost describes the window that currently has keyboard focus. A window
// whose process cannot be opened is still reported, without ExePath.
func Foremost() (Info, error) {
	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return Info{}, ErrNoWindow
	}
	info := Info{Handle: Handle(hwnd), Title: windowText(hwnd)}
	if _, err := windows.GetWindowThreadProcessId(hwnd, &info.PID); err != nil {
		return info, fmt.Errorf("window %s: %w", info.Handle, err)
	}
	if path, err := processPath(info.PID); err == nil {
		info.ExePath = path
		info.Product = productName(path)
	}
	return info, nil
}

// Activate brings h to the foreground. Windows may refuse when the caller is
// not itself in the foreground.
func Activate(h Handle) error {
	hwnd := windows.HWND(h)
	if !windows.IsWindow(hwnd) {
		return fmt.Errorf("%s: %w", h, ErrInvalid)
	}
	if ok, _, err := procSetForegroundWindow.Call(uintptr(hwnd)); ok == 0 {
		return fmt.Errorf("SetForegroundWindow %s: %w", h, err)
	}
	return nil
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	got, _, _ := procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf[:got])
}

func processPath(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return windows.UTF16ToString(buf[:size]), nil
}

// productName reads the version resource of the executable at path, trying
// each listed translation for ProductName then FileDescription.
func productName(path string) string {
	size, err := windows.GetFileVersionInfoSize(path, nil)
	if err != nil || size == 0 {
		return productFromPath(path)
	}
	block := make([]byte, size)
	if err := windows.GetFileVersionInfo(path, 0, size, unsafe.Pointer(&block[0])); err != nil {
		return productFromPath(path)
	}

	var trans unsafe.Pointer
	var n uint32
	if err := windows.VerQueryValue(unsafe.Pointer(&block[0]), `\VarFileInfo\Translation`, unsafe.Pointer(&trans), &n); err != nil || n < 4 {
		return productFromPath(path)
	}
	for _, t := range unsafe.Slice((*[2]uint16)(trans), n/4) {
		for _, field := range []string{"ProductName", "FileDescription"} {
			sub := fmt.Sprintf(`\StringFileInfo\%04x%04x\%s`, t[0], t[1], field)
			var val unsafe.Pointer
			var vn uint32
			if err := windows.VerQueryValue(unsafe.Pointer(&block[0]), sub, unsafe.Pointer(&val), &vn); err == nil && vn > 0 {
				if s := windows.UTF16PtrToString((*uint16)(val)); s != "" {
					return s
				}
			}
		}
	}
	return productFromPath(path)
}
