//go:build darwin && cgo

package monitor

/*
#cgo darwin LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework CoreFoundation
#include <ApplicationServices/ApplicationServices.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

extern CGEventRef keytapHandleEvent(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static CFMachPortRef createKeyTap(uintptr_t refcon) {
	CGEventMask mask = CGEventMaskBit(kCGEventKeyDown) |
		CGEventMaskBit(kCGEventKeyUp) |
		CGEventMaskBit(kCGEventFlagsChanged);
	return CGEventTapCreate(kCGSessionEventTap,
		kCGHeadInsertEventTap,
		kCGEventTapOptionListenOnly,
		mask,
		keytapHandleEvent,
		(void *)refcon);
}

static Boolean hasListenAccess(void) {
	return CGPreflightListenEventAccess();
}

static CFRunLoopSourceRef attachTap(CFMachPortRef tap, CFRunLoopRef loop) {
	CFRunLoopSourceRef source = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, tap, 0);
	if (source != NULL) {
		CFRunLoopAddSource(loop, source, kCFRunLoopCommonModes);
		CGEventTapEnable(tap, true);
	}
	return source;
}

static void detachTap(CFMachPortRef tap, CFRunLoopRef loop, CFRunLoopSourceRef source) {
	CGEventTapEnable(tap, false);
	CFRunLoopRemoveSource(loop, source, kCFRunLoopCommonModes);
	CFRelease(source);
}

static void enableTap(CFMachPortRef tap) {
	CGEventTapEnable(tap, true);
}

static void runLoopSlice(double seconds) {
	CFRunLoopRunInMode(kCFRunLoopDefaultMode, seconds, false);
}

static int64_t eventKeycode(CGEventRef event) {
	return CGEventGetIntegerValueField(event, kCGKeyboardEventKeycode);
}

static int64_t eventAutorepeat(CGEventRef event) {
	return CGEventGetIntegerValueField(event, kCGKeyboardEventAutorepeat);
}

static uint64_t eventFlags(CGEventRef event) {
	return (uint64_t)CGEventGetFlags(event);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"unsafe"

	"keytap/log"
)

// Run loop slice length; bounds how late a Signal sent before the loop
// starts is noticed.
const tapSlice = 0.25

type tapBackend struct {
	tap    C.CFMachPortRef
	handle cgo.Handle
	emit   Emit
	stop   atomic.Bool

	mu   sync.Mutex
	loop C.CFRunLoopRef
}

func newTapBackend() *tapBackend {
	return &tapBackend{}
}

func (b *tapBackend) Name() string { return "cgeventtap" }

func (b *tapBackend) Open() error {
	b.stop.Store(false)
	b.handle = cgo.NewHandle(b)
	b.tap = C.createKeyTap(C.uintptr_t(b.handle))
	if b.tap == 0 {
		b.handle.Delete()
		b.handle = 0
		if C.hasListenAccess() == C.Boolean(0) {
			return fmt.Errorf("grant Input Monitoring in System Settings > Privacy & Security: %w", ErrPermissionDenied)
		}
		return fmt.Errorf("CGEventTapCreate failed: %w", ErrResourceAcquisition)
	}
	return nil
}

func (b *tapBackend) Run(emit Emit, ready chan<- error) {
	b.emit = emit

	loop := C.CFRunLoopGetCurrent()
	source := C.attachTap(b.tap, loop)
	if source == 0 {
		ready <- fmt.Errorf("run loop source: %w", ErrResourceAcquisition)
		return
	}
	defer C.detachTap(b.tap, loop, source)

	b.mu.Lock()
	b.loop = loop
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.loop = 0
		b.mu.Unlock()
	}()

	ready <- nil
	for !b.stop.Load() {
		C.runLoopSlice(C.double(tapSlice))
	}
}

func (b *tapBackend) Signal() {
	b.stop.Store(true)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loop != 0 {
		C.CFRunLoopStop(b.loop)
	}
}

func (b *tapBackend) Close() error {
	if b.tap != 0 {
		C.CFMachPortInvalidate(b.tap)
		C.CFRelease(C.CFTypeRef(b.tap))
		b.tap = 0
	}
	if b.handle != 0 {
		b.handle.Delete()
		b.handle = 0
	}
	return nil
}

//export keytapHandleEvent
func keytapHandleEvent(_ C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	b, ok := cgo.Handle(uintptr(refcon)).Value().(*tapBackend)
	if !ok {
		return event
	}

	typ := uint32(eventType)
	if tapDisabled(typ) {
		log.BackendEvent(b.Name(), "reenable")
		C.enableTap(b.tap)
		return event
	}
	if b.emit == nil {
		return event
	}

	ev, ok := translateTap(typ, int64(C.eventKeycode(event)), uint64(C.eventFlags(event)), int64(C.eventAutorepeat(event)))
	if ok {
		b.emit(ev)
	}
	return event
}
