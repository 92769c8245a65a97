package main

import "testing"

func TestPickerKey(t *testing.T) {
	up := []byte{0x1b, '[', 'A'}
	down := []byte{0x1b, '[', 'B'}

	cursor, act := pickerKey(0, 3, down)
	if cursor != 1 || act != pickNone {
		t.Fatalf("down: cursor=%d act=%d", cursor, act)
	}
	cursor, _ = pickerKey(2, 3, down)
	if cursor != 2 {
		t.Errorf("down past end moved to %d", cursor)
	}
	cursor, _ = pickerKey(0, 3, up)
	if cursor != 0 {
		t.Errorf("up past start moved to %d", cursor)
	}
	cursor, _ = pickerKey(1, 3, []byte{'k'})
	if cursor != 0 {
		t.Errorf("k moved to %d", cursor)
	}
	if _, act := pickerKey(1, 3, []byte{13}); act != pickConfirm {
		t.Error("enter did not confirm")
	}
	if _, act := pickerKey(1, 3, []byte{3}); act != pickCancel {
		t.Error("ctrl+c did not cancel")
	}
}
