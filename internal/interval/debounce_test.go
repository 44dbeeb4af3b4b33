package interval

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_Coalesces(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func() {
		callCount.Add(1)
	})

	for i := 0; i < 10; i++ {
		d.Call()
	}

	time.Sleep(150 * time.Millisecond)

	if callCount.Load() != 1 {
		t.Errorf("callCount = %d, want 1", callCount.Load())
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func() {
		callCount.Add(1)
	})

	d.Call()
	d.Cancel()

	time.Sleep(100 * time.Millisecond)

	if callCount.Load() != 0 {
		t.Errorf("callCount = %d, want 0 (canceled)", callCount.Load())
	}
	if d.isPending() {
		t.Error("isPending() = true after Cancel")
	}
}

func TestDebouncer_CallImmediate(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(time.Hour, func() {
		callCount.Add(1)
	})

	// Nothing pending, nothing runs.
	d.CallImmediate()
	if callCount.Load() != 0 {
		t.Fatalf("callCount = %d, want 0", callCount.Load())
	}

	d.Call()
	if !d.isPending() {
		t.Fatal("isPending() = false after Call")
	}
	d.CallImmediate()

	if callCount.Load() != 1 {
		t.Errorf("callCount = %d, want 1", callCount.Load())
	}
	if d.isPending() {
		t.Error("isPending() = true after CallImmediate")
	}
}

func TestDebouncer_SetDelay(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(time.Hour, func() {
		callCount.Add(1)
	})
	d.SetDelay(20 * time.Millisecond)
	d.Call()

	time.Sleep(100 * time.Millisecond)

	if callCount.Load() != 1 {
		t.Errorf("callCount = %d, want 1", callCount.Load())
	}
}
