package collection

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerRunsOnlyLast(t *testing.T) {
	d := NewDebouncer(15 * time.Millisecond)
	var last int32
	var runs int32

	for i := int32(1); i <= 5; i++ {
		v := i
		d.Trigger(func() {
			atomic.AddInt32(&runs, 1)
			atomic.StoreInt32(&last, v)
		})
		time.Sleep(2 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
	if got := atomic.LoadInt32(&last); got != 5 {
		t.Fatalf("expected last trigger to win, got %d", got)
	}
	if d.Pending() {
		t.Fatal("nothing should be pending after firing")
	}
}

func TestDebouncerFlushAndCancel(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var runs int32

	if d.Flush() {
		t.Fatal("flush with nothing pending must report false")
	}

	d.Trigger(func() { atomic.AddInt32(&runs, 1) })
	if !d.Flush() {
		t.Fatal("expected flush to run pending function")
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}

	d.Trigger(func() { atomic.AddInt32(&runs, 1) })
	if !d.Cancel() {
		t.Fatal("expected cancel to drop pending function")
	}
	if d.Flush() {
		t.Fatal("cancelled function must not run")
	}
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected 1 run, got %d", got)
	}
}

func TestDebouncerStopIgnoresTriggers(t *testing.T) {
	d := NewDebouncer(5 * time.Millisecond)
	var runs int32

	d.Trigger(func() { atomic.AddInt32(&runs, 1) })
	d.Stop()
	d.Trigger(func() { atomic.AddInt32(&runs, 1) })

	time.Sleep(40 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 0 {
		t.Fatalf("expected no runs after stop, got %d", got)
	}
}

func TestDebouncerDefaultDelay(t *testing.T) {
	if d := NewDebouncer(0); d.Delay() != DefaultDebounce {
		t.Fatalf("expected default delay, got %s", d.Delay())
	}
}
