package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleAfterFires(t *testing.T) {
	st := NewSimpleTimer()
	defer st.Stop()

	var fired int32
	id, err := st.ScheduleAfter(10*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	if err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	if !st.Active(id) {
		t.Error("expected timer active before firing")
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&fired) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatal("timer did not fire")
	}

	time.Sleep(20 * time.Millisecond)
	if st.Active(id) {
		t.Error("fired timer still tracked")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	st := NewSimpleTimer()
	defer st.Stop()

	var fired int32
	id, err := st.ScheduleAfter(30*time.Millisecond, func() {
		atomic.AddInt32(&fired, 1)
	})
	if err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	st.Cancel(id)

	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Error("cancelled timer fired")
	}
	if st.ActiveCount() != 0 {
		t.Errorf("active count = %d, want 0", st.ActiveCount())
	}
}

func TestCancelUnknownHandleIsNoOp(t *testing.T) {
	st := NewSimpleTimer()
	defer st.Stop()
	st.Cancel("")
	st.Cancel("timer_999")
}

func TestScheduleEveryTicks(t *testing.T) {
	st := NewSimpleTimer()
	defer st.Stop()

	var ticks int32
	id, err := st.ScheduleEvery(10*time.Millisecond, func() {
		atomic.AddInt32(&ticks, 1)
	})
	if err != nil {
		t.Fatalf("ScheduleEvery failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&ticks) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	st.Cancel(id)
	if got := atomic.LoadInt32(&ticks); got < 3 {
		t.Errorf("ticks = %d, want at least 3", got)
	}

	settled := atomic.LoadInt32(&ticks)
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&ticks); got > settled+1 {
		t.Errorf("ticker kept running after cancel: %d -> %d", settled, got)
	}
}

func TestScheduleEveryRejectsInvalidInterval(t *testing.T) {
	st := NewSimpleTimer()
	defer st.Stop()
	if _, err := st.ScheduleEvery(0, func() {}); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestRearmPattern(t *testing.T) {
	st := NewSimpleTimer()
	defer st.Stop()

	first, err := st.ScheduleAfter(time.Hour, func() {})
	if err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}
	st.Cancel(first)
	second, err := st.ScheduleAfter(time.Hour, func() {})
	if err != nil {
		t.Fatalf("ScheduleAfter failed: %v", err)
	}

	if st.ActiveCount() != 1 {
		t.Errorf("active count = %d, want 1 after re-arm", st.ActiveCount())
	}
	if !st.Active(second) || st.Active(first) {
		t.Error("wrong timer left active after re-arm")
	}
}
