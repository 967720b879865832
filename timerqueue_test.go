//go:build linux

package reactor

import (
	"sync/atomic"
	"testing"
)

func newTimerQueueForTest(kind TimerQueueType) TimerQueue {
	return NewTimerQueue(kind, nil)
}

func allTimerQueueTypes() []TimerQueueType {
	return []TimerQueueType{TimerQueueHeap, TimerQueueHashWheel}
}

func TestTimerQueueOneShotFires(t *testing.T) {
	for _, kind := range allTimerQueueTypes() {
		t.Run(kind.String(), func(t *testing.T) {
			q := newTimerQueueForTest(kind)
			var fired atomic.Bool
			q.Add(Zero(), Zero(), func() { fired.Store(true) })
			q.Process(Now().Add(Milliseconds(1)))
			if !fired.Load() {
				t.Error("one-shot timer should have fired")
			}
		})
	}
}

func TestTimerQueueDoesNotFireBeforeExpiry(t *testing.T) {
	for _, kind := range allTimerQueueTypes() {
		t.Run(kind.String(), func(t *testing.T) {
			q := newTimerQueueForTest(kind)
			var fired atomic.Bool
			q.Add(Seconds(60), Zero(), func() { fired.Store(true) })
			q.Process(Now())
			if fired.Load() {
				t.Error("timer scheduled 60s out should not fire immediately")
			}
		})
	}
}

// TestTimerQueueCancelPreventsFiring is the deterministic cancellation
// guarantee: once Cancel has returned, no subsequent Process call may
// invoke the callback, regardless of GC timing.
func TestTimerQueueCancelPreventsFiring(t *testing.T) {
	for _, kind := range allTimerQueueTypes() {
		t.Run(kind.String(), func(t *testing.T) {
			q := newTimerQueueForTest(kind)
			var fired atomic.Bool
			id := q.Add(Zero(), Zero(), func() { fired.Store(true) })
			q.Cancel(id)
			q.Process(Now().Add(Milliseconds(1)))
			if fired.Load() {
				t.Error("cancelled timer must not fire")
			}
		})
	}
}

func TestTimerQueuePeriodicReschedules(t *testing.T) {
	for _, kind := range allTimerQueueTypes() {
		t.Run(kind.String(), func(t *testing.T) {
			q := newTimerQueueForTest(kind)
			var count atomic.Int64
			q.Add(Zero(), Milliseconds(1), func() { count.Add(1) })

			now := Now()
			for i := 0; i < 3; i++ {
				now = now.Add(Milliseconds(2))
				q.Process(now)
			}
			if got := count.Load(); got < 3 {
				t.Errorf("periodic timer fired %d times in 3 advances, want >= 3", got)
			}
		})
	}
}

func TestTimerQueueLenTracksLiveTimers(t *testing.T) {
	for _, kind := range allTimerQueueTypes() {
		t.Run(kind.String(), func(t *testing.T) {
			q := newTimerQueueForTest(kind)
			if q.Len() != 0 {
				t.Fatalf("Len() on empty queue = %d, want 0", q.Len())
			}
			id := q.Add(Seconds(60), Zero(), func() {})
			if q.Len() != 1 {
				t.Errorf("Len() after one Add = %d, want 1", q.Len())
			}
			q.Cancel(id)
			if q.Len() != 0 {
				t.Errorf("Len() after Cancel = %d, want 0", q.Len())
			}
		})
	}
}

func TestTimerQueueCloseResetsState(t *testing.T) {
	for _, kind := range allTimerQueueTypes() {
		t.Run(kind.String(), func(t *testing.T) {
			q := newTimerQueueForTest(kind)
			q.Add(Seconds(60), Zero(), func() {})
			q.Close()
			if q.Len() != 0 {
				t.Errorf("Len() after Close = %d, want 0", q.Len())
			}
		})
	}
}
