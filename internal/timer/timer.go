// Package timer provides handle-based timers for scheduled actions.
//
// Callers hold a single timer ID per concern (idle, connectivity loss,
// waiting reminder); arming a replacement cancels the previous one, so at
// most one timer per concern is ever pending. An empty handle means "no
// timer pending".
package timer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer       *time.Timer
	ticker      *time.Ticker
	done        chan struct{}
	scheduledAt time.Time
	description string
}

// SimpleTimer implements handle-based scheduling using Go's standard time package.
type SimpleTimer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
	nextID int64
}

// NewSimpleTimer creates a new SimpleTimer.
func NewSimpleTimer() *SimpleTimer {
	slog.Debug("Creating SimpleTimer")
	return &SimpleTimer{
		timers: make(map[string]*timerEntry),
	}
}

func (t *SimpleTimer) newID() string {
	t.mu.Lock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	t.mu.Unlock()
	return id
}

// ScheduleAfter schedules a function to run once after a delay and returns
// its handle.
func (t *SimpleTimer) ScheduleAfter(delay time.Duration, fn func()) (string, error) {
	id := t.newID()
	slog.Debug("SimpleTimer ScheduleAfter", "id", id, "delay", delay)

	tm := time.AfterFunc(delay, func() {
		slog.Debug("SimpleTimer executing scheduled function", "id", id)
		fn()
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
	})

	t.mu.Lock()
	t.timers[id] = &timerEntry{
		timer:       tm,
		scheduledAt: time.Now(),
		description: fmt.Sprintf("one-shot after %v", delay),
	}
	t.mu.Unlock()

	return id, nil
}

// ScheduleEvery schedules a function to run repeatedly at the given interval
// until the handle is cancelled. The function runs on every tick.
func (t *SimpleTimer) ScheduleEvery(interval time.Duration, fn func()) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("invalid tick interval %v", interval)
	}
	id := t.newID()
	slog.Debug("SimpleTimer ScheduleEvery", "id", id, "interval", interval)

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	t.mu.Lock()
	t.timers[id] = &timerEntry{
		ticker:      ticker,
		done:        done,
		scheduledAt: time.Now(),
		description: fmt.Sprintf("recurring every %v", interval),
	}
	t.mu.Unlock()

	return id, nil
}

// Cancel cancels a scheduled function by handle. Cancelling an unknown or
// already-fired handle is a no-op.
func (t *SimpleTimer) Cancel(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.timers[id]
	if !exists {
		slog.Debug("SimpleTimer Cancel: timer not found", "id", id)
		return
	}
	if entry.timer != nil {
		entry.timer.Stop()
	}
	if entry.ticker != nil {
		entry.ticker.Stop()
		close(entry.done)
	}
	delete(t.timers, id)
	slog.Debug("SimpleTimer Cancel succeeded", "id", id)
}

// Active reports whether the handle refers to a pending timer.
func (t *SimpleTimer) Active(id string) bool {
	if id == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.timers[id]
	return exists
}

// ActiveCount returns the number of pending timers.
func (t *SimpleTimer) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.timers)
}

// Stop cancels all scheduled timers.
func (t *SimpleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	slog.Debug("SimpleTimer stopping all timers", "count", len(t.timers))
	for id, entry := range t.timers {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		if entry.ticker != nil {
			entry.ticker.Stop()
			close(entry.done)
		}
		slog.Debug("SimpleTimer stopped timer", "id", id)
	}
	t.timers = make(map[string]*timerEntry)
}
