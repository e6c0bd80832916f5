// Package scheduler provides recurring job scheduling for ChatBridge.
//
// It backs the waiting-for-agent reminder: while a live chat request is
// pending, the reminder job re-pushes the waiting message at a fixed
// interval until an agent joins.
package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based recurring job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler with panic recovery.
func NewScheduler() *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddEvery schedules a task to run repeatedly at the given interval and
// returns its entry ID for later removal. Sub-minute intervals are supported
// through cron's @every descriptor.
func (s *Scheduler) AddEvery(interval time.Duration, task func()) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("invalid reminder interval %v", interval)
	}
	return s.cron.AddFunc(fmt.Sprintf("@every %s", interval), task)
}

// Remove cancels a scheduled job.
func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
