// Package scheduler provides cron-based scheduling for NutriBot.
//
// Its single production job is the periodic survey eligibility sweep, which
// must fire in the bot's reference timezone.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs jobs on cron expressions evaluated in a fixed timezone.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a scheduler. Expressions use the standard
// 5-field format and are evaluated in loc.
func NewScheduler(loc *time.Location) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
