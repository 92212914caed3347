package canary

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs one-shot tasks after a delay.
type Scheduler interface {
	// After runs fn once after d. The returned cancel stops a task that has
	// not started yet; calling it after the task ran is harmless.
	After(name string, d time.Duration, fn func()) (cancel func(), err error)
	Start()
	Stop() error
}

// GocronScheduler implements Scheduler with gocron one-time jobs.
type GocronScheduler struct {
	scheduler gocron.Scheduler
}

// NewGocronScheduler creates a new scheduler instance.
func NewGocronScheduler() (*GocronScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &GocronScheduler{scheduler: s}, nil
}

func (s *GocronScheduler) After(name string, d time.Duration, fn func()) (func(), error) {
	start := gocron.OneTimeJobStartImmediately()
	if d > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(d))
	}
	job, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(fn),
		gocron.WithName(name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	id := job.ID()
	return func() { _ = s.scheduler.RemoveJob(id) }, nil
}

func (s *GocronScheduler) Start() { s.scheduler.Start() }

// Stop shuts the scheduler down, dropping tasks that have not fired.
func (s *GocronScheduler) Stop() error { return s.scheduler.Shutdown() }
