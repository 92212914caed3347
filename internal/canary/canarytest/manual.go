// Package canarytest provides a hand-driven canary.Scheduler for tests.
package canarytest

import (
	"sync"
	"time"
)

type task struct {
	name      string
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// ManualScheduler fires tasks only when told to.
type ManualScheduler struct {
	mu      sync.Mutex
	tasks   []*task
	started bool
	stopped bool
}

func New() *ManualScheduler { return &ManualScheduler{} }

func (m *ManualScheduler) After(name string, d time.Duration, fn func()) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &task{name: name, delay: d, fn: fn}
	m.tasks = append(m.tasks, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}, nil
}

func (m *ManualScheduler) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
}

func (m *ManualScheduler) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

// Pending returns the number of tasks that are neither fired nor cancelled.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.fired && !t.cancelled {
			n++
		}
	}
	return n
}

// LastDelay returns the delay of the most recently scheduled task.
func (m *ManualScheduler) LastDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return 0
	}
	return m.tasks[len(m.tasks)-1].delay
}

// Fire runs every pending task and returns how many ran.
func (m *ManualScheduler) Fire() int {
	return m.fire(false)
}

// FireStale also runs cancelled tasks, as if cancellation lost a race with
// the timer.
func (m *ManualScheduler) FireStale() int {
	return m.fire(true)
}

func (m *ManualScheduler) fire(includeCancelled bool) int {
	m.mu.Lock()
	var due []*task
	for _, t := range m.tasks {
		if t.fired || (t.cancelled && !includeCancelled) {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	m.mu.Unlock()

	for _, t := range due {
		t.fn()
	}
	return len(due)
}
