// Package canary supervises the confirmation window after an activation.
//
// Arm schedules a one-shot task. When it fires, the task only reports
// {version, generation} to the supervisor loop, which discards reports from
// superseded arms and otherwise asks the rollbacker to restore the previous
// content. Outcomes are published for the caller to act on.
package canary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/hotupdate/internal/activation"
	ferrors "git.home.luguber.info/inful/hotupdate/internal/foundation/errors"
	"git.home.luguber.info/inful/hotupdate/internal/ledger"
	"git.home.luguber.info/inful/hotupdate/internal/logfields"
)

// DefaultTimeout is the confirmation grace period.
const DefaultTimeout = 20 * time.Second

// Rollbacker restores the previous content.
type Rollbacker interface {
	TryRollback(ctx context.Context) (activation.Transition, error)
}

// Outcome reports what happened when a canary window closed unconfirmed.
type Outcome struct {
	Version    string
	Generation uint64
	State      State
	Rollback   activation.Transition
	Err        error
}

// RolledBack reports whether the outcome changed the active content.
func (o Outcome) RolledBack() bool {
	return o.State == TimedOut && o.Err == nil
}

type expiry struct {
	version    string
	generation uint64
}

// Supervisor owns the canary timer and its state machine.
type Supervisor struct {
	ledger     *ledger.Ledger
	rollbacker Rollbacker
	scheduler  Scheduler
	timeout    time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	version    string
	generation uint64
	cancel     func()

	expiries chan expiry
	outcomes chan Outcome
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a supervisor. A non-positive timeout selects DefaultTimeout.
func New(led *ledger.Ledger, rb Rollbacker, sched Scheduler, timeout time.Duration, logger *slog.Logger) *Supervisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		ledger:     led,
		rollbacker: rb,
		scheduler:  sched,
		timeout:    timeout,
		logger:     logger,
		expiries:   make(chan expiry),
		outcomes:   make(chan Outcome, 8),
		done:       make(chan struct{}),
	}
}

// Start launches the supervisor loop and the scheduler.
func (s *Supervisor) Start(ctx context.Context) {
	s.scheduler.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels any armed task and waits for the loop to exit.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.scheduler.Stop()
}

// Outcomes delivers the result of every closed, unconfirmed window.
func (s *Supervisor) Outcomes() <-chan Outcome { return s.outcomes }

// State returns the current state and the version it refers to.
func (s *Supervisor) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.version
}

// Arm starts a confirmation window for version, replacing any armed one.
func (s *Supervisor) Arm(version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	gen := s.generation
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	cancel, err := s.scheduler.After(fmt.Sprintf("canary-%s", version), s.timeout, func() {
		s.expire(expiry{version: version, generation: gen})
	})
	if err != nil {
		s.state = Idle
		return ferrors.InternalError("Failed to arm canary").WithCause(err).Build()
	}
	s.cancel = cancel
	s.state = Armed
	s.version = version
	s.logger.Info("Canary armed",
		logfields.Version(version),
		logfields.Generation(gen),
		logfields.DurationMS(float64(s.timeout.Milliseconds())))
	return nil
}

// Confirm records version as confirmed and closes any open window. The
// version is stored even when it differs from the installed one. Only a
// missing version fails: when the confirmation cannot be persisted the
// window still closes for this process and the failure is logged, so the
// next launch re-arms for the installed version.
func (s *Supervisor) Confirm(ctx context.Context, version string) error {
	if version == "" {
		return ferrors.ValidationError(ferrors.CodeVersionRequired, "Version is required").Build()
	}

	s.mu.Lock()
	s.generation++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == Armed {
		s.state = Confirmed
	}
	s.mu.Unlock()

	if err := s.ledger.Confirm(context.WithoutCancel(ctx), version); err != nil {
		s.logger.Error("Failed to persist canary confirmation", logfields.Version(version), logfields.Error(err))
		return nil
	}
	s.logger.Info("Canary confirmed", logfields.Version(version))
	return nil
}

// expire runs on the scheduler's goroutine.
func (s *Supervisor) expire(e expiry) {
	s.mu.Lock()
	stale := e.generation != s.generation
	s.mu.Unlock()
	if stale {
		return
	}
	select {
	case s.expiries <- e:
	case <-s.done:
	}
}

func (s *Supervisor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case e := <-s.expiries:
			s.handle(ctx, e)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, e expiry) {
	log := s.logger.With(logfields.Version(e.version), logfields.Generation(e.generation))

	s.mu.Lock()
	if e.generation != s.generation || s.state != Armed {
		s.mu.Unlock()
		log.Debug("Ignoring stale canary expiry")
		return
	}
	s.cancel = nil
	s.mu.Unlock()

	out := Outcome{Version: e.version, Generation: e.generation}
	snap, err := s.ledger.Snapshot(ctx)
	switch {
	case err != nil:
		out.State = TimedOut
		out.Err = fmt.Errorf("read state: %w", err)
	case snap.Canary.UnwrapOr("") == e.version:
		out.State = Confirmed
	case snap.Previous.IsNone():
		out.State = Expired
		log.Warn("Canary expired with no previous version to restore")
	default:
		out.State = TimedOut
		log.Warn("Canary not confirmed in time, rolling back")
		out.Rollback, out.Err = s.rollbacker.TryRollback(ctx)
	}

	s.mu.Lock()
	if e.generation == s.generation {
		s.state = out.State
	}
	s.mu.Unlock()

	if out.State == Confirmed {
		return
	}
	if out.Err != nil {
		log.Error("Canary rollback failed", logfields.Error(out.Err))
	}
	select {
	case s.outcomes <- out:
	default:
		log.Warn("Dropping canary outcome, no receiver")
	}
}
