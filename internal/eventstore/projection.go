// Package eventstore keeps an append-only journal of update lifecycle events.
package eventstore

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"
)

const (
	opStatusRunning   = "running"
	opStatusCompleted = "completed"
	opStatusFailed    = "failed"
)

// OperationSummary is a read model of one stage, activate, confirm or canary
// operation.
type OperationSummary struct {
	OpID        string        `json:"op_id"`
	Operation   string        `json:"operation"`
	Version     string        `json:"version,omitempty"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Code        string        `json:"code,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// OperationProjection maintains an in-memory view of recent operations,
// reconstructed from the journal.
type OperationProjection struct {
	mu      sync.RWMutex
	store   Store
	ops     map[string]*OperationSummary
	order   []string // newest first
	maxSize int
}

// NewOperationProjection creates a projection backed by store.
func NewOperationProjection(store Store, maxSize int) *OperationProjection {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &OperationProjection{
		store:   store,
		ops:     make(map[string]*OperationSummary),
		maxSize: maxSize,
	}
}

// Rebuild reconstructs the projection from the most recent events.
func (p *OperationProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.Recent(ctx, p.maxSize*4)
	if err != nil {
		return err
	}
	slices.Reverse(events)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = make(map[string]*OperationSummary)
	p.order = nil
	for _, e := range events {
		p.applyLocked(e)
	}
	return nil
}

// Apply folds a single event into the projection.
func (p *OperationProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func operationOf(eventType string) string {
	switch eventType {
	case TypeStageStarted, TypeStageCompleted, TypeStageFailed:
		return "stage"
	case TypeActivated, TypeActivationFailed:
		return "activate"
	case TypeConfirmed:
		return "confirm"
	case TypeRolledBack, TypeRollbackFailed, TypeCanaryExpired:
		return "canary"
	case TypePendingDiscarded:
		return "reconcile"
	default:
		return ""
	}
}

func (p *OperationProjection) applyLocked(e Event) {
	opID := e.OpID()
	op := operationOf(e.Type())
	if opID == "" || op == "" {
		return
	}

	summary, exists := p.ops[opID]
	if !exists {
		summary = &OperationSummary{
			OpID:      opID,
			Operation: op,
			Status:    opStatusRunning,
			StartedAt: e.Timestamp(),
		}
		p.ops[opID] = summary
		p.order = append([]string{opID}, p.order...)
		p.trimLocked()
	}
	if v := e.Version(); v != "" {
		summary.Version = v
	}

	switch e.Type() {
	case TypeStageStarted:
		return
	case TypeStageFailed, TypeActivationFailed, TypeRollbackFailed:
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(e.Payload(), &payload); err == nil {
			summary.Code = payload.Code
			summary.Error = payload.Error
		}
		summary.Status = opStatusFailed
	default:
		summary.Status = opStatusCompleted
	}
	done := e.Timestamp()
	summary.CompletedAt = &done
	summary.Duration = done.Sub(summary.StartedAt)
}

func (p *OperationProjection) trimLocked() {
	for len(p.order) > p.maxSize {
		last := p.order[len(p.order)-1]
		p.order = p.order[:len(p.order)-1]
		delete(p.ops, last)
	}
}

// Operations returns copies of the tracked operations, newest first.
func (p *OperationProjection) Operations() []OperationSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]OperationSummary, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.ops[id])
	}
	return out
}

// Get returns the summary of one operation.
func (p *OperationProjection) Get(opID string) (OperationSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.ops[opID]
	if !ok {
		return OperationSummary{}, false
	}
	return *s, true
}
