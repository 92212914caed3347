package eventstore

import (
	"encoding/json"
	"time"
)

// Event type names.
const (
	TypeStageStarted     = "StageStarted"
	TypeStageCompleted   = "StageCompleted"
	TypeStageFailed      = "StageFailed"
	TypeActivated        = "Activated"
	TypeActivationFailed = "ActivationFailed"
	TypeConfirmed        = "Confirmed"
	TypeRolledBack       = "RolledBack"
	TypeRollbackFailed   = "RollbackFailed"
	TypeCanaryExpired    = "CanaryExpired"
	TypePendingDiscarded = "PendingDiscarded"
)

type failurePayload struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type empty struct{}

// newEvent builds an event. Payloads are flat structs of strings and
// numbers, which always marshal.
func newEvent(opID, eventType, version string, payload any) *BaseEvent {
	data, _ := json.Marshal(payload)
	return &BaseEvent{
		EventOpID:      opID,
		EventType:      eventType,
		EventVersion:   version,
		EventTimestamp: time.Now(),
		EventPayload:   data,
	}
}

// NewStageStarted is emitted when a stage request is accepted.
func NewStageStarted(opID, url, version string) Event {
	return newEvent(opID, TypeStageStarted, version, struct {
		URL string `json:"url"`
	}{url})
}

// NewStageCompleted is emitted once the artifact sits in both staging directories.
func NewStageCompleted(opID, version, digest string, duration time.Duration) Event {
	return newEvent(opID, TypeStageCompleted, version, struct {
		Digest     string `json:"digest"`
		DurationMS int64  `json:"duration_ms"`
	}{digest, duration.Milliseconds()})
}

// NewStageFailed records a stage that returned an error.
func NewStageFailed(opID, version, code, message string) Event {
	return newEvent(opID, TypeStageFailed, version, failurePayload{code, message})
}

// NewActivated is emitted when version becomes the active content.
func NewActivated(opID, version, previous string) Event {
	return newEvent(opID, TypeActivated, version, struct {
		Previous string `json:"previous,omitempty"`
	}{previous})
}

func NewActivationFailed(opID, code, message string) Event {
	return newEvent(opID, TypeActivationFailed, "", failurePayload{code, message})
}

func NewConfirmed(opID, version string) Event {
	return newEvent(opID, TypeConfirmed, version, empty{})
}

// NewRolledBack is emitted when the canary window closed and from was replaced by to.
func NewRolledBack(opID, from, to string) Event {
	return newEvent(opID, TypeRolledBack, to, struct {
		From string `json:"from"`
		To   string `json:"to"`
	}{from, to})
}

func NewRollbackFailed(opID, version, message string) Event {
	return newEvent(opID, TypeRollbackFailed, version, failurePayload{Error: message})
}

// NewCanaryExpired records a closed window with nothing to roll back to.
func NewCanaryExpired(opID, version string) Event {
	return newEvent(opID, TypeCanaryExpired, version, empty{})
}

// NewPendingDiscarded records a pending update dropped at launch.
func NewPendingDiscarded(opID, version string) Event {
	return newEvent(opID, TypePendingDiscarded, version, empty{})
}
