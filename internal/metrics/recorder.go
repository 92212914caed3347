package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultSkipped ResultLabel = "skipped"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for update lifecycle metrics.
type Recorder interface {
	ObserveOperationDuration(op string, d time.Duration)
	IncOperationResult(op string, result ResultLabel, code string)
	IncCanaryOutcome(outcome string) // outcome: confirmed|rolled_back|expired|rollback_failed
	ObserveDownloadBytes(n int64)
	IncDownloadRetry()
	SetPendingReady(ready bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperationDuration(string, time.Duration) {}
func (NoopRecorder) IncOperationResult(string, ResultLabel, string) {}
func (NoopRecorder) IncCanaryOutcome(string)                        {}
func (NoopRecorder) ObserveDownloadBytes(int64)                     {}
func (NoopRecorder) IncDownloadRetry()                              {}
func (NoopRecorder) SetPendingReady(bool)                           {}
