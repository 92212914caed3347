package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotupdate"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	opDuration     *prom.HistogramVec
	opResults      *prom.CounterVec
	canaryOutcomes *prom.CounterVec
	downloadBytes  prom.Histogram
	downloadRetry  prom.Counter
	pendingReady   prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of stage, activate and rollback operations",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		opResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "operation_results_total",
			Help:      "Operation results by outcome and error code",
		}, []string{"operation", "result", "code"}),
		canaryOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "canary_outcomes_total",
			Help:      "Canary windows by how they closed",
		}, []string{"outcome"}),
		downloadBytes: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "download_bytes",
			Help:      "Size of downloaded update containers",
			Buckets:   prom.ExponentialBuckets(64*1024, 4, 8),
		}),
		downloadRetry: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "download_retries_total",
			Help:      "Download attempts retried after a transient failure",
		}),
		pendingReady: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_ready",
			Help:      "1 when a staged update is ready to activate",
		}),
	}
	reg.MustRegister(pr.opDuration, pr.opResults, pr.canaryOutcomes, pr.downloadBytes, pr.downloadRetry, pr.pendingReady)
	return pr
}

func (p *PrometheusRecorder) ObserveOperationDuration(op string, d time.Duration) {
	if p == nil || p.opDuration == nil {
		return
	}
	p.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncOperationResult(op string, result ResultLabel, code string) {
	if p == nil || p.opResults == nil {
		return
	}
	p.opResults.WithLabelValues(op, string(result), code).Inc()
}

func (p *PrometheusRecorder) IncCanaryOutcome(outcome string) {
	if p == nil || p.canaryOutcomes == nil {
		return
	}
	p.canaryOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveDownloadBytes(n int64) {
	if p == nil || p.downloadBytes == nil {
		return
	}
	p.downloadBytes.Observe(float64(n))
}

func (p *PrometheusRecorder) IncDownloadRetry() {
	if p == nil || p.downloadRetry == nil {
		return
	}
	p.downloadRetry.Inc()
}

func (p *PrometheusRecorder) SetPendingReady(ready bool) {
	if p == nil || p.pendingReady == nil {
		return
	}
	v := 0.0
	if ready {
		v = 1
	}
	p.pendingReady.Set(v)
}
