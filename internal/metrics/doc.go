// Package metrics provides lifecycle metrics for the updater.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no call site needs a nil check:
//
//	recorder := metrics.Recorder(metrics.NoopRecorder{})
//	if cfg.Metrics.Enabled {
//	    recorder = metrics.NewPrometheusRecorder(registry)
//	}
//
// HTTPHandler exposes a registry in the Prometheus text format; the bridge
// mounts it at metrics.path.
package metrics
