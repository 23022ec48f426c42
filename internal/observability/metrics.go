// Package observability holds the Prometheus metrics of the dust pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "iraq_dust"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // labels: outcome={success,failed}
	CycleDuration prometheus.Histogram
	LastCycleUnix prometheus.Gauge

	// Sampling metrics.
	DistrictSamples  *prometheus.CounterVec // labels: outcome={stored,missing,error}
	ReadingsUpserted prometheus.Counter

	// Snapshot metrics.
	SnapshotDistricts *prometheus.GaugeVec // labels: state={complete,partial}
	ArtifactsWritten  *prometheus.CounterVec // labels: artifact={now,alerts}

	// Alert metrics.
	Notifications    *prometheus.CounterVec // labels: outcome={sent,failed,skipped}
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.LastCycleUnix,
		m.DistrictSamples,
		m.ReadingsUpserted,
		m.SnapshotDistricts,
		m.ArtifactsWritten,
		m.Notifications,
		m.DispatchDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can create as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_cycles_total",
			Help:      "Pipeline cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_cycle_duration_seconds",
			Help:      "Duration of a full ingest, snapshot, publish and alert cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		LastCycleUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful cycle.",
		}),
		DistrictSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "district_samples_total",
			Help:      "District samples taken from the grid by outcome.",
		}, []string{"outcome"}),
		ReadingsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_upserted_total",
			Help:      "Hourly readings written to the store.",
		}),
		SnapshotDistricts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_districts",
			Help:      "Districts in the last snapshot by completeness.",
		}, []string{"state"}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_written_total",
			Help:      "Published artifacts by name.",
		}, []string{"artifact"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Subscriber notifications by outcome.",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_dispatch_duration_seconds",
			Help:      "Time to deliver one notification.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}
