/*
 * @module service/monitoring/metrics
 * @description Prometheus metrics for sync runs, alert scans and provider merges
 * @architecture Layered architecture - observability
 * @stateFlow recorded by the sync pipeline, alert generator and merger; scraped on /metrics
 * @rules every method is safe on a nil *Metrics so components can run without metrics
 * @dependencies github.com/prometheus/client_golang
 * @refs main.go, service/sync_engine/sync_service.go, service/alerting, service/dedup
 */

package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collectors exposed by the service
type Metrics struct {
	syncRuns      *prometheus.CounterVec
	syncRecords   *prometheus.CounterVec
	syncDuration  *prometheus.HistogramVec
	alerts        *prometheus.CounterVec
	providerMerge prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_sync_runs_total",
			Help: "Sync runs by entity kind and terminal status.",
		}, []string{"kind", "status"}),
		syncRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_sync_records_total",
			Help: "Records handled by sync runs, by entity kind and outcome.",
		}, []string{"kind", "outcome"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_sync_duration_seconds",
			Help:    "Wall time of sync runs by entity kind.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_alerts_total",
			Help: "Alerts created and resolved by the alert generator.",
		}, []string{"kind", "action"}),
		providerMerge: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backoffice_provider_merges_total",
			Help: "Provider duplicate groups merged.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.syncRuns, m.syncRecords, m.syncDuration, m.alerts, m.providerMerge)
	}
	return m
}

// SyncRunOutcome counters of one finished run
type SyncRunOutcome struct {
	Kind     string
	Status   string
	Duration time.Duration
	Inserted int
	Updated  int
	Skipped  int
	Failed   int
}

// ObserveSyncRun records a finished run
func (m *Metrics) ObserveSyncRun(o SyncRunOutcome) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(o.Kind, o.Status).Inc()
	m.syncDuration.WithLabelValues(o.Kind).Observe(o.Duration.Seconds())
	m.syncRecords.WithLabelValues(o.Kind, "inserted").Add(float64(o.Inserted))
	m.syncRecords.WithLabelValues(o.Kind, "updated").Add(float64(o.Updated))
	m.syncRecords.WithLabelValues(o.Kind, "skipped").Add(float64(o.Skipped))
	m.syncRecords.WithLabelValues(o.Kind, "failed").Add(float64(o.Failed))
}

// ObserveAlerts records one scan of an alert kind
func (m *Metrics) ObserveAlerts(kind string, created, resolved int) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(kind, "created").Add(float64(created))
	m.alerts.WithLabelValues(kind, "resolved").Add(float64(resolved))
}

// ObserveMerge records a provider merge
func (m *Metrics) ObserveMerge() {
	if m == nil {
		return
	}
	m.providerMerge.Inc()
}
