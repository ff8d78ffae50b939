// Package metrics holds the prometheus collectors shared by the registry
// components. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "registry"

// Metrics groups every collector the registry exports.
type Metrics struct {
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   *prometheus.CounterVec
	RepositoryOps    *prometheus.CounterVec
	RepositoryTiming *prometheus.HistogramVec
	AuditOutcomes    *prometheus.CounterVec
	SyncDispatches   *prometheus.CounterVec
	SyncPending      prometheus.Gauge
	SyncStuck        prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Cache lookups served from memory.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Cache lookups that found nothing or an expired entry.",
		}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Entries removed from the cache, by reason.",
		}, []string{"reason"}),
		RepositoryOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "repository", Name: "operations_total",
			Help: "Repository operations by table, operation and result code.",
		}, []string{"table", "operation", "code"}),
		RepositoryTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "repository", Name: "operation_seconds",
			Help:    "Repository operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"table", "operation"}),
		AuditOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "audit", Name: "records_total",
			Help: "Audit records by delivery outcome.",
		}, []string{"outcome"}),
		SyncDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sync", Name: "dispatches_total",
			Help: "Sync queue dispatch attempts by entity type and result.",
		}, []string{"type", "result"}),
		SyncPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "pending_items",
			Help: "Items waiting in the sync queue.",
		}),
		SyncStuck: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sync", Name: "stuck_items",
			Help: "Items that reached the retry ceiling and need manual recovery.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.CacheHits, m.CacheMisses, m.CacheEvictions,
			m.RepositoryOps, m.RepositoryTiming,
			m.AuditOutcomes,
			m.SyncDispatches, m.SyncPending, m.SyncStuck,
		)
	}
	return m
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHits.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMisses.Inc()
	}
}

// CacheEvicted counts n removals for reason (expired, capacity, tag, pattern, delete).
func (m *Metrics) CacheEvicted(reason string, n int) {
	if m != nil && n > 0 {
		m.CacheEvictions.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveRepository records one repository operation.
func (m *Metrics) ObserveRepository(table, operation, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "OK"
	}
	m.RepositoryOps.WithLabelValues(table, operation, code).Inc()
	m.RepositoryTiming.WithLabelValues(table, operation).Observe(elapsed.Seconds())
}

func (m *Metrics) AuditOutcome(outcome string) {
	if m != nil {
		m.AuditOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SyncDispatch(entityType, result string) {
	if m != nil {
		m.SyncDispatches.WithLabelValues(entityType, result).Inc()
	}
}

// SyncQueueDepth publishes the current pending and stuck counts.
func (m *Metrics) SyncQueueDepth(pending, stuck int) {
	if m == nil {
		return
	}
	m.SyncPending.Set(float64(pending))
	m.SyncStuck.Set(float64(stuck))
}
