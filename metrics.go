package jobqueue

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "jobqueue"

// Metrics counts what the engine does with the records it selects.
type Metrics struct {
	JobsClaimed      *prometheus.CounterVec
	JobsCompleted    *prometheus.CounterVec
	JobsFailed       *prometheus.CounterVec
	ClaimConflicts   prometheus.Counter
	DeadLettered     *prometheus.CounterVec
	BulkItemFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_claimed_total",
			Help:      "Job records leased by this instance.",
		}, []string{"type"}),
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_completed_total",
			Help:      "Jobs that ran to completion and were released.",
		}, []string{"type"}),
		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_failed_total",
			Help:      "Jobs that failed, by lifecycle stage.",
		}, []string{"type", "stage"}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "claim_conflicts_total",
			Help:      "Claims lost to another instance.",
		}),
		DeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dead_lettered_total",
			Help:      "Job records parked after too many failed attempts.",
		}, []string{"type"}),
		BulkItemFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bulk_item_failures_total",
			Help:      "Items a batch operation could not process.",
		}, []string{"type"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.JobsClaimed,
			m.JobsCompleted,
			m.JobsFailed,
			m.ClaimConflicts,
			m.DeadLettered,
			m.BulkItemFailures,
		)
	}

	return m
}
