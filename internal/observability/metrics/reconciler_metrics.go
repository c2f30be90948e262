package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ReconcilerErrorTypeDeadlineExceeded = "deadline_exceeded"
	ReconcilerErrorTypeBusinessRule     = "business_rule"
	ReconcilerErrorTypeDB               = "db"
	ReconcilerErrorTypeUnknown          = "unknown"
)

const (
	LockResourceJobsForWork = "reconcile_jobs_for_work"
	LockResourceContractRow = "contract_row"
)

// ReconcilerMetrics captures scheduler and reconciler health signals.
type ReconcilerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	dbLockWait  *prometheus.HistogramVec
}

var (
	reconcilerMetricsOnce sync.Once
	reconcilerMetrics     *ReconcilerMetrics
)

// Reconciler returns the singleton reconciler metrics registry.
func Reconciler() *ReconcilerMetrics {
	return ReconcilerWithConfig(Config{})
}

// ReconcilerWithConfig returns the singleton registry using config labels.
func ReconcilerWithConfig(cfg Config) *ReconcilerMetrics {
	_ = cfg
	reconcilerMetricsOnce.Do(func() {
		reconcilerMetrics = newReconcilerMetrics(prometheus.DefaultRegisterer)
	})
	return reconcilerMetrics
}

func newReconcilerMetrics(reg prometheus.Registerer) *ReconcilerMetrics {
	m := &ReconcilerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnway_reconcile_job_runs_total",
			Help: "Reconcile job executions by job kind.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnway_reconcile_job_duration_seconds",
			Help:    "Reconcile job duration by job kind.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnway_reconcile_job_timeouts_total",
			Help: "Reconcile jobs that hit their soft timeout.",
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "learnway_reconcile_job_errors_total",
			Help: "Reconcile job errors by job kind and error type.",
		}, []string{"job", "error_type"}),
		dbLockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "learnway_reconcile_db_lock_wait_seconds",
			Help:    "Time spent waiting on row locks by resource.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"resource"}),
	}

	for _, collector := range []prometheus.Collector{m.jobRuns, m.jobDuration, m.jobTimeouts, m.jobErrors, m.dbLockWait} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return m
}

func (m *ReconcilerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *ReconcilerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *ReconcilerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *ReconcilerMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, classifyError(err)).Inc()
}

func (m *ReconcilerMetrics) ObserveDBLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	m.dbLockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return ReconcilerErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReconcilerErrorTypeDeadlineExceeded
	default:
		return ReconcilerErrorTypeUnknown
	}
}
