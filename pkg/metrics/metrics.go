package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Authentication metrics
	LoginAttempts   *prometheus.CounterVec
	AccountLockouts *prometheus.CounterVec
	PasswordChanges *prometheus.CounterVec
	ResetRequests   prometheus.Counter
	HashDuration    prometheus.Histogram

	// Audit metrics
	AuditWrites *prometheus.CounterVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec

	// Worker metrics
	AuditPurged    prometheus.Counter
	EventsConsumed *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace, subsystem string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "login_attempts_total",
			Help:      "Total number of login attempts by result",
		}, []string{"result"}),
		AccountLockouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "account_lockouts_total",
			Help:      "Total number of lockout windows opened, by duration band",
		}, []string{"band"}),
		PasswordChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "password_changes_total",
			Help:      "Total number of password changes by flow and result",
		}, []string{"flow", "result"}),
		ResetRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "password_reset_requests_total",
			Help:      "Total number of password reset requests received",
		}),
		HashDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "password_verify_duration_seconds",
			Help:      "Time spent verifying password hashes",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),

		AuditWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_writes_total",
			Help:      "Total number of audit writes by kind and status",
		}, []string{"kind", "status"}),

		RedisOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),

		AuditPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "audit_events_purged_total",
			Help:      "Total number of audit events removed by retention",
		}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "security_events_consumed_total",
			Help:      "Total number of broker events handled by the worker",
		}, []string{"type", "status"}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns metrics registered once on the global registry.
func Default(namespace string) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer, namespace, "auth")
	})
	return defaultMetrics
}

// NewNop returns metrics registered on a throwaway registry, for tests.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry(), "test", "auth")
}
