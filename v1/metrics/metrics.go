package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquireCounter tracks acquire attempts per resource, mode and result.
	AcquireCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shared_acquire_total",
		Help: "Total number of resource acquire attempts",
	}, []string{"resource", "mode", "result"})
	// ReleaseCounter tracks guard releases that unlocked a resource.
	ReleaseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shared_release_total",
		Help: "Total number of resource releases",
	}, []string{"resource"})
	// WaitHistogram observes how long blocking acquires waited for the lock.
	WaitHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shared_wait_seconds",
		Help:    "Time spent waiting to acquire a resource",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})
	// HoldHistogram observes how long guards held their lock.
	HoldHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shared_hold_seconds",
		Help:    "Time a resource lock was held",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})
	// LockOpCounter tracks raw operations on instrumented locks.
	LockOpCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shared_lock_ops_total",
		Help: "Total number of operations on instrumented locks",
	}, []string{"lock", "op", "result"})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers the resource and lock metrics on the provided
// registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquireCounter, ReleaseCounter, WaitHistogram, HoldHistogram, LockOpCounter)
}
