package tangguh

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RetryEvent describes a failed attempt that the caller will retry after the
// reported delay.
type RetryEvent struct {
	Operation string
	Attempt   int
	Delay     time.Duration
	Err       error
	Timestamp time.Time
}

// SuccessEvent describes a completed operation. FromFallback is true when a
// hedged backup, not the primary, produced the winning result.
type SuccessEvent struct {
	Operation    string
	Attempts     int
	Elapsed      time.Duration
	FromFallback bool
	Timestamp    time.Time
}

// FailureEvent describes a terminally failed operation.
type FailureEvent struct {
	Operation    string
	Attempts     int
	Elapsed      time.Duration
	ErrorCode    string
	ErrorMessage string
	Timestamp    time.Time
}

// Emitter receives structured engine events. Implementations must be safe
// for concurrent use; they are invoked inline on the operation's path.
type Emitter interface {
	OnRetry(RetryEvent)
	OnSuccess(SuccessEvent)
	OnFailure(FailureEvent)
}

// EmitterRegistry fans engine events out to zero or more subscribers.
// A panicking subscriber is recovered and skipped: observation must never
// abort the operation being observed.
type EmitterRegistry struct {
	mu       sync.RWMutex
	emitters []Emitter
}

// NewEmitterRegistry creates an empty registry. A nil *EmitterRegistry is
// valid and drops every event, so engines can hold one unconditionally.
func NewEmitterRegistry(emitters ...Emitter) *EmitterRegistry {
	return &EmitterRegistry{emitters: emitters}
}

// Register adds a subscriber.
func (r *EmitterRegistry) Register(e Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitters = append(r.emitters, e)
}

// Len returns the number of registered subscribers.
func (r *EmitterRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.emitters)
}

func (r *EmitterRegistry) each(fn func(Emitter)) {
	if r == nil {
		return
	}
	r.mu.RLock()
	emitters := r.emitters
	r.mu.RUnlock()

	for _, e := range emitters {
		func() {
			defer func() { _ = recover() }()
			fn(e)
		}()
	}
}

// EmitRetry delivers a retry event to every subscriber.
func (r *EmitterRegistry) EmitRetry(ev RetryEvent) {
	r.each(func(e Emitter) { e.OnRetry(ev) })
}

// EmitSuccess delivers a success event to every subscriber.
func (r *EmitterRegistry) EmitSuccess(ev SuccessEvent) {
	r.each(func(e Emitter) { e.OnSuccess(ev) })
}

// EmitFailure delivers a failure event to every subscriber.
func (r *EmitterRegistry) EmitFailure(ev FailureEvent) {
	r.each(func(e Emitter) { e.OnFailure(ev) })
}

// MetricsCollector exports engine events as Prometheus metrics, labeled by
// operation. It implements Emitter and is safe for concurrent use.
type MetricsCollector struct {
	retriesTotal      *prometheus.CounterVec
	successesTotal    *prometheus.CounterVec
	failuresTotal     *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retryDelay        *prometheus.HistogramVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, so tests and multi-tenant processes can isolate metrics.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_retries_total",
				Help: "Total number of retried attempts",
			},
			[]string{"operation"},
		),
		successesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_successes_total",
				Help: "Total number of successful operations",
			},
			[]string{"operation", "from_fallback"},
		),
		failuresTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tangguh_failures_total",
				Help: "Total number of terminally failed operations",
			},
			[]string{"operation", "error_code"},
		),
		operationDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tangguh_operation_duration_seconds",
				Help:    "End-to-end duration of completed operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		retryDelay: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tangguh_retry_delay_seconds",
				Help:    "Backoff delay applied before retried attempts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"operation"},
		),
	}
}

// OnRetry implements Emitter.
func (mc *MetricsCollector) OnRetry(ev RetryEvent) {
	mc.retriesTotal.WithLabelValues(ev.Operation).Inc()
	mc.retryDelay.WithLabelValues(ev.Operation).Observe(ev.Delay.Seconds())
}

// OnSuccess implements Emitter.
func (mc *MetricsCollector) OnSuccess(ev SuccessEvent) {
	fallback := "false"
	if ev.FromFallback {
		fallback = "true"
	}
	mc.successesTotal.WithLabelValues(ev.Operation, fallback).Inc()
	mc.operationDuration.WithLabelValues(ev.Operation).Observe(ev.Elapsed.Seconds())
}

// OnFailure implements Emitter.
func (mc *MetricsCollector) OnFailure(ev FailureEvent) {
	code := ev.ErrorCode
	if code == "" {
		code = "unknown"
	}
	mc.failuresTotal.WithLabelValues(ev.Operation, code).Inc()
	mc.operationDuration.WithLabelValues(ev.Operation).Observe(ev.Elapsed.Seconds())
}
