package tangguh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// captureEmitter records events for assertions across the test suite.
type captureEmitter struct {
	mu            sync.Mutex
	retryEvents   []RetryEvent
	successEvents []SuccessEvent
	failureEvents []FailureEvent
}

func (c *captureEmitter) OnRetry(ev RetryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryEvents = append(c.retryEvents, ev)
}

func (c *captureEmitter) OnSuccess(ev SuccessEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successEvents = append(c.successEvents, ev)
}

func (c *captureEmitter) OnFailure(ev FailureEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureEvents = append(c.failureEvents, ev)
}

func (c *captureEmitter) retries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retryEvents)
}

func (c *captureEmitter) successes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.successEvents)
}

func (c *captureEmitter) failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failureEvents)
}

func (c *captureEmitter) lastSuccess() SuccessEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successEvents[len(c.successEvents)-1]
}

// panicEmitter simulates a broken subscriber.
type panicEmitter struct{}

func (panicEmitter) OnRetry(RetryEvent)     { panic("broken subscriber") }
func (panicEmitter) OnSuccess(SuccessEvent) { panic("broken subscriber") }
func (panicEmitter) OnFailure(FailureEvent) { panic("broken subscriber") }

func TestEmitterRegistryFanOut(t *testing.T) {
	a := &captureEmitter{}
	b := &captureEmitter{}
	reg := NewEmitterRegistry(a)
	reg.Register(b)

	reg.EmitRetry(RetryEvent{Operation: "op", Attempt: 1})
	reg.EmitSuccess(SuccessEvent{Operation: "op"})
	reg.EmitFailure(FailureEvent{Operation: "op"})

	for name, sink := range map[string]*captureEmitter{"first": a, "second": b} {
		if sink.retries() != 1 || sink.successes() != 1 || sink.failures() != 1 {
			t.Errorf("%s subscriber missed events: %d/%d/%d", name, sink.retries(), sink.successes(), sink.failures())
		}
	}
}

func TestEmitterRegistryIsolatesPanics(t *testing.T) {
	healthy := &captureEmitter{}
	reg := NewEmitterRegistry(panicEmitter{}, healthy)

	// Must not panic, and the healthy subscriber still receives the event.
	reg.EmitSuccess(SuccessEvent{Operation: "op"})
	if healthy.successes() != 1 {
		t.Error("healthy subscriber starved by a panicking one")
	}
}

func TestNilEmitterRegistryIsSilent(t *testing.T) {
	var reg *EmitterRegistry
	reg.EmitRetry(RetryEvent{})
	reg.EmitSuccess(SuccessEvent{})
	reg.EmitFailure(FailureEvent{})
	if reg.Len() != 0 {
		t.Errorf("nil registry Len() = %d, want 0", reg.Len())
	}
}

func TestMetricsCollectorCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.OnRetry(RetryEvent{Operation: "fetch", Attempt: 1, Delay: 100 * time.Millisecond})
	mc.OnRetry(RetryEvent{Operation: "fetch", Attempt: 2, Delay: 200 * time.Millisecond})
	mc.OnSuccess(SuccessEvent{Operation: "fetch", Attempts: 3, Elapsed: 50 * time.Millisecond})
	mc.OnSuccess(SuccessEvent{Operation: "fetch", FromFallback: true})
	mc.OnFailure(FailureEvent{Operation: "fetch", ErrorCode: "timeout"})
	mc.OnFailure(FailureEvent{Operation: "fetch"})

	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("fetch")); got != 2 {
		t.Errorf("retries_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.successesTotal.WithLabelValues("fetch", "false")); got != 1 {
		t.Errorf("successes_total{from_fallback=false} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.successesTotal.WithLabelValues("fetch", "true")); got != 1 {
		t.Errorf("successes_total{from_fallback=true} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.failuresTotal.WithLabelValues("fetch", "timeout")); got != 1 {
		t.Errorf("failures_total{timeout} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.failuresTotal.WithLabelValues("fetch", "unknown")); got != 1 {
		t.Errorf("failures_total{unknown} = %v, want 1", got)
	}
}

func TestMetricsCollectorAsEngineSubscriber(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	b, err := NewAdaptiveBackoff(BackoffConfig{Operation: "learn", Metrics: NewEmitterRegistry(mc)})
	if err != nil {
		t.Fatalf("NewAdaptiveBackoff: %v", err)
	}
	b.RecordOutcome(false, time.Millisecond, time.Second)
	b.RecordOutcome(true, time.Millisecond, time.Second)

	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("learn")); got != 1 {
		t.Errorf("retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.successesTotal.WithLabelValues("learn", "false")); got != 1 {
		t.Errorf("successes_total = %v, want 1", got)
	}
}

var errSubscriber = errors.New("subscriber saw failure")

// errorCodeEmitter asserts failure metadata flows through the boundary.
type errorCodeEmitter struct {
	code string
	msg  string
}

func (e *errorCodeEmitter) OnRetry(RetryEvent)     {}
func (e *errorCodeEmitter) OnSuccess(SuccessEvent) {}
func (e *errorCodeEmitter) OnFailure(ev FailureEvent) {
	e.code = ev.ErrorCode
	e.msg = ev.ErrorMessage
}

func TestFailureEventCarriesErrorDetails(t *testing.T) {
	sink := &errorCodeEmitter{}
	c, err := NewRequestCoalescer(CoalescerConfig{Operation: "op", Metrics: NewEmitterRegistry(sink)})
	if err != nil {
		t.Fatal(err)
	}

	_, _ = c.Execute(context.Background(), "k", failOp(errSubscriber))
	if sink.code != "operation_error" {
		t.Errorf("ErrorCode = %q, want operation_error", sink.code)
	}
	if sink.msg != errSubscriber.Error() {
		t.Errorf("ErrorMessage = %q, want %q", sink.msg, errSubscriber.Error())
	}
}
