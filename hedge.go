package tangguh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoOperations is returned by DoAcross when called with an empty slice.
var ErrNoOperations = errors.New("tangguh: no operations to hedge")

// HedgeConfig configures a Hedger. Zero-valued fields take the documented
// defaults; out-of-bounds values are a construction error.
type HedgeConfig struct {
	// Operation names the hedger for metrics and latency tracking. Required.
	Operation string

	// Delay is the stagger between consecutive fired entries: backup i fires
	// Delay*i after the primary. Default 100ms, bounds [1ms, 1m].
	Delay time.Duration

	// MaxHedges is how many backups Do may fire beyond the primary.
	// Default 2, bounds [0, 10].
	MaxHedges int

	// DisableCancel leaves losing entries running after a winner settles
	// instead of cancelling them. Their results are discarded either way.
	DisableCancel bool

	// Adaptive gates hedge firing on observed primary latency: once enough
	// winner latencies are recorded, a backup fires no earlier than the
	// PercentileThreshold percentile of that history.
	Adaptive bool

	// PercentileThreshold selects the latency percentile used by Adaptive
	// mode. Default 0.95, bounds (0, 1).
	PercentileThreshold float64

	// LatencyWindow bounds the per-operation latency history. Default 50,
	// bounds [10, 10000].
	LatencyWindow int

	// Metrics receives success/failure events per invocation. Optional.
	Metrics *EmitterRegistry

	// Logger receives debug logs. Optional.
	Logger Logger
}

func (cfg *HedgeConfig) withDefaults() {
	if cfg.Delay == 0 {
		cfg.Delay = 100 * time.Millisecond
	}
	if cfg.MaxHedges == 0 {
		cfg.MaxHedges = 2
	}
	if cfg.PercentileThreshold == 0 {
		cfg.PercentileThreshold = 0.95
	}
	if cfg.LatencyWindow == 0 {
		cfg.LatencyWindow = 50
	}
}

func (cfg *HedgeConfig) validate() error {
	problems := collectProblems(
		checkDurationBounds("Delay", cfg.Delay, time.Millisecond, time.Minute),
		checkIntBounds("MaxHedges", cfg.MaxHedges, 0, 10),
		checkFloatRange("PercentileThreshold", cfg.PercentileThreshold, 0, 1, true),
		checkIntBounds("LatencyWindow", cfg.LatencyWindow, 10, 10000),
	)
	if cfg.PercentileThreshold >= 1 {
		problems = append(problems, "PercentileThreshold must be below 1")
	}
	if len(problems) > 0 {
		return &ConfigError{Component: "hedge", Problems: problems}
	}
	return nil
}

// HedgeResult reports the winning entry of a hedged invocation.
type HedgeResult struct {
	// Value is the winner's result.
	Value any
	// WinnerIndex identifies the winning entry: 0 is the primary, >= 1 a backup.
	WinnerIndex int
	// Elapsed is the total invocation time until the winner settled.
	Elapsed time.Duration
	// RequestsFired counts the entries actually started.
	RequestsFired int
}

// Hedger races a primary operation against delayed backups and returns the
// first success. Losing entries are cancelled best-effort; their late results
// and their cancellation errors are discarded. Safe for concurrent use.
type Hedger struct {
	operation string
	cfg       HedgeConfig
	tracker   *latencyTracker
}

// NewHedger validates cfg and constructs a hedger.
func NewHedger(cfg HedgeConfig) (*Hedger, error) {
	name, err := SanitizeOperationName(cfg.Operation)
	if err != nil {
		return nil, err
	}
	cfg.Operation = name

	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Hedger{
		operation: name,
		cfg:       cfg,
		tracker:   newLatencyTracker(cfg.LatencyWindow),
	}, nil
}

// NewHedgerRegistry returns a bounded registry creating one hedger per
// operation name, all sharing cfg's tuning. Each hedger owns its latency
// tracker, so adaptive decisions stay per-operation.
func NewHedgerRegistry(cfg HedgeConfig, maxEntries int) *Registry[*Hedger] {
	return NewRegistry(maxEntries, func(name string) (*Hedger, error) {
		c := cfg
		c.Operation = name
		return NewHedger(c)
	})
}

// Operation returns the sanitized operation name.
func (h *Hedger) Operation() string {
	return h.operation
}

// LatencySamples returns how many winner latencies the hedger has recorded.
func (h *Hedger) LatencySamples() int {
	return h.tracker.len()
}

// Do fires op immediately and schedules up to MaxHedges duplicates of it at
// staggered delays, returning the first success.
func (h *Hedger) Do(ctx context.Context, op Operation) (*HedgeResult, error) {
	ops := make([]Operation, h.cfg.MaxHedges+1)
	for i := range ops {
		ops[i] = op
	}
	return h.race(ctx, ops)
}

// DoAcross races genuinely distinct operations (for example one per region).
// ops[0] is the primary; later entries fire with the same staggered-delay
// discipline as Do. Winner and cancellation semantics are identical.
func (h *Hedger) DoAcross(ctx context.Context, ops []Operation) (*HedgeResult, error) {
	if len(ops) == 0 {
		return nil, ErrNoOperations
	}
	return h.race(ctx, ops)
}

type hedgeOutcome struct {
	index int
	value any
	err   error
}

func (h *Hedger) race(ctx context.Context, ops []Operation) (*HedgeResult, error) {
	start := time.Now()

	var requestID string
	if h.cfg.Logger != nil {
		requestID = uuid.NewString()[:8]
	}

	// In adaptive mode a backup never fires before the historical percentile
	// latency has elapsed: a primary still inside its normal envelope is not
	// worth duplicating.
	gate := time.Duration(0)
	if h.cfg.Adaptive {
		if p, ok := h.tracker.percentile(h.cfg.PercentileThreshold); ok {
			gate = p
		}
	}
	fireAt := func(i int) time.Time {
		offset := h.cfg.Delay * time.Duration(i)
		if offset < gate {
			offset = gate
		}
		return start.Add(offset)
	}

	// Buffered so losers can settle after the winner returned without
	// leaking their goroutines.
	results := make(chan hedgeOutcome, len(ops))
	cancels := make([]context.CancelFunc, len(ops))

	fire := func(i int) {
		cctx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		go func(idx int, op Operation) {
			// Release the child context once the entry settles so it does
			// not stay registered on a cancellable parent. The op has
			// already returned by then, so this never cuts work short.
			defer cancel()
			value, err := op(cctx)
			results <- hedgeOutcome{index: idx, value: value, err: err}
		}(i, ops[i])
	}

	cancelOthers := func(winner int) {
		for i, cancel := range cancels {
			if cancel != nil && i != winner {
				cancel()
			}
		}
	}

	fire(0)
	fired, settled, next := 1, 0, 1
	var failures []error

	for {
		var timerC <-chan time.Time
		var timer *time.Timer
		if next < len(ops) {
			wait := time.Until(fireAt(next))
			// Once every fired entry has failed there is nothing to shield
			// the stagger against; fire the next backup immediately.
			if settled == fired || wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case out := <-results:
			if timer != nil {
				timer.Stop()
			}
			settled++

			if out.err == nil {
				if !h.cfg.DisableCancel {
					cancelOthers(out.index)
				}
				elapsed := time.Since(start)
				h.tracker.record(elapsed)
				h.emitSuccess(out.index, fired, elapsed)
				if h.cfg.Logger != nil {
					h.cfg.Logger.Debug("Hedge winner",
						"operation", h.operation, "requestID", requestID,
						"winner", out.index, "fired", fired, "elapsed", elapsed)
				}
				return &HedgeResult{
					Value:         out.value,
					WinnerIndex:   out.index,
					Elapsed:       elapsed,
					RequestsFired: fired,
				}, nil
			}

			if !IsCancellation(out.err) {
				// Tag each failure with the entry that produced it; after
				// cancellations are filtered out the slice position alone no
				// longer says which entry failed.
				failures = append(failures, fmt.Errorf("entry %d: %w", out.index, out.err))
			}

			if settled == fired && next >= len(ops) {
				if len(failures) == 0 {
					// Every rejection was a cancellation: not a failure.
					return nil, context.Canceled
				}
				elapsed := time.Since(start)
				herr := &HedgeError{Operation: h.operation, Fired: fired, Errs: failures}
				h.emitFailure(fired, elapsed, herr)
				return nil, herr
			}

		case <-timerC:
			fire(next)
			fired++
			next++

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			cancelOthers(-1)
			return nil, ctx.Err()
		}
	}
}

func (h *Hedger) emitSuccess(winner, fired int, elapsed time.Duration) {
	h.cfg.Metrics.EmitSuccess(SuccessEvent{
		Operation:    h.operation,
		Attempts:     fired,
		Elapsed:      elapsed,
		FromFallback: winner > 0,
		Timestamp:    time.Now(),
	})
}

func (h *Hedger) emitFailure(fired int, elapsed time.Duration, err error) {
	h.cfg.Metrics.EmitFailure(FailureEvent{
		Operation:    h.operation,
		Attempts:     fired,
		Elapsed:      elapsed,
		ErrorCode:    "all_hedges_failed",
		ErrorMessage: err.Error(),
		Timestamp:    time.Now(),
	})
}
