package tangguh

import (
	"sync"
	"time"

	internalbackoff "github.com/ambiyansyah-risyal/tangguh/internal/backoff"
	"github.com/ambiyansyah-risyal/tangguh/internal/ring"
)

// Backoff tuning constants. The escalation factor kicks in after the engine
// sees more consecutive failures than failureEscalationAfter.
const (
	backoffMultiplier      = 2.0
	failureEscalationAfter = 3
	failureEscalation      = 1.5
	backoffJitterSpread    = 0.25
	hourlyRateDecay        = 0.95
	slowHourThreshold      = 0.3
	fastHourThreshold      = 0.8
	slowHourFactor         = 1.5
	fastHourFactor         = 0.8
	defaultHintTTL         = time.Minute
)

// BackoffConfig configures an AdaptiveBackoff engine. Zero-valued fields take
// the documented defaults; out-of-bounds values are a construction error.
type BackoffConfig struct {
	// Operation names the engine for metrics and registry keying. Required.
	Operation string

	// BaseDelay seeds the learned optimal delay. Default 1s, bounds [1ms, 5m].
	BaseDelay time.Duration

	// MinDelay is the lower clamp for every produced delay. Default 100ms.
	MinDelay time.Duration

	// MaxDelay is the upper clamp. Default 60s, must be >= MinDelay.
	MaxDelay time.Duration

	// LearningRate is the EMA blend weight applied on each recorded outcome.
	// Default 0.1, bounds (0, 1].
	LearningRate float64

	// HistorySize bounds the outcome sample buffer. Default 100, bounds [1, 10000].
	HistorySize int

	// DisableJitter turns off the ±25% symmetric jitter.
	DisableJitter bool

	// Metrics receives outcome events. Optional.
	Metrics *EmitterRegistry

	// Logger receives debug logs. Optional.
	Logger Logger
}

func (cfg *BackoffConfig) withDefaults() {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MinDelay == 0 {
		cfg.MinDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = time.Minute
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.HistorySize == 0 {
		cfg.HistorySize = 100
	}
}

func (cfg *BackoffConfig) validate() error {
	problems := collectProblems(
		checkDurationBounds("BaseDelay", cfg.BaseDelay, time.Millisecond, 5*time.Minute),
		checkDurationBounds("MinDelay", cfg.MinDelay, time.Millisecond, time.Hour),
		checkDurationBounds("MaxDelay", cfg.MaxDelay, time.Millisecond, 24*time.Hour),
		checkFloatRange("LearningRate", cfg.LearningRate, 0, 1, true),
		checkIntBounds("HistorySize", cfg.HistorySize, 1, 10000),
	)
	if cfg.MaxDelay < cfg.MinDelay {
		problems = append(problems, "MaxDelay must be >= MinDelay")
	}
	if len(problems) > 0 {
		return &ConfigError{Component: "backoff", Problems: problems}
	}
	return nil
}

// OutcomeSample is one recorded attempt outcome.
type OutcomeSample struct {
	At           time.Time
	Delay        time.Duration
	Success      bool
	ResponseTime time.Duration
}

type serverHint struct {
	delay     time.Duration
	expiresAt time.Time
}

// AdaptiveBackoff produces retry delays for one operation and learns a
// per-operation optimal delay from recorded outcomes. It is safe for
// concurrent use, and Delay/RecordOutcome never fail on a validly
// constructed engine.
type AdaptiveBackoff struct {
	operation string
	cfg       BackoffConfig

	mu                  sync.Mutex
	optimalDelay        time.Duration
	consecutiveFailures int
	history             *ring.Buffer[OutcomeSample]
	hint                *serverHint
	hourlyRate          [24]float64
	hourlyAttempts      [24]int64

	now func() time.Time
}

// NewAdaptiveBackoff validates cfg and constructs an engine. The operation
// name is sanitized; numeric options outside their documented bounds are a
// construction error, never a runtime one.
func NewAdaptiveBackoff(cfg BackoffConfig) (*AdaptiveBackoff, error) {
	name, err := SanitizeOperationName(cfg.Operation)
	if err != nil {
		return nil, err
	}
	cfg.Operation = name

	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &AdaptiveBackoff{
		operation:    name,
		cfg:          cfg,
		optimalDelay: internalbackoff.Clamp(cfg.BaseDelay, cfg.MinDelay, cfg.MaxDelay),
		history:      ring.New[OutcomeSample](cfg.HistorySize),
		now:          time.Now,
	}, nil
}

// NewBackoffRegistry returns a bounded registry that lazily creates one
// AdaptiveBackoff per operation name, all sharing cfg's tuning. The
// Operation field of cfg is ignored; each entry is named by its lookup key.
func NewBackoffRegistry(cfg BackoffConfig, maxEntries int) *Registry[*AdaptiveBackoff] {
	return NewRegistry(maxEntries, func(name string) (*AdaptiveBackoff, error) {
		c := cfg
		c.Operation = name
		return NewAdaptiveBackoff(c)
	})
}

// Operation returns the sanitized operation name.
func (b *AdaptiveBackoff) Operation() string {
	return b.operation
}

// Delay returns the delay to wait before the given 1-based attempt.
// An unexpired server hint takes precedence over everything learned and is
// returned verbatim, without jitter or clamping.
func (b *AdaptiveBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.hint != nil {
		if now.Before(b.hint.expiresAt) {
			return b.hint.delay
		}
		b.hint = nil
	}

	delay := internalbackoff.Grow(b.optimalDelay, attempt, backoffMultiplier)

	hour := now.Hour()
	if b.hourlyAttempts[hour] > 0 {
		switch rate := b.hourlyRate[hour]; {
		case rate < slowHourThreshold:
			delay = time.Duration(float64(delay) * slowHourFactor)
		case rate > fastHourThreshold:
			delay = time.Duration(float64(delay) * fastHourFactor)
		}
	}

	if b.consecutiveFailures > failureEscalationAfter {
		delay = time.Duration(float64(delay) * internalbackoff.Penalty(failureEscalation, b.consecutiveFailures-failureEscalationAfter))
	}

	delay = internalbackoff.Clamp(delay, b.cfg.MinDelay, b.cfg.MaxDelay)

	if !b.cfg.DisableJitter {
		delay = internalbackoff.Jitter(delay, backoffJitterSpread)
	}
	return delay
}

// RecordServerHint records an authoritative server-communicated delay that
// overrides learning until it expires. When ttl is omitted the hint lives
// for one minute.
func (b *AdaptiveBackoff) RecordServerHint(delay time.Duration, ttl ...time.Duration) {
	hintTTL := defaultHintTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		hintTTL = ttl[0]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.hint = &serverHint{delay: delay, expiresAt: b.now().Add(hintTTL)}

	if b.cfg.Logger != nil {
		b.cfg.Logger.Debug("Recorded server hint", "operation", b.operation, "delay", delay, "ttl", hintTTL)
	}
}

// RecordOutcome feeds the learner with the result of an attempt that waited
// delayUsed before running. Successes pull the optimal delay toward
// 0.9*delayUsed, failures push it toward 1.5*delayUsed; the learned value
// never leaves [MinDelay, MaxDelay].
func (b *AdaptiveBackoff) RecordOutcome(success bool, responseTime, delayUsed time.Duration) {
	b.mu.Lock()

	now := b.now()
	previousFailures := b.consecutiveFailures
	if success {
		b.consecutiveFailures = 0
	} else {
		b.consecutiveFailures++
	}

	b.history.Push(OutcomeSample{
		At:           now,
		Delay:        delayUsed,
		Success:      success,
		ResponseTime: responseTime,
	})

	target := time.Duration(float64(delayUsed) * 1.5)
	if success {
		target = time.Duration(float64(delayUsed) * 0.9)
	}
	b.optimalDelay = internalbackoff.Clamp(
		internalbackoff.EMA(b.optimalDelay, target, b.cfg.LearningRate),
		b.cfg.MinDelay, b.cfg.MaxDelay,
	)

	hour := now.Hour()
	contribution := 0.0
	if success {
		contribution = 1 - hourlyRateDecay
	}
	b.hourlyRate[hour] = b.hourlyRate[hour]*hourlyRateDecay + contribution
	b.hourlyAttempts[hour]++

	metrics := b.cfg.Metrics
	failures := b.consecutiveFailures
	b.mu.Unlock()

	if success {
		metrics.EmitSuccess(SuccessEvent{
			Operation: b.operation,
			Attempts:  previousFailures + 1,
			Elapsed:   responseTime,
			Timestamp: now,
		})
	} else {
		metrics.EmitRetry(RetryEvent{
			Operation: b.operation,
			Attempt:   failures,
			Delay:     delayUsed,
			Timestamp: now,
		})
	}
}

// BackoffStats is a point-in-time snapshot of an engine's learned state.
type BackoffStats struct {
	Operation           string
	OptimalDelay        time.Duration
	ConsecutiveFailures int
	RecentSuccessRate   float64
	HistorySize         int
	HintActive          bool
	HourlyPattern       [24]float64
	HourlyAttempts      [24]int64
}

// Stats returns a snapshot of the learned state.
func (b *AdaptiveBackoff) Stats() BackoffStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := b.history.Snapshot()
	successes := 0
	for _, s := range samples {
		if s.Success {
			successes++
		}
	}
	rate := 0.0
	if len(samples) > 0 {
		rate = float64(successes) / float64(len(samples))
	}

	return BackoffStats{
		Operation:           b.operation,
		OptimalDelay:        b.optimalDelay,
		ConsecutiveFailures: b.consecutiveFailures,
		RecentSuccessRate:   rate,
		HistorySize:         len(samples),
		HintActive:          b.hint != nil && b.now().Before(b.hint.expiresAt),
		HourlyPattern:       b.hourlyRate,
		HourlyAttempts:      b.hourlyAttempts,
	}
}

// Reset clears all learned state without destroying the instance.
func (b *AdaptiveBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.optimalDelay = internalbackoff.Clamp(b.cfg.BaseDelay, b.cfg.MinDelay, b.cfg.MaxDelay)
	b.consecutiveFailures = 0
	b.history.Reset()
	b.hint = nil
	b.hourlyRate = [24]float64{}
	b.hourlyAttempts = [24]int64{}
}
