package tangguh

import (
	"container/list"
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// CoalescerConfig configures a RequestCoalescer. Zero-valued fields take the
// documented defaults; out-of-bounds values are a construction error.
type CoalescerConfig struct {
	// Operation names the coalescer for metrics. Required.
	Operation string

	// CacheTTL is how long successful results stay cached. Zero disables
	// success caching entirely. Bounds [0, 24h].
	CacheTTL time.Duration

	// CacheErrors opts in to caching failed results.
	CacheErrors bool

	// ErrorCacheTTL is the TTL for cached errors when CacheErrors is set.
	// Default 5s. Bounds [0, 24h].
	ErrorCacheTTL time.Duration

	// MaxCacheSize bounds the result cache. Default 1000, bounds [1, 100000].
	MaxCacheSize int

	// Metrics receives success/failure events for each actual execution. Optional.
	Metrics *EmitterRegistry

	// Logger receives debug logs. Optional.
	Logger Logger
}

func (cfg *CoalescerConfig) withDefaults() {
	if cfg.ErrorCacheTTL == 0 {
		cfg.ErrorCacheTTL = 5 * time.Second
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = 1000
	}
}

func (cfg *CoalescerConfig) validate() error {
	problems := collectProblems(
		checkDurationBounds("CacheTTL", cfg.CacheTTL, 0, 24*time.Hour),
		checkDurationBounds("ErrorCacheTTL", cfg.ErrorCacheTTL, 0, 24*time.Hour),
		checkIntBounds("MaxCacheSize", cfg.MaxCacheSize, 1, 100000),
	)
	if len(problems) > 0 {
		return &ConfigError{Component: "coalescer", Problems: problems}
	}
	return nil
}

// flight is one shared in-flight computation. The owner closes done exactly
// once after storing the settled value/error; waiters only ever read after
// observing the close.
type flight struct {
	done    chan struct{}
	value   any
	err     error
	waiters int
	started time.Time
}

type cacheEntry struct {
	key       string
	value     any
	err       error
	isError   bool
	cachedAt  time.Time
	expiresAt time.Time
}

// RequestCoalescer executes an operation at most once per key among
// concurrent callers, optionally memoizing the settled result in a bounded
// LRU cache. It never retries and never masks the operation's failure; it
// only deduplicates and propagates. Safe for concurrent use.
type RequestCoalescer struct {
	operation string
	cfg       CoalescerConfig

	mu       sync.Mutex
	inFlight map[string]*flight
	cache    map[string]*list.Element
	order    *list.List // front = most recently used

	stats coalescerCounters
}

type coalescerCounters struct {
	deduped     uint64
	actual      uint64
	cacheHits   uint64
	cacheMisses uint64
}

// NewRequestCoalescer validates cfg and constructs a coalescer.
func NewRequestCoalescer(cfg CoalescerConfig) (*RequestCoalescer, error) {
	name, err := SanitizeOperationName(cfg.Operation)
	if err != nil {
		return nil, err
	}
	cfg.Operation = name

	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &RequestCoalescer{
		operation: name,
		cfg:       cfg,
		inFlight:  make(map[string]*flight),
		cache:     make(map[string]*list.Element),
		order:     list.New(),
	}, nil
}

// NewCoalescerRegistry returns a bounded registry creating one coalescer per
// operation name, all sharing cfg's tuning.
func NewCoalescerRegistry(cfg CoalescerConfig, maxEntries int) *Registry[*RequestCoalescer] {
	return NewRegistry(maxEntries, func(name string) (*RequestCoalescer, error) {
		c := cfg
		c.Operation = name
		return NewRequestCoalescer(c)
	})
}

// Operation returns the sanitized operation name.
func (c *RequestCoalescer) Operation() string {
	return c.operation
}

// Execute runs op under key. A valid cached result is returned without
// invoking op; a concurrent call with the same key joins the existing
// in-flight computation and receives its settled result; otherwise op is
// invoked exactly once and its result delivered to every joined caller.
func (c *RequestCoalescer) Execute(ctx context.Context, key string, op Operation) (any, error) {
	c.mu.Lock()

	// Cache first, in-flight second. Both checks and the owner registration
	// happen under one lock acquisition so a key can never be both served
	// from cache and joined in flight by the same call.
	if elem, ok := c.cache[key]; ok {
		entry := elem.Value.(*cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			c.order.MoveToFront(elem)
			c.stats.cacheHits++
			c.mu.Unlock()
			if entry.isError {
				return nil, entry.err
			}
			return entry.value, nil
		}
		c.removeEntryLocked(elem)
	}
	c.stats.cacheMisses++

	if fl, ok := c.inFlight[key]; ok {
		fl.waiters++
		c.stats.deduped++
		if c.cfg.Logger != nil {
			c.cfg.Logger.Debug("Joined in-flight request",
				"operation", c.operation, "key", key, "waiters", fl.waiters)
		}
		c.mu.Unlock()
		return c.wait(ctx, fl)
	}

	fl := &flight{done: make(chan struct{}), started: time.Now()}
	c.inFlight[key] = fl
	c.stats.actual++
	c.mu.Unlock()

	value, err := op(ctx)
	elapsed := time.Since(fl.started)

	c.mu.Lock()
	fl.value = value
	fl.err = err
	delete(c.inFlight, key)
	if err == nil {
		if c.cfg.CacheTTL > 0 {
			c.insertLocked(key, value, nil, c.cfg.CacheTTL)
		}
	} else if c.cfg.CacheErrors && c.cfg.ErrorCacheTTL > 0 {
		c.insertLocked(key, nil, err, c.cfg.ErrorCacheTTL)
	}
	c.mu.Unlock()
	close(fl.done)

	c.emit(err, elapsed)
	return value, err
}

// ExecuteWithKey derives the coalescing key from args via keyFn (or
// DefaultKeyFunc when nil) and delegates to Execute.
func (c *RequestCoalescer) ExecuteWithKey(ctx context.Context, keyFn KeyFunc, op Operation, args ...any) (any, error) {
	if keyFn == nil {
		keyFn = DefaultKeyFunc
	}
	return c.Execute(ctx, keyFn(args...), op)
}

// wait blocks until the shared flight settles or ctx cancels. A caller that
// gives up does not disturb the flight; the owner and remaining waiters
// still receive the settled result.
func (c *RequestCoalescer) wait(ctx context.Context, fl *flight) (any, error) {
	select {
	case <-fl.done:
		return fl.value, fl.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RequestCoalescer) emit(err error, elapsed time.Duration) {
	if c.cfg.Metrics.Len() == 0 {
		return
	}
	now := time.Now()
	if err == nil {
		c.cfg.Metrics.EmitSuccess(SuccessEvent{
			Operation: c.operation,
			Attempts:  1,
			Elapsed:   elapsed,
			Timestamp: now,
		})
		return
	}
	c.cfg.Metrics.EmitFailure(FailureEvent{
		Operation:    c.operation,
		Attempts:     1,
		Elapsed:      elapsed,
		ErrorCode:    "operation_error",
		ErrorMessage: err.Error(),
		Timestamp:    now,
	})
}

// insertLocked adds a settled result to the cache, evicting from the LRU
// tail until there is room. Callers hold c.mu.
func (c *RequestCoalescer) insertLocked(key string, value any, err error, ttl time.Duration) {
	if elem, ok := c.cache[key]; ok {
		c.removeEntryLocked(elem)
	}
	for len(c.cache) >= c.cfg.MaxCacheSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*cacheEntry)
		c.removeEntryLocked(oldest)
		if c.cfg.Logger != nil {
			c.cfg.Logger.Debug("Evicted LRU cache entry", "operation", c.operation, "key", evicted.key)
		}
	}

	now := time.Now()
	entry := &cacheEntry{
		key:       key,
		value:     value,
		err:       err,
		isError:   err != nil,
		cachedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.cache[key] = c.order.PushFront(entry)
}

func (c *RequestCoalescer) removeEntryLocked(elem *list.Element) {
	entry := elem.Value.(*cacheEntry)
	c.order.Remove(elem)
	delete(c.cache, entry.key)
}

// Invalidate removes key from the cache, reporting whether it was present.
// It does not affect an in-flight computation for the same key.
func (c *RequestCoalescer) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.cache[key]
	if !ok {
		return false
	}
	c.removeEntryLocked(elem)
	return true
}

// InvalidatePattern removes every cached key matching pattern, returning the
// number removed.
func (c *RequestCoalescer) InvalidatePattern(pattern *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.cache {
		if pattern.MatchString(key) {
			c.removeEntryLocked(elem)
			removed++
		}
	}
	return removed
}

// Clear drops the entire cache. In-flight computations are unaffected.
func (c *RequestCoalescer) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[string]*list.Element)
	c.order.Init()
}

// CoalescerStats is a point-in-time snapshot of coalescer activity.
type CoalescerStats struct {
	Operation       string
	DedupedRequests uint64
	ActualRequests  uint64
	CacheHits       uint64
	CacheMisses     uint64
	InFlight        int
	CacheSize       int
	DedupRate       float64
	CacheHitRate    float64
}

// Stats returns a snapshot of coalescer activity since construction.
func (c *RequestCoalescer) Stats() CoalescerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CoalescerStats{
		Operation:       c.operation,
		DedupedRequests: c.stats.deduped,
		ActualRequests:  c.stats.actual,
		CacheHits:       c.stats.cacheHits,
		CacheMisses:     c.stats.cacheMisses,
		InFlight:        len(c.inFlight),
		CacheSize:       len(c.cache),
	}
	if total := s.DedupedRequests + s.ActualRequests; total > 0 {
		s.DedupRate = float64(s.DedupedRequests) / float64(total)
	}
	if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(lookups)
	}
	return s
}

// String implements fmt.Stringer for debug logging.
func (s CoalescerStats) String() string {
	return fmt.Sprintf("coalescer[%s] deduped=%d actual=%d hits=%d misses=%d inflight=%d cached=%d",
		s.Operation, s.DedupedRequests, s.ActualRequests, s.CacheHits, s.CacheMisses, s.InFlight, s.CacheSize)
}
