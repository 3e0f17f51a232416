// Package tangguh provides resilience primitives for wrapping unreliable
// remote operations:
//
//   - Adaptive backoff that learns a per‑operation optimal delay from
//     recorded outcomes (EMA smoothing, hourly success patterns, server
//     supplied retry hints)
//   - Request coalescing (merges concurrent identical in‑flight operations)
//     with an optional LRU result cache and pattern invalidation
//   - Hedged execution (races a primary against delayed backups, first
//     success wins, losers are cancelled)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – typed config structs with validating constructors
//   - Transport agnostic – the library wraps caller supplied operations and
//     never inspects their payload
//   - Safe concurrent use of every engine instance
//   - Bounded memory – registries and caches enforce hard entry caps
//
// Typical usage:
//
//	co, err := tangguh.NewRequestCoalescer(tangguh.CoalescerConfig{
//	    Operation: "user-lookup",
//	    CacheTTL:  5 * time.Second,
//	})
//	if err != nil {
//	    return err
//	}
//	v, err := co.Execute(ctx, "user:1", fetchUser)
//
// Engines are independent: compose them in whatever order the call site
// needs. None of them impose timeouts on the wrapped operation; compose a
// context deadline in before handing the operation over.
package tangguh
