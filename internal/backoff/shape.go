// Package backoff holds the pure delay-shaping math used by the adaptive
// backoff engine. Keeping it stateless and side-effect free makes the
// learned-state logic in the root package easy to reason about and test.
package backoff

import (
	"math/rand"
	"time"
)

// Grow applies exponential growth to base for the given 1-based attempt:
// attempt 1 returns base unchanged, attempt n returns base * multiplier^(n-1).
// The exponent is capped to prevent duration overflow.
func Grow(base time.Duration, attempt int, multiplier float64) time.Duration {
	if attempt <= 1 {
		return base
	}
	exp := attempt - 1
	if exp > 30 {
		exp = 30
	}
	grown := time.Duration(float64(base) * Pow(multiplier, exp))
	if grown < 0 {
		// Overflow wrapped negative.
		return time.Duration(1<<63 - 1)
	}
	return grown
}

// Penalty returns factor^n for consecutive-failure escalation, with the
// exponent capped the same way Grow caps it.
func Penalty(factor float64, n int) float64 {
	if n <= 0 {
		return 1
	}
	if n > 30 {
		n = 30
	}
	return Pow(factor, n)
}

// Clamp bounds d to [min, max].
func Clamp(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}

// Jitter applies symmetric jitter around d: the result is uniformly drawn
// from [d*(1-spread), d*(1+spread)). A spread of 0.25 yields the classic
// delay * (0.75 + U[0,1)*0.5) scaling.
func Jitter(d time.Duration, spread float64) time.Duration {
	if spread <= 0 {
		return d
	}
	if spread > 1 {
		spread = 1
	}
	lo := 1 - spread
	scale := lo + rand.Float64()*2*spread
	return time.Duration(float64(d) * scale)
}

// EMA blends current toward target with the given weight in (0, 1].
func EMA(current, target time.Duration, weight float64) time.Duration {
	return time.Duration(float64(current)*(1-weight) + float64(target)*weight)
}

// Pow calculates base^exponent using integer exponentiation.
func Pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
