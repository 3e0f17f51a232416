package tangguh

import (
	"sort"
	"sync"
	"time"

	"github.com/ambiyansyah-risyal/tangguh/internal/ring"
)

// minAdaptiveSamples is how many recorded latencies a tracker needs before
// adaptive hedging trusts its percentile estimates.
const minAdaptiveSamples = 10

// latencyTracker keeps the most recent winner latencies for one operation.
// It persists across hedge invocations; the race state itself does not.
type latencyTracker struct {
	mu      sync.Mutex
	samples *ring.Buffer[time.Duration]
}

func newLatencyTracker(window int) *latencyTracker {
	return &latencyTracker{samples: ring.New[time.Duration](window)}
}

func (t *latencyTracker) record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples.Push(d)
}

func (t *latencyTracker) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples.Len()
}

// percentile returns the p-th (0 < p < 1) percentile of the recorded
// latencies. ok is false until the tracker holds minAdaptiveSamples samples.
func (t *latencyTracker) percentile(p float64) (time.Duration, bool) {
	t.mu.Lock()
	snapshot := t.samples.Snapshot()
	t.mu.Unlock()

	if len(snapshot) < minAdaptiveSamples {
		return 0, false
	}

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i] < snapshot[j] })
	idx := int(p * float64(len(snapshot)-1))
	return snapshot[idx], true
}
