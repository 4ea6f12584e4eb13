package impact

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// dedupGuard suppresses re-delivered motion samples so the same sample
// can never produce two ImpactEvent rows. It keeps a sliding window of
// seen (device id, device timestamp) keys in two bloom filters: keys are
// added to the current filter, lookups check both, and the pair rotates
// lazily once the window elapses. Bloom false positives can at worst
// drop a genuinely new event within the window, at a configurable rate.
type dedupGuard struct {
	mu        sync.Mutex
	current   *bloom.BloomFilter
	previous  *bloom.BloomFilter
	window    time.Duration
	capacity  uint
	fpRate    float64
	rotatedAt time.Time

	now func() time.Time
}

func newDedupGuard(window time.Duration, capacity uint, fpRate float64, now func() time.Time) *dedupGuard {
	if now == nil {
		now = time.Now
	}
	return &dedupGuard{
		current:   bloom.NewWithEstimates(capacity, fpRate),
		previous:  bloom.NewWithEstimates(capacity, fpRate),
		window:    window,
		capacity:  capacity,
		fpRate:    fpRate,
		rotatedAt: now(),
		now:       now,
	}
}

// contains reports whether key was observed within the window. Safe for
// concurrent use.
func (g *dedupGuard) contains(key string) bool {
	data := []byte(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rotate()
	return g.current.Test(data) || g.previous.Test(data)
}

// record marks key as observed. Callers mark a key only after its event
// row is durably written: a key latched before a failed insert would
// suppress the retried sample for the whole window.
func (g *dedupGuard) record(key string) {
	data := []byte(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rotate()
	g.current.Add(data)
}

// rotate ages the filter pair once half the window has elapsed. Callers
// hold g.mu.
func (g *dedupGuard) rotate() {
	if g.now().Sub(g.rotatedAt) > g.window/2 {
		g.previous = g.current
		g.current = bloom.NewWithEstimates(g.capacity, g.fpRate)
		g.rotatedAt = g.now()
	}
}
