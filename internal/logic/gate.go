package logic

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultRefractory is the minimum spacing between accepted edges.
const DefaultRefractory = 250 * time.Millisecond

// Gate suppresses edges arriving within the refractory window of the last
// accepted edge. One Gate is shared by all buttons: a press on one button
// blocks presses on every other button for the same window.
//
// Gate is safe for concurrent use.
type Gate struct {
	refractory time.Duration
	epoch      time.Time

	// nextAllowed is nanoseconds since epoch. It never decreases.
	nextAllowed atomic.Int64
}

// NewGate creates a Gate. Times passed to TryAccept are measured relative to
// epoch, so the monotonic clock reading of time.Now is honored.
func NewGate(refractory time.Duration, epoch time.Time) *Gate {
	g := &Gate{refractory: refractory, epoch: epoch}
	g.nextAllowed.Store(math.MinInt64)
	return g
}

// TryAccept reports whether an edge at now is accepted. On accept the window
// is moved to now+refractory; on reject nothing changes.
func (g *Gate) TryAccept(now time.Time) bool {
	t := int64(now.Sub(g.epoch))
	for {
		next := g.nextAllowed.Load()
		if t <= next {
			return false
		}
		if g.nextAllowed.CompareAndSwap(next, t+int64(g.refractory)) {
			return true
		}
	}
}

// NextAllowed returns the earliest time after which an edge is accepted.
// It returns the zero time before the first accepted edge.
func (g *Gate) NextAllowed() time.Time {
	next := g.nextAllowed.Load()
	if next == math.MinInt64 {
		return time.Time{}
	}
	return g.epoch.Add(time.Duration(next))
}

// Refractory returns the configured window.
func (g *Gate) Refractory() time.Duration {
	return g.refractory
}
