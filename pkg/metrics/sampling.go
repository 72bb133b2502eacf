package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards one in every N of the sampled event names to inner.
// Other events always pass through.
type SamplingObserver struct {
	inner   Observer
	every   uint64
	sampled map[string]bool
	seen    atomic.Uint64
}

// NewSamplingObserver samples names at rate, clamped to [0, 1]. No names means
// every event is sampled. A rate of 0 drops the sampled events entirely.
func NewSamplingObserver(inner Observer, rate float64, names ...string) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	var every uint64
	if rate > 0 {
		every = max(uint64(math.Round(1/rate)), 1)
	}
	var sampled map[string]bool
	if len(names) > 0 {
		sampled = make(map[string]bool, len(names))
		for _, n := range names {
			sampled[n] = true
		}
	}
	return &SamplingObserver{inner: inner, every: every, sampled: sampled}
}

// RecordEvent implements Observer.
func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.inner == nil {
		return
	}
	if s.sampled != nil && !s.sampled[ev.Name] {
		s.inner.RecordEvent(ev)
		return
	}
	switch s.every {
	case 0:
		return
	case 1:
		s.inner.RecordEvent(ev)
		return
	}
	if s.seen.Add(1)%s.every == 0 {
		s.inner.RecordEvent(ev)
	}
}

var _ Observer = (*SamplingObserver)(nil)
