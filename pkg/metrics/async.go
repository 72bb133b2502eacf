package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// lifecycleWait bounds how long a lifecycle event waits for queue space.
const lifecycleWait = 50 * time.Millisecond

// AsyncObserver hands events to inner on its own goroutine. When the queue is full
// transcript entries are dropped at once; lifecycle events wait up to lifecycleWait
// first so call counts stay accurate under bursts.
type AsyncObserver struct {
	inner   Observer
	queue   chan MetricsEvent
	drained chan struct{}
	dropped atomic.Int64
	wait    time.Duration

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	if inner == nil {
		inner = NoopObserver{}
	}
	a := &AsyncObserver{
		inner:   inner,
		queue:   make(chan MetricsEvent, buffer),
		drained: make(chan struct{}),
		wait:    lifecycleWait,
	}
	go a.forward()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.queue <- ev:
		return
	default:
	}
	if ev.Name == EventTranscriptEntry {
		a.dropped.Add(1)
		return
	}
	t := time.NewTimer(a.wait)
	defer t.Stop()
	select {
	case a.queue <- ev:
	case <-t.C:
		a.dropped.Add(1)
	}
}

// Dropped returns how many events never reached inner.
func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and returns once the queued ones reached inner.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.drained
}

func (a *AsyncObserver) forward() {
	defer close(a.drained)
	for ev := range a.queue {
		a.inner.RecordEvent(ev)
	}
}
