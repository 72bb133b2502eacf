package ticker

import (
	"fmt"
	"sync"
	"time"
)

// DefaultPeriod is the refresh period of the call duration display.
const DefaultPeriod = time.Second

// Periodic is a cancellable repeating task. At most one schedule is active; Start
// cancels the previous one first. Every schedule has a generation number, and Valid lets
// the consumer drop a tick that was already in flight when its schedule was cancelled.
type Periodic struct {
	mu      sync.Mutex
	period  time.Duration
	gen     uint64
	running bool
	stop    chan struct{}
}

func NewPeriodic(period time.Duration) *Periodic {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Periodic{period: period}
}

// Start schedules fn every period and returns the schedule's generation.
func (p *Periodic) Start(fn func(gen uint64)) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	p.gen++
	p.running = true
	stop := make(chan struct{})
	p.stop = stop
	go p.loop(p.gen, stop, fn)
	return p.gen
}

// Stop cancels the active schedule. It is safe to call repeatedly.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
}

// Running reports whether a schedule is active.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Valid reports whether gen is the active schedule.
func (p *Periodic) Valid(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.gen == gen
}

func (p *Periodic) cancelLocked() {
	if !p.running {
		return
	}
	close(p.stop)
	p.stop = nil
	p.running = false
}

func (p *Periodic) loop(gen uint64, stop <-chan struct{}, fn func(uint64)) {
	t := time.NewTicker(p.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			select {
			case <-stop:
				return
			default:
			}
			fn(gen)
		}
	}
}

// Elapsed returns whole seconds between startedAt and now, never negative.
func Elapsed(now, startedAt time.Time) int {
	if startedAt.IsZero() || now.Before(startedAt) {
		return 0
	}
	return int(now.Sub(startedAt) / time.Second)
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
