package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyStarted = errors.New("runner: already started")
	ErrDrainTimeout   = errors.New("runner: drain timeout")
)

type Options struct {
	Services []Service
	Drainer  Drainer
	Hooks    Hooks
	// DrainTimeout bounds Drainer.Drain. Defaults to 10s.
	DrainTimeout time.Duration
	// Banner receives the startup banner. Nil disables it.
	Banner io.Writer
}

// LifecycleRunner runs services together and drains once they stop.
type LifecycleRunner struct {
	state    int32
	opts     Options
	mu       sync.Mutex
	cancel   context.CancelFunc
	onceStop sync.Once
	stopErr  error
}

func NewLifecycleRunner(opts Options) *LifecycleRunner {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	return &LifecycleRunner{state: int32(StateNew), opts: opts}
}

// Run blocks until ctx ends or a service fails. The first service error is
// returned, otherwise the drain result.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return ErrAlreadyStarted
	}
	PrintBanner(r.opts.Banner)

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range r.opts.Services {
		if svc == nil {
			continue
		}
		svc := svc
		g.Go(func() error { return svc(gctx) })
	}
	if r.opts.Hooks.OnStart != nil {
		r.opts.Hooks.OnStart()
	}
	r.setState(StateRunning)

	<-gctx.Done()
	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if err := r.stop(); runErr == nil {
		runErr = err
	}
	return runErr
}

// Stop cancels a running Run and drains.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		if r.opts.Drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.opts.Drainer.Drain() }()
			select {
			case err := <-done:
				r.stopErr = err
			case <-time.After(r.opts.DrainTimeout):
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.opts.Hooks.OnStop != nil {
			r.opts.Hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
