package runner

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type drainer struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (d *drainer) Drain() error {
	d.calls.Add(1)
	time.Sleep(d.delay)
	return d.err
}

func TestRunDrainsOnCancel(t *testing.T) {
	d := &drainer{}
	var started, stopped atomic.Bool
	var banner bytes.Buffer
	r := NewLifecycleRunner(Options{
		Services: []Service{func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		Drainer: d,
		Hooks: Hooks{
			OnStart: func() { started.Store(true) },
			OnStop:  func() { stopped.Store(true) },
		},
		Banner: &banner,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for r.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if r.State() != StateRunning || !started.Load() {
		t.Fatalf("expected running, got %s", r.State())
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if d.calls.Load() != 1 || !stopped.Load() || r.State() != StateStopped {
		t.Fatalf("expected drained stop, calls=%d state=%s", d.calls.Load(), r.State())
	}
	if banner.Len() == 0 {
		t.Fatalf("expected banner output")
	}
	if err := r.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestRunReturnsServiceError(t *testing.T) {
	boom := errors.New("listen failed")
	d := &drainer{}
	r := NewLifecycleRunner(Options{
		Services: []Service{
			func(ctx context.Context) error { return boom },
			func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
		},
		Drainer: d,
	})
	if err := r.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected service error, got %v", err)
	}
	if d.calls.Load() != 1 {
		t.Fatalf("expected drain after failure")
	}
}

func TestDrainTimeout(t *testing.T) {
	r := NewLifecycleRunner(Options{
		Drainer:      &drainer{delay: 200 * time.Millisecond},
		DrainTimeout: 10 * time.Millisecond,
	})
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
	if err := r.Stop(); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("stop must be idempotent, got %v", err)
	}
}
