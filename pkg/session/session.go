package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/univoice/pkg/call"
	"github.com/harunnryd/univoice/pkg/errorsx"
	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/metrics"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/resilience"
	"github.com/harunnryd/univoice/pkg/ticker"
	"github.com/harunnryd/univoice/pkg/transcript"
)

// Microphone asks the person starting a call for microphone access.
type Microphone interface {
	RequestMicrophone(ctx context.Context) error
}

// MicrophoneFunc adapts a function to Microphone.
type MicrophoneFunc func(ctx context.Context) error

func (f MicrophoneFunc) RequestMicrophone(ctx context.Context) error { return f(ctx) }

// LanguageDetector reports the spoken language of a finished call's recording.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, recordingURL string) (string, error)
}

// Config holds the session settings read at startup.
type Config struct {
	AssistantID       string
	DefaultLanguage   string
	TickPeriod        time.Duration
	ConnectTimeout    time.Duration
	MicrophoneTimeout time.Duration
	DetectTimeout     time.Duration
	TimeLayout        string
	Location          *time.Location
	Now               func() time.Time
}

func (c Config) withDefaults() Config {
	c.AssistantID = strings.TrimSpace(c.AssistantID)
	if strings.TrimSpace(c.DefaultLanguage) == "" {
		c.DefaultLanguage = "EN"
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = ticker.DefaultPeriod
	}
	if c.MicrophoneTimeout <= 0 {
		c.MicrophoneTimeout = 30 * time.Second
	}
	if c.DetectTimeout <= 0 {
		c.DetectTimeout = 45 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Options wires a session to its collaborators.
type Options struct {
	Config   Config
	Client   provider.Client
	Observer metrics.Observer
	Logger   *slog.Logger
	Language LanguageDetector
}

// Session owns one provider client and the state of the single call it may hold.
// All state changes run on one goroutine, in the order events are delivered.
type Session struct {
	cfg    Config
	client provider.Client
	obs    metrics.Observer
	log    *slog.Logger
	lang   LanguageDetector

	machine *call.Machine
	agg     *transcript.Aggregator
	timer   *ticker.Periodic
	subs    *provider.Subscriptions

	ctx    context.Context
	cancel context.CancelFunc

	ops       chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	// Owned by the loop goroutine.
	attempt      uint64
	traceID      string
	callID       string
	joinURL      string
	startedAt    time.Time
	duration     int
	language     string
	lastErr      *ErrorInfo
	version      uint64
	connectTimer *time.Timer

	snapMu   sync.RWMutex
	snap     Snapshot
	watchMu  sync.Mutex
	watchSeq uint64
	watchers map[uint64]chan Snapshot
}

// New builds a session, subscribes it to the client and starts its loop.
func New(opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("session: provider client is required")
	}
	cfg := opts.Config.withDefaults()
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:     cfg,
		client:  opts.Client,
		obs:     obs,
		log:     logging.NewComponentLogger(opts.Logger, "session"),
		lang:    opts.Language,
		machine: call.NewMachine(),
		agg: transcript.NewAggregator(transcript.NewLog(), transcript.AggregatorConfig{
			TimeLayout: cfg.TimeLayout,
			Location:   cfg.Location,
			Now:        cfg.Now,
		}),
		timer:    ticker.NewPeriodic(cfg.TickPeriod),
		ctx:      ctx,
		cancel:   cancel,
		ops:      make(chan func(), 256),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		language: strings.ToUpper(strings.TrimSpace(cfg.DefaultLanguage)),
		watchers: make(map[uint64]chan Snapshot),
	}
	s.machine.AddListener(call.ListenerFunc(s.logTransition))
	s.subs = provider.Subscribe(s.client, map[provider.EventKind]provider.Handler{
		provider.EventCallStart:       s.deliver,
		provider.EventCallEnd:         s.deliver,
		provider.EventEndOfCallReport: s.deliver,
		provider.EventError:           s.deliver,
		provider.EventMessage:         s.deliver,
	})
	s.publish()
	go s.run()
	return s, nil
}

// Status returns the current call status.
func (s *Session) Status() call.Status {
	return s.machine.Status()
}

// Snapshot returns the latest published view.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Watch streams snapshots. The channel holds only the latest one; slow readers skip
// intermediate versions. The returned func stops the stream.
func (s *Session) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.watchMu.Lock()
	if s.watchers == nil {
		s.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = ch
	ch <- s.Snapshot()
	s.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.watchMu.Lock()
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
			}
			s.watchMu.Unlock()
		})
	}
}

// Start requests a new call. It waits for microphone permission and the provider's
// start outcome; the call itself begins when the provider emits call-start. A nil mic
// skips the permission step.
func (s *Session) Start(ctx context.Context, mic Microphone) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		attempt uint64
		startErr error
	)
	if err := s.do(func() {
		attempt, startErr = s.beginStart()
	}); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	var result provider.Call
	err := s.requestMicrophone(ctx, mic)
	if err == nil {
		result, err = s.client.Start(ctx, s.cfg.AssistantID)
		if err != nil {
			err = errorsx.Wrap(fmt.Errorf("start call: %w", err), startReason(err))
		}
	}

	var outcome error
	if derr := s.do(func() {
		outcome = s.finishStart(attempt, result, err)
	}); derr != nil {
		if err == nil {
			s.stopProvider("session_closed")
		}
		return derr
	}
	return outcome
}

// End finishes the active call at the user's request and asks the provider to tear it
// down. Calling End when no call is in progress does nothing.
func (s *Session) End(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ended := false
	if err := s.do(func() {
		ended = s.endCall(call.TriggerEndRequested, "")
	}); err != nil {
		return err
	}
	if !ended {
		return nil
	}
	if err := s.client.Stop(ctx); err != nil {
		s.log.Warn("provider_stop_failed", "error", err.Error())
		return errorsx.Wrap(fmt.Errorf("stop call: %w", err), errorsx.ReasonProviderStop)
	}
	return nil
}

// Drain ends an active call. It is used on shutdown.
func (s *Session) Drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.End(ctx)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Close releases the provider subscriptions, stops the timer and the loop. Events
// delivered afterwards are dropped.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.subs.Close()
		_ = s.do(func() {
			s.timer.Stop()
			s.stopConnectTimer()
		})
		s.closed.Store(true)
		s.cancel()
		close(s.done)
		<-s.loopDone

		s.watchMu.Lock()
		for id, ch := range s.watchers {
			delete(s.watchers, id)
			close(ch)
		}
		s.watchers = nil
		s.watchMu.Unlock()
	})
	return nil
}

func (s *Session) run() {
	defer close(s.loopDone)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// post queues op on the loop. It blocks while the queue is full so delivery order holds.
func (s *Session) post(op func()) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.ops <- op:
		return true
	case <-s.done:
		return false
	}
}

// do runs op on the loop and waits for it.
func (s *Session) do(op func()) error {
	ran := make(chan struct{})
	if !s.post(func() {
		op()
		close(ran)
	}) {
		return errorsx.Wrap(ErrClosed, errorsx.ReasonSessionClosed)
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		select {
		case <-ran:
			return nil
		default:
			return errorsx.Wrap(ErrClosed, errorsx.ReasonSessionClosed)
		}
	}
}

// deliver is the provider handler for every event kind.
func (s *Session) deliver(ev provider.Event) {
	if s.closed.Load() {
		return
	}
	s.post(func() { s.handleEvent(ev) })
}

func (s *Session) requestMicrophone(ctx context.Context, mic Microphone) error {
	if mic == nil {
		return nil
	}
	mctx, cancel := context.WithTimeout(ctx, s.cfg.MicrophoneTimeout)
	defer cancel()
	err := mic.RequestMicrophone(mctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return errorsx.Wrap(fmt.Errorf("microphone permission: %w", err), errorsx.ReasonMicrophoneTimeout)
	default:
		return errorsx.Wrap(fmt.Errorf("microphone permission: %w", err), errorsx.ReasonMicrophoneDenied)
	}
}

// startReason classifies a provider start failure.
func startReason(err error) errorsx.ReasonCode {
	switch {
	case resilience.IsRateLimit(err):
		return errorsx.ReasonProviderRateLimit
	case errors.Is(err, resilience.ErrCircuitOpen):
		return errorsx.ReasonProviderCircuit
	default:
		return errorsx.ReasonProviderStart
	}
}
