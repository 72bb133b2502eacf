package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/univoice/pkg/configutil"
	"github.com/harunnryd/univoice/pkg/provider"
)

// ErrCallActive is returned by Start while a scripted call is still running.
var ErrCallActive = errors.New("mock: call already active")

// Line is one scripted utterance.
type Line struct {
	Role string `mapstructure:"role"`
	Text string `mapstructure:"text"`
}

// Config drives the scripted provider.
type Config struct {
	CallID       string        `mapstructure:"call_id"`
	JoinURL      string        `mapstructure:"join_url"`
	Interval     time.Duration `mapstructure:"-"`
	IntervalMS   int           `mapstructure:"interval_ms"`
	Script       []Line        `mapstructure:"script"`
	EndedReason  string        `mapstructure:"ended_reason"`
	RecordingURL string        `mapstructure:"recording_url"`
	// AutoStart emits call-start after Start even when Script is empty.
	AutoStart bool `mapstructure:"auto_start"`
	// StartError, when set, makes every Start fail with this message.
	StartError string `mapstructure:"start_error"`
}

// Schema lists the settings keys accepted by the mock provider.
var Schema = configutil.Schema{
	Optional: []string{"call_id", "join_url", "interval_ms", "script", "ended_reason", "recording_url", "auto_start", "start_error"},
}

// DemoScript is the conversation played by the credential-free demo.
var DemoScript = []Line{
	{Role: provider.RoleAssistant, Text: "Hi, this is the UniVoice demo assistant. How can I help?"},
	{Role: provider.RoleUser, Text: "What can you do?"},
	{Role: provider.RoleAssistant, Text: "I can hold a short conversation so you can see the live transcript."},
	{Role: provider.RoleUser, Text: "Great, thanks."},
	{Role: provider.RoleAssistant, Text: "You're welcome. Goodbye!"},
}

// Client is a scripted provider.Client. Tests drive it with Emit.
type Client struct {
	provider.Emitter

	cfg Config

	mu       sync.Mutex
	starts   []string
	stops    int
	startErr error
	active   string
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewClient(cfg Config) *Client {
	if cfg.Interval <= 0 {
		cfg.Interval = configutil.Millis(cfg.IntervalMS, 1500*time.Millisecond)
	}
	if cfg.EndedReason == "" {
		cfg.EndedReason = "assistant-ended-call"
	}
	c := &Client{cfg: cfg}
	if cfg.StartError != "" {
		c.startErr = errors.New(cfg.StartError)
	}
	return c
}

func (c *Client) Name() string { return "mock" }

// FailStart makes subsequent Start calls return err. A nil err restores success.
func (c *Client) FailStart(err error) {
	c.mu.Lock()
	c.startErr = err
	c.mu.Unlock()
}

// Starts returns the assistant ids passed to Start.
func (c *Client) Starts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.starts))
	copy(out, c.starts)
	return out
}

// Stops returns how many times Stop was called.
func (c *Client) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// ActiveCall returns the id of the running call, if any.
func (c *Client) ActiveCall() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) Start(ctx context.Context, assistantID string) (provider.Call, error) {
	if err := ctx.Err(); err != nil {
		return provider.Call{}, err
	}
	c.mu.Lock()
	c.starts = append(c.starts, assistantID)
	if c.startErr != nil {
		err := c.startErr
		c.mu.Unlock()
		return provider.Call{}, err
	}
	if c.active != "" {
		c.mu.Unlock()
		return provider.Call{}, ErrCallActive
	}
	id := c.cfg.CallID
	if id == "" {
		id = uuid.NewString()
	}
	c.active = id
	call := provider.Call{ID: id, JoinURL: c.cfg.JoinURL}

	if len(c.cfg.Script) > 0 || c.cfg.AutoStart {
		runCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		c.cancel = cancel
		c.done = done
		go c.play(runCtx, id, done)
	}
	c.mu.Unlock()
	return call, nil
}

// Stop cancels the script and reports the call as ended by the customer.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stops++
	id := c.active
	cancel, done := c.cancel, c.done
	c.active = ""
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if id == "" {
		return nil
	}
	c.Emit(provider.Event{Kind: provider.EventCallEnd, CallID: id, Time: time.Now()})
	c.Emit(provider.Event{
		Kind:   provider.EventEndOfCallReport,
		CallID: id,
		Time:   time.Now(),
		Report: &provider.Report{EndedReason: "customer-ended-call", RecordingURL: c.cfg.RecordingURL},
	})
	return nil
}

func (c *Client) play(ctx context.Context, id string, done chan struct{}) {
	defer close(done)
	wait := func() bool {
		t := time.NewTimer(c.cfg.Interval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	if !wait() {
		return
	}
	c.Emit(provider.Event{Kind: provider.EventCallStart, CallID: id, Time: time.Now()})
	for _, line := range c.cfg.Script {
		if !wait() {
			return
		}
		c.Emit(provider.NewMessageEvent(id, lineMessage(line)))
	}
	if len(c.cfg.Script) == 0 {
		return
	}
	if !wait() {
		return
	}

	c.mu.Lock()
	if c.active != id {
		c.mu.Unlock()
		return
	}
	c.active = ""
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	c.Emit(provider.Event{
		Kind:   provider.EventEndOfCallReport,
		CallID: id,
		Time:   time.Now(),
		Report: &provider.Report{
			EndedReason:  c.cfg.EndedReason,
			RecordingURL: c.cfg.RecordingURL,
			Seconds:      float64(len(c.cfg.Script)+2) * c.cfg.Interval.Seconds(),
		},
	})
}

func lineMessage(line Line) provider.Message {
	if line.Role == provider.RoleAssistant {
		return provider.Message{Type: provider.MessageTypeMessage, Role: provider.RoleAssistant, Content: line.Text}
	}
	return provider.Message{Type: provider.MessageTypeTranscript, Role: provider.RoleUser, Text: line.Text}
}
