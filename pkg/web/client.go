package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/univoice/pkg/errorsx"
	"github.com/harunnryd/univoice/pkg/session"
)

// Message types on the page channel.
const (
	TypeSnapshot          = "snapshot"
	TypeMicrophoneRequest = "microphone_request"
	TypeError             = "error"

	TypeStart      = "start"
	TypeStop       = "stop"
	TypeMicrophone = "microphone"
)

// ErrMicrophoneDenied is returned when the page refuses microphone access.
var ErrMicrophoneDenied = errors.New("microphone access denied")

type inbound struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

type outbound struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Message  string            `json:"message,omitempty"`
}

type micReply struct {
	granted bool
	err     string
}

// client is one connected page.
type client struct {
	id     string
	conn   *websocket.Conn
	log    *slog.Logger
	sendCh chan []byte
	mic    chan micReply
	// wake signals that latest holds an unsent snapshot.
	wake chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	latest   []byte
	closed   atomic.Bool
	starting atomic.Bool
}

func newClient(id string, conn *websocket.Conn, log *slog.Logger) *client {
	ctx, cancel := context.WithCancel(context.Background())
	return &client{
		id:     id,
		conn:   conn,
		log:    log,
		sendCh: make(chan []byte, 64),
		mic:    make(chan micReply, 1),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *client) enqueue(msg outbound) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil
	}
	select {
	case c.sendCh <- b:
	default:
		c.log.Debug("client_send_dropped", "client_id", c.id, "type", msg.Type)
	}
	return nil
}

// pushSnapshot replaces any snapshot the write loop has not sent yet.
func (c *client) pushSnapshot(snap session.Snapshot) error {
	b, err := json.Marshal(outbound{Type: TypeSnapshot, Snapshot: &snap})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return nil
	}
	c.latest = b
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *client) takeSnapshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.latest
	c.latest = nil
	return b
}

func (c *client) writeLoop() {
	for {
		var msg []byte
		select {
		case m, ok := <-c.sendCh:
			if !ok {
				return
			}
			msg = m
		case <-c.wake:
			if msg = c.takeSnapshot(); msg == nil {
				continue
			}
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.cancel()
			_ = c.conn.Close()
			return
		}
	}
}

// forward pushes every snapshot until the watch or the client ends.
func (c *client) forward(updates <-chan session.Snapshot) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			_ = c.pushSnapshot(snap)
		}
	}
}

func (c *client) readLoop(s *Server) {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case TypeStart:
			if !c.starting.CompareAndSwap(false, true) {
				continue
			}
			go func() {
				defer c.starting.Store(false)
				s.startCall(c)
			}()
		case TypeStop:
			go s.endCall(c)
		case TypeMicrophone:
			select {
			case c.mic <- micReply{granted: msg.Granted, err: msg.Error}:
			default:
			}
		}
	}
}

// RequestMicrophone asks the page for microphone access and waits for its answer.
func (c *client) RequestMicrophone(ctx context.Context) error {
	select {
	case <-c.mic:
	default:
	}
	if err := c.enqueue(outbound{Type: TypeMicrophoneRequest}); err != nil {
		return err
	}
	select {
	case reply := <-c.mic:
		if reply.granted {
			return nil
		}
		if reply.err != "" {
			return errors.Join(ErrMicrophoneDenied, errors.New(reply.err))
		}
		return ErrMicrophoneDenied
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return context.Canceled
	}
}

func (c *client) sendError(err error) {
	reason, msg := errorsx.Describe(err)
	_ = c.enqueue(outbound{Type: TypeError, Reason: string(reason), Message: msg})
}

func (c *client) close() error {
	c.cancel()
	c.mu.Lock()
	if c.closed.CompareAndSwap(false, true) {
		close(c.sendCh)
	}
	c.mu.Unlock()
	return c.conn.Close()
}
