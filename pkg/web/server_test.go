package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harunnryd/univoice/pkg/call"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/providers/mock"
	"github.com/harunnryd/univoice/pkg/session"
)

type stubWebhook struct {
	hits atomic.Int32
}

func (s *stubWebhook) WebhookPath() string { return "/hooks/test" }

func (s *stubWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	w.WriteHeader(http.StatusAccepted)
}

type fixture struct {
	srv    *httptest.Server
	web    *Server
	sess   *session.Session
	client *mock.Client
}

func newFixture(t *testing.T, cfg Config, webhooks ...provider.WebhookReceiver) *fixture {
	t.Helper()
	client := mock.NewClient(mock.Config{CallID: "call-1", JoinURL: "https://join.example/call-1"})
	sess, err := session.New(session.Options{
		Config: session.Config{AssistantID: "asst-1", MicrophoneTimeout: time.Second},
		Client: client,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	w, err := New(Options{
		Config:     cfg,
		Controller: sess,
		Webhooks:   webhooks,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("univoice_call_events_total 0\n"))
		}),
	})
	if err != nil {
		t.Fatalf("web: %v", err)
	}
	srv := httptest.NewServer(w.Handler())
	t.Cleanup(func() {
		srv.Close()
		w.closeClients()
		_ = sess.Close()
	})
	return &fixture{srv: srv, web: w, sess: sess, client: client}
}

func (f *fixture) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(outbound) bool) outbound {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg outbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if match(msg) {
			return msg
		}
	}
}

func snapshotWith(status call.Status) func(outbound) bool {
	return func(m outbound) bool {
		return m.Type == TypeSnapshot && m.Snapshot != nil && m.Snapshot.Status == status
	}
}

func TestCallRoundTrip(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.dial(t, nil)

	first := readUntil(t, conn, func(m outbound) bool { return m.Type == TypeSnapshot })
	if first.Snapshot.Status != call.StatusIdle || first.Snapshot.Button.Label != "Start Call" {
		t.Fatalf("unexpected first snapshot %+v", first.Snapshot)
	}

	if err := conn.WriteJSON(inbound{Type: TypeStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, conn, func(m outbound) bool { return m.Type == TypeMicrophoneRequest })
	if err := conn.WriteJSON(inbound{Type: TypeMicrophone, Granted: true}); err != nil {
		t.Fatalf("write microphone: %v", err)
	}

	connecting := readUntil(t, conn, func(m outbound) bool {
		return m.Type == TypeSnapshot && m.Snapshot.Status == call.StatusConnecting && m.Snapshot.JoinURL != ""
	})
	if !connecting.Snapshot.Button.Disabled {
		t.Fatalf("expected disabled button while connecting")
	}

	f.client.Emit(provider.Event{Kind: provider.EventCallStart, CallID: "call-1"})
	readUntil(t, conn, snapshotWith(call.StatusCalling))

	f.client.Emit(provider.NewMessageEvent("call-1", provider.Message{Type: provider.MessageTypeTranscript, Text: "Hello"}))
	withEntry := readUntil(t, conn, func(m outbound) bool {
		return m.Type == TypeSnapshot && len(m.Snapshot.Transcript) == 1
	})
	if withEntry.Snapshot.Transcript[0].Text != "Hello" {
		t.Fatalf("unexpected transcript %+v", withEntry.Snapshot.Transcript)
	}

	if err := conn.WriteJSON(inbound{Type: TypeStop}); err != nil {
		t.Fatalf("write stop: %v", err)
	}
	ended := readUntil(t, conn, snapshotWith(call.StatusEnded))
	if ended.Snapshot.ShowDuration || ended.Snapshot.Button.Label != "Start Call" {
		t.Fatalf("unexpected ended snapshot %+v", ended.Snapshot)
	}
	deadline := time.Now().Add(2 * time.Second)
	for f.client.Stops() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if f.client.Stops() != 1 {
		t.Fatalf("expected provider stop, got %d", f.client.Stops())
	}
}

func TestMicrophoneDeniedReportsError(t *testing.T) {
	f := newFixture(t, Config{})
	conn := f.dial(t, nil)
	readUntil(t, conn, func(m outbound) bool { return m.Type == TypeSnapshot })

	if err := conn.WriteJSON(inbound{Type: TypeStart}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, conn, func(m outbound) bool { return m.Type == TypeMicrophoneRequest })
	if err := conn.WriteJSON(inbound{Type: TypeMicrophone, Granted: false, Error: "NotAllowedError"}); err != nil {
		t.Fatalf("write microphone: %v", err)
	}
	msg := readUntil(t, conn, func(m outbound) bool { return m.Type == TypeError })
	if msg.Reason != "microphone_denied" || !strings.Contains(msg.Message, "NotAllowedError") {
		t.Fatalf("unexpected error message %+v", msg)
	}
	if f.sess.Status() != call.StatusIdle {
		t.Fatalf("expected idle, got %s", f.sess.Status())
	}
	if len(f.client.Starts()) != 0 {
		t.Fatalf("provider must not start")
	}
}

func TestOriginCheck(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"https://app.example"}})
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	if err == nil {
		t.Fatalf("expected rejected origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}

	conn := f.dial(t, http.Header{"Origin": []string{"https://app.example"}})
	readUntil(t, conn, func(m outbound) bool { return m.Type == TypeSnapshot })
}

func TestStaticRoutes(t *testing.T) {
	hook := &stubWebhook{}
	f := newFixture(t, Config{}, hook)

	resp, err := http.Get(f.srv.URL + "/")
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Start Call") || !strings.Contains(string(body), "Disclaimer:") {
		t.Fatalf("unexpected page %d: %s", resp.StatusCode, body)
	}

	for path, want := range map[string]int{"/app.js": http.StatusOK, "/health": http.StatusOK, "/metrics": http.StatusOK} {
		resp, err := http.Get(f.srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Fatalf("%s: expected %d, got %d", path, want, resp.StatusCode)
		}
	}

	resp, err = http.Post(f.srv.URL+"/hooks/test", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || hook.hits.Load() != 1 {
		t.Fatalf("webhook not mounted: %d hits=%d", resp.StatusCode, hook.hits.Load())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	client := mock.NewClient(mock.Config{})
	sess, err := session.New(session.Options{Config: session.Config{AssistantID: "a"}, Client: client})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer sess.Close()
	w, err := New(Options{Config: Config{Addr: "127.0.0.1:0"}, Controller: sess})
	if err != nil {
		t.Fatalf("web: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatalf("run did not return")
	}
}

func TestNewRequiresController(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without controller")
	}
}
