package vapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/resilience"
)

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{APIKey: "sk-test-123456789", BaseURL: baseURL, RetryBackoffMS: 1, Retries: 2}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestStartCreatesWebCall(t *testing.T) {
	var mu sync.Mutex
	var gotAuth, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"id":"call-1","webCallUrl":"https://join.example/abc","monitor":{"controlUrl":"http://` + r.Host + `/control/call-1"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	got, err := c.Start(context.Background(), "asst-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.ID != "call-1" || got.JoinURL != "https://join.example/abc" {
		t.Fatalf("unexpected call: %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotAuth != "Bearer sk-test-123456789" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPath != "POST /call/web" {
		t.Fatalf("unexpected request %q", gotPath)
	}
	if gotBody["assistantId"] != "asst-1" {
		t.Fatalf("unexpected body %v", gotBody)
	}
	if c.ActiveCallID() != "call-1" {
		t.Fatalf("expected active call")
	}
}

func TestStartRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"call-2"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	got, err := c.Start(context.Background(), "asst-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.ID != "call-2" || calls.Load() != 3 {
		t.Fatalf("expected success on third attempt, got %+v after %d calls", got, calls.Load())
	}
}

func TestStartClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":["assistantId must be a UUID"],"error":"Bad Request"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	_, err := c.Start(context.Background(), "nope")
	if err == nil || !strings.Contains(err.Error(), "assistantId must be a UUID") {
		t.Fatalf("expected provider message in error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}

func TestStartRateLimitOpensCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) { cfg.BreakerThreshold = 1 })
	_, err := c.Start(context.Background(), "asst-1")
	var rl resilience.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rl.RetryAfter.Seconds() != 30 {
		t.Fatalf("expected retry-after 30s, got %s", rl.RetryAfter)
	}
	if _, err := c.Start(context.Background(), "asst-1"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one request, got %d", calls.Load())
	}
}

func TestStopUsesControlURL(t *testing.T) {
	var mu sync.Mutex
	var requests []string
	var controlBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/call/web":
			_, _ = w.Write([]byte(`{"id":"call-1","monitor":{"controlUrl":"http://` + r.Host + `/control/call-1"}}`))
		case "/control/call-1":
			mu.Lock()
			_ = json.NewDecoder(r.Body).Decode(&controlBody)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	if _, err := c.Start(context.Background(), "asst-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 || requests[1] != "POST /control/call-1" {
		t.Fatalf("unexpected requests %v", requests)
	}
	if controlBody["type"] != "end-call" {
		t.Fatalf("unexpected control body %v", controlBody)
	}
}

func TestStopDeletesWithoutControlURL(t *testing.T) {
	var mu sync.Mutex
	var last string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.Method + " " + r.URL.Path
		mu.Unlock()
		if r.URL.Path == "/call/web" {
			_, _ = w.Write([]byte(`{"id":"call-3"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	if _, err := c.Start(context.Background(), "asst-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if last != "DELETE /call/call-3" {
		t.Fatalf("expected delete, got %q", last)
	}
}

func TestReadyFieldsRedactKey(t *testing.T) {
	c := newTestClient(t, "", nil)
	fields := c.ReadyFields()
	if fields["api_key"] == "sk-test-123456789" {
		t.Fatalf("api key must be redacted")
	}
	if fields["base_url"] != DefaultBaseURL || c.WebhookPath() != DefaultWebhookPath {
		t.Fatalf("unexpected defaults: %v %s", fields, c.WebhookPath())
	}
	var _ provider.WebhookReceiver = c
	var _ provider.ReadyReporter = c
}
