package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/univoice/pkg/configutil"
	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/redact"
	"github.com/harunnryd/univoice/pkg/resilience"
)

const (
	DefaultBaseURL     = "https://api.vapi.ai"
	DefaultWebhookPath = "/vapi/events"
	secretHeader       = "X-Vapi-Secret"
)

type Config struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	WebhookPath       string `mapstructure:"webhook_path"`
	WebhookSecret     string `mapstructure:"webhook_secret"`
	TimeoutMS         int    `mapstructure:"timeout_ms"`
	Retries           int    `mapstructure:"retries"`
	RetryBackoffMS    int    `mapstructure:"retry_backoff_ms"`
	BreakerThreshold  int    `mapstructure:"breaker_threshold"`
	BreakerCooldownMS int    `mapstructure:"breaker_cooldown_ms"`
}

// Schema lists the settings keys accepted under vendors.provider.settings.
var Schema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"base_url", "webhook_path", "webhook_secret", "timeout_ms", "retries", "retry_backoff_ms", "breaker_threshold", "breaker_cooldown_ms"},
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.WebhookPath == "" {
		c.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		c.WebhookPath = "/" + c.WebhookPath
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 10000
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.RetryBackoffMS <= 0 {
		c.RetryBackoffMS = 250
	}
	return c
}

type activeCall struct {
	id         string
	controlURL string
}

// Client talks to the Vapi REST API and receives its server messages on a webhook.
type Client struct {
	provider.Emitter

	cfg     Config
	http    *http.Client
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	log     *slog.Logger

	mu     sync.Mutex
	active activeCall
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := configutil.RequireString(cfg.APIKey, "vendors.provider.settings.api_key"); err != nil {
		return nil, err
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		retry:   resilience.NewRetryPolicy(cfg.Retries, time.Duration(cfg.RetryBackoffMS)*time.Millisecond),
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerCooldownMS)*time.Millisecond),
		log:     logging.NewComponentLogger(logger, "vapi"),
	}, nil
}

func (c *Client) Name() string { return "vapi" }

func (c *Client) ReadyFields() map[string]any {
	return map[string]any{
		"base_url":       c.cfg.BaseURL,
		"api_key":        redact.Secret(c.cfg.APIKey),
		"webhook_path":   c.cfg.WebhookPath,
		"webhook_secret": c.cfg.WebhookSecret != "",
	}
}

type webCallRequest struct {
	AssistantID string `json:"assistantId"`
}

type webCallResponse struct {
	ID         string `json:"id"`
	WebCallURL string `json:"webCallUrl"`
	Monitor    struct {
		ControlURL string `json:"controlUrl"`
		ListenURL  string `json:"listenUrl"`
	} `json:"monitor"`
}

// Start creates a web call for the assistant.
func (c *Client) Start(ctx context.Context, assistantID string) (provider.Call, error) {
	if strings.TrimSpace(assistantID) == "" {
		return provider.Call{}, errors.New("vapi: assistant id is required")
	}
	if !c.breaker.Allow() {
		c.log.Warn("vapi_start_refused", "breaker", c.breaker.State().String())
		return provider.Call{}, resilience.ErrCircuitOpen
	}
	var resp webCallResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		return c.send(ctx, http.MethodPost, c.cfg.BaseURL+"/call/web", webCallRequest{AssistantID: assistantID}, &resp)
	})
	if err != nil {
		c.breaker.OnError(err)
		return provider.Call{}, err
	}
	c.breaker.OnSuccess()
	if resp.ID == "" {
		return provider.Call{}, errors.New("vapi: response without call id")
	}

	c.mu.Lock()
	c.active = activeCall{id: resp.ID, controlURL: resp.Monitor.ControlURL}
	c.mu.Unlock()
	c.log.Info("vapi_call_created", "provider_call_id", resp.ID)
	return provider.Call{ID: resp.ID, JoinURL: resp.WebCallURL}, nil
}

// Stop ends the active call through its control URL, or deletes it when no control URL
// was issued.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.active = activeCall{}
	c.mu.Unlock()
	if active.id == "" {
		return nil
	}
	var err error
	if active.controlURL != "" {
		err = c.send(ctx, http.MethodPost, active.controlURL, map[string]string{"type": "end-call"}, nil)
	} else {
		err = c.send(ctx, http.MethodDelete, c.cfg.BaseURL+"/call/"+active.id, nil, nil)
	}
	if err != nil {
		c.log.Warn("vapi_stop_failed", "provider_call_id", active.id, "error", err.Error())
		return err
	}
	c.log.Info("vapi_call_stopped", "provider_call_id", active.id)
	return nil
}

// ActiveCallID returns the id of the call created by the last successful Start.
func (c *Client) ActiveCallID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.id
}

func (c *Client) clearActive(id string) {
	c.mu.Lock()
	if c.active.id == id {
		c.active = activeCall{}
	}
	c.mu.Unlock()
}

func (c *Client) send(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return resilience.Permanent(err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return resilience.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return resilience.Permanent(err)
		}
		return fmt.Errorf("vapi: %s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.log.Error("vapi_rate_limited", "status", resp.Status)
		return resilience.RateLimitError{
			Provider:   "vapi",
			Message:    "vapi: " + resp.Status,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return fmt.Errorf("vapi: %s %s: %s", method, req.URL.Path, statusMessage(resp.Status, raw))
	case resp.StatusCode >= 400:
		return resilience.Permanent(fmt.Errorf("vapi: %s %s: %s", method, req.URL.Path, statusMessage(resp.Status, raw)))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resilience.Permanent(fmt.Errorf("vapi: decode response: %w", err))
	}
	return nil
}

func statusMessage(status string, raw []byte) string {
	var body struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch m := body.Message.(type) {
		case string:
			if m != "" {
				return status + ": " + m
			}
		case []any:
			parts := make([]string, 0, len(m))
			for _, p := range m {
				parts = append(parts, fmt.Sprint(p))
			}
			if len(parts) > 0 {
				return status + ": " + strings.Join(parts, "; ")
			}
		}
		if body.Error != "" {
			return status + ": " + body.Error
		}
	}
	return status
}

func retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
