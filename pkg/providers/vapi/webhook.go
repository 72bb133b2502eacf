package vapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/univoice/pkg/errorsx"
	"github.com/harunnryd/univoice/pkg/provider"
)

// serverMessage is the envelope Vapi posts to the server URL.
type serverMessage struct {
	Message struct {
		Type           string  `json:"type"`
		Status         string  `json:"status"`
		EndedReason    string  `json:"endedReason"`
		Role           string  `json:"role"`
		TranscriptType string  `json:"transcriptType"`
		Transcript     string  `json:"transcript"`
		RecordingURL   string  `json:"recordingUrl"`
		Summary        string  `json:"summary"`
		Duration       float64 `json:"durationSeconds"`
		Timestamp      int64   `json:"timestamp"`
		Call           struct {
			ID string `json:"id"`
		} `json:"call"`
		Artifact struct {
			RecordingURL string `json:"recordingUrl"`
		} `json:"artifact"`
	} `json:"message"`
}

func (c *Client) WebhookPath() string { return c.cfg.WebhookPath }

// ServeHTTP receives server messages and emits them as provider events.
func (c *Client) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if c.cfg.WebhookSecret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(c.cfg.WebhookSecret)) != 1 {
			c.log.Warn("vapi_webhook_unauthorized", "reason_code", string(errorsx.ReasonWebhookUnauthorized))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Debug("vapi_webhook_malformed", "error", err.Error())
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if ev, ok := c.translate(msg); ok {
		c.Emit(ev)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte("{}"))
}

// translate maps one server message to a provider event. Messages the session has no
// use for report ok=false.
func (c *Client) translate(msg serverMessage) (provider.Event, bool) {
	m := msg.Message
	callID := m.Call.ID
	if active := c.ActiveCallID(); active != "" && callID != "" && callID != active {
		c.log.Debug("vapi_message_other_call", "type", m.Type, "provider_call_id", callID)
		return provider.Event{}, false
	}
	at := time.Now()
	if m.Timestamp > 0 {
		at = time.UnixMilli(m.Timestamp)
	}

	switch m.Type {
	case "status-update":
		switch m.Status {
		case "in-progress":
			return provider.Event{Kind: provider.EventCallStart, CallID: callID, Time: at}, true
		case "ended":
			c.clearActive(callID)
			if isErrorReason(m.EndedReason) {
				return provider.Event{Kind: provider.EventError, CallID: callID, Time: at, Err: errors.New("vapi: call ended: " + m.EndedReason)}, true
			}
			return provider.Event{Kind: provider.EventCallEnd, CallID: callID, Time: at}, true
		}
	case "end-of-call-report":
		c.clearActive(callID)
		recording := m.RecordingURL
		if recording == "" {
			recording = m.Artifact.RecordingURL
		}
		return provider.Event{
			Kind:   provider.EventEndOfCallReport,
			CallID: callID,
			Time:   at,
			Report: &provider.Report{
				EndedReason:  m.EndedReason,
				RecordingURL: recording,
				Summary:      m.Summary,
				Seconds:      m.Duration,
			},
		}, true
	case "transcript":
		if m.TranscriptType != "" && m.TranscriptType != "final" {
			return provider.Event{}, false
		}
		var pm provider.Message
		switch m.Role {
		case provider.RoleAssistant:
			pm = provider.Message{Type: provider.MessageTypeMessage, Role: provider.RoleAssistant, Content: m.Transcript}
		case provider.RoleUser, "":
			pm = provider.Message{Type: provider.MessageTypeTranscript, Role: provider.RoleUser, Text: m.Transcript}
		default:
			return provider.Event{}, false
		}
		return provider.Event{Kind: provider.EventMessage, CallID: callID, Time: at, Message: &pm}, true
	}
	return provider.Event{}, false
}

// isErrorReason reports ended reasons that describe a provider failure rather than a
// normal hangup, e.g. "pipeline-error-openai-llm-failed".
func isErrorReason(reason string) bool {
	reason = strings.ToLower(reason)
	return strings.Contains(reason, "error") || strings.Contains(reason, "failed")
}
