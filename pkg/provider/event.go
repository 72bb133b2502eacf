package provider

import (
	"encoding/json"
	"time"
)

// EventKind names one of the event streams a provider emits.
type EventKind string

const (
	EventCallStart       EventKind = "call-start"
	EventCallEnd         EventKind = "call-end"
	EventEndOfCallReport EventKind = "end-of-call-report"
	EventError           EventKind = "error"
	EventMessage         EventKind = "message"
)

// Kinds lists every event kind in subscription order.
var Kinds = []EventKind{EventCallStart, EventCallEnd, EventEndOfCallReport, EventError, EventMessage}

// Message type values the transcript understands. Providers may emit others.
const (
	MessageTypeTranscript = "transcript"
	MessageTypeMessage    = "message"
)

// Roles carried by messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a conversational payload delivered with EventMessage.
type Message struct {
	Type string `json:"type"`
	// Role of the speaker for "message" payloads and for transcripts when known.
	Role string `json:"role,omitempty"`
	// Text is the recognized speech of a "transcript" payload.
	Text string `json:"text,omitempty"`
	// Content is the generated reply of a "message" payload.
	Content string `json:"content,omitempty"`
	// Raw keeps the provider payload for forward compatibility.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Report summarizes a finished call.
type Report struct {
	EndedReason  string  `json:"endedReason,omitempty"`
	RecordingURL string  `json:"recordingUrl,omitempty"`
	Summary      string  `json:"summary,omitempty"`
	Seconds      float64 `json:"durationSeconds,omitempty"`
}

// Event is one callback delivered by a provider.
type Event struct {
	Kind    EventKind
	CallID  string
	Time    time.Time
	Message *Message
	Report  *Report
	Err     error
}

// NewMessageEvent builds an EventMessage stamped with the current time.
func NewMessageEvent(callID string, msg Message) Event {
	return Event{Kind: EventMessage, CallID: callID, Time: time.Now(), Message: &msg}
}

// NewErrorEvent builds an EventError stamped with the current time.
func NewErrorEvent(callID string, err error) Event {
	return Event{Kind: EventError, CallID: callID, Time: time.Now(), Err: err}
}
