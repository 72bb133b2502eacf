package metrics

import "time"

// Event names recorded by the call session.
const (
	EventStartRequested   = "call_start_requested"
	EventStartFailed      = "call_start_failed"
	EventCallStarted      = "call_started"
	EventCallEnded        = "call_ended"
	EventCallError        = "call_error"
	EventTranscriptEntry  = "transcript_entry"
	EventLanguageDetected = "language_detected"
)

// Tag keys shared by recorders and observers.
const (
	TagCallID   = "call_id"
	TagProvider = "provider"
	TagReason   = "reason"
	TagSpeaker  = "speaker"
	TagTrigger  = "trigger"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
