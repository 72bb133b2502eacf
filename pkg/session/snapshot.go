package session

import (
	"time"

	"github.com/harunnryd/univoice/pkg/call"
	"github.com/harunnryd/univoice/pkg/transcript"
)

// Button actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// Button describes the single primary control of the page.
type Button struct {
	Label    string `json:"label"`
	Action   string `json:"action,omitempty"`
	Disabled bool   `json:"disabled"`
}

// ButtonFor returns the control for status.
func ButtonFor(status call.Status) Button {
	switch status {
	case call.StatusConnecting:
		return Button{Label: "Connecting…", Disabled: true}
	case call.StatusCalling:
		return Button{Label: "End Call", Action: ActionStop}
	default:
		return Button{Label: "Start Call", Action: ActionStart}
	}
}

// ErrorInfo is the last user-facing failure.
type ErrorInfo struct {
	Reason  string    `json:"reason"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Snapshot is the presentation view of the session at one point in time.
type Snapshot struct {
	Version         uint64             `json:"version"`
	Status          call.Status        `json:"status"`
	CallID          string             `json:"callId,omitempty"`
	JoinURL         string             `json:"joinUrl,omitempty"`
	StartedAt       *time.Time         `json:"startedAt,omitempty"`
	DurationSeconds int                `json:"durationSeconds"`
	Duration        string             `json:"duration"`
	ShowDuration    bool               `json:"showDuration"`
	Language        string             `json:"language"`
	Transcript      []transcript.Entry `json:"transcript"`
	Button          Button             `json:"button"`
	LastError       *ErrorInfo         `json:"lastError,omitempty"`
}
