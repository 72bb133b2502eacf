package call

import "fmt"

// Status is the lifecycle state of the single call a session can hold.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusCalling
	StatusEnded
)

// String returns the string representation of a Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusCalling:
		return "calling"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if s < StatusIdle || s > StatusEnded {
		return nil, fmt.Errorf("invalid call status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StatusIdle
	case "connecting":
		*s = StatusConnecting
	case "calling":
		*s = StatusCalling
	case "ended":
		*s = StatusEnded
	default:
		return fmt.Errorf("invalid call status %q", string(b))
	}
	return nil
}

// Trigger names the cause of a transition.
type Trigger string

const (
	TriggerStartRequested  Trigger = "start_requested"
	TriggerStartFailed     Trigger = "start_failed"
	TriggerCallStart       Trigger = "call_start"
	TriggerEndRequested    Trigger = "end_requested"
	TriggerCallEnd         Trigger = "call_end"
	TriggerEndOfCallReport Trigger = "end_of_call_report"
	TriggerProviderError   Trigger = "provider_error"
)

// transitions is the complete edge set. Pairs missing from the table are ignored.
var transitions = map[Status]map[Trigger]Status{
	StatusIdle: {
		TriggerStartRequested: StatusConnecting,
	},
	StatusConnecting: {
		TriggerCallStart:     StatusCalling,
		TriggerStartFailed:   StatusIdle,
		TriggerProviderError: StatusIdle,
	},
	StatusCalling: {
		TriggerEndRequested:    StatusEnded,
		TriggerCallEnd:         StatusEnded,
		TriggerEndOfCallReport: StatusEnded,
		TriggerProviderError:   StatusIdle,
	},
	StatusEnded: {
		TriggerStartRequested: StatusConnecting,
	},
}

// Next returns the target of trigger from status, if the edge exists.
func Next(from Status, trigger Trigger) (Status, bool) {
	to, ok := transitions[from][trigger]
	return to, ok
}
