package errorsx

import (
	"errors"
)

// Error tags a cause with the reason the page and the metrics report.
type Error struct {
	Reason ReasonCode
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason wins, so wrapping an already
// tagged error returns it unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if _, ok := find(err); ok {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

// Reason returns the tag on err, or ReasonUnknown.
func Reason(err error) ReasonCode {
	if e, ok := find(err); ok {
		return e.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

const genericMessage = "Something went wrong. Please try again."

// Describe returns the reason and the text to show on the page. Causes behind
// operator-only reasons are replaced with a generic message.
func Describe(err error) (ReasonCode, string) {
	if err == nil {
		return ReasonUnknown, ""
	}
	reason := Reason(err)
	if !reason.UserFacing() {
		return reason, genericMessage
	}
	return reason, err.Error()
}

func find(err error) (*Error, bool) {
	var e *Error
	if err == nil || !errors.As(err, &e) {
		return nil, false
	}
	return e, true
}
