package session

import "errors"

var (
	// ErrMissingAssistant is returned by Start when no assistant identifier is configured.
	ErrMissingAssistant = errors.New("assistant identifier is not configured")
	// ErrCallActive is returned by Start while a call is connecting or in progress.
	ErrCallActive = errors.New("a call is already active")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
	// ErrConnectTimeout reports a provider that accepted the call but never started it.
	ErrConnectTimeout = errors.New("provider did not start the call in time")
)
