package provider

import (
	"context"
	"net/http"
)

// Call identifies a call created by a provider. JoinURL, when set, is where the page
// attaches its audio; the provider carries the audio itself.
type Call struct {
	ID      string `json:"id"`
	JoinURL string `json:"joinUrl,omitempty"`
}

// Handler receives provider events.
type Handler func(Event)

// Subscription releases one registered handler. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// Client is the vendor-agnostic boundary to a hosted real-time voice service.
// A client is built once per process with a fixed credential and holds at most one call.
type Client interface {
	Name() string
	// Start asks the provider to open a call with the given assistant. It may fail
	// asynchronously for permission, network or configuration reasons.
	Start(ctx context.Context, assistantID string) (Call, error)
	// Stop requests teardown of the active call. Stopping without a call is a no-op.
	Stop(ctx context.Context) error
	// On registers h for events of kind.
	On(kind EventKind, h Handler) Subscription
}

// WebhookReceiver is implemented by providers that deliver events over HTTP callbacks.
type WebhookReceiver interface {
	WebhookPath() string
	http.Handler
}

// ReadyReporter exposes readiness metadata for startup logging.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
