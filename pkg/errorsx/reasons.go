package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfigMissingAssistant ReasonCode = "config_missing_assistant"
	ReasonConfigInvalid          ReasonCode = "config_invalid"

	ReasonMicrophoneDenied  ReasonCode = "microphone_denied"
	ReasonMicrophoneTimeout ReasonCode = "microphone_timeout"

	ReasonProviderStart     ReasonCode = "provider_start"
	ReasonProviderStop      ReasonCode = "provider_stop"
	ReasonProviderRuntime   ReasonCode = "provider_runtime"
	ReasonProviderRateLimit ReasonCode = "provider_rate_limit"
	ReasonProviderCircuit   ReasonCode = "provider_circuit_open"
	ReasonConnectTimeout    ReasonCode = "connect_timeout"

	ReasonLanguageDetect ReasonCode = "language_detect"

	ReasonWebhookUnauthorized ReasonCode = "webhook_unauthorized"
	ReasonInvalidTransition   ReasonCode = "invalid_transition"
	ReasonSessionClosed       ReasonCode = "session_closed"
)

// UserFacing reports whether errors with this reason are shown to the person on the page.
func (r ReasonCode) UserFacing() bool {
	switch r {
	case ReasonConfigMissingAssistant, ReasonMicrophoneDenied, ReasonMicrophoneTimeout,
		ReasonProviderStart, ReasonProviderRateLimit, ReasonProviderCircuit,
		ReasonProviderRuntime, ReasonConnectTimeout:
		return true
	default:
		return false
	}
}
