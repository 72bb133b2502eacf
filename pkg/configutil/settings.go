package configutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeSettings decodes a free-form settings map into out. Keys match the
// mapstructure tags ignoring case, underscores and hyphens, and duration strings
// such as "1500ms" decode into time.Duration fields.
func DecodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		MatchName:        func(key, field string) bool { return normalizeKey(key) == normalizeKey(field) },
	})
	if err != nil {
		return fmt.Errorf("settings decoder: %w", err)
	}
	return decoder.Decode(input)
}

// Load validates input against schema and decodes it into out. section names the
// settings block in error messages.
func Load(section string, input map[string]any, schema Schema, out any) error {
	if err := ValidateSettings(input, schema); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	if err := DecodeSettings(input, out); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	return nil
}

// RequireString ensures a value is present for a required config field.
func RequireString(value, path string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", path)
	}
	return nil
}

// Millis converts a millisecond setting to a duration, using fallback when unset.
func Millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

var keyFolder = strings.NewReplacer("_", "", "-", "")

func normalizeKey(value string) string {
	return keyFolder.Replace(strings.ToLower(value))
}
