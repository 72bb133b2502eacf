package configutil

import (
	"sort"
	"strings"
)

// Schema lists the keys a vendor settings block accepts.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// ValidationError reports the keys a settings block got wrong.
type ValidationError struct {
	Missing []string
	Unknown []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	return strings.Join(parts, "; ")
}

// Keys returns every key the schema names.
func (s Schema) Keys() []string {
	keys := make([]string, 0, len(s.Required)+len(s.Optional))
	keys = append(keys, s.Required...)
	keys = append(keys, s.Optional...)
	return keys
}

// ValidateSettings checks input against schema. A required key holding a blank
// string counts as missing. Returns a *ValidationError.
func ValidateSettings(input map[string]any, schema Schema) error {
	allowed := make(map[string]bool, len(schema.Required)+len(schema.Optional))
	for _, k := range schema.Optional {
		allowed[normalizeKey(k)] = false
	}
	for _, k := range schema.Required {
		allowed[normalizeKey(k)] = true
	}

	present := make(map[string]bool, len(input))
	verr := &ValidationError{}
	for k, v := range input {
		nk := normalizeKey(k)
		required, known := allowed[nk]
		if !known && !schema.AllowUnknown {
			verr.Unknown = append(verr.Unknown, k)
		}
		present[nk] = !(required && blank(v))
	}
	for _, k := range schema.Required {
		if !present[normalizeKey(k)] {
			verr.Missing = append(verr.Missing, k)
		}
	}

	if len(verr.Missing) == 0 && len(verr.Unknown) == 0 {
		return nil
	}
	sort.Strings(verr.Missing)
	sort.Strings(verr.Unknown)
	return verr
}

func blank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
