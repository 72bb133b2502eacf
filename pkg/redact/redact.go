package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

type rule struct {
	label string
	re    *regexp.Regexp
	// match, when set, decides whether a candidate is really sensitive.
	match func(string) bool
}

// Rules run in order; cards go first so their digits are not taken for a phone number.
var rules = []rule{
	{label: "[REDACTED_CARD]", re: regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`), match: luhn},
	{label: "[REDACTED_EMAIL]", re: regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)},
	{label: "[REDACTED_PHONE]", re: regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d\b`)},
}

// SetEnabled toggles PII redaction of transcript text.
func SetEnabled(v bool) { enabled.Store(v) }

// Enabled reports whether Text rewrites its input.
func Enabled() bool { return enabled.Load() }

// Text replaces card numbers, email addresses and phone numbers with a label.
// It returns in unchanged while redaction is off.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := in
	for _, r := range rules {
		out = r.re.ReplaceAllStringFunc(out, func(m string) string {
			if r.match != nil && !r.match(m) {
				return m
			}
			return r.label
		})
	}
	return out
}

// Secret masks a credential for logging, keeping the last four characters.
// It ignores the redaction toggle.
func Secret(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	if len(in) <= 8 {
		return "****"
	}
	return "****" + in[len(in)-4:]
}

// luhn checks the card-number checksum over the digits of s.
func luhn(s string) bool {
	sum, n := 0, 0
	for i := len(s) - 1; i >= 0; i-- {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int(c - '0')
		if n%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		n++
	}
	return n >= 13 && sum%10 == 0
}
