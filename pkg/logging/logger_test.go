package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range cases {
		got, ok := ParseLevel(in)
		if !ok || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be reported")
	}
}

func TestInitLoggerJSONWithComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	logger := initLogger(&buf, Config{Level: "debug", Format: "json"})
	NewComponentLogger(logger, "session").Debug("call_started", "call_id", "c1")

	out := buf.String()
	if !strings.Contains(out, `"component":"session"`) {
		t.Fatalf("expected component attr, got %s", out)
	}
	if !strings.Contains(out, `"msg":"call_started"`) {
		t.Fatalf("expected message, got %s", out)
	}
}

func TestInitLoggerWarnsOnBadFormat(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	initLogger(&buf, Config{Level: "info", Format: "xml"})
	if !strings.Contains(buf.String(), "invalid log format") {
		t.Fatalf("expected warning, got %s", buf.String())
	}
}
