package univoice

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/univoice/pkg/errorsx"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_VAPI_API_KEY", "")
	t.Setenv("UNIVOICE_VAPI_API_KEY", "")
	cfg, err := LoadConfig(LoadOptions{EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vendors.Provider.Provider != "vapi" || cfg.Web.Addr != ":3000" || cfg.Session.DefaultLanguage != "EN" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if !cfg.Privacy.RedactPII || cfg.LogLevel != "info" {
		t.Fatalf("unexpected ambient defaults %+v", cfg)
	}
	sc := cfg.SessionConfig()
	if sc.TickPeriod != time.Second || sc.ConnectTimeout != 30*time.Second || sc.TimeLayout != "3:04:05 PM" {
		t.Fatalf("unexpected session config %+v", sc)
	}
}

func TestLoadConfigFileAndExpansion(t *testing.T) {
	t.Setenv("UNIVOICE_TEST_CALL_ID", "call-from-env")
	dir := t.TempDir()
	path := writeFile(t, dir, "univoice.yaml", `
session:
  assistant_id: asst-file
  timezone: UTC
  connect_timeout_ms: 5000
vendors:
  provider:
    provider: mock
    settings:
      call_id: ${UNIVOICE_TEST_CALL_ID}
      interval_ms: 5
web:
  addr: 127.0.0.1:0
observability:
  artifacts_dir: ${UNIVOICE_TEST_CALL_ID}/artifacts
  retention_days: 7
`)
	cfg, err := LoadConfig(LoadOptions{Path: path, EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.AssistantID != "asst-file" || cfg.Vendors.Provider.Provider != "mock" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if got := cfg.Vendors.Provider.Settings["call_id"]; got != "call-from-env" {
		t.Fatalf("expected expanded setting, got %v", got)
	}
	if cfg.Observability.ArtifactsDir != "call-from-env/artifacts" {
		t.Fatalf("expected expanded artifacts dir, got %q", cfg.Observability.ArtifactsDir)
	}
	if cfg.Retention() != 7*24*time.Hour {
		t.Fatalf("unexpected retention %s", cfg.Retention())
	}
	sc := cfg.SessionConfig()
	if sc.Location == nil || sc.Location.String() != "UTC" || sc.ConnectTimeout != 5*time.Second {
		t.Fatalf("unexpected session config %+v", sc)
	}
}

func TestLoadConfigLegacyEnvironment(t *testing.T) {
	t.Setenv("NEXT_PUBLIC_VAPI_ASSISTANT_ID", "asst-env")
	t.Setenv("NEXT_PUBLIC_VAPI_API_KEY", "key-env")
	cfg, err := LoadConfig(LoadOptions{EnvFiles: []string{}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.AssistantID != "asst-env" {
		t.Fatalf("expected assistant from env, got %q", cfg.Session.AssistantID)
	}
	if cfg.Vendors.Provider.Settings["api_key"] != "key-env" {
		t.Fatalf("expected api key from env, got %v", cfg.Vendors.Provider.Settings)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	const key = "UNIVOICE_SESSION_DEFAULT_LANGUAGE"
	if _, ok := os.LookupEnv(key); ok {
		t.Skipf("%s already set", key)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", key+"=FR\n")

	cfg, err := LoadConfig(LoadOptions{EnvFiles: []string{envFile, filepath.Join(dir, "missing.env")}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Session.DefaultLanguage != "FR" {
		t.Fatalf("expected language from env file, got %q", cfg.Session.DefaultLanguage)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"log_level":        "log_level: loud\n",
		"session.timezone": "session:\n  timezone: Mars/Olympus\n",
		"retention_days":   "observability:\n  retention_days: -1\n",
		"sample_rate":      "observability:\n  transcript_log_sample_rate: 2\n",
	}
	for name, body := range cases {
		path := writeFile(t, dir, strings.ReplaceAll(name, ".", "_")+".yaml", body)
		_, err := LoadConfig(LoadOptions{Path: path, EnvFiles: []string{}})
		if !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
			t.Fatalf("%s: expected config_invalid error, got %v", name, err)
		}
	}
	if _, err := LoadConfig(LoadOptions{Path: filepath.Join(dir, "nope.yaml"), EnvFiles: []string{}}); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
