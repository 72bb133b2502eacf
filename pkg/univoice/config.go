package univoice

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/harunnryd/univoice/pkg/configutil"
	"github.com/harunnryd/univoice/pkg/errorsx"
	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/session"
	"github.com/harunnryd/univoice/pkg/web"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "UNIVOICE"

type Config struct {
	Session       SessionConfig       `mapstructure:"session"`
	Web           web.Config          `mapstructure:"web"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Language      VendorConfig        `mapstructure:"language"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
}

type SessionConfig struct {
	AssistantID         string `mapstructure:"assistant_id"`
	DefaultLanguage     string `mapstructure:"default_language"`
	TickMS              int    `mapstructure:"tick_ms"`
	ConnectTimeoutMS    int    `mapstructure:"connect_timeout_ms"`
	MicrophoneTimeoutMS int    `mapstructure:"microphone_timeout_ms"`
	DetectTimeoutMS     int    `mapstructure:"detect_timeout_ms"`
	DrainTimeoutMS      int    `mapstructure:"drain_timeout_ms"`
	TimeLayout          string `mapstructure:"time_layout"`
	// Timezone is an IANA name used for transcript timestamps. Empty means local time.
	Timezone string `mapstructure:"timezone"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	Provider VendorConfig `mapstructure:"provider"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
	// ObserverBuffer sizes the async observer queue.
	ObserverBuffer int `mapstructure:"observer_buffer"`
	// TranscriptLogSampleRate is the share of transcript entries written to the log.
	TranscriptLogSampleRate float64 `mapstructure:"transcript_log_sample_rate"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

// LoadOptions controls where LoadConfig looks.
type LoadOptions struct {
	// Path is a YAML config file. Empty means defaults and environment only.
	Path string
	// EnvFiles are loaded into the environment when they exist. Variables already
	// set are kept. Nil means ".env".
	EnvFiles []string
}

// LoadConfig reads defaults, the optional config file and the environment.
func LoadConfig(opts LoadOptions) (Config, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("session.assistant_id", envPrefix+"_SESSION_ASSISTANT_ID", "NEXT_PUBLIC_VAPI_ASSISTANT_ID")
	_ = v.BindEnv("vapi_api_key", envPrefix+"_VAPI_API_KEY", "NEXT_PUBLIC_VAPI_API_KEY")
	_ = v.BindEnv("deepgram_api_key", envPrefix+"_DEEPGRAM_API_KEY", "DEEPGRAM_API_KEY")

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	applyCredentials(&cfg, v.GetString("vapi_api_key"), v.GetString("deepgram_api_key"))

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfigInvalid)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.assistant_id", "")
	v.SetDefault("session.default_language", "EN")
	v.SetDefault("session.tick_ms", 1000)
	v.SetDefault("session.connect_timeout_ms", 30000)
	v.SetDefault("session.microphone_timeout_ms", 30000)
	v.SetDefault("session.detect_timeout_ms", 45000)
	v.SetDefault("session.drain_timeout_ms", 10000)
	v.SetDefault("session.time_layout", "3:04:05 PM")
	v.SetDefault("session.timezone", "")
	v.SetDefault("web.addr", ":3000")
	v.SetDefault("web.ws_path", "/ws")
	v.SetDefault("web.allow_any_origin", false)
	v.SetDefault("web.allowed_origins", []string{})
	v.SetDefault("web.stop_timeout_ms", 10000)
	v.SetDefault("vendors.provider.provider", "vapi")
	v.SetDefault("language.provider", "")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.observer_buffer", 512)
	v.SetDefault("observability.transcript_log_sample_rate", 1.0)
	v.SetDefault("privacy.redact_pii", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// applyCredentials fills vendor api keys from the environment when the settings
// block leaves them out.
func applyCredentials(cfg *Config, vapiKey, deepgramKey string) {
	fill := func(vc *VendorConfig, name, key string) {
		if !strings.EqualFold(strings.TrimSpace(vc.Provider), name) || strings.TrimSpace(key) == "" {
			return
		}
		if vc.Settings == nil {
			vc.Settings = make(map[string]any)
		}
		if s, _ := vc.Settings["api_key"].(string); strings.TrimSpace(s) == "" {
			vc.Settings["api_key"] = key
		}
	}
	fill(&cfg.Vendors.Provider, "vapi", vapiKey)
	fill(&cfg.Language, "deepgram", deepgramKey)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.Provider.Provider) == "" {
		return errors.New("vendors.provider.provider is required")
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not supported", c.LogLevel)
	}
	if c.Session.Timezone != "" {
		if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
			return fmt.Errorf("session.timezone: %w", err)
		}
	}
	if c.Observability.RetentionDays < 0 {
		return errors.New("observability.retention_days must not be negative")
	}
	if r := c.Observability.TranscriptLogSampleRate; r < 0 || r > 1 {
		return fmt.Errorf("observability.transcript_log_sample_rate %v must be within [0, 1]", r)
	}
	return nil
}

// SessionConfig converts the session block to session.Config.
func (c Config) SessionConfig() session.Config {
	var loc *time.Location
	if c.Session.Timezone != "" {
		loc, _ = time.LoadLocation(c.Session.Timezone)
	}
	return session.Config{
		AssistantID:       c.Session.AssistantID,
		DefaultLanguage:   c.Session.DefaultLanguage,
		TickPeriod:        configutil.Millis(c.Session.TickMS, time.Second),
		ConnectTimeout:    time.Duration(c.Session.ConnectTimeoutMS) * time.Millisecond,
		MicrophoneTimeout: configutil.Millis(c.Session.MicrophoneTimeoutMS, 30*time.Second),
		DetectTimeout:     configutil.Millis(c.Session.DetectTimeoutMS, 45*time.Second),
		TimeLayout:        c.Session.TimeLayout,
		Location:          loc,
	}
}

// Retention returns the artifact max age, zero when retention is off.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Observability.RetentionDays) * 24 * time.Hour
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.Provider.Settings = expandSettings(cfg.Vendors.Provider.Settings)
	cfg.Language.Settings = expandSettings(cfg.Language.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if !v.IsNil() {
			expandValue(v.Elem())
		}
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
