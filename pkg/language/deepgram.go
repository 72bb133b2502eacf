package language

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/univoice/pkg/configutil"
	"github.com/harunnryd/univoice/pkg/logging"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// ErrNoLanguage is returned when the recording yields no detected language.
var ErrNoLanguage = errors.New("language: no language detected")

type Config struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Schema lists the settings keys accepted under language.settings.
var Schema = configutil.Schema{
	Required: []string{"api_key"},
	Optional: []string{"model", "timeout_ms"},
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 30000
	}
	return c
}

type detectFunc func(ctx context.Context, recordingURL string) (string, error)

// DeepgramDetector identifies the spoken language of a call recording with a Deepgram
// pre-recorded transcription.
type DeepgramDetector struct {
	cfg    Config
	detect detectFunc
	logger *slog.Logger
}

func NewDeepgramDetector(cfg Config, logger *slog.Logger) (*DeepgramDetector, error) {
	cfg = cfg.withDefaults()
	if err := configutil.RequireString(cfg.APIKey, "language.settings.api_key"); err != nil {
		return nil, err
	}
	d := &DeepgramDetector{cfg: cfg, logger: logging.NewComponentLogger(logger, "deepgram_language")}

	rest := client.NewREST(cfg.APIKey, &interfaces.ClientOptions{})
	dg := api.New(rest)
	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:          cfg.Model,
		DetectLanguage: true,
	}
	d.detect = func(ctx context.Context, recordingURL string) (string, error) {
		res, err := dg.FromURL(ctx, recordingURL, opts)
		if err != nil {
			return "", err
		}
		if res == nil || res.Results == nil {
			return "", ErrNoLanguage
		}
		for _, ch := range res.Results.Channels {
			if ch.DetectedLanguage != "" {
				return ch.DetectedLanguage, nil
			}
		}
		return "", ErrNoLanguage
	}
	return d, nil
}

// DetectLanguage returns the upper-cased primary language subtag, e.g. "ES" for "es-419".
func (d *DeepgramDetector) DetectLanguage(ctx context.Context, recordingURL string) (string, error) {
	if strings.TrimSpace(recordingURL) == "" {
		return "", errors.New("language: recording url is required")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(d.cfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	start := time.Now()
	raw, err := d.detect(ctx, recordingURL)
	if err != nil {
		d.logger.Warn("language_detect_error", "error", err.Error())
		return "", fmt.Errorf("deepgram detect language: %w", err)
	}
	code := Normalize(raw)
	if code == "" {
		return "", ErrNoLanguage
	}
	d.logger.Info("language_detected",
		slog.String("language", code),
		slog.String("model", d.cfg.Model),
		slog.Duration("took", time.Since(start)))
	return code, nil
}

// Normalize turns a BCP-47 tag into the badge form: the primary subtag upper-cased.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return strings.ToUpper(tag)
}
