package univoice

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/univoice/pkg/configutil"
	"github.com/harunnryd/univoice/pkg/language"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/providers/mock"
	"github.com/harunnryd/univoice/pkg/providers/vapi"
	"github.com/harunnryd/univoice/pkg/session"
)

type ClientFactory func(settings map[string]any, logger *slog.Logger) (provider.Client, error)
type DetectorFactory func(settings map[string]any, logger *slog.Logger) (session.LanguageDetector, error)

// ProviderRegistry maps vendor names from config to constructors.
type ProviderRegistry struct {
	clients   map[string]ClientFactory
	detectors map[string]DetectorFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		clients:   make(map[string]ClientFactory),
		detectors: make(map[string]DetectorFactory),
	}
}

// DefaultRegistry knows the vapi and mock clients and the deepgram detector.
func DefaultRegistry() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterClient("vapi", newVapiClient)
	r.RegisterClient("mock", newMockClient)
	r.RegisterDetector("deepgram", newDeepgramDetector)
	return r
}

func (r *ProviderRegistry) RegisterClient(name string, factory ClientFactory) {
	r.clients[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterDetector(name string, factory DetectorFactory) {
	r.detectors[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildClient(vc VendorConfig, logger *slog.Logger) (provider.Client, error) {
	fn := r.clients[normalizeName(vc.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("call provider not registered: %s", vc.Provider)
	}
	return fn(vc.Settings, logger)
}

// BuildDetector returns nil without error when no language provider is configured.
func (r *ProviderRegistry) BuildDetector(vc VendorConfig, logger *slog.Logger) (session.LanguageDetector, error) {
	name := normalizeName(vc.Provider)
	if name == "" || name == "none" {
		return nil, nil
	}
	fn := r.detectors[name]
	if fn == nil {
		return nil, fmt.Errorf("language provider not registered: %s", vc.Provider)
	}
	return fn(vc.Settings, logger)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newVapiClient(settings map[string]any, logger *slog.Logger) (provider.Client, error) {
	var cfg vapi.Config
	if err := configutil.Load("vendors.provider.settings", settings, vapi.Schema, &cfg); err != nil {
		return nil, err
	}
	return vapi.New(cfg, logger)
}

// newMockClient plays the demo script unless the settings bring their own.
func newMockClient(settings map[string]any, logger *slog.Logger) (provider.Client, error) {
	var cfg mock.Config
	if err := configutil.Load("vendors.provider.settings", settings, mock.Schema, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Script) == 0 && !cfg.AutoStart {
		cfg.Script = mock.DemoScript
	}
	return mock.NewClient(cfg), nil
}

func newDeepgramDetector(settings map[string]any, logger *slog.Logger) (session.LanguageDetector, error) {
	var cfg language.Config
	if err := configutil.Load("language.settings", settings, language.Schema, &cfg); err != nil {
		return nil, err
	}
	return language.NewDeepgramDetector(cfg, logger)
}
