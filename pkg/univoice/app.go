package univoice

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/harunnryd/univoice/pkg/configutil"
	"github.com/harunnryd/univoice/pkg/logging"
	"github.com/harunnryd/univoice/pkg/metrics"
	"github.com/harunnryd/univoice/pkg/observers"
	"github.com/harunnryd/univoice/pkg/provider"
	"github.com/harunnryd/univoice/pkg/redact"
	"github.com/harunnryd/univoice/pkg/runner"
	"github.com/harunnryd/univoice/pkg/session"
	"github.com/harunnryd/univoice/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type AppOptions struct {
	// Registry resolves vendor names. Nil means DefaultRegistry.
	Registry *ProviderRegistry
	Logger   *slog.Logger
	// Banner receives the startup banner. Nil disables it.
	Banner io.Writer
}

// App wires one call session to its provider, observers and page server.
type App struct {
	cfg      Config
	log      *slog.Logger
	metrics  *prometheus.Registry
	async    *metrics.AsyncObserver
	timeline *observers.TimelineObserver
	client   provider.Client
	session  *session.Session
	web      *web.Server
	runner   *runner.LifecycleRunner
}

func NewApp(cfg Config, opts AppOptions) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	client, err := registry.BuildClient(cfg.Vendors.Provider, log)
	if err != nil {
		return nil, err
	}
	detector, err := registry.BuildDetector(cfg.Language, log)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: logging.NewComponentLogger(log, "app"), client: client}
	a.metrics = prometheus.NewRegistry()
	a.metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metricsLog := logging.NewComponentLogger(log, "metrics")
	sinks := []metrics.Observer{
		metrics.NewSamplingObserver(observers.NewLoggerObserver(metricsLog), cfg.Observability.TranscriptLogSampleRate, metrics.EventTranscriptEntry),
		observers.NewLatencyObserver(metricsLog, a.metrics),
		observers.NewPrometheusObserver(a.metrics),
	}
	if cfg.Observability.ArtifactsDir != "" {
		a.timeline = observers.NewTimelineObserver(cfg.Observability.ArtifactsDir)
		sinks = append(sinks, a.timeline)
	}
	a.async = metrics.NewAsyncObserver(observers.NewMultiObserver(sinks...), cfg.Observability.ObserverBuffer)

	a.session, err = session.New(session.Options{
		Config:   cfg.SessionConfig(),
		Client:   client,
		Observer: a.async,
		Logger:   log,
		Language: detector,
	})
	if err != nil {
		a.async.Close()
		return nil, err
	}

	var webhooks []provider.WebhookReceiver
	if wh, ok := client.(provider.WebhookReceiver); ok {
		webhooks = append(webhooks, wh)
	}
	a.web, err = web.New(web.Options{
		Config:     cfg.Web,
		Controller: a.session,
		Webhooks:   webhooks,
		Metrics:    promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}),
		Logger:     log,
	})
	if err != nil {
		_ = a.session.Close()
		a.async.Close()
		return nil, err
	}

	a.runner = runner.NewLifecycleRunner(runner.Options{
		Services:     []runner.Service{a.web.Run},
		Drainer:      a.session,
		DrainTimeout: configutil.Millis(cfg.Session.DrainTimeoutMS, 10*time.Second),
		Banner:       opts.Banner,
		Hooks: runner.Hooks{
			OnStart: a.ready,
			OnStop:  a.shutdown,
		},
	})
	return a, nil
}

// Run serves the page until ctx ends, then ends any active call and releases
// the session.
func (a *App) Run(ctx context.Context) error {
	if _, err := PurgeArtifacts(a.cfg, a.log); err != nil {
		a.log.Warn("artifact_purge_failed", "error", err.Error())
	}
	return a.runner.Run(ctx)
}

func (a *App) Session() *session.Session { return a.session }

// Handler exposes the page routes without listening.
func (a *App) Handler() http.Handler { return a.web.Handler() }

// Close releases the session and flushes observers. It is safe after Run.
func (a *App) Close() error {
	a.shutdown()
	return nil
}

func (a *App) ready() {
	attrs := []any{"provider", a.client.Name(), "assistant_configured", a.cfg.Session.AssistantID != ""}
	for _, src := range []any{a.client, a.web} {
		r, ok := src.(provider.ReadyReporter)
		if !ok {
			continue
		}
		for k, v := range r.ReadyFields() {
			attrs = append(attrs, k, v)
		}
	}
	a.log.Info("univoice_ready", attrs...)
}

func (a *App) shutdown() {
	_ = a.session.Close()
	a.async.Close()
	if a.timeline != nil {
		if err := a.timeline.Close(); err != nil {
			a.log.Warn("timeline_close_failed", "error", err.Error())
		}
	}
}

// PurgeArtifacts removes call timelines older than the configured retention.
func PurgeArtifacts(cfg Config, log *slog.Logger) (int, error) {
	maxAge := cfg.Retention()
	if maxAge <= 0 || cfg.Observability.ArtifactsDir == "" {
		return 0, nil
	}
	removed, err := observers.PurgeArtifacts(cfg.Observability.ArtifactsDir, maxAge)
	if log != nil && removed > 0 {
		log.Info("artifacts_purged", "dir", cfg.Observability.ArtifactsDir, "removed", removed)
	}
	return removed, err
}
