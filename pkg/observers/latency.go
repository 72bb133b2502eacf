package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/univoice/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyObserver measures how long each call attempt spends between the start
// request and the provider's call-start.
type LatencyObserver struct {
	log     *slog.Logger
	connect prometheus.Histogram

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewLatencyObserver logs connect latency and, when reg is set, exports it as
// univoice_connect_latency_seconds.
func NewLatencyObserver(log *slog.Logger, reg prometheus.Registerer) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	o := &LatencyObserver{log: log, pending: make(map[string]time.Time)}
	if reg != nil {
		o.connect = promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "univoice",
			Name:      "connect_latency_seconds",
			Help:      "Time from the start request to the provider's call-start.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		})
	}
	return o
}

// RecordEvent implements metrics.Observer.
func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagCallID]
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	switch ev.Name {
	case metrics.EventStartRequested:
		o.pending[id] = ev.Time
	case metrics.EventCallStarted:
		requested, ok := o.pending[id]
		delete(o.pending, id)
		if !ok || ev.Time.Before(requested) {
			return
		}
		d := ev.Time.Sub(requested)
		if o.connect != nil {
			o.connect.Observe(d.Seconds())
		}
		o.log.Info("connect_latency", "call_id", id, "provider", ev.Tags[metrics.TagProvider], "connect_ms", d.Milliseconds())
	case metrics.EventStartFailed, metrics.EventCallError, metrics.EventCallEnded:
		delete(o.pending, id)
	}
}

// Pending reports attempts still waiting for call-start.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

var _ metrics.Observer = (*LatencyObserver)(nil)
