package observers

import (
	"github.com/harunnryd/univoice/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusObserver exports call session events as Prometheus series.
type PrometheusObserver struct {
	events     *prometheus.CounterVec
	entries    *prometheus.CounterVec
	durations  prometheus.Histogram
	activeCall prometheus.Gauge
}

// NewPrometheusObserver registers the univoice collectors on reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "univoice",
			Name:      "call_events_total",
			Help:      "Call lifecycle events by name and reason.",
		}, []string{"event", "reason"}),
		entries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "univoice",
			Name:      "transcript_entries_total",
			Help:      "Transcript entries appended, by speaker.",
		}, []string{"speaker"}),
		durations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "univoice",
			Name:      "call_duration_seconds",
			Help:      "Duration of calls that reached the calling state.",
			Buckets:   []float64{15, 30, 60, 120, 300, 600, 1200},
		}),
		activeCall: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "univoice",
			Name:      "call_active",
			Help:      "1 while a call is in the calling state.",
		}),
	}
}

// RecordEvent implements metrics.Observer.
func (o *PrometheusObserver) RecordEvent(ev metrics.MetricsEvent) {
	switch ev.Name {
	case metrics.EventTranscriptEntry:
		o.entries.WithLabelValues(ev.Tags[metrics.TagSpeaker]).Inc()
		return
	case metrics.EventCallStarted:
		o.activeCall.Set(1)
	case metrics.EventCallEnded:
		o.activeCall.Set(0)
		if ev.Value > 0 {
			o.durations.Observe(ev.Value)
		}
	case metrics.EventCallError:
		o.activeCall.Set(0)
	}
	o.events.WithLabelValues(ev.Name, ev.Tags[metrics.TagReason]).Inc()
}

var _ metrics.Observer = (*PrometheusObserver)(nil)
