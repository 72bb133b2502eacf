package observers

import (
	"context"
	"log/slog"
	"sort"

	"github.com/harunnryd/univoice/pkg/metrics"
)

// LoggerObserver logs each event under its own name. Failures log at warn, transcript
// entries at debug without their text, everything else at info.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	level := slog.LevelInfo
	switch ev.Name {
	case metrics.EventTranscriptEntry:
		level = slog.LevelDebug
	case metrics.EventStartFailed, metrics.EventCallError:
		level = slog.LevelWarn
	}
	ctx := context.Background()
	if !o.log.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(ev.Tags)+len(ev.Fields)+1)
	if ev.Value != 0 {
		attrs = append(attrs, slog.Float64("value", ev.Value))
	}
	for _, k := range sortedKeys(ev.Tags) {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	for _, k := range sortedKeys(ev.Fields) {
		if k == "text" {
			continue
		}
		attrs = append(attrs, slog.Any(k, ev.Fields[k]))
	}
	o.log.LogAttrs(ctx, level, ev.Name, attrs...)
}

// MultiObserver fans an event out to every non-nil observer in order.
type MultiObserver []metrics.Observer

func NewMultiObserver(list ...metrics.Observer) MultiObserver {
	out := make(MultiObserver, 0, len(list))
	for _, obs := range list {
		if obs != nil {
			out = append(out, obs)
		}
	}
	return out
}

func (m MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m {
		obs.RecordEvent(ev)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	_ metrics.Observer = (*LoggerObserver)(nil)
	_ metrics.Observer = MultiObserver(nil)
)
