package observers

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/univoice/pkg/metrics"
	"github.com/harunnryd/univoice/pkg/redact"
)

// terminalEvents close the call's timeline once written.
var terminalEvents = map[string]bool{
	metrics.EventCallEnded:   true,
	metrics.EventCallError:   true,
	metrics.EventStartFailed: true,
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// TimelineObserver keeps one JSONL file per call attempt under dir. Each line is
// a lifecycle or transcript event in the order the session emitted it. Events that
// arrive after the call's terminal event, such as language detection, are appended
// with the next sequence number and the file is closed again right away.
type TimelineObserver struct {
	dir string

	mu    sync.Mutex
	calls map[string]*callTimeline
}

type callTimeline struct {
	// f is nil once the call reached a terminal event.
	f   *os.File
	enc *json.Encoder
	seq int
}

type timelineLine struct {
	Seq    int               `json:"seq"`
	Time   time.Time         `json:"time"`
	Event  string            `json:"event"`
	CallID string            `json:"call_id"`
	Value  float64           `json:"value,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

// NewTimelineObserver writes call timelines to dir. An empty dir disables it.
func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: strings.TrimSpace(dir), calls: make(map[string]*callTimeline)}
}

// RecordEvent implements metrics.Observer.
func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	if o.dir == "" {
		return
	}
	callID := strings.TrimSpace(ev.Tags[metrics.TagCallID])
	if callID == "" {
		return
	}
	name := unsafeName.ReplaceAllString(callID, "_")

	o.mu.Lock()
	defer o.mu.Unlock()
	ct := o.calls[name]
	if ct == nil {
		ct = &callTimeline{}
		o.calls[name] = ct
	}
	finished := ct.f == nil && ct.seq > 0
	if ct.f == nil {
		if err := o.open(name, ct); err != nil {
			return
		}
	}
	ct.seq++
	tags := maps.Clone(ev.Tags)
	delete(tags, metrics.TagCallID)
	if len(tags) == 0 {
		tags = nil
	}
	_ = ct.enc.Encode(timelineLine{
		Seq:    ct.seq,
		Time:   ev.Time.UTC(),
		Event:  ev.Name,
		CallID: callID,
		Value:  ev.Value,
		Tags:   tags,
		Fields: redactFields(ev.Fields),
	})
	if finished || terminalEvents[ev.Name] {
		_ = ct.f.Close()
		ct.f, ct.enc = nil, nil
	}
}

// Open reports how many call timelines hold an open file.
func (o *TimelineObserver) Open() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ct := range o.calls {
		if ct.f != nil {
			n++
		}
	}
	return n
}

// Close closes every open timeline and forgets finished ones.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	calls := o.calls
	o.calls = make(map[string]*callTimeline)
	o.mu.Unlock()
	var errs []error
	for _, ct := range calls {
		if ct.f != nil {
			errs = append(errs, ct.f.Close())
		}
	}
	return errors.Join(errs...)
}

// open must be called with o.mu held.
func (o *TimelineObserver) open(name string, ct *callTimeline) error {
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(o.dir, name+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	ct.f, ct.enc = f, json.NewEncoder(f)
	return nil
}

func redactFields(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := maps.Clone(in)
	for k, v := range out {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
		}
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
