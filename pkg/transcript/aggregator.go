package transcript

import (
	"strings"
	"time"

	"github.com/harunnryd/univoice/pkg/provider"
)

// DefaultTimeLayout renders capture times like a browser's en-US locale time.
const DefaultTimeLayout = "3:04:05 PM"

// AggregatorConfig tunes how entries are stamped.
type AggregatorConfig struct {
	TimeLayout string
	Location   *time.Location
	Now        func() time.Time
}

// Aggregator turns provider message events into transcript entries.
type Aggregator struct {
	log    *Log
	layout string
	loc    *time.Location
	now    func() time.Time
}

func NewAggregator(log *Log, cfg AggregatorConfig) *Aggregator {
	if log == nil {
		log = NewLog()
	}
	if strings.TrimSpace(cfg.TimeLayout) == "" {
		cfg.TimeLayout = DefaultTimeLayout
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{log: log, layout: cfg.TimeLayout, loc: cfg.Location, now: cfg.Now}
}

// Log returns the log the aggregator appends to.
func (a *Aggregator) Log() *Log { return a.log }

// Classify maps a provider message to a speaker and text. Messages of any other shape
// report ok=false.
func Classify(msg *provider.Message) (Speaker, string, bool) {
	if msg == nil {
		return "", "", false
	}
	switch msg.Type {
	case provider.MessageTypeTranscript:
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			return "", "", false
		}
		return SpeakerUser, text, true
	case provider.MessageTypeMessage:
		text := strings.TrimSpace(msg.Content)
		if msg.Role != provider.RoleAssistant || text == "" {
			return "", "", false
		}
		return SpeakerAssistant, text, true
	default:
		return "", "", false
	}
}

// Consume appends one entry for a recognized message, stamped with the local clock at
// receipt. Unrecognized messages are ignored.
func (a *Aggregator) Consume(msg *provider.Message) (Entry, bool) {
	speaker, text, ok := Classify(msg)
	if !ok {
		return Entry{}, false
	}
	at := a.now()
	e := Entry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: at.In(a.loc).Format(a.layout),
		At:        at,
	}
	if err := a.log.Append(e); err != nil {
		return Entry{}, false
	}
	return e, true
}

// Reset clears the log at the start of a call.
func (a *Aggregator) Reset() {
	a.log.Reset()
}
