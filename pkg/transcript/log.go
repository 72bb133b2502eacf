package transcript

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// Speaker identifies who produced an utterance.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Entry is one utterance in the transcript. Entries are never modified after creation.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
	At        time.Time `json:"-"`
}

// ErrEmptyText rejects entries without text.
var ErrEmptyText = errors.New("transcript entry text is empty")

// Log is the ordered utterance list of the current call. It only grows until Reset.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

// Append adds e at the end of the log.
func (l *Log) Append(e Entry) error {
	if strings.TrimSpace(e.Text) == "" {
		return ErrEmptyText
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return nil
}

// Entries returns a copy of the log in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset empties the log. Slices returned earlier by Entries are unaffected.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
