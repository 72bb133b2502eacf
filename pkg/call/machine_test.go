package call

import (
	"encoding/json"
	"math/rand"
	"testing"
)

var allTriggers = []Trigger{
	TriggerStartRequested,
	TriggerStartFailed,
	TriggerCallStart,
	TriggerEndRequested,
	TriggerCallEnd,
	TriggerEndOfCallReport,
	TriggerProviderError,
}

func TestMachineHappyPath(t *testing.T) {
	m := NewMachine()
	steps := []struct {
		trigger Trigger
		want    Status
	}{
		{TriggerStartRequested, StatusConnecting},
		{TriggerCallStart, StatusCalling},
		{TriggerEndRequested, StatusEnded},
		{TriggerStartRequested, StatusConnecting},
		{TriggerCallStart, StatusCalling},
		{TriggerEndOfCallReport, StatusEnded},
	}
	for i, step := range steps {
		if _, err := m.Fire(step.trigger); err != nil {
			t.Fatalf("step %d: unexpected error: %v", i, err)
		}
		if got := m.Status(); got != step.want {
			t.Fatalf("step %d: expected %s, got %s", i, step.want, got)
		}
	}
}

func TestProviderErrorReturnsToIdle(t *testing.T) {
	for _, from := range []Trigger{TriggerStartRequested, TriggerCallStart} {
		m := NewMachine()
		_, _ = m.Fire(TriggerStartRequested)
		if from == TriggerCallStart {
			_, _ = m.Fire(TriggerCallStart)
		}
		if _, err := m.Fire(TriggerProviderError); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m.Status() != StatusIdle {
			t.Fatalf("expected idle after provider error, got %s", m.Status())
		}
	}
}

func TestEndEventsAreIdempotent(t *testing.T) {
	m := NewMachine()
	for _, trig := range []Trigger{TriggerCallEnd, TriggerEndOfCallReport, TriggerEndRequested} {
		_, err := m.Fire(trig)
		if !IsIgnored(err) {
			t.Fatalf("expected ignored trigger in idle, got %v", err)
		}
		if m.Status() != StatusIdle {
			t.Fatalf("state changed on ignored trigger")
		}
	}

	_, _ = m.Fire(TriggerStartRequested)
	_, _ = m.Fire(TriggerCallStart)
	_, _ = m.Fire(TriggerEndRequested)
	for _, trig := range []Trigger{TriggerCallEnd, TriggerEndOfCallReport, TriggerProviderError} {
		if _, err := m.Fire(trig); !IsIgnored(err) {
			t.Fatalf("expected %s ignored in ended, got %v", trig, err)
		}
		if m.Status() != StatusEnded {
			t.Fatalf("expected ended to persist, got %s", m.Status())
		}
	}
}

func TestListenersSeeEveryTransition(t *testing.T) {
	m := NewMachine()
	var seen []StateChange
	m.AddListener(ListenerFunc(func(ev StateChange) {
		if m.Status() != ev.To {
			t.Errorf("listener ran before state was committed")
		}
		seen = append(seen, ev)
	}))
	_, _ = m.Fire(TriggerStartRequested)
	_, _ = m.Fire(TriggerCallEnd)
	_, _ = m.Fire(TriggerStartFailed)
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if seen[1].From != StatusConnecting || seen[1].To != StatusIdle || seen[1].Trigger != TriggerStartFailed {
		t.Fatalf("unexpected event %+v", seen[1])
	}
}

func TestRandomSequencesFollowTable(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	m := NewMachine()
	for i := 0; i < 5000; i++ {
		trig := allTriggers[rng.Intn(len(allTriggers))]
		before := m.Status()
		ev, err := m.Fire(trig)
		after := m.Status()
		want, ok := Next(before, trig)
		switch {
		case ok && err != nil:
			t.Fatalf("edge %s/%s rejected: %v", before, trig, err)
		case ok && (after != want || ev.To != want || ev.From != before):
			t.Fatalf("edge %s/%s went to %s", before, trig, after)
		case !ok && after != before:
			t.Fatalf("non-edge %s/%s changed state to %s", before, trig, after)
		}
		if after < StatusIdle || after > StatusEnded {
			t.Fatalf("status out of range: %d", after)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status `json:"s"`
	}{StatusConnecting})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"s":"connecting"}` {
		t.Fatalf("unexpected json %s", b)
	}
	var s Status
	if err := s.UnmarshalText([]byte("ended")); err != nil || s != StatusEnded {
		t.Fatalf("unmarshal: %v %s", err, s)
	}
	if err := s.UnmarshalText([]byte("ringing")); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
