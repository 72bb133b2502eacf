package provider

import (
	"context"
	"testing"
)

type fakeClient struct {
	Emitter
}

func (f *fakeClient) Name() string                                { return "fake" }
func (f *fakeClient) Start(context.Context, string) (Call, error) { return Call{ID: "c1"}, nil }
func (f *fakeClient) Stop(context.Context) error                  { return nil }

func TestEmitterDeliversByKind(t *testing.T) {
	var e Emitter
	var starts, messages int
	e.On(EventCallStart, func(Event) { starts++ })
	e.On(EventMessage, func(ev Event) {
		if ev.Message == nil || ev.Message.Text != "hi" {
			t.Errorf("unexpected message %+v", ev.Message)
		}
		messages++
	})
	e.Emit(Event{Kind: EventCallStart})
	e.Emit(NewMessageEvent("c1", Message{Type: MessageTypeTranscript, Text: "hi"}))
	e.Emit(Event{Kind: EventCallEnd})
	if starts != 1 || messages != 1 {
		t.Fatalf("expected one start and one message, got %d %d", starts, messages)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	var e Emitter
	calls := 0
	first := e.On(EventError, func(Event) { calls++ })
	e.On(EventError, func(Event) { calls += 10 })
	first.Unsubscribe()
	first.Unsubscribe()
	if e.Len(EventError) != 1 {
		t.Fatalf("expected one handler left, got %d", e.Len(EventError))
	}
	e.Emit(Event{Kind: EventError})
	if calls != 10 {
		t.Fatalf("expected only the remaining handler to run, got %d", calls)
	}
}

func TestSubscriptionsReleaseTogether(t *testing.T) {
	c := &fakeClient{}
	calls := 0
	h := func(Event) { calls++ }
	set := Subscribe(c, map[EventKind]Handler{
		EventCallStart:       h,
		EventCallEnd:         h,
		EventEndOfCallReport: h,
		EventError:           h,
		EventMessage:         h,
	})
	if set.Len() != len(Kinds) {
		t.Fatalf("expected %d subscriptions, got %d", len(Kinds), set.Len())
	}
	set.Close()
	set.Close()
	for _, kind := range Kinds {
		if c.Len(kind) != 0 {
			t.Fatalf("handler for %s still registered", kind)
		}
		c.Emit(Event{Kind: kind})
	}
	if calls != 0 {
		t.Fatalf("stale handler ran %d times", calls)
	}
}

func TestNilHandlerIsIgnored(t *testing.T) {
	var e Emitter
	sub := e.On(EventMessage, nil)
	sub.Unsubscribe()
	if e.Len(EventMessage) != 0 {
		t.Fatalf("nil handler must not register")
	}
}
