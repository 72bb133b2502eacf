package provider

import "sync"

// Emitter is the handler registry providers embed to implement Client.On.
// Handlers run synchronously on the emitting goroutine in registration order.
type Emitter struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[EventKind][]registered
}

type registered struct {
	id uint64
	h  Handler
}

// On registers h for kind.
func (e *Emitter) On(kind EventKind, h Handler) Subscription {
	if h == nil {
		return noopSubscription{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[EventKind][]registered)
	}
	e.next++
	id := e.next
	e.handlers[kind] = append(e.handlers[kind], registered{id: id, h: h})
	return &subscription{emitter: e, kind: kind, id: id}
}

// Emit delivers ev to the handlers registered for its kind.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	list := make([]registered, len(e.handlers[ev.Kind]))
	copy(list, e.handlers[ev.Kind])
	e.mu.RUnlock()
	for _, r := range list {
		r.h(ev)
	}
}

// Len returns the number of handlers registered for kind.
func (e *Emitter) Len(kind EventKind) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[kind])
}

func (e *Emitter) off(kind EventKind, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[kind]
	for i, r := range list {
		if r.id == id {
			e.handlers[kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

type subscription struct {
	emitter *Emitter
	kind    EventKind
	id      uint64
	once    sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.emitter.off(s.kind, s.id) })
}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

// Subscriptions is a set of handlers acquired together and released together.
type Subscriptions struct {
	mu     sync.Mutex
	subs   []Subscription
	closed bool
}

// Subscribe registers one handler per kind on c and returns the set.
func Subscribe(c Client, handlers map[EventKind]Handler) *Subscriptions {
	set := &Subscriptions{}
	for _, kind := range Kinds {
		if h, ok := handlers[kind]; ok && h != nil {
			set.subs = append(set.subs, c.On(kind, h))
		}
	}
	return set
}

// Len returns the number of held subscriptions.
func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close releases every subscription. Calling Close again does nothing.
func (s *Subscriptions) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
