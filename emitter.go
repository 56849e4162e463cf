package drivercore

import (
	"sync"
)

type subscription struct {
	id      uint64
	topic   string
	handler Handler
}

// Emitter is a topic based publish/subscribe surface. Handlers run
// synchronously in subscription order; WildcardTopic handlers see every
// topic. Nothing is retained for late subscribers.
type Emitter struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewEmitter creates an empty event surface
func NewEmitter() *Emitter {
	return &Emitter{}
}

// On subscribes h to topic and returns a function that removes the subscription
func (e *Emitter) On(topic string, h Handler) (off func()) {
	if h == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, topic: topic, handler: h})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Emit delivers payload to every handler subscribed to topic or to WildcardTopic
func (e *Emitter) Emit(topic string, payload any) {
	e.mu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	for _, s := range subs {
		if s.topic == topic || s.topic == WildcardTopic {
			s.handler(ev)
		}
	}
}

// Count returns the number of handlers that would receive topic
func (e *Emitter) Count(topic string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, s := range e.subs {
		if s.topic == topic || s.topic == WildcardTopic {
			n++
		}
	}
	return n
}
