package drivercore

import (
	"sync"
	"time"
)

// stubClient is a Client whose events are raised by the test
type stubClient struct {
	id, name, typ, version string

	mu       sync.Mutex
	handlers []func(string, any)
}

func newStubClient() *stubClient {
	return &stubClient{id: "d1", name: "dev", typ: "sensor", version: "1.0"}
}

func (c *stubClient) ID() string      { return c.id }
func (c *stubClient) Name() string    { return c.name }
func (c *stubClient) Type() string    { return c.typ }
func (c *stubClient) Version() string { return c.version }

func (c *stubClient) OnAny(fn func(topic string, payload any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

func (c *stubClient) emit(topic string, payload any) {
	c.mu.Lock()
	handlers := append([]func(string, any){}, c.handlers...)
	c.mu.Unlock()
	for _, fn := range handlers {
		fn(topic, payload)
	}
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// eventLog collects events delivered to a handler
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func (l *eventLog) topics() []string {
	var out []string
	for _, e := range l.all() {
		out = append(out, e.Topic)
	}
	return out
}
