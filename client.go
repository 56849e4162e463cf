package drivercore

import (
	"sync"
)

// LocalClient is an in-process Client. Publish fans events out to every
// OnAny subscriber synchronously, in subscription order. Useful for local
// driver development and tests without a device.
type LocalClient struct {
	identity Identity

	mu       sync.RWMutex
	handlers []func(topic string, payload any)
}

// NewLocalClient returns a LocalClient with the given identity
func NewLocalClient(id Identity) *LocalClient {
	return &LocalClient{identity: id}
}

func (c *LocalClient) ID() string      { return c.identity.ID }
func (c *LocalClient) Name() string    { return c.identity.Name }
func (c *LocalClient) Type() string    { return c.identity.Type }
func (c *LocalClient) Version() string { return c.identity.Version }

func (c *LocalClient) OnAny(fn func(topic string, payload any)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Publish raises an event on the client
func (c *LocalClient) Publish(topic string, payload any) {
	c.mu.RLock()
	handlers := make([]func(string, any), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.RUnlock()

	for _, fn := range handlers {
		fn(topic, payload)
	}
}
