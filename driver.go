package drivercore

import (
	"context"
	"fmt"
	"sync"
)

// Driver connects a device Client to a consumer. It relays every client
// event onto its own event surface, publishes state through an Observable
// and exposes actions through Actions. Device specific behavior is supplied
// as a Behavior.
//
// All notifications of a driver (state changes, action invocations, relayed
// and emitted events) are delivered one at a time, in the order the
// triggering operations happened.
type Driver struct {
	client Client
	logger Logger
	clock  Clock
	config Config

	events *Emitter
	disp   *dispatcher

	mu       sync.RWMutex
	behavior Behavior
	state    *Observable
	actions  *Actions
}

var _ Client = (*Driver)(nil)

// New creates a driver over client and installs the event relay.
// A nil behavior uses NopBehavior.
func New(client Client, behavior Behavior, opts ...Option) (*Driver, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if behavior == nil {
		behavior = NopBehavior{}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	d := &Driver{
		client:   client,
		logger:   o.logger,
		clock:    o.clock,
		config:   o.config,
		events:   NewEmitter(),
		disp:     newDispatcher(),
		behavior: behavior,
	}
	d.relay()
	return d, nil
}

// relay re-emits every client event unchanged for the lifetime of the client
func (d *Driver) relay() {
	d.client.OnAny(func(topic string, payload any) {
		if err := d.Emit(topic, payload); err != nil {
			d.logger.Warn("relayed event handling failed", "topic", topic, "err", err)
		}
	})
	d.logger.Debug("client relay attached", "client_id", d.client.ID())
}

// Setup runs the behavior's Setup hook. It is called by whoever owns the
// driver lifecycle, never by the driver itself.
func (d *Driver) Setup(ctx context.Context) error {
	if err := d.Behavior().Setup(ctx, d); err != nil {
		return fmt.Errorf("setup %s: %w", d.ID(), err)
	}
	return nil
}

// Behavior returns the installed behavior
func (d *Driver) Behavior() Behavior {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.behavior
}

// SetBehavior replaces the behavior. Hooks are resolved when a notification
// is delivered, so the new behavior sees every later notification.
func (d *Driver) SetBehavior(b Behavior) {
	if b == nil {
		b = NopBehavior{}
	}
	d.mu.Lock()
	d.behavior = b
	d.mu.Unlock()
}

// SetState publishes target as the driver state. The previous state, if
// any, is detached and stops producing notifications.
func (d *Driver) SetState(target map[string]any) (*Observable, error) {
	state, err := observe(target, d.disp, d.stateChanged)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.state != nil {
		d.state.tree.detach()
	}
	d.state = state
	d.mu.Unlock()

	d.logger.Debug("state installed", "driver_id", d.ID(), "keys", state.Keys())
	return state, nil
}

// State returns the current state, nil before the first SetState
func (d *Driver) State() *Observable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SetActions publishes target as the driver actions. The previous actions,
// if any, are detached and stop producing notifications.
func (d *Driver) SetActions(target map[string]any) (*Actions, error) {
	actions, err := bindActions(target, d.disp, d.actionCalled)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.actions != nil {
		d.actions.detach()
	}
	d.actions = actions
	d.mu.Unlock()

	d.logger.Debug("actions installed", "driver_id", d.ID(), "actions", actions.Names())
	return actions, nil
}

// Actions returns the current actions, nil before the first SetActions
func (d *Driver) Actions() *Actions {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.actions
}

// Call invokes a bound action on the current actions
func (d *Driver) Call(ctx context.Context, name string, args ...any) (any, error) {
	actions := d.Actions()
	if actions == nil {
		return nil, fmt.Errorf("call %q: %w", name, ErrActionsUnset)
	}
	return actions.Call(ctx, name, args...)
}

func (d *Driver) stateChanged(c Change) error {
	d.events.Emit(EventState, c)
	if err := d.Behavior().OnChange(c); err != nil {
		d.logger.Warn("onChange hook failed", "driver_id", d.ID(), "path", c.Path, "err", err)
		return fmt.Errorf("onChange %s: %w", c.Path, err)
	}
	return nil
}

func (d *Driver) actionCalled(inv Invocation) error {
	if err := d.Behavior().OnCall(inv); err != nil {
		d.logger.Warn("onCall hook failed", "driver_id", d.ID(), "action", inv.Name, "err", err)
		return fmt.Errorf("onCall %s: %w", inv.Name, err)
	}
	return nil
}

// On subscribes h to a topic of the driver event surface: EventState,
// relayed client topics, topics emitted by the behavior, or WildcardTopic.
func (d *Driver) On(topic string, h Handler) (off func()) {
	return d.events.On(topic, h)
}

// OnAny subscribes fn to every event. It makes a Driver usable as the
// Client of another driver.
func (d *Driver) OnAny(fn func(topic string, payload any)) {
	if fn == nil {
		return
	}
	d.events.On(WildcardTopic, func(e Event) { fn(e.Topic, e.Payload) })
}

// Emit publishes a custom event on the driver event surface
func (d *Driver) Emit(topic string, payload any) error {
	return d.disp.do(func() error {
		d.events.Emit(topic, payload)
		return nil
	})
}

// Client returns the underlying client
func (d *Driver) Client() Client { return d.client }

func (d *Driver) ID() string { return d.client.ID() }

func (d *Driver) Name() string { return d.client.Name() }

func (d *Driver) Type() string { return d.client.Type() }

func (d *Driver) Version() string { return d.client.Version() }

// Identity returns the client identity
func (d *Driver) Identity() Identity {
	return Identity{ID: d.ID(), Name: d.Name(), Type: d.Type(), Version: d.Version()}
}

// Config returns the configuration handed over with WithConfig
func (d *Driver) Config() Config { return d.config }

func (d *Driver) Logger() Logger { return d.logger }

func (d *Driver) Clock() Clock { return d.clock }
