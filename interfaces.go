// Package drivercore is the base for device driver adapters. A Driver sits
// between a device Client and a consumer and exposes two observed surfaces:
// state (device to consumer) and actions (consumer to device).
package drivercore

import "context"

// Client is the device side collaborator. The driver keeps a non-owning reference.
type Client interface {
	// Identity
	ID() string
	Name() string
	Type() string
	Version() string

	// OnAny subscribes fn to every (topic, payload) the client raises
	OnAny(fn func(topic string, payload any))
}

// Behavior is implemented by concrete drivers
type Behavior interface {
	// Setup is called by the lifecycle owner once the connection is up
	// (declare pins, install state and actions, ...)
	Setup(ctx context.Context, d *Driver) error

	// OnChange is called for every state Change
	OnChange(c Change) error

	// OnCall is called for every action Invocation, before the action runs
	OnCall(inv Invocation) error
}

// NopBehavior implements Behavior with no-op hooks
type NopBehavior struct{}

func (NopBehavior) Setup(context.Context, *Driver) error { return nil }
func (NopBehavior) OnChange(Change) error                { return nil }
func (NopBehavior) OnCall(Invocation) error              { return nil }

// BehaviorFuncs adapts plain functions to Behavior. Nil fields are no-ops.
type BehaviorFuncs struct {
	SetupFunc    func(ctx context.Context, d *Driver) error
	OnChangeFunc func(c Change) error
	OnCallFunc   func(inv Invocation) error
}

func (b BehaviorFuncs) Setup(ctx context.Context, d *Driver) error {
	if b.SetupFunc == nil {
		return nil
	}
	return b.SetupFunc(ctx, d)
}

func (b BehaviorFuncs) OnChange(c Change) error {
	if b.OnChangeFunc == nil {
		return nil
	}
	return b.OnChangeFunc(c)
}

func (b BehaviorFuncs) OnCall(inv Invocation) error {
	if b.OnCallFunc == nil {
		return nil
	}
	return b.OnCallFunc(inv)
}
