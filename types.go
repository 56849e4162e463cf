package drivercore

import (
	"errors"
)

// Reserved topics on the driver event surface
const (
	// EventState carries a Change for every state mutation
	EventState = "state"
	// WildcardTopic subscribes to every topic
	WildcardTopic = "*"

	EventPollError     = "poll.error"
	EventPollUnhealthy = "poll.unhealthy"
)

// Input contract errors
var (
	ErrNilClient      = errors.New("driver requires a client")
	ErrNotObject      = errors.New("value is not an object")
	ErrPathNotFound   = errors.New("path not found")
	ErrStateUnset     = errors.New("state has not been set")
	ErrActionsUnset   = errors.New("actions have not been set")
	ErrActionNotFound = errors.New("action not found")
	ErrNotCallable    = errors.New("property is not callable")
)

// Identity is the read-only identity of a client (and of the driver wrapping it)
type Identity struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Version string `json:"version" yaml:"version"`
}

// Change is emitted once per assignment to a state property at any depth.
// Path is the dot-joined chain of property names from the state root.
type Change struct {
	Path     string `json:"path" cbor:"1,keyasint"`
	OldValue any    `json:"old_value" cbor:"2,keyasint"`
	NewValue any    `json:"new_value" cbor:"3,keyasint"`
}

// Invocation is emitted once per call of a bound action
type Invocation struct {
	ID     string `json:"id" cbor:"1,keyasint"` // correlation id
	Name   string `json:"name" cbor:"2,keyasint"`
	Params []any  `json:"params" cbor:"3,keyasint"` // never nil
}

// Event is what subscribers of the driver event surface receive
type Event struct {
	Topic   string
	Payload any
}

// Handler receives events from the driver event surface
type Handler func(e Event)

// MutateFunc is notified of state changes
type MutateFunc func(c Change) error

// InvokeFunc is notified of action invocations before the action runs
type InvokeFunc func(inv Invocation) error
