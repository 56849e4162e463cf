package drivercore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ActionFunc is the normalised form of every bound action
type ActionFunc func(ctx context.Context, args ...any) (any, error)

// Actions wraps an object of named callables. Calling a bound action fires
// one Invocation before the original runs; other properties pass through.
type Actions struct {
	mu      sync.RWMutex
	disp    *dispatcher
	notify  InvokeFunc // nil once detached
	entries map[string]any
}

// BindActions wraps target and reports each action call to onInvoke.
// The target map is copied.
func BindActions(target map[string]any, onInvoke InvokeFunc) (*Actions, error) {
	return bindActions(target, newDispatcher(), onInvoke)
}

func bindActions(target map[string]any, disp *dispatcher, onInvoke InvokeFunc) (*Actions, error) {
	if target == nil {
		return nil, fmt.Errorf("bind actions: %w", ErrNotObject)
	}
	a := &Actions{
		disp:    disp,
		notify:  onInvoke,
		entries: make(map[string]any, len(target)),
	}
	for name, v := range target {
		a.entries[name] = normalize(v)
	}
	return a, nil
}

// normalize turns a recognised callable into an ActionFunc and leaves other values alone
func normalize(v any) any {
	if fn, ok := asAction(v); ok {
		return fn
	}
	if _, isNilAction := v.(ActionFunc); isNilAction {
		return nil
	}
	return v
}

func asAction(v any) (ActionFunc, bool) {
	switch f := v.(type) {
	case nil:
		return nil, false
	case ActionFunc:
		return f, f != nil
	case func(context.Context, ...any) (any, error):
		return ActionFunc(f), f != nil
	case func(...any) (any, error):
		return func(_ context.Context, args ...any) (any, error) { return f(args...) }, f != nil
	case func(...any) any:
		return func(_ context.Context, args ...any) (any, error) { return f(args...), nil }, f != nil
	case func() (any, error):
		return func(context.Context, ...any) (any, error) { return f() }, f != nil
	case func() any:
		return func(context.Context, ...any) (any, error) { return f(), nil }, f != nil
	case func() error:
		return func(context.Context, ...any) (any, error) { return nil, f() }, f != nil
	case func():
		return func(context.Context, ...any) (any, error) { f(); return nil, nil }, f != nil
	default:
		return nil, false
	}
}

func (a *Actions) detach() {
	a.mu.Lock()
	a.notify = nil
	a.mu.Unlock()
}

// Call invokes the named action. The Invocation is delivered first; an error
// from the invocation hook aborts the call. The action's own result and error
// are returned unchanged.
func (a *Actions) Call(ctx context.Context, name string, args ...any) (any, error) {
	a.mu.RLock()
	v, exists := a.entries[name]
	notify := a.notify
	a.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("call %q: %w", name, ErrActionNotFound)
	}
	fn, ok := v.(ActionFunc)
	if !ok {
		return nil, fmt.Errorf("call %q: %w", name, ErrNotCallable)
	}

	if notify != nil {
		inv := Invocation{
			ID:     uuid.NewString(),
			Name:   name,
			Params: append(make([]any, 0, len(args)), args...),
		}
		if err := a.disp.run(func() error { return notify(inv) }); err != nil {
			return nil, err
		}
	}

	return fn(ctx, args...)
}

// Get returns a bound action (as an intercepting ActionFunc) or a plain property value
func (a *Actions) Get(name string) (any, bool) {
	a.mu.RLock()
	v, ok := a.entries[name]
	a.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if _, callable := v.(ActionFunc); callable {
		return ActionFunc(func(ctx context.Context, args ...any) (any, error) {
			return a.Call(ctx, name, args...)
		}), true
	}
	return v, true
}

// Set writes a property without interception. A callable value becomes an action.
func (a *Actions) Set(name string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[name] = normalize(value)
}

// Has reports whether name is a bound action
func (a *Actions) Has(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.entries[name].(ActionFunc)
	return ok
}

// Names returns the bound action names, sorted
func (a *Actions) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.entries))
	for k, v := range a.entries {
		if _, ok := v.(ActionFunc); ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Keys returns every property name, callable or not, sorted
func (a *Actions) Keys() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys := make([]string, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
