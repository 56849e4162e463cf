package drivercore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindActionsRejectsNil(t *testing.T) {
	_, err := BindActions(nil, nil)
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestActionsCallShapes(t *testing.T) {
	errDevice := errors.New("device busy")
	ran := false

	tests := []struct {
		name    string
		fn      any
		args    []any
		want    any
		wantErr error
	}{
		{name: "func() any", fn: func() any { return "pong" }, want: "pong"},
		{name: "func() error", fn: func() error { return errDevice }, wantErr: errDevice},
		{name: "func()", fn: func() { ran = true }},
		{name: "func() (any, error)", fn: func() (any, error) { return 1, nil }, want: 1},
		{
			name: "variadic",
			fn:   func(args ...any) any { return len(args) },
			args: []any{"a", "b"},
			want: 2,
		},
		{
			name: "variadic with error",
			fn:   func(args ...any) (any, error) { return args[0], nil },
			args: []any{42},
			want: 42,
		},
		{
			name: "context aware",
			fn: func(ctx context.Context, args ...any) (any, error) {
				return ctx.Value(ctxKey{}), nil
			},
			want: "ctx-value",
		},
		{
			name:    "ActionFunc",
			fn:      ActionFunc(func(context.Context, ...any) (any, error) { return nil, errDevice }),
			wantErr: errDevice,
		},
	}

	ctx := context.WithValue(context.Background(), ctxKey{}, "ctx-value")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []Invocation
			actions, err := BindActions(map[string]any{"act": tt.fn}, func(inv Invocation) error {
				calls = append(calls, inv)
				return nil
			})
			require.NoError(t, err)
			require.True(t, actions.Has("act"))

			got, err := actions.Call(ctx, "act", tt.args...)
			if tt.wantErr != nil {
				// the action's own error, unchanged
				assert.Same(t, tt.wantErr, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}

			require.Len(t, calls, 1)
			assert.Equal(t, "act", calls[0].Name)
			assert.NotEmpty(t, calls[0].ID)
			assert.NotNil(t, calls[0].Params)
			assert.Len(t, calls[0].Params, len(tt.args))
		})
	}
	assert.True(t, ran)
}

type ctxKey struct{}

func TestActionsInvocationBeforeCall(t *testing.T) {
	var order []string
	actions, err := BindActions(map[string]any{
		"ping": func() any {
			order = append(order, "ping")
			return "pong"
		},
	}, func(inv Invocation) error {
		order = append(order, "onCall:"+inv.Name)
		return nil
	})
	require.NoError(t, err)

	got, err := actions.Call(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Equal(t, []string{"onCall:ping", "ping"}, order)
}

func TestActionsParamsAreCopied(t *testing.T) {
	var seen Invocation
	actions, err := BindActions(map[string]any{
		"echo": func(args ...any) any {
			args[0] = "mutated"
			return nil
		},
	}, func(inv Invocation) error {
		seen = inv
		return nil
	})
	require.NoError(t, err)

	_, err = actions.Call(context.Background(), "echo", "orig")
	require.NoError(t, err)
	assert.Equal(t, []any{"orig"}, seen.Params)
}

func TestActionsHookErrorAbortsCall(t *testing.T) {
	errDenied := errors.New("denied")
	ran := false
	actions, err := BindActions(map[string]any{
		"reboot": func() { ran = true },
	}, func(Invocation) error { return errDenied })
	require.NoError(t, err)

	_, err = actions.Call(context.Background(), "reboot")
	assert.ErrorIs(t, err, errDenied)
	assert.False(t, ran)
}

func TestActionsPassThroughProperties(t *testing.T) {
	var calls int
	actions, err := BindActions(map[string]any{
		"model": "nx-1",
		"ping":  func() any { return "pong" },
	}, func(Invocation) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	v, ok := actions.Get("model")
	require.True(t, ok)
	assert.Equal(t, "nx-1", v)
	assert.False(t, actions.Has("model"))

	_, err = actions.Call(context.Background(), "model")
	assert.ErrorIs(t, err, ErrNotCallable)

	_, err = actions.Call(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrActionNotFound)

	assert.Equal(t, []string{"ping"}, actions.Names())
	assert.Equal(t, []string{"model", "ping"}, actions.Keys())
	assert.Zero(t, calls)
}

func TestActionsGetReturnsInterceptingFunc(t *testing.T) {
	var calls []string
	actions, err := BindActions(map[string]any{"ping": func() any { return "pong" }}, func(inv Invocation) error {
		calls = append(calls, inv.Name)
		return nil
	})
	require.NoError(t, err)

	v, ok := actions.Get("ping")
	require.True(t, ok)
	fn, ok := v.(ActionFunc)
	require.True(t, ok)

	got, err := fn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Equal(t, []string{"ping"}, calls)
}

func TestActionsSetBindsNewCallable(t *testing.T) {
	var calls int
	actions, err := BindActions(map[string]any{}, func(Invocation) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	actions.Set("status", func() any { return "ok" })
	actions.Set("nil", ActionFunc(nil))

	got, err := actions.Call(context.Background(), "status")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)

	assert.False(t, actions.Has("nil"))
	v, ok := actions.Get("nil")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestActionsDetachStopsNotifications(t *testing.T) {
	var calls int
	actions, err := BindActions(map[string]any{"ping": func() any { return "pong" }}, func(Invocation) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	actions.detach()
	got, err := actions.Call(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)
	assert.Zero(t, calls)
}
