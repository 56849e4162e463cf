package drivercore

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeLog struct {
	changes []Change
}

func (l *changeLog) record(c Change) error {
	l.changes = append(l.changes, c)
	return nil
}

func TestObserveRejectsNil(t *testing.T) {
	_, err := Observe(nil, nil)
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestObservableSetNotifiesOncePerAssignment(t *testing.T) {
	tests := []struct {
		name    string
		target  map[string]any
		path    string
		value   any
		wantOld any
	}{
		{name: "top level", target: map[string]any{"temp": 20}, path: "temp", value: 21, wantOld: 20},
		{
			name:    "nested",
			target:  map[string]any{"a": map[string]any{"b": map[string]any{"c": "x"}}},
			path:    "a.b.c",
			value:   "y",
			wantOld: "x",
		},
		{name: "same value", target: map[string]any{"on": true}, path: "on", value: true, wantOld: true},
		{name: "new key", target: map[string]any{}, path: "fresh", value: 1, wantOld: nil},
		{name: "slice is terminal", target: map[string]any{"tags": []any{"a"}}, path: "tags", value: []any{"b"}, wantOld: []any{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log changeLog
			state, err := Observe(tt.target, log.record)
			require.NoError(t, err)

			require.NoError(t, state.SetPath(tt.path, tt.value))

			require.Len(t, log.changes, 1)
			assert.Equal(t, Change{Path: tt.path, OldValue: tt.wantOld, NewValue: tt.value}, log.changes[0])

			got, ok := state.Lookup(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestObservableChildSetUsesFullPath(t *testing.T) {
	var log changeLog
	state, err := Observe(map[string]any{"a": map[string]any{"b": 1}}, log.record)
	require.NoError(t, err)

	child, ok := state.Child("a")
	require.True(t, ok)
	assert.Equal(t, "a", child.Path())

	require.NoError(t, child.Set("b", 2))
	require.Len(t, log.changes, 1)
	assert.Equal(t, "a.b", log.changes[0].Path)
}

func TestObservableAssignedObjectIsObserved(t *testing.T) {
	var log changeLog
	state, err := Observe(map[string]any{}, log.record)
	require.NoError(t, err)

	require.NoError(t, state.Set("cfg", map[string]any{"mode": "auto"}))
	require.NoError(t, state.SetPath("cfg.mode", "manual"))

	require.Len(t, log.changes, 2)
	assert.Equal(t, "cfg", log.changes[0].Path)
	assert.Equal(t, Change{Path: "cfg.mode", OldValue: "auto", NewValue: "manual"}, log.changes[1])
}

func TestObservableReplacedChildIsDetached(t *testing.T) {
	var log changeLog
	state, err := Observe(map[string]any{"a": map[string]any{"b": 1}}, log.record)
	require.NoError(t, err)

	old, ok := state.Child("a")
	require.True(t, ok)

	require.NoError(t, state.Set("a", map[string]any{"b": 2}))
	require.Len(t, log.changes, 1)
	assert.Equal(t, map[string]any{"b": 1}, log.changes[0].OldValue)

	require.NoError(t, old.Set("b", 99))
	assert.Len(t, log.changes, 1)

	v, _ := state.Lookup("a.b")
	assert.Equal(t, 2, v)
}

func TestObservableCopiesTarget(t *testing.T) {
	var log changeLog
	target := map[string]any{"temp": 20}
	state, err := Observe(target, log.record)
	require.NoError(t, err)

	target["temp"] = 99
	assert.Empty(t, log.changes)

	v, _ := state.Get("temp")
	assert.Equal(t, 20, v)
}

func TestObservableRoundTrip(t *testing.T) {
	target := map[string]any{
		"temp":  20.5,
		"name":  "lab",
		"flags": []any{"a", "b"},
		"zone":  map[string]any{"id": 3, "meta": map[string]any{"floor": "1"}},
	}
	state, err := Observe(target, nil)
	require.NoError(t, err)

	assert.Equal(t, target, state.Snapshot())
	assert.Equal(t, []string{"flags", "name", "temp", "zone"}, state.Keys())
	assert.Equal(t, []string{"flags", "name", "temp", "zone.id", "zone.meta.floor"}, state.Leaves())
	assert.Equal(t, 4, state.Len())

	b, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp":20.5,"name":"lab","flags":["a","b"],"zone":{"id":3,"meta":{"floor":"1"}}}`, string(b))
}

func TestObservableSetPathErrors(t *testing.T) {
	state, err := Observe(map[string]any{"temp": 20}, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, state.SetPath("missing.x", 1), ErrPathNotFound)
	assert.ErrorIs(t, state.SetPath("temp.x", 1), ErrNotObject)
}

func TestObservableReentrantWriteIsQueued(t *testing.T) {
	var (
		state *Observable
		paths []string
	)
	state, err := Observe(map[string]any{"a": 0, "b": 0}, func(c Change) error {
		paths = append(paths, c.Path)
		if c.Path == "a" {
			// delivered after this notification returns
			require.NoError(t, state.Set("b", 1))
			assert.Equal(t, []string{"a"}, paths)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, state.Set("a", 1))
	assert.Equal(t, []string{"a", "b"}, paths)

	v, _ := state.Get("b")
	assert.Equal(t, 1, v)
}

func TestObservableHookErrorIsReturned(t *testing.T) {
	errHook := errors.New("rejected")
	state, err := Observe(map[string]any{"temp": 20}, func(Change) error { return errHook })
	require.NoError(t, err)

	assert.ErrorIs(t, state.Set("temp", 21), errHook)

	// the mutation has already taken effect
	v, _ := state.Get("temp")
	assert.Equal(t, 21, v)
}

func TestObservableTypedReaders(t *testing.T) {
	state, err := Observe(map[string]any{
		"temp":  21.5,
		"count": 3,
		"whole": 4.0,
		"on":    true,
		"name":  "lab",
	}, nil)
	require.NoError(t, err)

	f, ok := state.GetFloat("count")
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	i, ok := state.GetInt("whole")
	assert.True(t, ok)
	assert.Equal(t, int64(4), i)

	_, ok = state.GetInt("temp")
	assert.False(t, ok)

	b, ok := state.GetBool("on")
	assert.True(t, ok)
	assert.True(t, b)

	s, ok := state.GetString("name")
	assert.True(t, ok)
	assert.Equal(t, "lab", s)

	_, ok = state.GetString("temp")
	assert.False(t, ok)
}
