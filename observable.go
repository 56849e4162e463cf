package drivercore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// observableTree is shared by every node of one observed state object
type observableTree struct {
	mu     sync.Mutex // guards node data and notify
	disp   *dispatcher
	notify MutateFunc // nil once detached
}

// Observable wraps a state object so that every assignment, at any depth,
// produces one Change. Nested map[string]any values are wrapped in child
// Observables; every other value is a terminal leaf.
type Observable struct {
	tree     *observableTree
	prefix   string
	data     map[string]any // terminal values or *Observable children
	detached bool
}

// Observe wraps target and reports each mutation to onMutate. The target map
// is copied: later edits of target itself are not observed.
func Observe(target map[string]any, onMutate MutateFunc) (*Observable, error) {
	return observe(target, newDispatcher(), onMutate)
}

func observe(target map[string]any, disp *dispatcher, onMutate MutateFunc) (*Observable, error) {
	if target == nil {
		return nil, fmt.Errorf("observe state: %w", ErrNotObject)
	}
	t := &observableTree{disp: disp, notify: onMutate}
	return t.node("", target), nil
}

func (t *observableTree) node(prefix string, src map[string]any) *Observable {
	o := &Observable{
		tree:   t,
		prefix: prefix,
		data:   make(map[string]any, len(src)),
	}
	for k, v := range src {
		o.data[k] = o.wrap(k, v)
	}
	return o
}

// detach stops notifications for the whole tree
func (t *observableTree) detach() {
	t.mu.Lock()
	t.notify = nil
	t.mu.Unlock()
}

func (o *Observable) wrap(key string, v any) any {
	if m, ok := v.(map[string]any); ok && m != nil {
		return o.tree.node(o.join(key), m)
	}
	return v
}

func (o *Observable) join(key string) string {
	if o.prefix == "" {
		return key
	}
	return o.prefix + "." + key
}

// Path returns the dotted path of this node, empty for the root
func (o *Observable) Path() string {
	return o.prefix
}

// Get returns the current value of key. Nested objects are returned as *Observable.
func (o *Observable) Get(key string) (any, bool) {
	o.tree.mu.Lock()
	defer o.tree.mu.Unlock()
	v, ok := o.data[key]
	return v, ok
}

// Child returns the nested object stored under key
func (o *Observable) Child(key string) (*Observable, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	child, ok := v.(*Observable)
	return child, ok
}

// Lookup resolves a dotted path relative to this node
func (o *Observable) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := o
	for i, part := range parts {
		v, ok := cur.Get(part)
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if cur, ok = v.(*Observable); !ok {
			return nil, false
		}
	}
	return nil, false
}

// Set stores value under key and delivers one Change. Setting a value equal
// to the current one still notifies. Set returns once the Change has been
// delivered, with the hook error of that delivery; the value is stored
// regardless. Called from inside a hook, the Change is queued behind the
// running notification and its error surfaces on the outer call.
func (o *Observable) Set(key string, value any) error {
	if other, ok := value.(*Observable); ok {
		value = other.Snapshot()
	}

	t := o.tree
	t.mu.Lock()
	old := o.data[key]
	if child, ok := old.(*Observable); ok {
		old = child.snapshotLocked()
		child.detachLocked()
	}
	o.data[key] = o.wrap(key, value)

	var tk *ticket
	if notify := t.notify; notify != nil && !o.detached {
		c := Change{Path: o.join(key), OldValue: old, NewValue: value}
		tk = t.disp.post(func() error { return notify(c) })
	}
	t.mu.Unlock()

	if tk == nil {
		return nil
	}
	return t.disp.wait(tk)
}

// SetPath assigns value at a dotted path relative to this node. Every
// segment but the last must be an existing nested object.
func (o *Observable) SetPath(path string, value any) error {
	parts := strings.Split(path, ".")
	cur := o
	for _, part := range parts[:len(parts)-1] {
		v, ok := cur.Get(part)
		if !ok {
			return fmt.Errorf("set %q: %w", path, ErrPathNotFound)
		}
		next, ok := v.(*Observable)
		if !ok {
			return fmt.Errorf("set %q: %s: %w", path, part, ErrNotObject)
		}
		cur = next
	}
	return cur.Set(parts[len(parts)-1], value)
}

func (o *Observable) detachLocked() {
	o.detached = true
	for _, v := range o.data {
		if child, ok := v.(*Observable); ok {
			child.detachLocked()
		}
	}
}

// Keys returns the property names of this node, sorted
func (o *Observable) Keys() []string {
	o.tree.mu.Lock()
	defer o.tree.mu.Unlock()
	keys := make([]string, 0, len(o.data))
	for k := range o.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of properties of this node
func (o *Observable) Len() int {
	o.tree.mu.Lock()
	defer o.tree.mu.Unlock()
	return len(o.data)
}

// Leaves returns the dotted paths of every terminal value below this node, sorted
func (o *Observable) Leaves() []string {
	o.tree.mu.Lock()
	defer o.tree.mu.Unlock()
	var out []string
	o.leavesLocked(&out)
	sort.Strings(out)
	return out
}

func (o *Observable) leavesLocked(out *[]string) {
	for k, v := range o.data {
		if child, ok := v.(*Observable); ok {
			child.leavesLocked(out)
			continue
		}
		*out = append(*out, o.join(k))
	}
}

// Snapshot returns a deep plain copy of this node
func (o *Observable) Snapshot() map[string]any {
	o.tree.mu.Lock()
	defer o.tree.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Observable) snapshotLocked() map[string]any {
	out := make(map[string]any, len(o.data))
	for k, v := range o.data {
		if child, ok := v.(*Observable); ok {
			out[k] = child.snapshotLocked()
			continue
		}
		out[k] = v
	}
	return out
}

func (o *Observable) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Snapshot())
}
