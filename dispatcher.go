package drivercore

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// errDispatchAborted is returned to waiters whose notification was dropped
// because an earlier hook panicked
var errDispatchAborted = errors.New("notification dropped: an earlier hook panicked")

type postRole int

const (
	roleOwner  postRole = iota // caller drains the queue
	roleNested                 // posted from a hook running on the draining goroutine
	roleWaiter                 // posted from another goroutine during a drain
)

// ticket is one posted notification
type ticket struct {
	fn   func() error
	role postRole
	err  error
	done chan struct{} // waiters only
}

// dispatcher delivers notifications one at a time in the order they were
// posted, all on the goroutine that found it idle (the owner).
//
// A post from a hook running on the owner is queued behind the notification
// being delivered. A post from any other goroutine is queued too, and its
// poster blocks until that notification has been delivered and gets its own
// hook error back.
type dispatcher struct {
	mu    sync.Mutex
	owner uint64 // goroutine id of the draining goroutine, 0 when idle
	queue []*ticket
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}

// post queues fn. The caller must pass the ticket to wait once it has
// released its own locks.
func (d *dispatcher) post(fn func() error) *ticket {
	id := goid()
	t := &ticket{fn: fn}

	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.owner {
	case 0:
		d.owner = id
		t.role = roleOwner
	case id:
		t.role = roleNested
	default:
		t.role = roleWaiter
		t.done = make(chan struct{})
	}
	d.queue = append(d.queue, t)
	return t
}

// wait settles a ticket. An owner drains and returns its own error joined
// with errors of nested posts; a waiter blocks for its own error; a nested
// post returns immediately, its error surfaces on the owner.
func (d *dispatcher) wait(t *ticket) error {
	switch t.role {
	case roleNested:
		return nil
	case roleWaiter:
		<-t.done
		return t.err
	default:
		return d.drain()
	}
}

// do posts fn and settles it
func (d *dispatcher) do(fn func() error) error {
	return d.wait(d.post(fn))
}

// run delivers fn before returning. Called from a hook on the draining
// goroutine, fn runs inline ahead of anything queued.
func (d *dispatcher) run(fn func() error) error {
	d.mu.Lock()
	inline := d.owner != 0 && d.owner == goid()
	d.mu.Unlock()
	if inline {
		return fn()
	}
	return d.do(fn)
}

func (d *dispatcher) drain() error {
	var (
		errs    []error
		current *ticket
	)
	defer func() {
		if r := recover(); r != nil {
			d.abort(current, r)
			panic(r)
		}
	}()

	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.owner = 0
			d.mu.Unlock()
			return errors.Join(errs...)
		}
		current = d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		current.err = current.fn()
		if current.done != nil {
			close(current.done)
		} else if current.err != nil {
			errs = append(errs, current.err)
		}
		current = nil
	}
}

// abort releases the dispatcher after a hook panicked. Queued
// notifications are dropped and their waiters released with an error.
func (d *dispatcher) abort(current *ticket, r any) {
	d.mu.Lock()
	dropped := d.queue
	d.queue = nil
	d.owner = 0
	d.mu.Unlock()

	if current != nil && current.done != nil {
		current.err = fmt.Errorf("hook panicked: %v", r)
		close(current.done)
	}
	for _, t := range dropped {
		if t.done != nil {
			t.err = errDispatchAborted
			close(t.done)
		}
	}
}

var goroutinePrefix = []byte("goroutine ")

// goid returns the id of the calling goroutine, parsed from its stack header
// ("goroutine 42 [running]:").
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		panic(fmt.Sprintf("drivercore: cannot parse goroutine id from %q", buf[:n]))
	}
	return id
}
