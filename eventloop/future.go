package eventloop

import (
	"fmt"
	"runtime"
)

// futureState is the lifecycle state of a Future (spec.md §3 "Future").
type futureState int

const (
	statePending futureState = iota
	stateSuccess
	stateFailure
)

type callback struct {
	fn   func(v any, err error)
	args any // free-form, carried for diagnostics only
}

// Future is a single-assignment result cell with states
// {PENDING, SUCCESS(value), FAILURE(err)}. It is not safe for concurrent
// mutation: all transitions happen on the owning Loop's goroutine.
type Future struct {
	loop  *Loop
	state futureState
	value any
	err   error

	callbacks []callback

	// next is a forward-link to a Future this one is (currently) blocked
	// on, used only for deadlock diagnostics (spec.md §3).
	next *Future

	id     uint64
	origin string
	info   string
}

// NewFuture creates a pending Future registered with the loop's pending set.
// origin/info are retained only for DEADLOCK diagnostics.
func (l *Loop) NewFuture(info string) *Future {
	_, file, line, ok := runtime.Caller(1)
	origin := "unknown"
	if ok {
		origin = fmt.Sprintf("%s:%d", file, line)
	}
	f := &Future{loop: l, state: statePending, origin: origin, info: info}
	f.id = l.registry.track(f)
	return f
}

// ID is a stable diagnostic identifier, unique within the owning Loop.
func (f *Future) ID() uint64 { return f.id }

// Info is the free-form label supplied at creation.
func (f *Future) Info() string { return f.info }

// Origin is the creation site captured at construction.
func (f *Future) Origin() string { return f.origin }

// Done reports whether the future has left PENDING.
func (f *Future) Done() bool { return f.state != statePending }

// SetResult transitions a PENDING future to SUCCESS, scheduling every
// registered callback onto the loop's immediate queue in registration order.
func (f *Future) SetResult(v any) {
	if f.state != statePending {
		panic("eventloop: SetResult called on a non-pending Future")
	}
	f.state = stateSuccess
	f.value = v
	f.loop.registry.untrack(f.id)
	f.fireCallbacks()
}

// SetException transitions a PENDING future to FAILURE.
func (f *Future) SetException(err error) {
	if err == nil {
		panic("eventloop: SetException called with a nil error")
	}
	if f.state != statePending {
		panic("eventloop: SetException called on a non-pending Future")
	}
	f.state = stateFailure
	f.err = err
	f.loop.registry.untrack(f.id)
	f.fireCallbacks()
}

func (f *Future) fireCallbacks() {
	cbs := f.callbacks
	f.callbacks = nil
	v, err := f.value, f.err
	for _, cb := range cbs {
		cb := cb
		f.loop.QueueCall(0, func() { cb.fn(v, err) })
	}
}

// AddCallback registers fn to run (on the immediate queue) when the future
// settles. If it is already done, fn is scheduled immediately.
func (f *Future) AddCallback(fn func(v any, err error)) {
	if f.state != statePending {
		v, err := f.value, f.err
		f.loop.QueueCall(0, func() { fn(v, err) })
		return
	}
	f.callbacks = append(f.callbacks, callback{fn: fn})
}

// Wait drives the loop (Run1) until the future settles. If the loop reports
// no further progress possible while this (or other) futures remain
// pending, every pending future is failed with DeadlockError.
func (f *Future) Wait() {
	for f.state == statePending {
		if !f.loop.Run1() {
			f.loop.failAllPending()
			return
		}
	}
}

// GetResult waits for the future then returns its value, or panics-as-error
// by returning the stored failure. Mirrors spec.md's getResult(): "wait()
// then return value or re-raise failure" — expressed in Go as an (value,
// error) pair rather than a raised exception.
func (f *Future) GetResult() (any, error) {
	f.Wait()
	if f.state == stateFailure {
		return nil, f.err
	}
	return f.value, nil
}

// GetException waits for the future and returns its failure, or nil if it
// succeeded.
func (f *Future) GetException() error {
	f.Wait()
	return f.err
}

// CheckSuccess waits for the future and returns its failure (nil on
// success), without surfacing the value. Ported from
// original_source/ndb/tasklets.py Future.check_success, used for
// fire-and-forget writes where only failure matters (SPEC_FULL.md §4.1).
func (f *Future) CheckSuccess() error { return f.GetException() }

// WaitAny drives the loop until at least one future in the set is done,
// returning the first one found done.
func WaitAny(futs []*Future) *Future {
	if len(futs) == 0 {
		return nil
	}
	l := futs[0].loop
	for {
		for _, f := range futs {
			if f.Done() {
				return f
			}
		}
		if !l.Run1() {
			l.failAllPending()
			return futs[0]
		}
	}
}

// WaitAll drives the loop until every future in the set is done.
func WaitAll(futs []*Future) {
	for _, f := range futs {
		f.Wait()
	}
}
