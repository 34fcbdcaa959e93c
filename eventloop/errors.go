package eventloop

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopAlreadyRunning reports that Run was called on a loop that is
	// already running. Run does not check for this case and never returns it.
	ErrLoopAlreadyRunning = errors.New("eventloop: loop is already running")

	// ErrNotAwaitable is returned when a tasklet yields a value that is not
	// a *Future, an RPC handle, or a slice of awaitables.
	ErrNotAwaitable = errors.New("eventloop: yielded value is not awaitable")

	// ErrRawGeneratorUnsupported names the rejection of a yielded raw
	// generator. Nothing in this package returns it: Tasklet.Await fails any
	// value that is not a *Future, an Rpc or a []Awaitable with
	// ErrNotAwaitable.
	ErrRawGeneratorUnsupported = errors.New("eventloop: raw generators cannot be yielded, wrap in a Tasklet")
)

// PendingInfo describes one still-pending Future at the moment a Loop
// declares deadlock, for inclusion in a DeadlockError's diagnostic dump.
type PendingInfo struct {
	ID     uint64
	Origin string // creation site, e.g. "store/context.go:142"
	Info   string // free-form label, e.g. "get tasklet for key Foo:1"
}

// DeadlockError is set on every Future still pending when Run1 reports no
// further progress is possible (spec.md §5 "Deadlock handling").
type DeadlockError struct {
	Pending []PendingInfo
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("eventloop: deadlock detected with %d future(s) still pending", len(e.Pending))
}

// EndOfQueueError is the terminal value delivered by QueueFuture and
// SerialQueueFuture once the producer side has completed and all buffered
// results have been drained (spec.md §4.1 "Combinators").
type EndOfQueueError struct {
	// Cause is nil for a clean end-of-queue, or the error the producer
	// completed with (via Complete(err)) otherwise.
	Cause error
}

func (e *EndOfQueueError) Error() string {
	if e.Cause == nil {
		return "eventloop: end of queue"
	}
	return fmt.Sprintf("eventloop: end of queue: %v", e.Cause)
}

func (e *EndOfQueueError) Unwrap() error { return e.Cause }

// AggregateError describes the failure of one dependent among a set of
// dependent futures, by its position in addition order. MultiFuture and a
// tasklet's slice Await fail with the first dependent error as is, without
// wrapping it in an AggregateError.
type AggregateError struct {
	Cause error
	Index int // position of the failing dependent, in addition order
}

func (e *AggregateError) Error() string {
	return fmt.Sprintf("eventloop: dependent %d failed: %v", e.Index, e.Cause)
}

func (e *AggregateError) Unwrap() error { return e.Cause }

// WrapError wraps an error with a message, preserving the cause chain for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
