// Package eventloop implements a cooperative, single-threaded concurrency
// runtime: a process-local event loop driving deferred results ("futures")
// and generator-style coroutines ("tasklets").
//
// # Architecture
//
// A [Loop] owns three queues — an immediate FIFO, a due-time-ordered timer
// heap, and an idlers list — plus a set of in-flight RPC handles. [Loop.Run1]
// performs exactly one unit of progress, always preferring immediate work
// over timers, timers over idlers, and idlers over blocking on transport
// progress. This priority order is the entire scheduling policy: there is no
// preemption and no parallelism inside a single Loop.
//
// # Thread Safety
//
// A Loop is NOT safe for concurrent use. All queue and future mutation
// happens on the single goroutine driving [Loop.Run]/[Loop.Run1]. The only
// exception is [Loop.QueueRPC], whose completion side may legitimately be
// signalled from another goroutine (e.g. a network client's callback);
// internally this is bridged back onto the Loop's own goroutine before any
// shared state is touched, following the same single-owner handoff pattern
// used throughout this package for tasklet suspension.
//
// # Execution Model
//
// [Tasklet] functions suspend only at explicit [Tasklet.Await] calls on a
// [Future], an RPC handle, or a slice of either. Plain function calls never
// suspend. Suspension is implemented by running the tasklet body on its own
// goroutine, parked on an unbuffered channel at every await point, so that
// exactly one goroutine is ever executing core state at a time — the Go
// analogue of a generator's yield, built from goroutines and channels
// because the language has no native coroutine primitive.
//
// # Error Types
//
// [DeadlockError] is set on every future still pending when the loop has
// genuinely run out of work. [EndOfQueueError] is the terminal value
// delivered by [QueueFuture] and [SerialQueueFuture] once drained.
package eventloop
