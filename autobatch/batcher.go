// Package autobatch implements the AutoBatcher: a coalescer that groups
// concurrent single-item calls sharing identical options into one batched
// call to a user-supplied "todo-tasklet", flushing on a size threshold or
// on event-loop idle (spec.md §4.2).
//
// Grounded on original_source/ndb/autobatcher.py for control flow and on
// the teacher's microbatch/microbatch.go for Go-idiomatic naming
// (generic Batcher[...], JobResult-style items) — see DESIGN.md.
package autobatch

import (
	"github.com/joeycumines/go-entitydb/eventloop"
)

// Item is one queued (future, arg) pair handed to a todo-tasklet.
type Item[Arg any] struct {
	Future *eventloop.Future
	Arg    Arg
}

// TodoTasklet is the per-batcher user routine that issues one batched call.
// It must be a tasklet body (it receives a *eventloop.Tasklet so it may
// Await an Rpc or Future) and is responsible for resolving every Item's
// Future itself on success; returning an error causes the Batcher to fan
// that error out to every still-pending Item in the batch (spec.md §4.2
// "Todo-tasklet contract").
type TodoTasklet[Options comparable, Arg any] func(t *eventloop.Tasklet, items []Item[Arg], options Options) (any, error)

// Config configures a Batcher.
type Config struct {
	// Limit is the maximum queue length, per options bucket, before a
	// forced synchronous flush. Default 100 (spec.md §6 autoBatchLimit).
	Limit int
}

// Batcher coalesces Add calls sharing identical Options into batches,
// flushed either by reaching Limit or by the owning Loop's idle callback.
type Batcher[Options comparable, Arg any] struct {
	loop   *eventloop.Loop
	todo   TodoTasklet[Options, Arg]
	limit  int
	name   string

	queues      map[Options][]Item[Arg]
	bucketOrder []Options // FIFO across buckets (DESIGN.md open-question #1)

	running int
	dedup   map[dedupKey[Options, Arg]]*eventloop.Future

	idlerInstalled bool
}

type dedupKey[Options comparable, Arg any] struct {
	options Options
	arg     any
}

// New constructs a Batcher bound to loop, invoking todo for each flushed
// batch.
func New[Options comparable, Arg any](loop *eventloop.Loop, name string, todo TodoTasklet[Options, Arg], cfg Config) *Batcher[Options, Arg] {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	return &Batcher[Options, Arg]{
		loop:   loop,
		todo:   todo,
		limit:  limit,
		name:   name,
		queues: make(map[Options][]Item[Arg]),
		dedup:  make(map[dedupKey[Options, Arg]]*eventloop.Future),
	}
}

// Add enqueues arg under options and returns a Future for its eventual
// per-item result (spec.md §4.2 "add").
func (b *Batcher[Options, Arg]) Add(options Options, arg Arg) *eventloop.Future {
	f := b.loop.NewFuture(b.name + ".add")

	q, ok := b.queues[options]
	if !ok {
		if len(b.queues) == 0 {
			b.installIdler()
		}
		b.bucketOrder = append(b.bucketOrder, options)
	}
	q = append(q, Item[Arg]{Future: f, Arg: arg})
	b.queues[options] = q

	if len(q) >= b.limit {
		delete(b.queues, options)
		b.removeBucket(options)
		b.runQueue(options, q)
	}
	return f
}

// AddOnce returns a cached in-flight Future for an identical (arg, options)
// pair if one exists, else behaves like Add and caches the result, evicting
// the cache entry once the future settles (spec.md §4.2 "addOnce",
// original_source/ndb/autobatcher.py "add_once").
func (b *Batcher[Options, Arg]) AddOnce(options Options, arg Arg) *eventloop.Future {
	key := dedupKey[Options, Arg]{options: options, arg: any(arg)}
	if f, ok := b.dedup[key]; ok {
		return f
	}
	f := b.Add(options, arg)
	b.dedup[key] = f
	f.AddCallback(func(any, error) { delete(b.dedup, key) })
	return f
}

func (b *Batcher[Options, Arg]) installIdler() {
	if b.idlerInstalled {
		return
	}
	b.idlerInstalled = true
	b.loop.AddIdle(func() bool {
		ok := b.action()
		if !ok {
			b.idlerInstalled = false
		}
		return ok
	})
}

// action pops one bucket, FIFO by first-touch order across buckets
// (DESIGN.md open-question #1 — resolves spec.md §9's open question in
// favor of determinism over the original's dict.popitem()).
func (b *Batcher[Options, Arg]) action() bool {
	if len(b.bucketOrder) == 0 {
		return false
	}
	options := b.bucketOrder[0]
	b.bucketOrder = b.bucketOrder[1:]
	q := b.queues[options]
	delete(b.queues, options)
	b.runQueue(options, q)
	return true
}

func (b *Batcher[Options, Arg]) removeBucket(options Options) {
	for i, o := range b.bucketOrder {
		if o == options {
			b.bucketOrder = append(b.bucketOrder[:i], b.bucketOrder[i+1:]...)
			return
		}
	}
}

func (b *Batcher[Options, Arg]) runQueue(options Options, items []Item[Arg]) {
	b.running++
	batchFut := b.loop.Spawn(b.name+".todo", func(t *eventloop.Tasklet) (any, error) {
		return b.todo(t, items, options)
	})
	batchFut.AddCallback(func(_ any, err error) {
		b.running--
		if err == nil {
			return
		}
		for _, it := range items {
			if !it.Future.Done() {
				it.Future.SetException(err)
			}
		}
	})
}

// Flush drives the loop until no batches are in flight and no items remain
// queued (spec.md §4.2 "flush()").
func (b *Batcher[Options, Arg]) Flush() {
	for b.running > 0 || len(b.bucketOrder) > 0 {
		if len(b.bucketOrder) > 0 {
			b.action()
		}
		if !b.loop.Run1() {
			return
		}
	}
}
