// Package store implements the session Context: a per-request in-memory
// cache and transactional scope layered over an async remote Stub, routing
// individual operations through per-operation AutoBatchers (spec.md §4.3).
package store

import (
	gocontext "context"
	"time"

	"github.com/joeycumines/go-entitydb/autobatch"
	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/internal/obslog"
	"github.com/joeycumines/logiface"
)

// Context owns a Connection (here: a Stub plus an optional bound
// transaction handle), four per-operation AutoBatchers, a RemoteCache
// handle, a session cache, and policy predicates (spec.md §4.3).
//
// RemoteCache is declared as an interface here (rather than importing
// package remotecache directly) to avoid a cyclic dependency: remotecache
// itself is built from the same collaborator primitives as store and does
// not need to depend on it.
type Context struct {
	loop  *eventloop.Loop
	stub  Stub
	codec Codec
	qe    func(query any, options QueryOptions) QueryEngine

	tx TxHandle // nil outside a transaction

	cfg   *config
	cache *sessionCache

	remoteCache RemoteCache

	getBatcher    *autobatch.Batcher[GetOptions, *Key]
	putBatcher    *autobatch.Batcher[PutOptions, Entity]
	deleteBatcher *autobatch.Batcher[DeleteOptions, *Key]
	allocBatcher  *autobatch.Batcher[allocOptions, allocArg]

	logger *logiface.Logger[logiface.Event]

	// transactional is true for a child Context created by Transaction
	// (spec.md §4.3 "a reentrancy flag").
	transactional bool
	parent        *Context
}

// RemoteCache is the subset of remotecache.Client's surface Context needs:
// reads (GetBytes) and delete-only-on-write invalidation (DeleteKey).
// Context never stores values in the remote cache: a Get that misses it
// fetches from the Stub and fills only the session cache. Satisfied by
// *remotecache.Client.
type RemoteCache interface {
	GetBytes(key string) ([]byte, bool, error)
	DeleteKey(key string, ttl time.Duration) error
}

// NewContext constructs a root (non-transactional) Context.
func NewContext(loop *eventloop.Loop, stub Stub, codec Codec, remoteCache RemoteCache, opts ...Option) *Context {
	cfg := resolveOptions(opts)
	c := &Context{
		loop:        loop,
		stub:        stub,
		codec:       codec,
		cfg:         cfg,
		cache:       newSessionCache(),
		remoteCache: remoteCache,
		logger:      obslog.Bind(cfg.logger, "store"),
	}
	c.getBatcher = autobatch.New(loop, "get", c.getTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	c.putBatcher = autobatch.New(loop, "put", c.putTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	c.deleteBatcher = autobatch.New(loop, "delete", c.deleteTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	c.allocBatcher = autobatch.New(loop, "allocateIds", c.allocTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	return c
}

// Loop returns the Context's bound event loop.
func (c *Context) Loop() *eventloop.Loop { return c.loop }

func (c *Context) deadline(override time.Duration) float64 {
	d := c.cfg.defaultDeadline
	if override > 0 {
		d = override
	}
	return d.Seconds()
}

// Get resolves key to its decoded entity, or a nil Entity pointer if not
// found (NOT_FOUND is never an error — spec.md §7). Consults the session
// cache first; on miss, coalesces with any in-flight read for the same key
// (spec.md §4.3 "get").
func (c *Context) Get(ctx gocontext.Context, key *Key, opts GetCallOptions) *eventloop.Future {
	ctx, endSpan := obslog.StartSpan(ctx, "store.Get")

	useCache := c.cfg.cachePolicy(key)
	if opts.UseCache != nil {
		useCache = *opts.UseCache
	}

	if useCache {
		if s, ok := c.cache.get(key); ok {
			endSpan()
			switch s.kind {
			case slotEntity:
				f := c.loop.NewFuture("get.cache-hit")
				f.SetResult(&s.entity)
				return f
			case slotTombstone:
				f := c.loop.NewFuture("get.cache-tombstone")
				f.SetResult((*Entity)(nil))
				return f
			case slotPending:
				return s.future
			}
		}
	}

	out := c.loop.NewFuture("get")
	out.AddCallback(func(any, error) { endSpan() })
	if useCache {
		c.cache.setPending(key, out)
	}

	resolve := func(e *Entity, err error) {
		if err != nil {
			if useCache && c.cache.stillPending(key, out) {
				c.cache.delete(key)
			}
			out.SetException(err)
			return
		}
		if useCache && c.cache.stillPending(key, out) {
			if e != nil {
				c.cache.setEntity(key, *e)
			} else {
				c.cache.setTombstone(key)
			}
		}
		out.SetResult(e)
	}

	if opts.UseRemoteCache && c.remoteCache != nil {
		raw, found, err := c.remoteCache.GetBytes(key.String())
		if err == nil && found {
			e, decErr := c.codec.Decode(c.codec.KindOf(key), raw)
			if decErr == nil {
				resolve(&e, nil)
				return out
			}
		}
	}

	rpcOpts := GetOptions{Deadline: c.deadline(opts.Deadline), Tx: c.tx}
	batchFut := c.getBatcher.Add(rpcOpts, key)
	batchFut.AddCallback(func(v any, err error) {
		if err != nil {
			resolve(nil, err)
			return
		}
		res := v.(GetResult)
		if !res.Found {
			resolve(nil, nil)
			return
		}
		e := res.Entity
		resolve(&e, nil)
	})

	return out
}

// getTodo is the get-AutoBatcher's todo-tasklet: it issues one multi-key
// asyncGet and fans results back to each per-call future (spec.md §4.2
// "Todo-tasklet contract").
func (c *Context) getTodo(t *eventloop.Tasklet, items []autobatch.Item[*Key], options GetOptions) (any, error) {
	keys := make([]*Key, len(items))
	for i, it := range items {
		keys[i] = it.Arg
	}
	v, err := t.Await(c.stub.AsyncGet(keys, options))
	if err != nil {
		return nil, &RPCError{Op: "asyncGet", Cause: err}
	}
	results := v.([]GetResult)
	byKey := make(map[cacheKey]GetResult, len(results))
	for _, r := range results {
		byKey[r.Key.cacheKey()] = r
	}
	for _, it := range items {
		if it.Future.Done() {
			continue
		}
		if r, ok := byKey[it.Arg.cacheKey()]; ok {
			it.Future.SetResult(r)
		} else {
			it.Future.SetResult(GetResult{Key: it.Arg, Found: false})
		}
	}
	return nil, nil
}

// Put writes entity and returns a Future of its final key (which may
// differ from the entity's original key if the store assigns an id;
// spec.md §4.3 "put").
func (c *Context) Put(ctx gocontext.Context, e Entity, opts PutCallOptions) *eventloop.Future {
	ctx, endSpan := obslog.StartSpan(ctx, "store.Put")

	if e.Key != nil && e.Key.Complete() {
		c.cache.setEntity(e.Key, e)
	}

	out := c.loop.NewFuture("put")
	rpcOpts := PutOptions{Deadline: c.deadline(opts.Deadline), Tx: c.tx}
	batchFut := c.putBatcher.Add(rpcOpts, e)
	batchFut.AddCallback(func(v any, err error) {
		defer endSpan()
		if err != nil {
			out.SetException(err)
			return
		}
		res := v.(PutResult)
		if res.Err != nil {
			out.SetException(&RPCError{Op: "asyncPut", Cause: res.Err})
			return
		}
		c.cache.setEntity(res.FinalKey, Entity{Key: res.FinalKey, Body: e.Body})
		if opts.UseRemoteCache && c.remoteCache != nil && c.cfg.remoteCachePolicy(res.FinalKey) {
			// Puts never write-through; only invalidate (spec.md §4.3
			// invariant 5).
			_ = c.remoteCache.DeleteKey(res.FinalKey.String(), c.cfg.remoteCacheTTL(res.FinalKey))
		}
		out.SetResult(res.FinalKey)
	})
	return out
}

func (c *Context) putTodo(t *eventloop.Tasklet, items []autobatch.Item[Entity], options PutOptions) (any, error) {
	entities := make([]Entity, len(items))
	for i, it := range items {
		entities[i] = it.Arg
	}
	v, err := t.Await(c.stub.AsyncPut(entities, options))
	if err != nil {
		return nil, &RPCError{Op: "asyncPut", Cause: err}
	}
	results := v.([]PutResult)
	for i, it := range items {
		if it.Future.Done() {
			continue
		}
		if i < len(results) {
			it.Future.SetResult(results[i])
		} else {
			it.Future.SetResult(PutResult{Err: &RPCError{Op: "asyncPut", Cause: ErrShortResult}})
		}
	}
	return nil, nil
}

// Delete removes key. On success the session cache records a tombstone and
// a remote-cache delete is enqueued (spec.md §4.3 "delete").
func (c *Context) Delete(ctx gocontext.Context, key *Key, opts DeleteCallOptions) *eventloop.Future {
	ctx, endSpan := obslog.StartSpan(ctx, "store.Delete")

	out := c.loop.NewFuture("delete")
	rpcOpts := DeleteOptions{Deadline: c.deadline(opts.Deadline), Tx: c.tx}
	batchFut := c.deleteBatcher.Add(rpcOpts, key)
	batchFut.AddCallback(func(v any, err error) {
		defer endSpan()
		if err != nil {
			out.SetException(err)
			return
		}
		res := v.(DeleteResult)
		if res.Err != nil {
			out.SetException(&RPCError{Op: "asyncDelete", Cause: res.Err})
			return
		}
		c.cache.setTombstone(key)
		if opts.UseRemoteCache && c.remoteCache != nil {
			_ = c.remoteCache.DeleteKey(key.String(), 0)
		}
		out.SetResult(nil)
	})
	return out
}

func (c *Context) deleteTodo(t *eventloop.Tasklet, items []autobatch.Item[*Key], options DeleteOptions) (any, error) {
	keys := make([]*Key, len(items))
	for i, it := range items {
		keys[i] = it.Arg
	}
	v, err := t.Await(c.stub.AsyncDelete(keys, options))
	if err != nil {
		return nil, &RPCError{Op: "asyncDelete", Cause: err}
	}
	results := v.([]DeleteResult)
	byKey := make(map[cacheKey]DeleteResult, len(results))
	for _, r := range results {
		byKey[r.Key.cacheKey()] = r
	}
	for _, it := range items {
		if it.Future.Done() {
			continue
		}
		if r, ok := byKey[it.Arg.cacheKey()]; ok {
			it.Future.SetResult(r)
		} else {
			it.Future.SetResult(DeleteResult{Key: it.Arg})
		}
	}
	return nil, nil
}

type allocOptions struct{}

type allocArg struct {
	parent *Key
	size   int64
	max    int64
}

// AllocateIDs reserves a contiguous range of ids under parent, returning
// (loId, hiId) inclusive (spec.md §4.3 "allocateIds").
func (c *Context) AllocateIDs(ctx gocontext.Context, parent *Key, size, max int64) *eventloop.Future {
	ctx, endSpan := obslog.StartSpan(ctx, "store.AllocateIDs")
	f := c.allocBatcher.Add(allocOptions{}, allocArg{parent: parent, size: size, max: max})
	f.AddCallback(func(any, error) { endSpan() })
	return f
}

func (c *Context) allocTodo(t *eventloop.Tasklet, items []autobatch.Item[allocArg], options allocOptions) (any, error) {
	// AllocateIds has no natural multi-key batching contract in most
	// entity stores (each call specifies its own parent/size/max), so the
	// todo-tasklet fans out one asyncAllocateIds RPC per item, awaited
	// together via the tasklet runtime's []Awaitable dispatch (which
	// aggregates them as a MultiFuture internally — spec.md §4.1 "Y is a
	// finite ordered sequence of Futures (or RPCs)"). This still satisfies
	// §4.2's "one invocation of the todo-tasklet per idle turn" contract.
	awaitables := make([]eventloop.Awaitable, len(items))
	for i, it := range items {
		awaitables[i] = c.stub.AsyncAllocateIDs(it.Arg.parent, it.Arg.size, it.Arg.max)
	}
	v, err := t.Await(awaitables)
	if err != nil {
		return nil, &RPCError{Op: "asyncAllocateIds", Cause: err}
	}
	results := v.([]any)
	for i, it := range items {
		if !it.Future.Done() {
			it.Future.SetResult(results[i])
		}
	}
	return nil, nil
}

// ErrShortResult indicates a batch RPC returned fewer results than items
// submitted — a Stub contract violation.
var ErrShortResult = shortResultError{}

type shortResultError struct{}

func (shortResultError) Error() string { return "batch result shorter than submitted items" }
