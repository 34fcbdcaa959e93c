// Package remotecache implements a batched memcache-style client layered
// over store.Stub's Memcache* RPCs, grounded on
// original_source/ndb/memcache_client.py (SPEC_FULL.md §4.1 "remote cache").
// It is the concrete type store.Context consumes through the narrow
// store.RemoteCache interface.
//
// Client's public methods (Get, Set, CompareAndSwap, DeleteKey, Incr, Decr)
// resolve their underlying Future synchronously via GetResult, which drives
// the Loop directly (eventloop.Future.Wait). They are therefore top-level,
// non-tasklet entry points, the same contract as eventloop.Loop.SyncTasklet:
// never call them from inside a tasklet body or a todo-tasklet, since doing
// so would re-enter the Loop recursively on the same goroutine that is
// already driving it. Code running inside a tasklet should instead submit
// through the batchers directly and Await the result.
package remotecache

import (
	gocontext "context"
	"time"

	"github.com/joeycumines/go-entitydb/autobatch"
	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/internal/obslog"
	"github.com/joeycumines/go-entitydb/store"
	"github.com/joeycumines/logiface"
)

// defaultKeyPrefix mirrors original_source/ndb/memcache_client.py's
// `_memcache_prefix = 'NDB9:'`.
const defaultKeyPrefix = "NDB9:"

type getOptions struct {
	namespace string
	forCas    bool
	deadline  float64
}

type setOptions struct {
	op        store.MemcacheSetOp
	namespace string
	deadline  float64
}

type deleteOptions struct {
	namespace    string
	graceSeconds float64
	deadline     float64
}

type offsetOptions struct {
	namespace string
	deadline  float64
}

type setArg struct {
	key      string
	value    []byte
	ttl      float64
	casToken any
}

type offsetArg struct {
	key          string
	delta        int64
	initialValue *uint64
}

// Client batches individual memcache-style calls through store.Stub,
// resolving the ambient namespace per call via a store.NamespaceResolver
// (spec.md §6 "NamespaceResolver.current()").
type Client struct {
	loop      *eventloop.Loop
	stub      store.Stub
	ns        store.NamespaceResolver
	keyPrefix string
	deadline  time.Duration
	logger    *logiface.Logger[logiface.Event]

	getBatcher    *autobatch.Batcher[getOptions, string]
	setBatcher    *autobatch.Batcher[setOptions, setArg]
	deleteBatcher *autobatch.Batcher[deleteOptions, string]
	offsetBatcher *autobatch.Batcher[offsetOptions, offsetArg]
}

// Option configures a Client at construction time.
type Option interface{ apply(*clientConfig) }

type clientConfig struct {
	keyPrefix      string
	defaultDeadline time.Duration
	autoBatchLimit int
	logger         *logiface.Logger[logiface.Event]
}

type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

// WithKeyPrefix overrides the default "NDB9:" key prefix.
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) { c.keyPrefix = prefix })
}

// WithDefaultDeadline sets the deadline used when a call doesn't specify one.
func WithDefaultDeadline(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) { c.defaultDeadline = d })
}

// WithAutoBatchLimit sets the per-bucket forced-flush threshold.
func WithAutoBatchLimit(n int) Option {
	return optionFunc(func(c *clientConfig) { c.autoBatchLimit = n })
}

// WithLogger attaches a structured logger.
func WithLogger(l *logiface.Logger[logiface.Event]) Option {
	return optionFunc(func(c *clientConfig) { c.logger = l })
}

// New constructs a Client bound to loop, issuing batched calls through stub
// and resolving namespaces via ns.
func New(loop *eventloop.Loop, stub store.Stub, ns store.NamespaceResolver, opts ...Option) *Client {
	cfg := &clientConfig{keyPrefix: defaultKeyPrefix, autoBatchLimit: 100}
	for _, o := range opts {
		o.apply(cfg)
	}
	c := &Client{
		loop:      loop,
		stub:      stub,
		ns:        ns,
		keyPrefix: cfg.keyPrefix,
		deadline:  cfg.defaultDeadline,
		logger:    obslog.Bind(cfg.logger, "remotecache"),
	}
	c.getBatcher = autobatch.New(loop, "memcache.get", c.getTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	c.setBatcher = autobatch.New(loop, "memcache.set", c.setTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	c.deleteBatcher = autobatch.New(loop, "memcache.delete", c.deleteTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	c.offsetBatcher = autobatch.New(loop, "memcache.offset", c.offsetTodo, autobatch.Config{Limit: cfg.autoBatchLimit})
	return c
}

func (c *Client) prefixed(key string) string { return c.keyPrefix + key }

func (c *Client) deadlineSeconds(override time.Duration) float64 {
	d := c.deadline
	if override > 0 {
		d = override
	}
	return d.Seconds()
}

func (c *Client) namespace() string {
	if c.ns == nil {
		return ""
	}
	return c.ns.Current()
}

// Get fetches one value. Found is false on a cache miss.
func (c *Client) Get(ctx gocontext.Context, key string) (value []byte, found bool, err error) {
	_, endSpan := obslog.StartSpan(ctx, "remotecache.Get")
	defer endSpan()
	f := c.getBatcher.AddOnce(getOptions{namespace: c.namespace(), deadline: c.deadlineSeconds(0)}, c.prefixed(key))
	v, err := f.GetResult()
	if err != nil {
		return nil, false, err
	}
	res := v.(store.MemcacheGetResult)
	return res.Value, res.Found, nil
}

// GetBytes satisfies store.RemoteCache.
func (c *Client) GetBytes(key string) ([]byte, bool, error) {
	return c.Get(gocontext.Background(), key)
}

func (c *Client) getTodo(t *eventloop.Tasklet, items []autobatch.Item[string], options getOptions) (any, error) {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Arg
	}
	v, err := t.Await(c.stub.AsyncMemcacheGetMulti(keys, store.MemcacheGetOptions{
		Namespace: options.namespace,
		ForCas:    options.forCas,
		Deadline:  options.deadline,
	}))
	if err != nil {
		return nil, &store.RPCError{Op: "memcacheGetMulti", Cause: err}
	}
	results := v.([]store.MemcacheGetResult)
	byKey := make(map[string]store.MemcacheGetResult, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for _, it := range items {
		if it.Future.Done() {
			continue
		}
		if r, ok := byKey[it.Arg]; ok {
			it.Future.SetResult(r)
		} else {
			it.Future.SetResult(store.MemcacheGetResult{Key: it.Arg, Found: false})
		}
	}
	return nil, nil
}

// Set writes a value, following the set/add/replace semantics of op.
func (c *Client) Set(ctx gocontext.Context, key string, value []byte, ttl time.Duration, op store.MemcacheSetOp) (stored bool, err error) {
	_, endSpan := obslog.StartSpan(ctx, "remotecache.Set")
	defer endSpan()
	f := c.setBatcher.Add(setOptions{op: op, namespace: c.namespace(), deadline: c.deadlineSeconds(0)}, setArg{key: c.prefixed(key), value: value, ttl: ttl.Seconds()})
	v, err := f.GetResult()
	if err != nil {
		return false, err
	}
	return v.(store.MemcacheSetResult).Stored, nil
}

// CompareAndSwap is the "gets"/"cas" pairing from
// original_source/ndb/memcache_client.py: GetForCAS fetches value + token,
// CompareAndSwap attempts the conditional write.
func (c *Client) GetForCAS(ctx gocontext.Context, key string) (value []byte, found bool, casToken any, err error) {
	_, endSpan := obslog.StartSpan(ctx, "remotecache.GetForCAS")
	defer endSpan()
	f := c.getBatcher.Add(getOptions{namespace: c.namespace(), forCas: true, deadline: c.deadlineSeconds(0)}, c.prefixed(key))
	v, err := f.GetResult()
	if err != nil {
		return nil, false, nil, err
	}
	res := v.(store.MemcacheGetResult)
	return res.Value, res.Found, res.CASToken, nil
}

func (c *Client) CompareAndSwap(ctx gocontext.Context, key string, value []byte, ttl time.Duration, casToken any) (stored bool, err error) {
	_, endSpan := obslog.StartSpan(ctx, "remotecache.CompareAndSwap")
	defer endSpan()
	f := c.setBatcher.Add(setOptions{op: store.MemcacheCAS, namespace: c.namespace(), deadline: c.deadlineSeconds(0)}, setArg{key: c.prefixed(key), value: value, ttl: ttl.Seconds(), casToken: casToken})
	v, err := f.GetResult()
	if err != nil {
		return false, err
	}
	return v.(store.MemcacheSetResult).Stored, nil
}

func (c *Client) setTodo(t *eventloop.Tasklet, items []autobatch.Item[setArg], options setOptions) (any, error) {
	set := make([]store.MemcacheSetItem, len(items))
	for i, it := range items {
		set[i] = store.MemcacheSetItem{Key: it.Arg.key, Value: it.Arg.value, TTL: it.Arg.ttl, CASToken: it.Arg.casToken}
	}
	v, err := t.Await(c.stub.AsyncMemcacheSetMulti(set, store.MemcacheSetOptions{
		Op:        options.op,
		Namespace: options.namespace,
		Deadline:  options.deadline,
	}))
	if err != nil {
		return nil, &store.RPCError{Op: "memcacheSetMulti", Cause: err}
	}
	results := v.([]store.MemcacheSetResult)
	byKey := make(map[string]store.MemcacheSetResult, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for _, it := range items {
		if it.Future.Done() {
			continue
		}
		if r, ok := byKey[it.Arg.key]; ok {
			it.Future.SetResult(r)
		} else {
			it.Future.SetResult(store.MemcacheSetResult{Key: it.Arg.key, Stored: false})
		}
	}
	return nil, nil
}

// DeleteKey satisfies store.RemoteCache: invalidate key, optionally
// withholding it from re-add for ttl (the "grace period" — spec.md §4.4).
func (c *Client) DeleteKey(key string, ttl time.Duration) error {
	out := c.deleteBatcher.Add(deleteOptions{namespace: c.namespace(), graceSeconds: ttl.Seconds(), deadline: c.deadlineSeconds(0)}, c.prefixed(key))
	_, err := out.GetResult()
	return err
}

func (c *Client) deleteTodo(t *eventloop.Tasklet, items []autobatch.Item[string], options deleteOptions) (any, error) {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Arg
	}
	v, err := t.Await(c.stub.AsyncMemcacheDeleteMulti(keys, store.MemcacheDeleteOptions{
		Namespace:    options.namespace,
		GraceSeconds: options.graceSeconds,
		Deadline:     options.deadline,
	}))
	if err != nil {
		return nil, &store.RPCError{Op: "memcacheDeleteMulti", Cause: err}
	}
	results := v.([]store.MemcacheDeleteResult)
	byKey := make(map[string]store.MemcacheDeleteResult, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for _, it := range items {
		if it.Future.Done() {
			continue
		}
		if r, ok := byKey[it.Arg]; ok {
			it.Future.SetResult(r)
		} else {
			it.Future.SetResult(store.MemcacheDeleteResult{Key: it.Arg, Status: store.MemcacheDeleted})
		}
	}
	return nil, nil
}

// Incr/Decr implement the offset operations, carrying InitialValue forward
// per original_source/ndb/memcache_client.py's "initial_value" semantics:
// a key missing entirely is seeded with InitialValue before the delta is
// applied, rather than treated as an error (SPEC_FULL.md §4.1).
func (c *Client) Incr(ctx gocontext.Context, key string, delta int64, initialValue *uint64) (value uint64, found bool, err error) {
	return c.offset(ctx, key, delta, initialValue)
}

func (c *Client) Decr(ctx gocontext.Context, key string, delta int64, initialValue *uint64) (value uint64, found bool, err error) {
	return c.offset(ctx, key, -delta, initialValue)
}

func (c *Client) offset(ctx gocontext.Context, key string, delta int64, initialValue *uint64) (value uint64, found bool, err error) {
	_, endSpan := obslog.StartSpan(ctx, "remotecache.Offset")
	defer endSpan()
	f := c.offsetBatcher.Add(offsetOptions{namespace: c.namespace(), deadline: c.deadlineSeconds(0)}, offsetArg{key: c.prefixed(key), delta: delta, initialValue: initialValue})
	v, err := f.GetResult()
	if err != nil {
		return 0, false, err
	}
	res := v.(store.MemcacheOffsetResult)
	return res.Value, res.Found, nil
}

func (c *Client) offsetTodo(t *eventloop.Tasklet, items []autobatch.Item[offsetArg], options offsetOptions) (any, error) {
	off := make([]store.MemcacheOffsetItem, len(items))
	for i, it := range items {
		off[i] = store.MemcacheOffsetItem{Key: it.Arg.key, Delta: it.Arg.delta, InitialValue: it.Arg.initialValue}
	}
	v, err := t.Await(c.stub.AsyncMemcacheOffsetMulti(off, store.MemcacheOffsetOptions{
		Namespace: options.namespace,
		Deadline:  options.deadline,
	}))
	if err != nil {
		return nil, &store.RPCError{Op: "memcacheOffsetMulti", Cause: err}
	}
	results := v.([]store.MemcacheOffsetResult)
	byKey := make(map[string]store.MemcacheOffsetResult, len(results))
	for _, r := range results {
		byKey[r.Key] = r
	}
	for _, it := range items {
		if it.Future.Done() {
			continue
		}
		if r, ok := byKey[it.Arg.key]; ok {
			it.Future.SetResult(r)
		} else {
			it.Future.SetResult(store.MemcacheOffsetResult{Key: it.Arg.key, Found: false})
		}
	}
	return nil, nil
}
