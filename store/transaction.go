package store

import (
	gocontext "context"

	"github.com/joeycumines/go-entitydb/autobatch"
	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/internal/obslog"
)

// Transaction begins a transaction, invokes cb against a fresh child Context
// (private session cache, remote cache disabled for writes, bound to the
// transactional handle), and commits or retries on a retryable failure
// (spec.md §4.3 "transaction"). EntityGroup is mandatory — DESIGN.md's Open
// Question decision rejects the original's implicit single-entity-group
// inference as a latent foot-gun once batched cross-group writes are
// possible.
func (c *Context) Transaction(ctx gocontext.Context, cb func(t *eventloop.Tasklet, tx *Context) (any, error), opts TransactionOptions) *eventloop.Future {
	out := c.loop.NewFuture("transaction")
	if opts.EntityGroup == nil {
		out.SetException(&ValidationError{Message: "transaction requires an explicit EntityGroup"})
		return out
	}
	c.attemptTransaction(ctx, cb, opts, opts.Retries, out)
	return out
}

func (c *Context) attemptTransaction(ctx gocontext.Context, cb func(t *eventloop.Tasklet, tx *Context) (any, error), opts TransactionOptions, retriesLeft int, out *eventloop.Future) {
	_, endSpan := obslog.StartSpan(ctx, "store.Transaction")

	beginRpc := c.stub.AsyncBeginTx(opts.EntityGroup, opts.ReadOnly)
	beginFut := c.loop.Spawn("transaction.begin", func(t *eventloop.Tasklet) (any, error) {
		return t.Await(beginRpc)
	})
	beginFut.AddCallback(func(v any, err error) {
		if err != nil {
			endSpan()
			out.SetException(&TransactionFailedError{Cause: err, Retries: opts.Retries - retriesLeft})
			return
		}
		tx := v
		child := c.newChildContext(tx)

		cbFut := c.loop.Spawn("transaction.callback", func(t *eventloop.Tasklet) (any, error) {
			return cb(t, child)
		})
		cbFut.AddCallback(func(cbVal any, cbErr error) {
			if cbErr != nil {
				c.rollback(tx, func() {
					endSpan()
					out.SetException(cbErr)
				})
				return
			}

			commitRpc := c.stub.AsyncCommit(tx)
			commitFut := c.loop.Spawn("transaction.commit", func(t *eventloop.Tasklet) (any, error) {
				return t.Await(commitRpc)
			})
			commitFut.AddCallback(func(_ any, commitErr error) {
				endSpan()
				if commitErr != nil {
					if retriesLeft > 0 && isRetryable(commitErr) {
						c.attemptTransaction(ctx, cb, opts, retriesLeft-1, out)
						return
					}
					out.SetException(&TransactionFailedError{Cause: commitErr, Retries: opts.Retries - retriesLeft, Retryable: isRetryable(commitErr)})
					return
				}
				c.mergeChildCache(child)
				out.SetResult(cbVal)
			})
		})
	})
}

// newChildContext builds the transactional child Context per spec.md §4.3
// step 2: a fresh session cache, remote cache disabled (writes inside a
// transaction must not be visible to other requests before commit), and
// fresh AutoBatchers so the child's own get/put/delete calls batch
// independently of the parent's in-flight work.
func (c *Context) newChildContext(tx TxHandle) *Context {
	child := &Context{
		loop:          c.loop,
		stub:          c.stub,
		codec:         c.codec,
		qe:            c.qe,
		tx:            tx,
		cfg:           c.cfg,
		cache:         newSessionCache(),
		remoteCache:   nil,
		logger:        c.logger,
		transactional: true,
		parent:        c,
	}
	child.getBatcher = autobatch.New(c.loop, "get.tx", child.getTodo, autobatch.Config{Limit: c.cfg.autoBatchLimit})
	child.putBatcher = autobatch.New(c.loop, "put.tx", child.putTodo, autobatch.Config{Limit: c.cfg.autoBatchLimit})
	child.deleteBatcher = autobatch.New(c.loop, "delete.tx", child.deleteTodo, autobatch.Config{Limit: c.cfg.autoBatchLimit})
	child.allocBatcher = autobatch.New(c.loop, "allocateIds.tx", child.allocTodo, autobatch.Config{Limit: c.cfg.autoBatchLimit})
	return child
}

// mergeChildCache folds a committed child's write-set into the parent's
// session cache and enqueues remote-cache invalidation for every touched
// key (spec.md §4.3 step 5).
func (c *Context) mergeChildCache(child *Context) {
	for k, s := range child.cache.m {
		if s.kind == slotPending {
			continue
		}
		c.cache.m[k] = s
		if c.remoteCache != nil && s.key != nil {
			_ = c.remoteCache.DeleteKey(s.key.String(), 0)
		}
	}
}

func (c *Context) rollback(tx TxHandle, done func()) {
	rbRpc := c.stub.AsyncRollback(tx)
	rbFut := c.loop.Spawn("transaction.rollback", func(t *eventloop.Tasklet) (any, error) {
		return t.Await(rbRpc)
	})
	rbFut.AddCallback(func(_ any, _ error) {
		// Best-effort: propagate the callback's error regardless of
		// rollback's own outcome (spec.md §4.3 step 6).
		done()
	})
}

// isRetryable reports whether a commit failure should be retried. Without a
// concrete Stub error taxonomy to inspect, this treats any *RPCError as
// retryable — a conservative default a real Stub can refine by wrapping a
// non-retryable sentinel in something other than *RPCError.
func isRetryable(err error) bool {
	_, ok := err.(*RPCError)
	return ok
}
