package store

import (
	gocontext "context"

	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/internal/obslog"
)

// runQuery starts query execution, preferring the qe override (set for
// tests/alternate query engines) over the Stub's own AsyncRunQuery.
func (c *Context) runQuery(query any, opts QueryOptions) QueryEngine {
	if opts.Deadline == 0 {
		opts.Deadline = c.deadline(0)
	}
	if c.qe != nil {
		return c.qe(query, opts)
	}
	return c.stub.AsyncRunQuery(query, opts)
}

// cacheQueryResult writes a queried entity into the session cache (spec.md
// §4.3 "on success, entities they return are written into it"), leaving a
// still-pending Get's slot alone so its own resolve() keeps ownership of
// that write-back.
func (c *Context) cacheQueryResult(e Entity) {
	if e.Key == nil || !c.cfg.cachePolicy(e.Key) {
		return
	}
	if s, ok := c.cache.get(e.Key); ok && s.kind == slotPending {
		return
	}
	c.cache.setEntity(e.Key, e)
}

// IterQuery starts query execution and returns a SerialQueueFuture that
// yields each decoded Entity in server order via GetQ, ending with
// *eventloop.EndOfQueueError once the stream is exhausted (spec.md §4.3
// "iterQuery").
func (c *Context) IterQuery(ctx gocontext.Context, query any, opts QueryOptions) *eventloop.SerialQueueFuture {
	_, endSpan := obslog.StartSpan(ctx, "store.IterQuery")
	qe := c.runQuery(query, opts)
	sq := c.loop.NewSerialQueueFuture()
	c.loop.Spawn("query.pump", func(t *eventloop.Tasklet) (any, error) {
		defer endSpan()
		for {
			v, err := t.Await(qe.Next())
			item := c.loop.NewFuture("query.item")
			if err != nil {
				item.SetException(&RPCError{Op: "query.next", Cause: err})
				sq.AddDependent(item)
				sq.Complete(err)
				return nil, nil
			}
			res := v.(QueryNextResult)
			c.cacheQueryResult(res.Entity)
			item.SetResult(res.Entity)
			sq.AddDependent(item)
			if !res.More {
				sq.Complete(nil)
				return nil, nil
			}
		}
	})
	return sq
}

// MapQuery runs query to completion, applying mapper to each result in
// server order, and resolves to the ordered list of mapped values (spec.md
// §4.3 "mapQuery"). A mapper error stops the mapping and fails the returned
// Future; the underlying query stream is still read to its end.
func (c *Context) MapQuery(ctx gocontext.Context, query any, opts QueryOptions, mapper func(e Entity) (any, error)) *eventloop.Future {
	sq := c.IterQuery(ctx, query, opts)
	out := c.loop.NewFuture("query.map")
	c.loop.Spawn("query.map.pump", func(t *eventloop.Tasklet) (any, error) {
		var results []any
		for {
			v, err := t.Await(sq.GetQ())
			if err != nil {
				if _, ok := err.(*eventloop.EndOfQueueError); ok {
					out.SetResult(results)
					return nil, nil
				}
				out.SetException(err)
				return nil, nil
			}
			e := v.(Entity)
			mapped, mErr := mapper(e)
			if mErr != nil {
				out.SetException(mErr)
				return nil, nil
			}
			results = append(results, mapped)
		}
	})
	return out
}
