package store

import (
	gocontext "context"

	"github.com/joeycumines/go-entitydb/eventloop"
)

// GetOrInsert returns the existing entity at key, or transactionally writes
// and returns newEntity if none exists (SPEC_FULL.md §4.1, supplemented
// from original_source/ndb/context.py "get_or_insert" — idempotent under
// retry: a concurrent writer racing the same key never clobbers the first
// successful insert, since the read-then-write happens inside one
// transaction attempt).
//
// entityGroup identifies the transaction's entity group (mandatory, per
// Context.Transaction); for most stores this is key itself or its root
// ancestor.
func (c *Context) GetOrInsert(ctx gocontext.Context, key *Key, entityGroup *Key, newEntity func() Entity, opts TransactionOptions) *eventloop.Future {
	opts.EntityGroup = entityGroup
	return c.Transaction(ctx, func(t *eventloop.Tasklet, tx *Context) (any, error) {
		v, err := t.Await(tx.Get(ctx, key, GetCallOptions{}))
		if err != nil {
			return nil, err
		}
		if e, ok := v.(*Entity); ok && e != nil {
			return *e, nil
		}
		e := newEntity()
		e.Key = key
		fv, err := t.Await(tx.Put(ctx, e, PutCallOptions{}))
		if err != nil {
			return nil, err
		}
		e.Key = fv.(*Key)
		return e, nil
	}, opts)
}
