package store

import (
	gocontext "context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-entitydb/eventloop"
)

func TestIterQuery_YieldsEntitiesInServerOrderThenEndOfQueue(t *testing.T) {
	loop := eventloop.New()
	stub := newFakeStub()
	ctx := NewContext(loop, stub, stub, nil)
	ctx.qe = func(query any, opts QueryOptions) QueryEngine {
		return &fakeQueryEngine{matches: []Entity{
			{Key: NewKey("", "Foo", int64(1), nil), Body: "one"},
			{Key: NewKey("", "Foo", int64(2), nil), Body: "two"},
		}}
	}

	sq := ctx.IterQuery(gocontext.Background(), "Foo", QueryOptions{})

	first := sq.GetQ()
	second := sq.GetQ()
	third := sq.GetQ()
	loop.Run()

	v, err := first.GetResult()
	require.NoError(t, err)
	assert.Equal(t, "one", v.(Entity).Body)

	v, err = second.GetResult()
	require.NoError(t, err)
	assert.Equal(t, "two", v.(Entity).Body)

	_, err = third.GetResult()
	var eoq *eventloop.EndOfQueueError
	assert.ErrorAs(t, err, &eoq)

	s, ok := ctx.cache.get(NewKey("", "Foo", int64(1), nil))
	require.True(t, ok)
	assert.Equal(t, slotEntity, s.kind)
	assert.Equal(t, "one", s.entity.Body)

	s, ok = ctx.cache.get(NewKey("", "Foo", int64(2), nil))
	require.True(t, ok)
	assert.Equal(t, slotEntity, s.kind)
	assert.Equal(t, "two", s.entity.Body)
}

func TestIterQuery_DoesNotClobberAStillPendingGet(t *testing.T) {
	loop := eventloop.New()
	stub := newFakeStub()
	ctx := NewContext(loop, stub, stub, nil)
	key := NewKey("", "Foo", 1, nil)
	ctx.qe = func(query any, opts QueryOptions) QueryEngine {
		return &fakeQueryEngine{matches: []Entity{{Key: key, Body: "from-query"}}}
	}

	pending := loop.NewFuture("get")
	ctx.cache.setPending(key, pending)

	sq := ctx.IterQuery(gocontext.Background(), "Foo", QueryOptions{})
	f := sq.GetQ()
	loop.Run()
	_, err := f.GetResult()
	require.NoError(t, err)

	s, ok := ctx.cache.get(key)
	require.True(t, ok)
	assert.Equal(t, slotPending, s.kind, "a still-pending Get's slot must not be overwritten by a query result")
	assert.Same(t, pending, s.future)
}

func TestMapQuery_AppliesMapperInOrder(t *testing.T) {
	loop := eventloop.New()
	stub := newFakeStub()
	ctx := NewContext(loop, stub, stub, nil)
	ctx.qe = func(query any, opts QueryOptions) QueryEngine {
		return &fakeQueryEngine{matches: []Entity{
			{Body: "a"}, {Body: "b"}, {Body: "c"},
		}}
	}

	f := ctx.MapQuery(gocontext.Background(), "Foo", QueryOptions{}, func(e Entity) (any, error) {
		return e.Body.(string) + "!", nil
	})
	loop.Run()

	v, err := f.GetResult()
	require.NoError(t, err)
	assert.Equal(t, []any{"a!", "b!", "c!"}, v)
}

func TestMapQuery_PopulatesSessionCacheForEveryQueriedKey(t *testing.T) {
	loop := eventloop.New()
	stub := newFakeStub()
	ctx := NewContext(loop, stub, stub, nil)
	keys := []*Key{
		NewKey("", "Foo", int64(1), nil),
		NewKey("", "Foo", int64(2), nil),
		NewKey("", "Foo", int64(3), nil),
	}
	ctx.qe = func(query any, opts QueryOptions) QueryEngine {
		return &fakeQueryEngine{matches: []Entity{
			{Key: keys[0], Body: "a"},
			{Key: keys[1], Body: "b"},
			{Key: keys[2], Body: "c"},
		}}
	}

	f := ctx.MapQuery(gocontext.Background(), "Foo", QueryOptions{}, func(e Entity) (any, error) {
		return e.Body, nil
	})
	loop.Run()

	_, err := f.GetResult()
	require.NoError(t, err)

	for _, k := range keys {
		s, ok := ctx.cache.get(k)
		require.True(t, ok)
		assert.Equal(t, slotEntity, s.kind)
	}
}

func TestMapQuery_MapperError_AbortsEarly(t *testing.T) {
	loop := eventloop.New()
	stub := newFakeStub()
	ctx := NewContext(loop, stub, stub, nil)
	ctx.qe = func(query any, opts QueryOptions) QueryEngine {
		return &fakeQueryEngine{matches: []Entity{
			{Body: "a"}, {Body: "bad"}, {Body: "c"},
		}}
	}

	f := ctx.MapQuery(gocontext.Background(), "Foo", QueryOptions{}, func(e Entity) (any, error) {
		if e.Body.(string) == "bad" {
			return nil, assertErr
		}
		return e.Body, nil
	})
	loop.Run()

	_, err := f.GetResult()
	assert.ErrorIs(t, err, assertErr)
}
