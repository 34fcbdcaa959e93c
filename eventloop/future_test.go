package eventloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_SetResult_ResolvesAndDeliversCallback(t *testing.T) {
	l := New()
	f := l.NewFuture("t")

	var gotV any
	var gotErr error
	called := false
	f.AddCallback(func(v any, err error) {
		called = true
		gotV, gotErr = v, err
	})

	f.SetResult(42)
	l.Run()

	require.True(t, called)
	assert.Equal(t, 42, gotV)
	assert.NoError(t, gotErr)

	v, err := f.GetResult()
	assert.Equal(t, 42, v)
	assert.NoError(t, err)
}

func TestFuture_SetException_PropagatesToGetResult(t *testing.T) {
	l := New()
	f := l.NewFuture("t")
	f.SetException(assertErr)

	v, err := f.GetResult()
	assert.Nil(t, v)
	assert.ErrorIs(t, err, assertErr)
	assert.ErrorIs(t, f.GetException(), assertErr)
	assert.ErrorIs(t, f.CheckSuccess(), assertErr)
}

func TestFuture_AddCallback_AfterSettle_RunsImmediately(t *testing.T) {
	l := New()
	f := l.NewFuture("t")
	f.SetResult("done")

	called := false
	f.AddCallback(func(v any, err error) { called = true })
	l.Run()
	assert.True(t, called)
}

func TestFuture_SetResult_Twice_Panics(t *testing.T) {
	l := New()
	f := l.NewFuture("t")
	f.SetResult(1)
	assert.Panics(t, func() { f.SetResult(2) })
}

func TestFuture_Wait_DeadlockFailsAllPending(t *testing.T) {
	l := New()
	a := l.NewFuture("a")
	b := l.NewFuture("b")

	a.Wait()

	var de *DeadlockError
	require.ErrorAs(t, a.GetException(), &de)
	require.ErrorAs(t, b.GetException(), &de)
	assert.Len(t, de.Pending, 2)
}

func TestWaitAny_ReturnsFirstSettled(t *testing.T) {
	l := New()
	a := l.NewFuture("a")
	b := l.NewFuture("b")
	b.SetResult("b-done")

	got := WaitAny([]*Future{a, b})
	assert.Same(t, b, got)
}

func TestWaitAll_WaitsForEvery(t *testing.T) {
	l := New()
	a := l.NewFuture("a")
	b := l.NewFuture("b")
	l.QueueCall(0, func() { a.SetResult(1) })
	l.QueueCall(0, func() { b.SetResult(2) })

	WaitAll([]*Future{a, b})
	assert.True(t, a.Done())
	assert.True(t, b.Done())
}

var assertErr = assertError{}

type assertError struct{}

func (assertError) Error() string { return "boom" }
