package eventloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun1_PrefersImmediateOverTimerOverIdler(t *testing.T) {
	l := New()
	var order []string

	l.AddIdle(func() bool { order = append(order, "idle"); return false })
	l.QueueCall(time.Millisecond, func() { order = append(order, "timer") })
	l.QueueCall(0, func() { order = append(order, "immediate") })

	// Let the timer become due, so it competes with the idler.
	time.Sleep(2 * time.Millisecond)

	for l.Run1() {
	}

	require.Equal(t, []string{"immediate", "timer", "idle"}, order)
}

func TestRun1_BlocksOnInFlightRPC(t *testing.T) {
	l := New()
	done := make(chan struct{})
	l.QueueRPC(func() (any, error) {
		<-done
		return "ok", nil
	}, func(v any, err error) {})

	close(done)
	assert.True(t, l.Run1()) // consumes the RPC completion from rpcDone
}

func TestRun1_ReturnsFalse_WhenNothingLeft(t *testing.T) {
	l := New()
	assert.False(t, l.Run1())
}

func TestQueueRPC_DeliversResultOnLoop(t *testing.T) {
	l := New()
	var gotV any
	var gotErr error
	l.QueueRPC(func() (any, error) { return "value", nil }, func(v any, err error) {
		gotV, gotErr = v, err
	})
	l.Run()
	assert.Equal(t, "value", gotV)
	assert.NoError(t, gotErr)
}

func TestAddIdle_StaysInstalledUntilItReturnsFalse(t *testing.T) {
	l := New()
	calls := 0
	l.AddIdle(func() bool {
		calls++
		return calls < 3
	})
	for i := 0; i < 5 && l.Run1(); i++ {
	}
	assert.Equal(t, 3, calls)
}

func TestSleep_ResolvesNoEarlierThanDuration(t *testing.T) {
	l := New()
	start := time.Now()
	f := l.Sleep(10 * time.Millisecond)
	f.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRun1_BlocksUntilTimerDue_NoInFlightRPC(t *testing.T) {
	l := New()
	l.QueueCall(10*time.Millisecond, func() {})
	start := time.Now()
	assert.True(t, l.Run1())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestRun_DrainsUntilIdle(t *testing.T) {
	l := New()
	n := 0
	l.QueueCall(0, func() { n++ })
	l.QueueCall(0, func() { n++ })
	l.Run()
	assert.Equal(t, 2, n)
}
