package eventloop

import (
	"container/heap"
	"time"
)

// timedEntry is one entry of the due-time-ordered timer queue.
type timedEntry struct {
	due time.Time
	seq uint64 // tie-break for stable insertion order within a due-time bucket
	fn  func()
}

type timerHeap []*timedEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)        { *h = append(*h, x.(*timedEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// idler is one entry of the idlers list. fn returns true to stay installed.
type idler struct {
	fn func() bool
}

// rpcResult is posted onto rpcDone when an in-flight RPC registered via
// QueueRPC completes, possibly from another goroutine.
type rpcResult struct {
	fn func()
}

// Loop is a process-local, single-threaded cooperative event loop
// (spec.md §2, §4.1, §5). It is not safe for concurrent use except via
// QueueRPC's completion side.
type Loop struct {
	cfg *loopConfig

	immediate []func()

	timers timerHeap
	seq    uint64

	idlers []idler

	rpcCount int
	rpcDone  chan rpcResult

	registry *registry

	running bool
}

// New constructs a Loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		cfg:      resolveLoopOptions(opts),
		rpcDone:  make(chan rpcResult, 16),
		registry: newRegistry(),
	}
	heap.Init(&l.timers)
	return l
}

// QueueCall schedules fn to run. delay <= 0 appends to the immediate FIFO
// queue; delay > 0 inserts into the timer heap at now+delay (spec.md §4.1
// "queueCall").
func (l *Loop) QueueCall(delay time.Duration, fn func()) {
	if delay <= 0 {
		l.immediate = append(l.immediate, fn)
		return
	}
	l.seq++
	heap.Push(&l.timers, &timedEntry{due: time.Now().Add(delay), seq: l.seq, fn: fn})
}

// QueueRPC records one RPC as in-flight and runs launch on a new goroutine
// (real transports are asynchronous and may do blocking I/O); once launch
// returns, onDone is scheduled onto the immediate queue with its result.
// This is the bridge between genuinely concurrent I/O and the single
// cooperative strand, grounded on the teacher's Promisify/SubmitInternal
// handoff pattern (DESIGN.md).
func (l *Loop) QueueRPC(launch func() (any, error), onDone func(v any, err error)) {
	l.rpcCount++
	go func() {
		v, err := launch()
		l.rpcDone <- rpcResult{fn: func() {
			l.rpcCount--
			l.QueueCall(0, func() { onDone(v, err) })
		}}
	}()
}

// AddIdle appends fn to the idlers list (spec.md §4.1 "addIdle").
func (l *Loop) AddIdle(fn func() bool) {
	l.idlers = append(l.idlers, idler{fn: fn})
}

// Run1 executes exactly one unit of progress, with strict priority:
// immediate queue, then a due timer, then an idler, then blocking until
// either RPC progress or the next timer becomes due, else false (spec.md
// §4.1 "run1"). The final branch must cover the not-yet-due-timer case even
// with no in-flight RPC, or a lone pending Sleep would be misreported as a
// deadlock by Future.Wait.
func (l *Loop) Run1() bool {
	if len(l.immediate) > 0 {
		fn := l.immediate[0]
		l.immediate = l.immediate[1:]
		fn()
		return true
	}

	if l.timers.Len() > 0 {
		top := l.timers[0]
		if !top.due.After(time.Now()) {
			heap.Pop(&l.timers)
			l.immediate = append(l.immediate, top.fn)
			return true
		}
	}

	if len(l.idlers) > 0 {
		it := l.idlers[0]
		l.idlers = l.idlers[1:]
		if it.fn() {
			l.idlers = append(l.idlers, it)
		}
		return true
	}

	if l.rpcCount > 0 || l.timers.Len() > 0 {
		var timeout <-chan time.Time
		if l.timers.Len() > 0 {
			d := time.Until(l.timers[0].due)
			if d < 0 {
				d = 0
			}
			timer := time.NewTimer(d)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case r := <-l.rpcDone:
			r.fn()
		case <-timeout:
		}
		return true
	}

	return false
}

// Run calls Run1 until it returns false.
func (l *Loop) Run() {
	for l.Run1() {
	}
}

// failAllPending fails every still-pending future with a DeadlockError
// carrying a dump of the pending set (spec.md §5 "Deadlock handling").
func (l *Loop) failAllPending() {
	dump := l.registry.dump()
	if len(dump) == 0 {
		return
	}
	err := &DeadlockError{Pending: dump}
	// Copy since SetException mutates the registry map during iteration.
	pending := make([]*Future, 0, len(l.registry.pending))
	for _, f := range l.registry.pending {
		pending = append(pending, f)
	}
	for _, f := range pending {
		if f.state == statePending {
			f.SetException(err)
		}
	}
}

// Sleep returns a Future that resolves (with a nil value) no earlier than
// dt after the call (spec.md §4.1 "sleep(dt)").
func (l *Loop) Sleep(dt time.Duration) *Future {
	f := l.NewFuture("sleep")
	l.QueueCall(dt, func() { f.SetResult(nil) })
	return f
}
