package eventloop

// MultiFuture aggregates N dependent futures into a single Future whose
// value is the ordered list of their results (spec.md §4.1 "Combinators").
// AddDependent is repeatable and duplicates are allowed; Complete seals the
// set. The aggregate becomes done once sealed and every dependent is done.
// The first dependent failure wins (remaining dependents still run to
// completion, but their results are dropped).
type MultiFuture struct {
	future     *Future
	results    []any
	total      int // -1 until sealed by Complete, else the final count
	doneCount  int
	sealed     bool
	failed     bool
	failedWith error
}

// NewMultiFuture creates a MultiFuture. sizeHint is advisory (len of
// results is grown as dependents are added) and may be 0.
func (l *Loop) NewMultiFuture(sizeHint int) *MultiFuture {
	return &MultiFuture{
		future:  l.NewFuture("multifuture"),
		results: make([]any, 0, sizeHint),
		total:   -1,
	}
}

// Future returns the underlying aggregate Future.
func (m *MultiFuture) Future() *Future { return m.future }

// AddDependent registers f as a dependent; its eventual result occupies the
// position corresponding to this call's order among AddDependent calls.
func (m *MultiFuture) AddDependent(f *Future) {
	idx := len(m.results)
	m.results = append(m.results, nil)
	f.AddCallback(func(v any, err error) {
		if err != nil {
			if !m.failed {
				m.failed = true
				m.failedWith = err
			}
		} else {
			m.results[idx] = v
		}
		m.doneCount++
		m.maybeFinish()
	})
}

// PutQ adds an already-resolved dependent carrying v, sugar for
// AddDependent on a pre-settled Future (spec.md "putq is syntactic sugar
// for adding an already-resolved future").
func (m *MultiFuture) PutQ(l *Loop, v any) {
	f := l.NewFuture("putq")
	f.SetResult(v)
	m.AddDependent(f)
}

// Complete seals the dependent set; no further AddDependent calls are
// valid afterward.
func (m *MultiFuture) Complete() {
	m.sealed = true
	m.total = len(m.results)
	m.maybeFinish()
}

// SetException short-circuits the aggregate with an explicit failure.
func (m *MultiFuture) SetException(err error) {
	if !m.future.Done() {
		m.future.SetException(err)
	}
}

func (m *MultiFuture) maybeFinish() {
	if !m.sealed || m.doneCount < m.total || m.future.Done() {
		return
	}
	if m.failed {
		m.future.SetException(m.failedWith)
		return
	}
	m.future.SetResult(m.results)
}

// QueueFuture delivers dependent results in completion order via GetQ,
// rather than as one aggregate list (spec.md §4.1 "QueueFuture"). Invariant:
// at least one of the internal completed/waiting lists is empty at a time.
// After Complete (with or without an error) and all buffered results drained,
// subsequent GetQ calls return a future failing with EndOfQueueError.
// A per-item failure is delivered on the corresponding GetQ future; it does
// not terminate the queue.
type QueueFuture struct {
	loop      *Loop
	completed []qfItem
	waiting   []*Future
	sealed    bool
	sealErr   error
}

type qfItem struct {
	v   any
	err error
}

func (l *Loop) NewQueueFuture() *QueueFuture {
	return &QueueFuture{loop: l}
}

// AddDependent registers f; its result (or error) is delivered to the next
// waiting GetQ caller, in whatever order dependents actually settle.
func (q *QueueFuture) AddDependent(f *Future) {
	f.AddCallback(func(v any, err error) { q.deliver(v, err) })
}

// PutQ enqueues an already-available result directly, without a Future
// round-trip.
func (q *QueueFuture) PutQ(v any) { q.deliver(v, nil) }

func (q *QueueFuture) deliver(v any, err error) {
	if len(q.waiting) > 0 {
		w := q.waiting[0]
		q.waiting = q.waiting[1:]
		if err != nil {
			w.SetException(err)
		} else {
			w.SetResult(v)
		}
		return
	}
	q.completed = append(q.completed, qfItem{v: v, err: err})
}

// Complete seals the queue: once all buffered items are drained, further
// GetQ calls fail with EndOfQueueError (wrapping err, which may be nil).
func (q *QueueFuture) Complete(err error) {
	q.sealed = true
	q.sealErr = err
	if len(q.completed) == 0 {
		for _, w := range q.waiting {
			w.SetException(&EndOfQueueError{Cause: err})
		}
		q.waiting = nil
	}
}

// GetQ returns a Future for the next item, in completion order.
func (q *QueueFuture) GetQ() *Future {
	if len(q.completed) > 0 {
		item := q.completed[0]
		q.completed = q.completed[1:]
		f := q.loop.NewFuture("queuefuture.getq")
		if item.err != nil {
			f.SetException(item.err)
		} else {
			f.SetResult(item.v)
		}
		return f
	}
	f := q.loop.NewFuture("queuefuture.getq")
	if q.sealed {
		f.SetException(&EndOfQueueError{Cause: q.sealErr})
		return f
	}
	q.waiting = append(q.waiting, f)
	return f
}

// SerialQueueFuture is a QueueFuture variant whose delivery order is
// insertion order rather than completion order (spec.md §4.1
// "SerialQueueFuture"). Completing with pending waiters fails each with
// EndOfQueueError.
type SerialQueueFuture struct {
	loop    *Loop
	queue   []*Future // in insertion order, still settling or unconsumed
	waiting []*Future
	sealed  bool
	sealErr error
}

func (l *Loop) NewSerialQueueFuture() *SerialQueueFuture {
	return &SerialQueueFuture{loop: l}
}

// AddDependent appends f to the insertion-ordered queue.
func (s *SerialQueueFuture) AddDependent(f *Future) {
	s.queue = append(s.queue, f)
	s.pump()
}

func (s *SerialQueueFuture) pump() {
	for len(s.queue) > 0 && len(s.waiting) > 0 {
		head := s.queue[0]
		w := s.waiting[0]
		if !head.Done() {
			// Must deliver in insertion order: wait for head before
			// looking at anything behind it. The callback only re-pumps,
			// so repeated registrations on the same head are harmless.
			head.AddCallback(func(any, error) { s.pump() })
			return
		}
		s.queue = s.queue[1:]
		s.waiting = s.waiting[1:]
		v, err := head.value, head.err
		if err != nil {
			w.SetException(err)
		} else {
			w.SetResult(v)
		}
	}
	if s.sealed && len(s.queue) == 0 {
		for _, w := range s.waiting {
			w.SetException(&EndOfQueueError{Cause: s.sealErr})
		}
		s.waiting = nil
	}
}

// Complete seals the queue.
func (s *SerialQueueFuture) Complete(err error) {
	s.sealed = true
	s.sealErr = err
	if len(s.queue) == 0 {
		for _, w := range s.waiting {
			w.SetException(&EndOfQueueError{Cause: err})
		}
		s.waiting = nil
	}
}

// GetQ returns a Future for the next item, in insertion order.
func (s *SerialQueueFuture) GetQ() *Future {
	f := s.loop.NewFuture("serialqueuefuture.getq")
	if len(s.queue) == 0 && s.sealed {
		f.SetException(&EndOfQueueError{Cause: s.sealErr})
		return f
	}
	s.waiting = append(s.waiting, f)
	s.pump()
	return f
}

// ReducingFuture buffers dependent results and, once buffered count reaches
// batchSize, feeds them to reducer and puts reducer's result back into the
// buffer in their place. A *Future returned by reducer is kept in the buffer
// as a plain value; it is not awaited. On Complete, any remainder is reduced
// specially: 0 items -> nil, 1 item -> that item, else reducer's output
// (spec.md §4.1 "ReducingFuture").
type ReducingFuture struct {
	loop      *Loop
	future    *Future
	reducer   func(items []any) (any, error)
	batchSize int

	buffer    []any
	reducing  int // count of in-flight reduce calls
	sealed    bool
	doneAdd   bool
	failed    bool
	failedErr error
}

func (l *Loop) NewReducingFuture(reducer func(items []any) (any, error), batchSize int) *ReducingFuture {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &ReducingFuture{
		loop:      l,
		future:    l.NewFuture("reducingfuture"),
		reducer:   reducer,
		batchSize: batchSize,
	}
}

func (r *ReducingFuture) Future() *Future { return r.future }

// AddDependent registers f; once enough results are buffered, they are
// reduced eagerly.
func (r *ReducingFuture) AddDependent(f *Future) {
	r.reducing++
	f.AddCallback(func(v any, err error) {
		r.reducing--
		if err != nil {
			r.fail(err)
			return
		}
		r.buffer = append(r.buffer, v)
		r.maybeReduceFull()
		r.maybeFinish()
	})
}

func (r *ReducingFuture) fail(err error) {
	if !r.failed {
		r.failed = true
		r.failedErr = err
	}
	r.maybeFinish()
}

func (r *ReducingFuture) maybeReduceFull() {
	for len(r.buffer) >= r.batchSize {
		batch := r.buffer[:r.batchSize]
		r.buffer = append([]any{}, r.buffer[r.batchSize:]...)
		r.reducing++
		out, err := r.reducer(batch)
		r.reducing--
		if err != nil {
			r.fail(err)
			return
		}
		r.buffer = append([]any{out}, r.buffer...)
	}
}

// Complete seals input; the remainder is reduced per the 0/1/else rule.
func (r *ReducingFuture) Complete() {
	r.doneAdd = true
	r.maybeFinish()
}

func (r *ReducingFuture) maybeFinish() {
	if r.future.Done() {
		return
	}
	if !r.doneAdd || r.reducing > 0 {
		return
	}
	if r.failed {
		r.future.SetException(r.failedErr)
		return
	}
	switch len(r.buffer) {
	case 0:
		r.future.SetResult(nil)
	case 1:
		r.future.SetResult(r.buffer[0])
	default:
		out, err := r.reducer(r.buffer)
		if err != nil {
			r.future.SetException(err)
			return
		}
		r.future.SetResult(out)
	}
}
