package eventloop

// Awaitable is anything a Tasklet may suspend on: a *Future, an RPC (any
// value accepted by Loop.QueueRPC's launch closure wrapped as a *Future by
// the caller — see Rpc), or a slice of Awaitable (spec.md §9 "duck-typed
// yield values": Awaitable = Rpc | Future | List<Awaitable>).
type Awaitable any

// Rpc wraps an asynchronous remote call so it can be yielded directly by a
// tasklet body; Await turns it into a Future via Loop.QueueRPC.
type Rpc struct {
	Launch func() (any, error)
}

type resumeSignal struct {
	value any
	err   error
}

type yieldSignal struct {
	done bool // tasklet body returned or panicked
	val  any
	err  error

	awaiting Awaitable // valid when !done
}

// Tasklet is the handle a tasklet body uses to suspend itself. It is only
// valid for the duration of the body's execution and must not be retained
// past return.
type Tasklet struct {
	loop     *Loop
	resumeCh chan resumeSignal
	yieldCh  chan yieldSignal
}

// Await suspends the calling tasklet body until aw settles, and returns its
// value/error. aw must be a *Future, an Rpc, or a []Awaitable (in which case
// the result is a []any in the same order, per MultiFuture semantics: first
// dependent failure wins).
func (t *Tasklet) Await(aw Awaitable) (any, error) {
	t.yieldCh <- yieldSignal{awaiting: aw}
	r := <-t.resumeCh
	return r.value, r.err
}

// Loop returns the Loop this tasklet is bound to, for spawning nested
// tasklets or constructing combinators.
func (t *Tasklet) Loop() *Loop { return t.loop }

// Spawn invokes fn as a tasklet: fn runs on its own goroutine, suspending
// only via Tasklet.Await, and the returned Future resolves with fn's return
// value or error once fn returns (spec.md §3 "Tasklet", §4.1 "Tasklet
// runtime"). This is the native-async substitute for a generator-stepper,
// grounded on the teacher's Promisify goroutine-handoff pattern: exactly one
// of {the tasklet body, the Loop} runs at a time, alternating over a channel
// pair (an unbuffered resume channel and a one-slot yield channel).
func (l *Loop) Spawn(info string, fn func(t *Tasklet) (any, error)) *Future {
	f := l.NewFuture(info)
	tk := &Tasklet{loop: l, resumeCh: make(chan resumeSignal), yieldCh: make(chan yieldSignal, 1)}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				var err error
				if e, ok := r.(error); ok {
					err = e
				} else {
					err = WrapError("tasklet panic", panicValue{r})
				}
				tk.yieldCh <- yieldSignal{done: true, err: err}
				return
			}
		}()
		v, err := fn(tk)
		tk.yieldCh <- yieldSignal{done: true, val: v, err: err}
	}()

	l.step(f, tk)
	return f
}

type panicValue struct{ v any }

func (p panicValue) Error() string { return "recovered panic value" }

// step receives exactly one signal from the tasklet goroutine: either it is
// done (settle f), or it is awaiting something (dispatch and, on eventual
// completion, resume it by re-entering step).
func (l *Loop) step(f *Future, tk *Tasklet) {
	sig := <-tk.yieldCh
	if sig.done {
		if sig.err != nil {
			f.SetException(sig.err)
		} else {
			f.SetResult(sig.val)
		}
		return
	}

	resume := func(v any, err error) {
		tk.resumeCh <- resumeSignal{value: v, err: err}
		l.step(f, tk)
	}

	switch aw := sig.awaiting.(type) {
	case *Future:
		f.next = aw
		aw.AddCallback(func(v any, err error) { resume(v, err) })

	case Rpc:
		l.QueueRPC(aw.Launch, func(v any, err error) { resume(v, err) })

	case []Awaitable:
		mf := l.NewMultiFuture(len(aw))
		for _, item := range aw {
			switch dep := item.(type) {
			case *Future:
				mf.AddDependent(dep)
			case Rpc:
				rf := l.NewFuture("rpc")
				l.QueueRPC(dep.Launch, func(v any, err error) {
					if err != nil {
						rf.SetException(err)
					} else {
						rf.SetResult(v)
					}
				})
				mf.AddDependent(rf)
			default:
				rf := l.NewFuture("invalid-awaitable")
				rf.SetException(ErrNotAwaitable)
				mf.AddDependent(rf)
			}
		}
		mf.Complete()
		mf.future.AddCallback(func(v any, err error) { resume(v, err) })

	default:
		rf := l.NewFuture("invalid-awaitable")
		rf.SetException(ErrNotAwaitable)
		rf.AddCallback(func(v any, err error) { resume(v, err) })
	}
}

// SyncTasklet runs fn to completion synchronously (driving the loop as
// needed) and returns its result, for top-level callers that are not
// themselves tasklets (spec.md §6 "syncTasklet(fn)").
func (l *Loop) SyncTasklet(info string, fn func(t *Tasklet) (any, error)) (any, error) {
	f := l.Spawn(info, fn)
	return f.GetResult()
}
