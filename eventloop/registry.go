package eventloop

// registry tracks every currently-pending Future owned by one Loop, for
// DEADLOCK diagnostics (spec.md §3, §5). Adapted from the teacher's
// registry.go: that implementation uses a weak.Pointer ring buffer because
// many concurrent goroutines there create promises that may be abandoned
// without settling. A single-threaded Loop has no such leak pattern — every
// Future is created and eventually either settled or deliberately retained
// until the Loop itself is discarded — so a plain map is sufficient
// (justified in DESIGN.md "Dropped teacher dependencies").
type registry struct {
	pending map[uint64]*Future
	nextID  uint64
}

func newRegistry() *registry {
	return &registry{pending: make(map[uint64]*Future), nextID: 1}
}

func (r *registry) track(f *Future) uint64 {
	id := r.nextID
	r.nextID++
	r.pending[id] = f
	return id
}

func (r *registry) untrack(id uint64) {
	delete(r.pending, id)
}

// dump returns diagnostic info for every still-pending future, in
// ascending id order (i.e. creation order).
func (r *registry) dump() []PendingInfo {
	out := make([]PendingInfo, 0, len(r.pending))
	for id, f := range r.pending {
		out = append(out, PendingInfo{ID: id, Origin: f.origin, Info: f.info})
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
