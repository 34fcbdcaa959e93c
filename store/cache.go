package store

import "github.com/joeycumines/go-entitydb/eventloop"

// slotKind distinguishes the three states a session-cache entry can hold
// (spec.md §3 "Session cache").
type slotKind int

const (
	slotEntity slotKind = iota
	slotTombstone
	slotPending
)

type slot struct {
	kind   slotKind
	key    *Key
	entity Entity
	future *eventloop.Future // valid when kind == slotPending
}

// sessionCache is a per-Context Key -> {ENTITY | TOMBSTONE | PENDING}
// mapping (spec.md §3, §4.3). Not safe for concurrent use — mutated only
// during event-loop ticks, per spec.md §5.
type sessionCache struct {
	m map[cacheKey]slot
}

func newSessionCache() *sessionCache {
	return &sessionCache{m: make(map[cacheKey]slot)}
}

func (c *sessionCache) get(k *Key) (slot, bool) {
	s, ok := c.m[k.cacheKey()]
	return s, ok
}

func (c *sessionCache) setEntity(k *Key, e Entity) {
	c.m[k.cacheKey()] = slot{kind: slotEntity, key: k, entity: e}
}

func (c *sessionCache) setTombstone(k *Key) {
	c.m[k.cacheKey()] = slot{kind: slotTombstone, key: k}
}

func (c *sessionCache) setPending(k *Key, f *eventloop.Future) {
	c.m[k.cacheKey()] = slot{kind: slotPending, key: k, future: f}
}

// stillPending reports whether k's slot is still the PENDING entry created
// for f — used by in-flight readers to decide whether to write back their
// result after a writer may have replaced the slot (spec.md §4.3 invariant
// 3, §9 "In-place cache mutation races").
func (c *sessionCache) stillPending(k *Key, f *eventloop.Future) bool {
	s, ok := c.m[k.cacheKey()]
	return ok && s.kind == slotPending && s.future == f
}

func (c *sessionCache) delete(k *Key) {
	delete(c.m, k.cacheKey())
}
