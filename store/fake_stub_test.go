package store

import (
	"sync"
	"time"

	"github.com/joeycumines/go-entitydb/eventloop"
)

// fakeStub is a minimal in-memory Stub + Codec for exercising Context
// without a real transport, grounded on the same shape as
// cmd/entitydbctl's memStub (collaborators.go's doc comments describe the
// exact contract both fakes implement).
type fakeStub struct {
	mu       sync.Mutex
	entities map[string]Entity
	nextID   int64
	nextTx   int64
	txWrites map[int64]map[string]*Entity

	getErr        error
	putErr        error
	commitErr     error
	commitErrFunc func() error
	getCalls      int
	putCalls      int
}

func newFakeStub() *fakeStub {
	return &fakeStub{entities: make(map[string]Entity), txWrites: make(map[int64]map[string]*Entity)}
}

func (s *fakeStub) Encode(e Entity) ([]byte, error) { return []byte(e.Body.(string)), nil }

func (s *fakeStub) Decode(kind string, body []byte) (Entity, error) {
	return Entity{Body: string(body)}, nil
}

func (s *fakeStub) KeyOf(e Entity) *Key  { return e.Key }
func (s *fakeStub) KindOf(k *Key) string { return k.Kind() }

func (s *fakeStub) AsyncGet(keys []*Key, options GetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.getCalls++
		if s.getErr != nil {
			return nil, s.getErr
		}
		results := make([]GetResult, len(keys))
		for i, k := range keys {
			if tx, ok := options.Tx.(int64); ok {
				if w, ok := s.txWrites[tx]; ok {
					if e, ok := w[k.String()]; ok {
						if e == nil {
							results[i] = GetResult{Key: k}
						} else {
							results[i] = GetResult{Key: k, Found: true, Entity: *e}
						}
						continue
					}
				}
			}
			if e, ok := s.entities[k.String()]; ok {
				results[i] = GetResult{Key: k, Found: true, Entity: e}
			} else {
				results[i] = GetResult{Key: k}
			}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncPut(entities []Entity, options PutOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.putCalls++
		if s.putErr != nil {
			return nil, s.putErr
		}
		results := make([]PutResult, len(entities))
		for i, e := range entities {
			final := e.Key
			if final == nil || !final.Complete() {
				s.nextID++
				if final == nil {
					final = NewKey("", "Entity", s.nextID, nil)
				} else {
					final = final.WithID(s.nextID)
				}
			}
			stamped := Entity{Key: final, Body: e.Body}
			if tx, ok := options.Tx.(int64); ok {
				s.txWrites[tx][final.String()] = &stamped
			} else {
				s.entities[final.String()] = stamped
			}
			results[i] = PutResult{FinalKey: final}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncDelete(keys []*Key, options DeleteOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		results := make([]DeleteResult, len(keys))
		for i, k := range keys {
			if tx, ok := options.Tx.(int64); ok {
				s.txWrites[tx][k.String()] = nil
			} else {
				delete(s.entities, k.String())
			}
			results[i] = DeleteResult{Key: k}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncAllocateIDs(parent *Key, size, max int64) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		lo := s.nextID + 1
		s.nextID += size
		return [2]int64{lo, s.nextID}, nil
	}}
}

func (s *fakeStub) AsyncBeginTx(entityGroup *Key, readOnly bool) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.nextTx++
		tx := s.nextTx
		s.txWrites[tx] = make(map[string]*Entity)
		return tx, nil
	}}
}

func (s *fakeStub) AsyncCommit(tx TxHandle) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		id := tx.(int64)
		writes := s.txWrites[id]
		delete(s.txWrites, id)
		if s.commitErrFunc != nil {
			if err := s.commitErrFunc(); err != nil {
				return nil, err
			}
		} else if s.commitErr != nil {
			return nil, s.commitErr
		}
		for keyStr, e := range writes {
			if e == nil {
				delete(s.entities, keyStr)
			} else {
				s.entities[keyStr] = *e
			}
		}
		return nil, nil
	}}
}

func (s *fakeStub) AsyncRollback(tx TxHandle) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.txWrites, tx.(int64))
		return nil, nil
	}}
}

func (s *fakeStub) AsyncRunQuery(query any, options QueryOptions) QueryEngine {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind, _ := query.(string)
	var matches []Entity
	for _, e := range s.entities {
		if kind == "" || e.Key.Kind() == kind {
			matches = append(matches, e)
		}
	}
	return &fakeQueryEngine{matches: matches}
}

func (s *fakeStub) AsyncMemcacheGetMulti(keys []string, options MemcacheGetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]MemcacheGetResult, len(keys))
		for i, k := range keys {
			results[i] = MemcacheGetResult{Key: k}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncMemcacheSetMulti(items []MemcacheSetItem, options MemcacheSetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]MemcacheSetResult, len(items))
		for i, it := range items {
			results[i] = MemcacheSetResult{Key: it.Key, Stored: true}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncMemcacheDeleteMulti(keys []string, options MemcacheDeleteOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]MemcacheDeleteResult, len(keys))
		for i, k := range keys {
			results[i] = MemcacheDeleteResult{Key: k, Status: MemcacheDeleted}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncMemcacheOffsetMulti(items []MemcacheOffsetItem, options MemcacheOffsetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]MemcacheOffsetResult, len(items))
		for i, it := range items {
			results[i] = MemcacheOffsetResult{Key: it.Key, Found: true}
		}
		return results, nil
	}}
}

type fakeQueryEngine struct {
	matches []Entity
	idx     int
}

func (q *fakeQueryEngine) Next() eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		if q.idx >= len(q.matches) {
			return QueryNextResult{}, nil
		}
		e := q.matches[q.idx]
		q.idx++
		return QueryNextResult{Entity: e, More: q.idx < len(q.matches)}, nil
	}}
}

// fakeRemoteCache records every invalidation for assertions and serves
// whatever GetBytes values are preloaded via set.
type fakeRemoteCache struct {
	mu          sync.Mutex
	values      map[string][]byte
	invalidated []string
}

func newFakeRemoteCache() *fakeRemoteCache {
	return &fakeRemoteCache{values: make(map[string][]byte)}
}

func (c *fakeRemoteCache) set(key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *fakeRemoteCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *fakeRemoteCache) DeleteKey(key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	c.invalidated = append(c.invalidated, key)
	return nil
}

func (c *fakeRemoteCache) wasInvalidated(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.invalidated {
		if k == key {
			return true
		}
	}
	return false
}
