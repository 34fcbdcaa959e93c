package main

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/store"
)

// memStub is an in-memory store.Stub + store.Codec, standing in for a real
// transport during local experimentation with entitydbctl. Grounded on the
// teacher's eventloop/examples convention of a small runnable worked
// example; entities are stored as store.Entity values with opaque Body
// values, keyed by Key.String(), so no schema registration is required.
type memStub struct {
	mu       sync.Mutex
	entities map[string]store.Entity
	nextID   int64
	nextTx   int64
	txes     map[int64]map[string]*store.Entity // nil entity = pending delete
}

func newMemStub() *memStub {
	return &memStub{
		entities: make(map[string]store.Entity),
		txes:     make(map[int64]map[string]*store.Entity),
	}
}

func (m *memStub) Encode(e store.Entity) ([]byte, error) { return nil, nil }

func (m *memStub) Decode(kind string, body []byte) (store.Entity, error) {
	return store.Entity{}, nil
}

func (m *memStub) KeyOf(e store.Entity) *store.Key { return e.Key }

func (m *memStub) KindOf(k *store.Key) string { return k.Kind() }

func (m *memStub) AsyncGet(keys []*store.Key, options store.GetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		results := make([]store.GetResult, len(keys))
		for i, k := range keys {
			if tx, ok := options.Tx.(int64); ok {
				if txWrites, ok := m.txes[tx]; ok {
					if e, ok := txWrites[k.String()]; ok {
						if e == nil {
							results[i] = store.GetResult{Key: k, Found: false}
						} else {
							results[i] = store.GetResult{Key: k, Found: true, Entity: *e}
						}
						continue
					}
				}
			}
			if e, ok := m.entities[k.String()]; ok {
				results[i] = store.GetResult{Key: k, Found: true, Entity: e}
			} else {
				results[i] = store.GetResult{Key: k, Found: false}
			}
		}
		return results, nil
	}}
}

func (m *memStub) AsyncPut(entities []store.Entity, options store.PutOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		results := make([]store.PutResult, len(entities))
		for i, e := range entities {
			final := e.Key
			if final == nil || !final.Complete() {
				m.nextID++
				if final == nil {
					final = store.NewKey("", "Entity", m.nextID, nil)
				} else {
					final = final.WithID(m.nextID)
				}
			}
			stamped := store.Entity{Key: final, Body: e.Body}
			if tx, ok := options.Tx.(int64); ok {
				m.txes[tx][final.String()] = &stamped
			} else {
				m.entities[final.String()] = stamped
			}
			results[i] = store.PutResult{FinalKey: final}
		}
		return results, nil
	}}
}

func (m *memStub) AsyncDelete(keys []*store.Key, options store.DeleteOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		results := make([]store.DeleteResult, len(keys))
		for i, k := range keys {
			if tx, ok := options.Tx.(int64); ok {
				m.txes[tx][k.String()] = nil
			} else {
				delete(m.entities, k.String())
			}
			results[i] = store.DeleteResult{Key: k}
		}
		return results, nil
	}}
}

func (m *memStub) AsyncAllocateIDs(parent *store.Key, size, max int64) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		lo := atomic.AddInt64(&m.nextID, size) - size + 1
		return [2]int64{lo, lo + size - 1}, nil
	}}
}

func (m *memStub) AsyncBeginTx(entityGroup *store.Key, readOnly bool) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.nextTx++
		tx := m.nextTx
		m.txes[tx] = make(map[string]*store.Entity)
		return tx, nil
	}}
}

func (m *memStub) AsyncCommit(tx store.TxHandle) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		id := tx.(int64)
		writes := m.txes[id]
		delete(m.txes, id)
		for keyStr, e := range writes {
			if e == nil {
				delete(m.entities, keyStr)
			} else {
				m.entities[keyStr] = *e
			}
		}
		return nil, nil
	}}
}

func (m *memStub) AsyncRollback(tx store.TxHandle) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.txes, tx.(int64))
		return nil, nil
	}}
}

func (m *memStub) AsyncRunQuery(query any, options store.QueryOptions) store.QueryEngine {
	m.mu.Lock()
	kind, _ := query.(string)
	var matches []store.Entity
	for _, e := range m.entities {
		if kind == "" || e.Key.Kind() == kind {
			matches = append(matches, e)
		}
	}
	m.mu.Unlock()
	return &memQueryEngine{matches: matches}
}

type memQueryEngine struct {
	matches []store.Entity
	idx     int
}

func (q *memQueryEngine) Next() eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		if q.idx >= len(q.matches) {
			return store.QueryNextResult{More: false}, nil
		}
		e := q.matches[q.idx]
		q.idx++
		return store.QueryNextResult{Entity: e, More: q.idx < len(q.matches)}, nil
	}}
}

func (m *memStub) AsyncMemcacheGetMulti(keys []string, options store.MemcacheGetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]store.MemcacheGetResult, len(keys))
		for i, k := range keys {
			results[i] = store.MemcacheGetResult{Key: k, Found: false}
		}
		return results, nil
	}}
}

func (m *memStub) AsyncMemcacheSetMulti(items []store.MemcacheSetItem, options store.MemcacheSetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]store.MemcacheSetResult, len(items))
		for i, it := range items {
			results[i] = store.MemcacheSetResult{Key: it.Key, Stored: true}
		}
		return results, nil
	}}
}

func (m *memStub) AsyncMemcacheDeleteMulti(keys []string, options store.MemcacheDeleteOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]store.MemcacheDeleteResult, len(keys))
		for i, k := range keys {
			results[i] = store.MemcacheDeleteResult{Key: k, Status: store.MemcacheDeleted}
		}
		return results, nil
	}}
}

func (m *memStub) AsyncMemcacheOffsetMulti(items []store.MemcacheOffsetItem, options store.MemcacheOffsetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		results := make([]store.MemcacheOffsetResult, len(items))
		for i, it := range items {
			var v uint64
			if it.InitialValue != nil {
				v = *it.InitialValue
			}
			results[i] = store.MemcacheOffsetResult{Key: it.Key, Found: true, Value: v}
		}
		return results, nil
	}}
}
