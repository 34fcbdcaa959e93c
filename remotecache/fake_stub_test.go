package remotecache

import (
	"sync"

	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/store"
)

// fakeStub is a minimal in-memory store.Stub exercising only the Memcache*
// RPC family Client needs; every other method panics if called.
type fakeStub struct {
	mu sync.Mutex

	values map[string][]byte
	casTok map[string]int

	getCalls    int
	setCalls    int
	deleteCalls int
	offsetCalls int

	getErr error
}

func newFakeStub() *fakeStub {
	return &fakeStub{values: make(map[string][]byte), casTok: make(map[string]int)}
}

func (s *fakeStub) Encode(store.Entity) ([]byte, error)         { panic("not used") }
func (s *fakeStub) Decode(string, []byte) (store.Entity, error) { panic("not used") }
func (s *fakeStub) KeyOf(store.Entity) *store.Key               { panic("not used") }
func (s *fakeStub) KindOf(*store.Key) string                    { panic("not used") }

func (s *fakeStub) AsyncGet([]*store.Key, store.GetOptions) eventloop.Rpc       { panic("not used") }
func (s *fakeStub) AsyncPut([]store.Entity, store.PutOptions) eventloop.Rpc     { panic("not used") }
func (s *fakeStub) AsyncDelete([]*store.Key, store.DeleteOptions) eventloop.Rpc { panic("not used") }
func (s *fakeStub) AsyncAllocateIDs(*store.Key, int64, int64) eventloop.Rpc     { panic("not used") }
func (s *fakeStub) AsyncBeginTx(*store.Key, bool) eventloop.Rpc                 { panic("not used") }
func (s *fakeStub) AsyncCommit(store.TxHandle) eventloop.Rpc                    { panic("not used") }
func (s *fakeStub) AsyncRollback(store.TxHandle) eventloop.Rpc                  { panic("not used") }
func (s *fakeStub) AsyncRunQuery(any, store.QueryOptions) store.QueryEngine     { panic("not used") }

func (s *fakeStub) AsyncMemcacheGetMulti(keys []string, options store.MemcacheGetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.getCalls++
		if s.getErr != nil {
			return nil, s.getErr
		}
		results := make([]store.MemcacheGetResult, len(keys))
		for i, k := range keys {
			if v, ok := s.values[k]; ok {
				r := store.MemcacheGetResult{Key: k, Found: true, Value: v}
				if options.ForCas {
					r.CASToken = s.casTok[k]
				}
				results[i] = r
			} else {
				results[i] = store.MemcacheGetResult{Key: k}
			}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncMemcacheSetMulti(items []store.MemcacheSetItem, options store.MemcacheSetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.setCalls++
		results := make([]store.MemcacheSetResult, len(items))
		for i, it := range items {
			if options.Op == store.MemcacheCAS {
				tok, _ := it.CASToken.(int)
				if s.casTok[it.Key] != tok {
					results[i] = store.MemcacheSetResult{Key: it.Key, Stored: false}
					continue
				}
			}
			if options.Op == store.MemcacheAdd {
				if _, exists := s.values[it.Key]; exists {
					results[i] = store.MemcacheSetResult{Key: it.Key, Stored: false}
					continue
				}
			}
			s.values[it.Key] = it.Value
			s.casTok[it.Key]++
			results[i] = store.MemcacheSetResult{Key: it.Key, Stored: true}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncMemcacheDeleteMulti(keys []string, options store.MemcacheDeleteOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.deleteCalls++
		results := make([]store.MemcacheDeleteResult, len(keys))
		for i, k := range keys {
			if _, ok := s.values[k]; ok {
				delete(s.values, k)
				results[i] = store.MemcacheDeleteResult{Key: k, Status: store.MemcacheDeleted}
			} else {
				results[i] = store.MemcacheDeleteResult{Key: k, Status: store.MemcacheNotFound}
			}
		}
		return results, nil
	}}
}

func (s *fakeStub) AsyncMemcacheOffsetMulti(items []store.MemcacheOffsetItem, options store.MemcacheOffsetOptions) eventloop.Rpc {
	return eventloop.Rpc{Launch: func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.offsetCalls++
		results := make([]store.MemcacheOffsetResult, len(items))
		for i, it := range items {
			raw, ok := s.values[it.Key]
			var cur uint64
			if ok {
				cur = decodeUint64(raw)
			} else if it.InitialValue != nil {
				cur = *it.InitialValue
				ok = true
			} else {
				results[i] = store.MemcacheOffsetResult{Key: it.Key}
				continue
			}
			next := int64(cur) + it.Delta
			if next < 0 {
				next = 0
			}
			s.values[it.Key] = encodeUint64(uint64(next))
			results[i] = store.MemcacheOffsetResult{Key: it.Key, Found: ok, Value: uint64(next)}
		}
		return results, nil
	}}
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return buf
}

func decodeUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

type fakeNamespace struct{ ns string }

func (f fakeNamespace) Current() string { return f.ns }
