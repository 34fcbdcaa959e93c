package store

import "github.com/joeycumines/go-entitydb/eventloop"

// Codec encodes/decodes entities and extracts their keys, fully external
// to the core (spec.md §1, §6).
type Codec interface {
	Encode(e Entity) ([]byte, error)
	Decode(kind string, body []byte) (Entity, error)
	KeyOf(e Entity) *Key
	KindOf(k *Key) string
}

// GetResult is one (key, entity-or-absent) result of a batched get.
type GetResult struct {
	Key    *Key
	Found  bool
	Entity Entity
}

// PutResult is one (original key, final key) result of a batched put —
// FinalKey may differ from the entity's original key when the store
// assigns an id.
type PutResult struct {
	FinalKey *Key
	Err      error
}

// DeleteResult is one per-key result of a batched delete.
type DeleteResult struct {
	Key *Key
	Err error
}

// TxHandle identifies an open transaction on the Stub.
type TxHandle any

// Stub is the asynchronous remote transport collaborator (spec.md §6).
// Every method returns an eventloop.Rpc so tasklet bodies can Await it
// directly. Spans are opened around each call by Context per SPEC_FULL.md
// §3 (domain stack: OpenTelemetry).
type Stub interface {
	AsyncGet(keys []*Key, options GetOptions) eventloop.Rpc          // -> []GetResult
	AsyncPut(entities []Entity, options PutOptions) eventloop.Rpc    // -> []PutResult
	AsyncDelete(keys []*Key, options DeleteOptions) eventloop.Rpc    // -> []DeleteResult
	AsyncAllocateIDs(parent *Key, size, max int64) eventloop.Rpc      // -> (lo, hi int64)
	AsyncBeginTx(entityGroup *Key, readOnly bool) eventloop.Rpc       // -> TxHandle
	AsyncCommit(tx TxHandle) eventloop.Rpc                            // -> nil
	AsyncRollback(tx TxHandle) eventloop.Rpc                          // -> nil

	// AsyncRunQuery starts query execution and returns a QueryEngine stream.
	AsyncRunQuery(query any, options QueryOptions) QueryEngine

	AsyncMemcacheGetMulti(keys []string, options MemcacheGetOptions) eventloop.Rpc
	AsyncMemcacheSetMulti(items []MemcacheSetItem, options MemcacheSetOptions) eventloop.Rpc
	AsyncMemcacheDeleteMulti(keys []string, options MemcacheDeleteOptions) eventloop.Rpc
	AsyncMemcacheOffsetMulti(items []MemcacheOffsetItem, options MemcacheOffsetOptions) eventloop.Rpc
}

// QueryNextResult is one step of a QueryEngine stream: an entity plus
// whether more results remain after it.
type QueryNextResult struct {
	Entity Entity
	More   bool
}

// QueryEngine streams decoded entities asynchronously (spec.md §1, §6 —
// out of core scope, consumed as an interface).
type QueryEngine interface {
	// Next returns an Rpc yielding a QueryNextResult; More is false on the
	// final result (which may itself carry a valid Entity) and on every
	// subsequent call.
	Next() eventloop.Rpc
}

// NamespaceResolver resolves the ambient namespace at call time when a
// caller supplies none (spec.md §6 "NamespaceResolver.current()").
type NamespaceResolver interface {
	Current() string
}

// GetOptions, PutOptions, DeleteOptions are per-operation RPC options
// threaded through from Context to Stub (deadline propagation per spec.md
// §5 "Timeouts").
type GetOptions struct {
	Deadline float64 // seconds; 0 means "use default"
	ReadOnly bool
	Tx       TxHandle // nil outside a transaction
}

type PutOptions struct {
	Deadline float64
	Tx       TxHandle
}

type DeleteOptions struct {
	Deadline float64
	Tx       TxHandle
}

type QueryOptions struct {
	Deadline float64
}
