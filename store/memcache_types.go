package store

// These types describe the memcache-style surface of Stub (spec.md §6
// "asyncMemcache{Get,Set,Delete,Offset}Multi"). The remotecache package
// builds its batched client on top of them; they live here because Stub
// (the collaborator interface) is defined in this package.

type MemcacheGetOptions struct {
	Namespace string
	ForCas    bool
	Deadline  float64
}

type MemcacheSetOp int

const (
	MemcacheSet MemcacheSetOp = iota
	MemcacheAdd
	MemcacheReplace
	MemcacheCAS
)

type MemcacheSetItem struct {
	Key      string
	Value    []byte
	TTL      float64
	CASToken any // present when Op == MemcacheCAS
}

type MemcacheSetOptions struct {
	Op        MemcacheSetOp
	Namespace string
	Deadline  float64
}

type MemcacheDeleteOptions struct {
	Namespace     string
	GraceSeconds  float64
	Deadline      float64
}

// MemcacheOffsetItem describes one incr/decr request; Delta is negative for
// decr (spec.md §4.4 "incr/decr").
type MemcacheOffsetItem struct {
	Key          string
	Delta        int64
	InitialValue *uint64
}

type MemcacheOffsetOptions struct {
	Namespace string
	Deadline  float64
}

// MemcacheGetResult is one per-key result of a batched memcache get.
type MemcacheGetResult struct {
	Key      string
	Found    bool
	Value    []byte
	CASToken any
}

// MemcacheSetResult is one per-key result of a batched memcache set/add/
// replace/cas.
type MemcacheSetResult struct {
	Key    string
	Stored bool
}

// MemcacheDeleteStatus is the per-key status code of a delete.
type MemcacheDeleteStatus int

const (
	MemcacheDeleted MemcacheDeleteStatus = iota
	MemcacheNotFound
	MemcacheDeleteError
)

type MemcacheDeleteResult struct {
	Key    string
	Status MemcacheDeleteStatus
}

// MemcacheOffsetResult is one per-key result of a batched incr/decr; Found
// is false when the key did not exist and no InitialValue was supplied.
type MemcacheOffsetResult struct {
	Key   string
	Found bool
	Value uint64
}
