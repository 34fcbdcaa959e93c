package store

import "strings"

// KeyPath is one (kind, identifier) pair. Identifier is a string, an int64,
// or nil (incomplete) — spec.md §3 "Key".
type KeyPath struct {
	Kind       string
	Identifier any // string | int64 | nil
}

// Key is an ordered sequence of (kind, identifier) pairs plus an app id and
// optional namespace (spec.md §3 "Key"; namespace field per SPEC_FULL.md
// §4.1, grounded on original_source/ndb/model.py's Key(namespace=None)).
// Invariant: only the last path element may be incomplete.
type Key struct {
	App       string
	Namespace string
	Path      []KeyPath
}

// NewKey constructs a complete or incomplete key for a single kind/id pair
// with an optional parent.
func NewKey(app, kind string, id any, parent *Key) *Key {
	var path []KeyPath
	if parent != nil {
		path = append(path, parent.Path...)
	}
	path = append(path, KeyPath{Kind: kind, Identifier: id})
	return &Key{App: app, Namespace: parentNamespace(parent), Path: path}
}

func parentNamespace(parent *Key) string {
	if parent == nil {
		return ""
	}
	return parent.Namespace
}

// Complete reports whether the key's last identifier is non-nil.
func (k *Key) Complete() bool {
	if len(k.Path) == 0 {
		return false
	}
	return k.Path[len(k.Path)-1].Identifier != nil
}

// Kind returns the kind of the key's final path element.
func (k *Key) Kind() string {
	if len(k.Path) == 0 {
		return ""
	}
	return k.Path[len(k.Path)-1].Kind
}

// ID returns the final path element's identifier (string, int64, or nil).
func (k *Key) ID() any {
	if len(k.Path) == 0 {
		return nil
	}
	return k.Path[len(k.Path)-1].Identifier
}

// Parent returns the key formed by dropping the final path element, or nil
// if this key has no ancestor.
func (k *Key) Parent() *Key {
	if len(k.Path) <= 1 {
		return nil
	}
	return &Key{App: k.App, Namespace: k.Namespace, Path: k.Path[:len(k.Path)-1]}
}

// WithID returns a copy of k with its final identifier replaced, used to
// materialize a complete key once the store assigns an id (spec.md §4.3
// "put").
func (k *Key) WithID(id any) *Key {
	path := append([]KeyPath(nil), k.Path...)
	path[len(path)-1].Identifier = id
	return &Key{App: k.App, Namespace: k.Namespace, Path: path}
}

// String renders a debug-friendly flat representation, e.g. "Foo:1/Bar:2".
func (k *Key) String() string {
	var b strings.Builder
	for i, p := range k.Path {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(p.Kind)
		b.WriteByte(':')
		switch id := p.Identifier.(type) {
		case nil:
			b.WriteByte('*')
		case string:
			b.WriteString(id)
		case int64:
			b.WriteString(itoa(id))
		default:
			b.WriteString("?")
		}
	}
	return b.String()
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// cacheKey is the comparable value used to index the session cache; Key
// itself contains a slice so cannot be a map key directly.
type cacheKey string

func (k *Key) cacheKey() cacheKey {
	return cacheKey(k.App + "\x00" + k.Namespace + "\x00" + k.String())
}

// Equal reports whether two keys denote the same entity.
func (k *Key) Equal(o *Key) bool {
	if k == nil || o == nil {
		return k == o
	}
	return k.cacheKey() == o.cacheKey()
}
