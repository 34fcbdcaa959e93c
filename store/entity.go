package store

// Entity is an opaque value owned by the caller; the core only ever
// touches it through the Codec collaborator, treating it as (Key,
// EncodedBody) for caching and transport (spec.md §3 "Entity").
type Entity struct {
	Key  *Key
	Body any
}
