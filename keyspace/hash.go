// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package keyspace

import "hash/maphash"

// processSeed is generated once per process so the default hash function
// resists hash-flooding the same way the spec's SipHash default does: an
// attacker who does not know the seed cannot predict bucket collisions.
var processSeed = maphash.MakeSeed()

// DefaultHash hashes a string key using hash/maphash seeded with
// processSeed. No SipHash implementation appears anywhere in the retrieved
// example corpus; hash/maphash is the standard library's own
// seeded-at-runtime, flood-resistant string hash, which is the property
// the type descriptor's Hash field exists to provide.
func DefaultHash(key string) uint64 {
	return maphash.String(processSeed, key)
}

// TypeDescriptor supplies the per-dictionary capability set a C
// implementation would pass as a vtable of function pointers: hashing,
// key comparison, and destructors. It has no key or value duplication
// hook; keys and values are stored as passed in. Any field left nil falls
// back to the zero-cost default noted in its doc comment.
type TypeDescriptor struct {
	// Hash computes the hash of a key. Defaults to DefaultHash.
	Hash func(key string) uint64

	// KeyCompare reports whether two keys are equal. Defaults to ==.
	KeyCompare func(a, b string) bool

	// KeyDestructor runs when Delete or FreeUnlinked discards a key.
	// Replace keeps the existing key, and Dict has no whole-table destroy
	// operation, so no other path calls it. Defaults to a no-op: Go
	// strings are garbage-collected and need no explicit release.
	KeyDestructor func(key string)

	// ValDestructor runs when Delete, FreeUnlinked, or an overwriting
	// Replace discards a value. Defaults to a no-op.
	ValDestructor func(val any)
}

func (td *TypeDescriptor) hash(key string) uint64 {
	if td == nil || td.Hash == nil {
		return DefaultHash(key)
	}
	return td.Hash(key)
}

func (td *TypeDescriptor) keyEqual(a, b string) bool {
	if td == nil || td.KeyCompare == nil {
		return a == b
	}
	return td.KeyCompare(a, b)
}

func (td *TypeDescriptor) destroyKey(key string) {
	if td != nil && td.KeyDestructor != nil {
		td.KeyDestructor(key)
	}
}

func (td *TypeDescriptor) destroyVal(val any) {
	if td != nil && td.ValDestructor != nil {
		td.ValDestructor(val)
	}
}
