// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package keyspace

import "math/rand"

// findInTable locates an entry by key within a single table, returning the
// entry and the bucket index it occupies.
func findInTable(t *table, hash uint64, key string, typ *TypeDescriptor) (*Entry, int) {
	if len(t.buckets) == 0 {
		return nil, 0
	}
	idx := int(hash & t.mask)
	for e := t.buckets[idx]; e != nil; e = e.next {
		if typ.keyEqual(e.key, key) {
			return e, idx
		}
	}
	return nil, idx
}

// Find returns the entry for key, or nil if absent. Probes T0 first, then
// T1 when rehashing is in progress: insertions during rehash always target
// T1, so a key may already have migrated out of T0 by the time Find runs.
func (d *Dict) Find(key string) *Entry {
	hash := d.typ.hash(key)
	if e, _ := findInTable(&d.t0, hash, key, d.typ); e != nil {
		return e
	}
	if d.rehashing {
		if e, _ := findInTable(&d.t1, hash, key, d.typ); e != nil {
			return e
		}
	}
	return nil
}

// targetTable returns the table new insertions should land in: T1 while
// rehashing, T0 otherwise. Inserting into T0 during a rehash would let the
// new entry be migrated a second time, or missed if it landed behind the
// cursor.
func (d *Dict) targetTable() *table {
	if d.rehashing {
		return &d.t1
	}
	return &d.t0
}

// AddRaw is the core insertion primitive. If key is absent,
// it allocates and links a new entry with val already set and returns it,
// true. If key is present, it returns the existing entry and false without
// modifying it.
func (d *Dict) AddRaw(key string, val any) (entry *Entry, inserted bool) {
	d.rehashStepIfNeeded()

	if existing := d.Find(key); existing != nil {
		return existing, false
	}

	d.ensureT0()
	if !d.rehashing {
		d.maybeStartGrow()
	}

	t := d.targetTable()
	hash := d.typ.hash(key)
	idx := int(hash & t.mask)
	e := &Entry{key: key, val: val, next: t.buckets[idx]}
	t.buckets[idx] = e
	t.used++
	return e, true
}

// Add inserts val for key, failing with ErrAlreadyExists if key is already
// present.
func (d *Dict) Add(key string, val any) error {
	_, inserted := d.AddRaw(key, val)
	if !inserted {
		return ErrAlreadyExists
	}
	return nil
}

// AddOrFind returns the entry for key, creating it with a nil value if
// absent.
func (d *Dict) AddOrFind(key string) *Entry {
	e, _ := d.AddRaw(key, nil)
	return e
}

// Replace inserts val for key if absent, or overwrites the existing
// entry's value if present. The new value is installed before the old
// value's destructor runs, so a value holding a reference back to its own
// entry never observes a half-destroyed predecessor. Returns true if key
// was newly inserted.
func (d *Dict) Replace(key string, val any) bool {
	if existing := d.Find(key); existing != nil {
		old := existing.val
		existing.val = val
		d.typ.destroyVal(old)
		d.rehashStepIfNeeded()
		return false
	}
	d.AddRaw(key, val)
	return true
}

// removeFromTable unlinks and returns the entry for key from t, or nil if
// absent.
func removeFromTable(t *table, hash uint64, key string, typ *TypeDescriptor) *Entry {
	if len(t.buckets) == 0 {
		return nil
	}
	idx := int(hash & t.mask)
	var prev *Entry
	for e := t.buckets[idx]; e != nil; e = e.next {
		if typ.keyEqual(e.key, key) {
			if prev == nil {
				t.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			e.next = nil
			t.used--
			return e
		}
		prev = e
	}
	return nil
}

// Unlink removes key's entry from its chain in O(1) without invoking any
// destructor, returning the detached entry so the caller may inspect it
// before calling FreeUnlinked.
func (d *Dict) Unlink(key string) *Entry {
	d.rehashStepIfNeeded()

	hash := d.typ.hash(key)
	if e := removeFromTable(&d.t0, hash, key, d.typ); e != nil {
		d.maybeStartShrink()
		return e
	}
	if d.rehashing {
		if e := removeFromTable(&d.t1, hash, key, d.typ); e != nil {
			return e
		}
	}
	return nil
}

// FreeUnlinked invokes the type descriptor's key and value destructors on
// an entry previously detached via Unlink. Calling it on any other entry
// is a programming error.
func (d *Dict) FreeUnlinked(e *Entry) {
	if e == nil {
		return
	}
	d.typ.destroyKey(e.key)
	d.typ.destroyVal(e.val)
}

// Delete removes key's entry, invoking its destructors, and returns
// ErrNotFound if key was absent.
func (d *Dict) Delete(key string) error {
	e := d.Unlink(key)
	if e == nil {
		return ErrNotFound
	}
	d.FreeUnlinked(e)
	return nil
}

// RandomEntry returns a uniformly random entry across both tables, or nil
// if the dictionary is empty. During rehash it samples starting from the
// rehash cursor to avoid the already-migrated, now-empty prefix of T0.
func (d *Dict) RandomEntry() *Entry {
	if d.Len() == 0 {
		return nil
	}

	if d.rehashing {
		// T0's buckets below rehashCursor have already been migrated and
		// are permanently empty; only sample the unmigrated suffix.
		t0Remaining := len(d.t0.buckets) - int(d.rehashCursor)
		if t0Remaining < 0 {
			t0Remaining = 0
		}
		for {
			if rand.Intn(t0Remaining+len(d.t1.buckets)) < t0Remaining {
				idx := d.rehashCursor + uint64(rand.Intn(maxInt(t0Remaining, 1)))
				if e := pickFromBucket(d.t0.buckets, idx); e != nil {
					return e
				}
			} else {
				idx := uint64(rand.Intn(len(d.t1.buckets)))
				if e := pickFromBucket(d.t1.buckets, idx); e != nil {
					return e
				}
			}
		}
	}

	for {
		idx := uint64(rand.Intn(len(d.t0.buckets)))
		if e := pickFromBucket(d.t0.buckets, idx); e != nil {
			return e
		}
	}
}

func pickFromBucket(buckets []*Entry, idx uint64) *Entry {
	if int(idx) >= len(buckets) {
		return nil
	}
	var n int
	for e := buckets[idx]; e != nil; e = e.next {
		n++
	}
	if n == 0 {
		return nil
	}
	pick := rand.Intn(n)
	e := buckets[idx]
	for i := 0; i < pick; i++ {
		e = e.next
	}
	return e
}

// maxSampleSteps, multiplied by the requested count n, bounds how many
// consecutive buckets Sample will probe per table before giving up.
const maxSampleSteps = 10

// Sample returns up to n entries drawn from consecutive buckets
// starting at a random index, probing both tables while rehashing. It
// returns the entries actually found, which may be fewer than n.
func (d *Dict) Sample(n int) []*Entry {
	if n <= 0 || d.Len() == 0 {
		return nil
	}

	out := make([]*Entry, 0, n)
	maxSteps := n * maxSampleSteps

	collect := func(t *table, start int) {
		if len(t.buckets) == 0 {
			return
		}
		for steps := 0; steps < maxSteps && len(out) < n; steps++ {
			idx := (start + steps) & int(t.mask)
			for e := t.buckets[idx]; e != nil && len(out) < n; e = e.next {
				out = append(out, e)
			}
		}
	}

	start := rand.Intn(len(d.t0.buckets))
	collect(&d.t0, start)
	if d.rehashing && len(out) < n {
		collect(&d.t1, rand.Intn(maxInt(len(d.t1.buckets), 1)))
	}
	return out
}
