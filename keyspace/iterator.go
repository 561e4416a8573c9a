// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package keyspace

// AbortFunc terminates the process. Overridable in tests so the fatal
// fingerprint-mismatch path can be exercised without actually killing the
// test binary.
var AbortFunc = func(err error) {
	panic(err)
}

// wangHash64 scrambles its input through Thomas Wang's 64-bit integer
// hash, the mixing function used to build the unsafe iterator's
// fingerprint.
func wangHash64(key uint64) uint64 {
	key = (^key) + (key << 21)
	key = key ^ (key >> 24)
	key = key + (key << 3) + (key << 8)
	key = key ^ (key >> 14)
	key = key + (key << 2) + (key << 4)
	key = key ^ (key >> 28)
	key = key + (key << 31)
	return key
}

// fingerprint mixes both tables' bucket-array lengths, used counts, the
// rehash cursor, and the rehashing flag through wangHash64. Go offers no
// portable pointer-to-int cast, so this stands in for the table
// addresses: any insert, delete, or rehash progress between an unsafe
// iterator's creation and release changes at least one of these values.
func (d *Dict) fingerprint() uint64 {
	var h uint64
	mix := func(v uint64) {
		h = wangHash64(h ^ v)
	}
	mix(uint64(len(d.t0.buckets)))
	mix(uint64(d.t0.used))
	mix(uint64(len(d.t1.buckets)))
	mix(uint64(d.t1.used))
	mix(d.rehashCursor)
	if d.rehashing {
		mix(1)
	}
	return h
}

// Iterator walks every entry of a Dict, in T0 bucket-index/chain order,
// then T1's if a rehash is in progress.
type Iterator struct {
	d      *Dict
	unsafe bool

	started bool
	done    bool

	table      *table
	bucketIdx  int
	cur        *Entry
	fp         uint64
	fpComputed bool
}

// NewSafeIterator returns an iterator that permits inserts, deletes, and
// lookups on d during iteration; while it is live, mutating operations
// will not trigger a rehash step.
func (d *Dict) NewSafeIterator() *Iterator {
	return &Iterator{d: d}
}

// NewUnsafeIterator returns a faster iterator that permits only calls to
// Next between creation and Release; any other mutation during that
// window is a detected programmer bug caught at Release.
func (d *Dict) NewUnsafeIterator() *Iterator {
	return &Iterator{d: d, unsafe: true}
}

func (it *Iterator) onStart() {
	it.started = true
	it.table = &it.d.t0
	it.bucketIdx = 0
	if it.unsafe {
		it.fp = it.d.fingerprint()
		it.fpComputed = true
	} else {
		it.d.liveSafeIterators++
	}
}

// Next advances the iterator and reports whether an entry is available via
// Entry. Iteration order is T0 in bucket order (chain order within a
// bucket), then T1 if a rehash is in progress once T0 is exhausted.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if !it.started {
		it.onStart()
	}

	if it.cur != nil {
		it.cur = it.cur.next
	}

	for it.cur == nil {
		if it.table == nil || it.bucketIdx >= len(it.table.buckets) {
			if it.table == &it.d.t0 && it.d.rehashing {
				it.table = &it.d.t1
				it.bucketIdx = 0
				continue
			}
			it.done = true
			return false
		}
		it.cur = it.table.buckets[it.bucketIdx]
		it.bucketIdx++
	}
	return true
}

// Entry returns the entry at the iterator's current position. Valid only
// after a call to Next that returned true.
func (it *Iterator) Entry() *Entry { return it.cur }

// Release ends the iteration, decrementing the dictionary's live safe
// iterator count (safe) or verifying the captured fingerprint (unsafe). A
// fingerprint mismatch on an unsafe iterator indicates the dictionary was
// mutated during iteration, a detected programmer bug that is fatal.
func (it *Iterator) Release() {
	if !it.started {
		return
	}
	if it.unsafe {
		if it.fpComputed {
			got := it.d.fingerprint()
			if got != it.fp {
				AbortFunc(&FingerprintMismatchError{Want: it.fp, Got: got})
			}
		}
		return
	}
	if it.d.liveSafeIterators > 0 {
		it.d.liveSafeIterators--
	}
}
