// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package keyspace

// EntryFunc is invoked once per entry visited by Scan.
type EntryFunc func(e *Entry)

// BucketFunc is invoked once per bucket visited by Scan, before its chained
// entries, so callers can observe bucket-level structure (e.g. to rebuild a
// secondary index). priv is passed through unmodified from Scan's caller.
type BucketFunc func(bucketIndex uint64, priv any)

// reverseBits reverses the low 64 bits of v, the building block of the
// Noordhuis cursor-increment scheme.
func reverseBits(v uint64) uint64 {
	var r uint64
	for i := 0; i < 64; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}

// nextCursor applies the Noordhuis increment rule for a table with the
// given mask: set all bits above the mask, bit-reverse, increment, and
// bit-reverse again. This visits high bits first so that buckets already
// scanned at a smaller mask remain covered after the table grows.
func nextCursor(v, mask uint64) uint64 {
	v |= ^mask
	v = reverseBits(v)
	v++
	v = reverseBits(v)
	return v
}

// Scan performs one stateless cursor-scan step starting at cursor,
// visiting at least the bucket(s) cursor maps to in each live table, and
// returns the cursor to pass on the next call. A return value of 0
// indicates the scan has completed a full pass.
//
// Per table, for every visited bucket, bucketFn(bucket, priv) runs once
// followed by fn(entry) for each chained entry.
func (d *Dict) Scan(cursor uint64, fn EntryFunc, bucketFn BucketFunc, priv any) uint64 {
	if d.Len() == 0 {
		return 0
	}

	if !d.rehashing {
		d.scanBucket(&d.t0, cursor&d.t0.mask, fn, bucketFn, priv)
		return nextCursor(cursor, d.t0.mask)
	}

	// While rehashing, two tables of different sizes coexist. Scan the
	// smaller table at the cursor masked to its size, then scan every
	// bucket of the larger table whose low bits agree with that masked
	// cursor: enumerate every large-table index obtained by setting the
	// bits of the cursor not covered by the smaller table's mask. The
	// cursor advances using the larger table's mask so iteration still
	// completes in a bounded number of calls.
	small, large := &d.t0, &d.t1
	if len(small.buckets) > len(large.buckets) {
		small, large = large, small
	}

	smallIdx := cursor & small.mask
	d.scanBucket(small, smallIdx, fn, bucketFn, priv)

	// Enumerate every large-table index whose bits below small.mask's
	// width equal smallIdx, by OR-ing smallIdx into each combination of
	// the extra high bits the larger table's mask covers. extraBits is a
	// contiguous run of high bits (both masks are power-of-two-minus-one),
	// so its set bit positions can be walked directly.
	extraBits := large.mask &^ small.mask
	var positions []uint
	for b := uint(0); b < 64; b++ {
		if extraBits&(1<<b) != 0 {
			positions = append(positions, b)
		}
	}
	combinations := uint64(1) << len(positions)
	for combo := uint64(0); combo < combinations; combo++ {
		var hi uint64
		for i, b := range positions {
			if combo&(1<<uint(i)) != 0 {
				hi |= 1 << b
			}
		}
		d.scanBucket(large, smallIdx|hi, fn, bucketFn, priv)
	}

	return nextCursor(cursor, large.mask)
}

func (d *Dict) scanBucket(t *table, idx uint64, fn EntryFunc, bucketFn BucketFunc, priv any) {
	if len(t.buckets) == 0 || int(idx) >= len(t.buckets) {
		return
	}
	if bucketFn != nil {
		bucketFn(idx, priv)
	}
	for e := t.buckets[idx]; e != nil; e = e.next {
		if fn != nil {
			fn(e)
		}
	}
}
