// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package keyspace

// emptyBucketProbeFactor bounds how many empty T0 buckets a single rehash
// step call may skip before giving up.
const emptyBucketProbeFactor = 10

// maybeStartGrow begins an incremental rehash into a larger table if the
// load factor calls for it, honoring the allow-resize/force-resize-ratio
// policy knobs.
func (d *Dict) maybeStartGrow() {
	if d.rehashing {
		return
	}
	used := d.t0.used
	capacity := len(d.t0.buckets)
	if capacity == 0 {
		return
	}
	loadFactor := float64(used) / float64(capacity)
	if !d.allowResize && loadFactor <= d.forceResizeRatio {
		return
	}
	if used < capacity {
		return
	}
	d.startRehash(nextPowerOfTwo(2 * used))
}

// maybeStartShrink begins an incremental rehash into a smaller table when
// the load factor has fallen far enough to warrant reclaiming space.
func (d *Dict) maybeStartShrink() {
	if d.rehashing || !d.allowResize {
		return
	}
	used := d.t0.used
	capacity := len(d.t0.buckets)
	target := nextPowerOfTwo(maxInt(used, initialCapacity))
	if target >= capacity {
		return
	}
	d.startRehash(target)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (d *Dict) startRehash(targetCapacity int) {
	d.t1 = *newTable(targetCapacity)
	d.rehashCursor = 0
	d.rehashing = true
	d.logRehashStart(targetCapacity)
}

// rehashStep migrates every entry of the bucket at rehashCursor from T0 to
// T1, then advances the cursor, bounding empty-bucket probing at
// emptyBucketProbeFactor*n. It is a no-op while a safe iterator is live,
// since migrating entries out from under one would invalidate its
// position.
func (d *Dict) rehashStep(n int) {
	if !d.rehashing || d.liveSafeIterators > 0 {
		return
	}

	emptyVisits := 0
	maxEmptyVisits := emptyBucketProbeFactor * n
	for i := 0; i < n && d.t0.used > 0; i++ {
		for d.t0.buckets[d.rehashCursor] == nil {
			emptyVisits++
			d.rehashCursor = (d.rehashCursor + 1) & d.t0.mask
			if emptyVisits >= maxEmptyVisits {
				return
			}
		}

		entry := d.t0.buckets[d.rehashCursor]
		d.t0.buckets[d.rehashCursor] = nil
		for entry != nil {
			next := entry.next
			idx := d.typ.hash(entry.key) & d.t1.mask
			entry.next = d.t1.buckets[idx]
			d.t1.buckets[idx] = entry
			d.t0.used--
			d.t1.used++
			entry = next
		}

		d.rehashCursor = (d.rehashCursor + 1) & d.t0.mask
	}

	if d.t0.used == 0 {
		d.t0 = d.t1
		d.t1 = table{}
		d.rehashCursor = 0
		d.rehashing = false
		d.logRehashFinish()
	}
}

// rehashStepIfNeeded performs exactly one rehash step, the amortized cost
// every mutating operation pays.
func (d *Dict) rehashStepIfNeeded() {
	if d.rehashing {
		d.rehashStep(1)
	}
}

// RehashMilliseconds runs rehash steps of 100 buckets at a time until
// budgetMs elapses or rehashing completes, for callers that want to finish
// a rehash off the hot path in bounded time instead of one step per
// operation. It never partially runs while a safe iterator is live;
// callers should retry later in that case.
func (d *Dict) RehashMilliseconds(budgetMs int64, nowMs func() int64) int {
	if nowMs == nil {
		return 0
	}
	steps := 0
	deadline := nowMs() + budgetMs
	for d.rehashing && d.liveSafeIterators == 0 && nowMs() < deadline {
		d.rehashStep(100)
		steps++
	}
	return steps
}
