// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package keyspace implements an incrementally-resized, separate-chaining
// hash table: two bucket tables, a rehash cursor, amortized migration on
// every mutating operation, a stateless cursor-based scan tolerant of
// concurrent resizes, and safe/unsafe iteration.
package keyspace

import (
	"github.com/joeycumines/go-kvcore/corelog"
)

// Entry is a single key/value association stored in a bucket chain.
type Entry struct {
	key  string
	val  any
	next *Entry
}

// Key returns the entry's key.
func (e *Entry) Key() string { return e.key }

// Val returns the entry's current value.
func (e *Entry) Val() any { return e.val }

// SetVal overwrites the entry's value in place, without invoking any
// destructor on the previous value.
func (e *Entry) SetVal(val any) { e.val = val }

const initialCapacity = 4

// table is one of the dictionary's two bucket arrays.
type table struct {
	buckets []*Entry
	mask    uint64 // len(buckets)-1; buckets is always a power of two
	used    int
}

func newTable(capacity int) *table {
	capacity = nextPowerOfTwo(capacity)
	return &table{
		buckets: make([]*Entry, capacity),
		mask:    uint64(capacity - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Dict is the incrementally-resized hash table this package implements.
// Zero value is not usable; construct with New.
type Dict struct {
	t0, t1 table
	typ    *TypeDescriptor

	rehashing    bool
	rehashCursor uint64

	allowResize       bool
	forceResizeRatio  float64
	liveSafeIterators int

	logger *corelog.Logger
}

// Option configures a Dict at construction time.
type Option interface {
	apply(*Dict)
}

type optionFunc func(*Dict)

func (f optionFunc) apply(d *Dict) { f(d) }

// WithTypeDescriptor installs the hash/compare/destructor capability set.
func WithTypeDescriptor(td *TypeDescriptor) Option {
	return optionFunc(func(d *Dict) { d.typ = td })
}

// WithAllowResize sets the allow-resize policy knob.
// Defaults to true.
func WithAllowResize(allow bool) Option {
	return optionFunc(func(d *Dict) { d.allowResize = allow })
}

// WithLogger attaches a structured logger for rehash start/finish
// transitions. Defaults to a no-op logger.
func WithLogger(logger *corelog.Logger) Option {
	return optionFunc(func(d *Dict) {
		if logger != nil {
			d.logger = logger
		}
	})
}

// defaultForceResizeRatio is the load factor above which growth proceeds
// even when allow-resize has been set to false.
const defaultForceResizeRatio = 5.0

// New constructs an empty Dict. T0's backing array is not allocated until
// the first insertion; an empty Dict holds no buckets at all.
func New(opts ...Option) *Dict {
	d := &Dict{
		allowResize:      true,
		forceResizeRatio: defaultForceResizeRatio,
		logger:           corelog.Discard(),
	}
	for _, o := range opts {
		if o != nil {
			o.apply(d)
		}
	}
	return d
}

// ensureT0 allocates T0 at its initial capacity on first use, deferring the
// allocation until the dictionary actually holds something.
func (d *Dict) ensureT0() {
	if d.t0.buckets == nil {
		d.t0 = *newTable(initialCapacity)
	}
}

// Len returns the total number of entries across both tables.
func (d *Dict) Len() int { return d.t0.used + d.t1.used }

// Rehashing reports whether an incremental rehash is in progress.
func (d *Dict) Rehashing() bool { return d.rehashing }

// Stats is a point-in-time snapshot of the dictionary's internal state,
// an introspection surface for callers that want to expose bucket counts,
// load factor, and rehash progress (e.g. over an admin/metrics endpoint)
// without reaching into the dictionary's internals.
type Stats struct {
	Used          int
	T0Buckets     int
	T1Buckets     int
	Rehashing     bool
	RehashCursor  uint64
	LoadFactor    float64
	LiveIterators int
}

// Stats returns a snapshot of the dictionary's bucket/load/rehash state.
func (d *Dict) Stats() Stats {
	loadFactor := 0.0
	if len(d.t0.buckets) > 0 {
		loadFactor = float64(d.Len()) / float64(len(d.t0.buckets))
	}
	return Stats{
		Used:          d.Len(),
		T0Buckets:     len(d.t0.buckets),
		T1Buckets:     len(d.t1.buckets),
		Rehashing:     d.rehashing,
		RehashCursor:  d.rehashCursor,
		LoadFactor:    loadFactor,
		LiveIterators: d.liveSafeIterators,
	}
}

func (d *Dict) logRehashStart(targetCap int) {
	d.logger.Debug().Int("target_capacity", targetCap).Log("keyspace: rehash started")
}

func (d *Dict) logRehashFinish() {
	d.logger.Debug().Int("capacity", len(d.t0.buckets)).Log("keyspace: rehash finished")
}
