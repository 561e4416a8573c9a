// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package lazyfree implements the deletion-time decision of whether a
// value is destroyed inline or handed to the background LazyFree queue,
// based on a cheap size estimate.
package lazyfree

import (
	"github.com/joeycumines/go-kvcore/bgworker"
	"github.com/joeycumines/go-kvcore/corelog"
)

// Threshold is the effort value above which a value becomes eligible for
// offloading.
const Threshold = 64

// Estimator is implemented by aggregate value types to report the number
// of contained elements (list length, set cardinality, hash field count,
// sorted-set length). Values that do not implement Estimator default to
// an effort of 1.
type Estimator interface {
	EstimateEffort() int
}

// RefCounted is implemented by values with shared ownership. A value
// whose reference count is not exactly 1 cannot be offloaded, because the
// shared pool still holds a reference.
type RefCounted interface {
	RefCount() int32
}

// Effort computes the size estimate used to decide eligibility for val.
func Effort(val any) int {
	if e, ok := val.(Estimator); ok {
		return e.EstimateEffort()
	}
	return 1
}

// eligible reports whether val's effort exceeds Threshold and, if val
// reports a reference count, that count is exactly 1.
func eligible(val any) bool {
	if Effort(val) <= Threshold {
		return false
	}
	if rc, ok := val.(RefCounted); ok {
		return rc.RefCount() == 1
	}
	return true
}

// Unlinker removes key's value from a keyspace without invoking any
// destructor, returning the detached value (or nil if absent) together
// with whether the key existed. Implemented by *keyspace.Dict via a thin
// adapter at the call site, kept as an interface here so lazyfree has no
// import-time dependency on keyspace's concrete type.
type Unlinker interface {
	UnlinkValue(key string) (val any, existed bool)
}

// DestroyFunc invokes whatever destructor a value requires. Policy calls
// it inline for values it does not offload; once InstallExecutor has wired
// the pool, the LazyFree worker also calls it for offloaded single values.
type DestroyFunc func(val any)

// Policy wires the decision rule to a bgworker.Pool's LazyFree queue.
type Policy struct {
	pool    *bgworker.Pool
	destroy DestroyFunc
	logger  *corelog.Logger
}

// Option configures a Policy at construction time.
type Option interface {
	apply(*Policy)
}

type optionFunc func(*Policy)

func (f optionFunc) apply(p *Policy) { f(p) }

// WithDestroyFunc installs the function used to destroy values freed
// inline. Defaults to a no-op, appropriate for garbage-collected Go
// values with no external resources to release.
func WithDestroyFunc(fn DestroyFunc) Option {
	return optionFunc(func(p *Policy) { p.destroy = fn })
}

// WithLogger attaches a structured logger for offload decisions.
func WithLogger(logger *corelog.Logger) Option {
	return optionFunc(func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	})
}

// New constructs a Policy that submits offloaded values to pool's
// LazyFree queue.
func New(pool *bgworker.Pool, opts ...Option) *Policy {
	p := &Policy{
		pool:    pool,
		destroy: func(any) {},
		logger:  corelog.Discard(),
	}
	for _, o := range opts {
		if o != nil {
			o.apply(p)
		}
	}
	return p
}

// lazyFreeJob is the argument shape enqueued on the LazyFree queue: either
// a single value or a pair of retired keyspace tables.
type lazyFreeJob struct {
	value  any
	tables [2]any
}

// AsyncDelete removes key's value from db (inline, via Unlinker), then
// applies the decision rule: if eligible, the already-unlinked value is
// enqueued on the LazyFree queue instead of being destroyed inline.
// Returns whether the key existed.
func (p *Policy) AsyncDelete(db Unlinker, key string) bool {
	val, existed := db.UnlinkValue(key)
	if !existed {
		return false
	}
	p.AsyncFreeObject(val)
	return true
}

// AsyncFreeObject applies the same decision rule to an already-unlinked
// value.
func (p *Policy) AsyncFreeObject(val any) {
	if val == nil {
		return
	}
	if eligible(val) {
		effort := Effort(val)
		p.logger.Debug().Int("effort", effort).Log("lazyfree: offloading value")
		if err := p.pool.Submit(bgworker.LazyFree, lazyFreeJob{value: val}); err != nil {
			// Submission failures (pool closed, rate limited) fall back
			// to inline destruction rather than leaking the value.
			p.logger.Warning().Err(err).Log("lazyfree: offload rejected, destroying inline")
			p.destroy(val)
		}
		return
	}
	p.destroy(val)
}

// AsyncEmptyDB replaces db's two keyspace tables with fresh empty ones
// (via Resetter) and enqueues the retired pair as a single LazyFree job
// destroyed in sequence by the worker.
func (p *Policy) AsyncEmptyDB(db Resetter) {
	old1, old2 := db.ResetTables()
	if err := p.pool.Submit(bgworker.LazyFree, lazyFreeJob{tables: [2]any{old1, old2}}); err != nil {
		p.logger.Warning().Err(err).Log("lazyfree: empty-db offload rejected, destroying inline")
		p.destroy(old1)
		p.destroy(old2)
	}
}

// Resetter swaps a database's live tables for fresh empty ones, returning
// the retired pair for destruction.
type Resetter interface {
	ResetTables() (old1, old2 any)
}

// PendingCount returns the number of lazy-free jobs awaiting destruction,
// a thin pass-through to the pool's Pending count. That count is read
// under the queue's mutex, not through an atomic.
func (p *Policy) PendingCount() int {
	return p.pool.Pending(bgworker.LazyFree)
}

// InstallExecutor wires pool's LazyFree queue to destroy the payloads
// this policy enqueues, using destroy for single values and tableDestroy
// for retired table pairs. Call once after constructing both the Pool and
// the Policy.
func (p *Policy) InstallExecutor(tableDestroy func(t1, t2 any)) {
	p.pool.SetExecutor(bgworker.LazyFree, func(arg any) error {
		j, ok := arg.(lazyFreeJob)
		if !ok {
			return nil
		}
		if j.value != nil {
			p.destroy(j.value)
			return nil
		}
		if tableDestroy != nil {
			tableDestroy(j.tables[0], j.tables[1])
		}
		return nil
	})
}
