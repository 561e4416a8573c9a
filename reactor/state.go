// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import "sync/atomic"

// runState is a small atomic state machine that rejects a second Run and
// lets Stop end a running loop. The reactor is driven by a single
// cooperative goroutine, so there is no sleeping/waking CAS dance to model
// here, only "has Run started" and "has the loop stopped". Destroy marks
// the loop stopped but is not guarded: each call closes the backend again.
type runState = atomic.Uint32

const (
	stateCreated uint32 = iota
	stateRunning
	stateStopped
)
