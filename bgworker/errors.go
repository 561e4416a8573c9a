// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bgworker

import "errors"

var (
	// ErrPoolClosed is returned by Submit once KillAll has been called.
	ErrPoolClosed = errors.New("bgworker: pool closed")

	// ErrRateLimited is returned by Submit when the per-kind admission
	// limiter has rejected the job.
	ErrRateLimited = errors.New("bgworker: submission rate limited")

	// ErrUnknownKind is returned for a Kind value outside the three fixed
	// queues.
	ErrUnknownKind = errors.New("bgworker: unknown job kind")
)
