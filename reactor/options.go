// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import "github.com/joeycumines/go-kvcore/corelog"

// Option configures a Loop at construction time.
type Option interface {
	apply(*loopConfig)
}

type loopConfig struct {
	beforeSleep func(*Loop)
	afterSleep  func(*Loop)
	logger      *corelog.Logger
}

type optionFunc func(*loopConfig)

func (f optionFunc) apply(c *loopConfig) { f(c) }

// WithBeforeSleep installs the hook invoked immediately before the reactor
// blocks in the backend's poll call. Conventionally used by collaborators
// to flush pending writes.
func WithBeforeSleep(cb func(*Loop)) Option {
	return optionFunc(func(c *loopConfig) { c.beforeSleep = cb })
}

// WithAfterSleep installs the hook invoked after the backend's poll call
// returns, when Process is called with CallAfterSleep.
func WithAfterSleep(cb func(*Loop)) Option {
	return optionFunc(func(c *loopConfig) { c.afterSleep = cb })
}

// WithLogger attaches a structured logger for absorbed backend poll errors
// and clock-skew recovery (see corelog). The zero value logs nothing.
func WithLogger(logger *corelog.Logger) Option {
	return optionFunc(func(c *loopConfig) { c.logger = logger })
}
