// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package corelog provides the structured-logging glue shared by the
// reactor, keyspace, bgworker and lazyfree packages.
//
// Every subsystem accepts a *logiface.Logger[*stumpy.Event] rather than
// writing to log.Default(), so a command layer embedding this module can
// redirect all of it through its own logiface pipeline. Calling New with a
// nil writer, or using Discard, yields a logger that writes nowhere, which
// is what each package installs when no logger is supplied.
package corelog

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type threaded through every package in
// this module.
type Logger = logiface.Logger[*stumpy.Event]

// New builds a Logger writing newline-delimited JSON to w, at minLevel
// and above. Passing a nil w discards all output.
func New(w io.Writer, minLevel logiface.Level) *Logger {
	if w == nil {
		w = io.Discard
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(minLevel),
	)
}

// Discard is the zero-configuration logger used by every package's default
// option set. It never writes anywhere but remains safe to call.
func Discard() *Logger {
	return stumpy.L.New(stumpy.L.WithLevel(logiface.LevelDisabled))
}
