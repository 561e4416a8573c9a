// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-kvcore/reactor"
)

func TestLoop_TimeEvent_FiresOnceThenStops(t *testing.T) {
	loop, err := reactor.Create(16)
	require.NoError(t, err)
	defer loop.Destroy()

	var fired int
	loop.CreateTimeEvent(0, func(l *reactor.Loop, id int64, clientData any) int64 {
		fired++
		return reactor.NoMoreTimer
	}, nil, nil)

	n, err := loop.Process(reactor.TimeEvents | reactor.DontWait)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fired)

	// The event was tombstoned; a second pass reaps it without re-firing.
	n, err = loop.Process(reactor.TimeEvents | reactor.DontWait)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Equal(t, 1, fired)
}

func TestLoop_TimeEvent_Reschedules(t *testing.T) {
	loop, err := reactor.Create(16)
	require.NoError(t, err)
	defer loop.Destroy()

	var fired int
	loop.CreateTimeEvent(0, func(l *reactor.Loop, id int64, clientData any) int64 {
		fired++
		if fired >= 3 {
			return reactor.NoMoreTimer
		}
		return 0
	}, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := loop.Process(reactor.TimeEvents | reactor.DontWait)
		require.NoError(t, err)
	}
	require.Equal(t, 3, fired)
}

func TestLoop_DeleteTimeEvent_RunsFinalizer(t *testing.T) {
	loop, err := reactor.Create(16)
	require.NoError(t, err)
	defer loop.Destroy()

	finalized := false
	id := loop.CreateTimeEvent(10_000, func(l *reactor.Loop, id int64, clientData any) int64 {
		t.Fatal("time event should not have fired before deletion")
		return reactor.NoMoreTimer
	}, "payload", func(l *reactor.Loop, clientData any) {
		finalized = true
		require.Equal(t, "payload", clientData)
	})

	require.NoError(t, loop.DeleteTimeEvent(id))

	_, err = loop.Process(reactor.TimeEvents | reactor.DontWait)
	require.NoError(t, err)
	require.True(t, finalized)
}

func TestLoop_DeleteTimeEvent_UnknownID(t *testing.T) {
	loop, err := reactor.Create(16)
	require.NoError(t, err)
	defer loop.Destroy()

	err = loop.DeleteTimeEvent(999)
	require.ErrorIs(t, err, reactor.ErrUnknownTimeEvent)
}

// TestLoop_ClockSkew forces the wall clock to appear to have moved backwards
// between two passes, and asserts the pending event is treated as due
// immediately rather than waiting out its original delay.
func TestLoop_ClockSkew(t *testing.T) {
	loop, err := reactor.Create(16)
	require.NoError(t, err)
	defer loop.Destroy()

	var fired int
	loop.CreateTimeEvent(60_000, func(l *reactor.Loop, id int64, clientData any) int64 {
		fired++
		return reactor.NoMoreTimer
	}, nil, nil)

	loop.SimulateClockSkew(-time.Hour)

	n, err := loop.Process(reactor.TimeEvents | reactor.DontWait)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fired)
}
