// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import "time"

// NoMoreTimer is returned by a TimeProc to tombstone the event instead of
// rescheduling it.
const NoMoreTimer int64 = -1

// TimeProc is invoked when a time event fires. Returning NoMoreTimer
// tombstones the event; any other value reschedules it that many
// milliseconds from now.
type TimeProc func(loop *Loop, id int64, clientData any) int64

// FinalizerProc runs once, on the reactor goroutine, when a tombstoned time
// event is finally reaped.
type FinalizerProc func(loop *Loop, clientData any)

// timeEvent is a node in the loop's doubly linked time-event list.
// id == deletedTimeEventID marks a tombstone awaiting reaping.
type timeEvent struct {
	id         int64
	when       time.Time
	proc       TimeProc
	finalizer  FinalizerProc
	clientData any
	prev, next *timeEvent
}

const deletedTimeEventID int64 = -1

// linkTimeEvent inserts te at the head of the list in O(1).
func (l *Loop) linkTimeEvent(te *timeEvent) {
	te.prev = nil
	te.next = l.timeEventHead
	if l.timeEventHead != nil {
		l.timeEventHead.prev = te
	}
	l.timeEventHead = te
}

// unlinkTimeEvent removes te from the list. Used only during the reaping
// pass in processTimeEvents.
func (l *Loop) unlinkTimeEvent(te *timeEvent) {
	if te.prev != nil {
		te.prev.next = te.next
	} else {
		l.timeEventHead = te.next
	}
	if te.next != nil {
		te.next.prev = te.prev
	}
	te.prev, te.next = nil, nil
}

// CreateTimeEvent schedules proc to fire delayMs from now, returning a
// unique, monotonically assigned id.
func (l *Loop) CreateTimeEvent(delayMs int64, proc TimeProc, clientData any, finalizer FinalizerProc) int64 {
	id := l.nextTimeEventID
	l.nextTimeEventID++

	te := &timeEvent{
		id:         id,
		when:       time.Now().Add(time.Duration(delayMs) * time.Millisecond),
		proc:       proc,
		finalizer:  finalizer,
		clientData: clientData,
	}
	l.linkTimeEvent(te)
	return id
}

// DeleteTimeEvent marks the time event with the given id as a tombstone.
// The node is actually unlinked, and its finalizer run, during the next
// time-event pass.
func (l *Loop) DeleteTimeEvent(id int64) error {
	for te := l.timeEventHead; te != nil; te = te.next {
		if te.id == id {
			te.id = deletedTimeEventID
			return nil
		}
	}
	return ErrUnknownTimeEvent
}

// nearestDeadline linearly scans the time-event list for the soonest firing
// instant. An ordered structure would turn this into a heap-pop, but the
// expected event count per Loop is small enough that the scan doesn't show
// up in practice.
func (l *Loop) nearestDeadline() (time.Time, bool) {
	var (
		found    bool
		deadline time.Time
	)
	for te := l.timeEventHead; te != nil; te = te.next {
		if te.id == deletedTimeEventID {
			continue
		}
		if !found || te.when.Before(deadline) {
			deadline = te.when
			found = true
		}
	}
	return deadline, found
}

// SimulateClockSkew sets the loop's internal clock checkpoint to now-delta,
// without moving real time. Passing a negative delta makes the next
// processTimeEvents pass observe the wall clock as having jumped backwards,
// exercising the clock-skew recovery path.
func (l *Loop) SimulateClockSkew(delta time.Duration) {
	l.lastTime = time.Now().Add(-delta)
}

// processTimeEvents runs one time-event pass: clock-skew correction,
// tombstone reaping, and firing of due events. It returns the number of
// callbacks invoked.
func (l *Loop) processTimeEvents() int {
	now := time.Now()

	if now.Before(l.lastTime) {
		// Clock moved backwards: recovering progress immediately is
		// preferred to an indefinite delay.
		for te := l.timeEventHead; te != nil; te = te.next {
			te.when = time.Time{}
		}
		if l.logger != nil {
			l.logger.Warning().Log("reactor: clock skew detected, forcing all time events due")
		}
	}
	l.lastTime = now

	// Snapshot the highest id in existence at pass start; ids assigned by
	// callbacks invoked during this pass are deliberately not visited this
	// round.
	maxID := l.nextTimeEventID - 1

	fired := 0
	te := l.timeEventHead
	for te != nil {
		next := te.next

		if te.id == deletedTimeEventID {
			l.unlinkTimeEvent(te)
			if te.finalizer != nil {
				te.finalizer(l, te.clientData)
			}
			te = next
			continue
		}

		if te.id > maxID {
			te = next
			continue
		}

		if !te.when.After(now) {
			id := te.id
			retval := te.proc(l, id, te.clientData)
			if retval == NoMoreTimer {
				te.id = deletedTimeEventID
			} else {
				te.when = now.Add(time.Duration(retval) * time.Millisecond)
			}
			fired++
		}

		te = next
	}
	return fired
}
