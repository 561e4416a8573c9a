// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactor implements a portable, single-threaded I/O multiplexing
// event loop with time events.
//
// A Loop owns a fixed-capacity array of file events indexed by file
// descriptor, a doubly linked list of time events, and an opaque backend
// (epoll, kqueue, or a portable poll(2) fallback) that supplies readiness
// notifications. All registration, deregistration, and dispatch happens on
// whichever goroutine calls Run/Process; the Loop performs no internal
// locking of its own state, since a single cooperative goroutine drives
// the reactor. Only Stop is safe to call from another goroutine.
package reactor

import (
	"time"

	"github.com/joeycumines/go-kvcore/corelog"
)

// ProcessFlags selects which categories of events Process should consider,
// and how it should wait.
type ProcessFlags uint8

const (
	// FileEvents requests that ready file descriptors be dispatched.
	FileEvents ProcessFlags = 1 << iota
	// TimeEvents requests that due time events be dispatched.
	TimeEvents
	// DontWait forces a non-blocking poll (zero timeout).
	DontWait
	// CallAfterSleep requests the after-sleep hook run once poll returns.
	CallAfterSleep

	// AllEvents dispatches both file and time events.
	AllEvents = FileEvents | TimeEvents
)

// Loop is the event reactor.
type Loop struct {
	capacity int
	events   []fileEvent
	maxfd    int // highest registered fd, or -1 if none

	timeEventHead   *timeEvent
	nextTimeEventID int64
	lastTime        time.Time

	backend backend

	beforeSleep func(*Loop)
	afterSleep  func(*Loop)

	state  runState
	logger *corelog.Logger

	// Counters surfaced via Stats rather than a separate metrics package,
	// since the reactor is the only consumer of its own tick activity.
	tickFileEventsFired uint64
	tickPasses          uint64
}

// Create allocates a Loop with fd slots 0..capacity-1.
func Create(capacity int, opts ...Option) (*Loop, error) {
	if capacity <= 0 {
		return nil, &RangeError{What: "capacity", Value: capacity}
	}

	cfg := loopConfig{logger: corelog.Discard()}
	for _, o := range opts {
		if o != nil {
			o.apply(&cfg)
		}
	}

	b, err := newBackend(capacity)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		capacity:        capacity,
		events:          make([]fileEvent, capacity),
		maxfd:           -1,
		nextTimeEventID: 0,
		lastTime:        time.Now(),
		backend:         b,
		beforeSleep:     cfg.beforeSleep,
		afterSleep:      cfg.afterSleep,
		logger:          cfg.logger,
	}
	return l, nil
}

// Resize shrinks or grows the loop's fd capacity. Shrinking is only
// permitted when no currently-registered fd would be truncated.
func (l *Loop) Resize(capacity int) error {
	if capacity <= 0 {
		return &RangeError{What: "capacity", Value: capacity}
	}
	if capacity < l.capacity && l.maxfd >= capacity {
		return &RangeError{What: "capacity", Value: capacity}
	}
	events := make([]fileEvent, capacity)
	copy(events, l.events)
	if err := l.backend.resize(capacity); err != nil {
		return err
	}
	l.events = events
	l.capacity = capacity
	return nil
}

// Destroy releases the loop's backend resources. No events are fired.
func (l *Loop) Destroy() error {
	l.state.Store(stateStopped)
	return l.backend.close()
}

// SetBeforeSleep installs (or replaces) the before-sleep hook.
func (l *Loop) SetBeforeSleep(cb func(*Loop)) { l.beforeSleep = cb }

// SetAfterSleep installs (or replaces) the after-sleep hook.
func (l *Loop) SetAfterSleep(cb func(*Loop)) { l.afterSleep = cb }

// AddFile registers mask for fd, OR-merging with any mask already
// registered. When mask sets both Readable and Writable in the same call,
// proc is installed for both directions and is guaranteed to fire at most
// once per tick even if both become ready simultaneously.
func (l *Loop) AddFile(fd int, mask Mask, proc FileProc, clientData any) error {
	if fd < 0 || fd >= l.capacity {
		return &RangeError{What: "fd", Value: fd}
	}

	ev := &l.events[fd]
	wasActive := ev.active()

	both := mask&(Readable|Writable) == Readable|Writable
	if mask&Readable != 0 {
		ev.rProc = proc
	}
	if mask&Writable != 0 {
		ev.wProc = proc
	}
	ev.shared = both
	ev.mask |= mask
	ev.clientData = clientData

	if err := l.backend.add(fd, ev.mask); err != nil {
		return err
	}

	if !wasActive && fd > l.maxfd {
		l.maxfd = fd
	}
	return nil
}

// RemoveFile clears the given mask bits for fd. Removing Writable also
// clears Barrier, since a barrier with no write side is meaningless.
func (l *Loop) RemoveFile(fd int, mask Mask) error {
	if fd < 0 || fd >= l.capacity {
		return &RangeError{What: "fd", Value: fd}
	}

	ev := &l.events[fd]
	ev.mask &^= mask
	if mask&Writable != 0 {
		ev.mask &^= Barrier
	}
	if mask&Readable != 0 {
		ev.rProc = nil
	}
	if mask&Writable != 0 {
		ev.wProc = nil
	}
	if !ev.active() {
		ev.shared = false
	}

	if err := l.backend.del(fd, ev.mask); err != nil {
		return err
	}

	if fd == l.maxfd && !ev.active() {
		for l.maxfd >= 0 && !l.events[l.maxfd].active() {
			l.maxfd--
		}
	}
	return nil
}

// Process runs one iteration of the reactor: an optional blocking wait for
// I/O readiness followed by dispatch of fired file events, then a pass over
// due time events. It returns the total number of events fired.
func (l *Loop) Process(flags ProcessFlags) (int, error) {
	if flags&(FileEvents|TimeEvents) == 0 {
		return 0, nil
	}

	numEvents := 0

	waitForIO := l.maxfd != -1
	waitForTimer := flags&TimeEvents != 0 && flags&DontWait == 0
	if waitForIO || waitForTimer {
		var (
			timeout    time.Duration
			hasTimeout bool
		)
		switch {
		case flags&DontWait != 0:
			timeout, hasTimeout = 0, true
		case flags&TimeEvents != 0:
			if deadline, ok := l.nearestDeadline(); ok {
				timeout = time.Until(deadline)
				if timeout < 0 {
					timeout = 0
				}
				hasTimeout = true
			}
		}

		if l.beforeSleep != nil {
			l.beforeSleep(l)
		}

		fired, err := l.backend.poll(timeout, hasTimeout)
		if err != nil {
			// Transient backend errors are absorbed; the reactor retries
			// on the next tick.
			l.logger.Warning().Err(err).Log("reactor: backend poll error absorbed")
		}

		if flags&CallAfterSleep != 0 && l.afterSleep != nil {
			l.afterSleep(l)
		}

		for _, fe := range fired {
			if fe.fd < 0 || fe.fd >= l.capacity {
				continue
			}
			ev := &l.events[fe.fd]
			l.dispatchFile(ev, fe.fd, fe.mask)
			numEvents++
		}
		l.tickFileEventsFired += uint64(len(fired))
	}

	if flags&TimeEvents != 0 {
		numEvents += l.processTimeEvents()
	}

	l.tickPasses++
	return numEvents, nil
}

// dispatchFile invokes the registered callbacks for a single fired fd,
// honoring the Barrier ordering rule and the shared-callback dedup rule.
func (l *Loop) dispatchFile(ev *fileEvent, fd int, fired Mask) {
	invokeRead := func() {
		if fired&Readable != 0 && ev.rProc != nil {
			ev.rProc(l, fd, ev.clientData, Readable)
		}
	}
	invokeWrite := func() {
		if fired&Writable != 0 && ev.wProc != nil {
			ev.wProc(l, fd, ev.clientData, Writable)
		}
	}

	bothFired := fired&Readable != 0 && fired&Writable != 0

	if ev.mask&Barrier != 0 {
		invokeWrite()
		if !(ev.shared && bothFired) {
			invokeRead()
		}
	} else {
		invokeRead()
		if !(ev.shared && bothFired) {
			invokeWrite()
		}
	}
}

// Stop requests the reactor's Run loop to exit after its current tick. Safe
// to call from any goroutine.
func (l *Loop) Stop() {
	l.state.CompareAndSwap(stateRunning, stateStopped)
	l.state.CompareAndSwap(stateCreated, stateStopped)
}

// Run loops Process(AllEvents|CallAfterSleep) until Stop is called.
func (l *Loop) Run() error {
	if !l.state.CompareAndSwap(stateCreated, stateRunning) {
		return ErrAlreadyRunning
	}
	for l.state.Load() == stateRunning {
		if _, err := l.Process(AllEvents | CallAfterSleep); err != nil {
			return err
		}
	}
	return nil
}

// Stats is a point-in-time snapshot of reactor activity, the kind of
// introspection surface an INFO-style command would want to expose.
type Stats struct {
	Capacity        int
	MaxFD           int
	FileEventsFired uint64
	Passes          uint64
}

// Stats returns a snapshot of the loop's activity counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Capacity:        l.capacity,
		MaxFD:           l.maxfd,
		FileEventsFired: l.tickFileEventsFired,
		Passes:          l.tickPasses,
	}
}
