// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueBackend is the Darwin backend. Like the other backends it
// assumes a single goroutine drives it, so it keeps no internal locking.
type kqueueBackend struct {
	kq       int
	eventBuf []unix.Kevent_t
}

func newBackend(capacity int) (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{
		kq:       kq,
		eventBuf: make([]unix.Kevent_t, capacity),
	}, nil
}

func (b *kqueueBackend) changesFor(fd int, mask Mask) []unix.Kevent_t {
	var changes []unix.Kevent_t
	if mask&Readable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE,
		})
	} else {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE,
		})
	}
	if mask&Writable != 0 {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE,
		})
	} else {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE,
		})
	}
	return changes
}

// applyChanges submits changes, ignoring ENOENT from redundant EV_DELETEs
// (e.g. deleting a filter that was never armed).
func (b *kqueueBackend) applyChanges(changes []unix.Kevent_t) error {
	for i := range changes {
		_, err := unix.Kevent(b.kq, changes[i:i+1], nil, nil)
		if err != nil && err != unix.ENOENT {
			return err
		}
	}
	return nil
}

func (b *kqueueBackend) add(fd int, mask Mask) error {
	return b.applyChanges(b.changesFor(fd, mask))
}

func (b *kqueueBackend) del(fd int, mask Mask) error {
	if mask == 0 {
		changes := []unix.Kevent_t{
			{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
			{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
		}
		return b.applyChanges(changes)
	}
	return b.applyChanges(b.changesFor(fd, mask))
}

func (b *kqueueBackend) poll(timeout time.Duration, hasTimeout bool) ([]firedEvent, error) {
	var ts *unix.Timespec
	if hasTimeout {
		if timeout < 0 {
			timeout = 0
		}
		spec := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &spec
	}

	n, err := unix.Kevent(b.kq, nil, b.eventBuf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	byFD := make(map[int]Mask, n)
	order := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(b.eventBuf[i].Ident)
		var m Mask
		switch b.eventBuf[i].Filter {
		case unix.EVFILT_READ:
			m = Readable
		case unix.EVFILT_WRITE:
			m = Writable
		}
		if _, ok := byFD[fd]; !ok {
			order = append(order, fd)
		}
		byFD[fd] |= m
	}

	fired := make([]firedEvent, 0, len(order))
	for _, fd := range order {
		fired = append(fired, firedEvent{fd: fd, mask: byFD[fd]})
	}
	return fired, nil
}

func (b *kqueueBackend) resize(capacity int) error {
	buf := make([]unix.Kevent_t, capacity)
	copy(buf, b.eventBuf)
	b.eventBuf = buf
	return nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kq)
}
