// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux && !darwin

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend is the portable fallback for platforms without a dedicated
// epoll/kqueue backend. It rebuilds the pollfd slice from the registration
// table on every call to poll, trading O(n) setup for portability (spec
// §4.1.1: "at least one portable fallback backend").
type pollBackend struct {
	fds map[int]Mask
}

func newBackend(capacity int) (backend, error) {
	return &pollBackend{fds: make(map[int]Mask, capacity)}, nil
}

func (b *pollBackend) add(fd int, mask Mask) error {
	b.fds[fd] = mask
	return nil
}

func (b *pollBackend) del(fd int, mask Mask) error {
	if mask == 0 {
		delete(b.fds, fd)
		return nil
	}
	b.fds[fd] = mask
	return nil
}

func maskToPollEvents(mask Mask) int16 {
	var events int16
	if mask&Readable != 0 {
		events |= unix.POLLIN
	}
	if mask&Writable != 0 {
		events |= unix.POLLOUT
	}
	return events
}

func pollEventsToMask(revents int16) Mask {
	var mask Mask
	if revents&(unix.POLLIN|unix.POLLERR|unix.POLLHUP) != 0 {
		mask |= Readable
	}
	if revents&(unix.POLLOUT|unix.POLLERR|unix.POLLHUP) != 0 {
		mask |= Writable
	}
	return mask
}

func (b *pollBackend) poll(timeout time.Duration, hasTimeout bool) ([]firedEvent, error) {
	fds := make([]unix.PollFd, 0, len(b.fds))
	order := make([]int, 0, len(b.fds))
	for fd, mask := range b.fds {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: maskToPollEvents(mask)})
		order = append(order, fd)
	}

	ms := -1
	if hasTimeout {
		if timeout < 0 {
			timeout = 0
		}
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	fired := make([]firedEvent, 0, n)
	for i, pfd := range fds {
		if pfd.Revents != 0 {
			fired = append(fired, firedEvent{fd: order[i], mask: pollEventsToMask(pfd.Revents)})
		}
	}
	return fired, nil
}

func (b *pollBackend) resize(capacity int) error {
	return nil
}

func (b *pollBackend) close() error {
	b.fds = nil
	return nil
}
