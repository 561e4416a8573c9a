// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend is the Linux backend. It carries no internal locking: the
// reactor drives add/del/poll/resize/close from a single goroutine, so
// there is never concurrent access to guard against.
type epollBackend struct {
	epfd     int
	eventBuf []unix.EpollEvent
}

func newBackend(capacity int) (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{
		epfd:     epfd,
		eventBuf: make([]unix.EpollEvent, capacity),
	}, nil
}

func maskToEpoll(mask Mask) uint32 {
	var events uint32
	if mask&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func epollToMask(events uint32) Mask {
	var mask Mask
	if events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= Readable
	}
	if events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		mask |= Writable
	}
	return mask
}

func (b *epollBackend) add(fd int, mask Mask) error {
	ev := &unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	if err != nil {
		err = unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	}
	return err
}

func (b *epollBackend) del(fd int, mask Mask) error {
	// mask here is the remaining mask after removal, computed by the caller
	// via Loop.events[fd].mask; a fully-cleared fd is removed outright.
	if mask == 0 {
		err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		if err == unix.ENOENT {
			return nil
		}
		return err
	}
	ev := &unix.EpollEvent{Events: maskToEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (b *epollBackend) poll(timeout time.Duration, hasTimeout bool) ([]firedEvent, error) {
	ms := -1
	if hasTimeout {
		ms = int(timeout / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
	}

	n, err := unix.EpollWait(b.epfd, b.eventBuf, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}

	fired := make([]firedEvent, 0, n)
	for i := 0; i < n; i++ {
		fired = append(fired, firedEvent{
			fd:   int(b.eventBuf[i].Fd),
			mask: epollToMask(b.eventBuf[i].Events),
		})
	}
	return fired, nil
}

func (b *epollBackend) resize(capacity int) error {
	buf := make([]unix.EpollEvent, capacity)
	copy(buf, b.eventBuf)
	b.eventBuf = buf
	return nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}
