// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

// FileProc is invoked when a registered file descriptor becomes ready.
// mask reports which of Readable/Writable fired this call.
type FileProc func(loop *Loop, fd int, clientData any, mask Mask)

// fileEvent is the per-fd registration record, indexed directly by fd: a
// fixed-capacity array of file events indexed by file descriptor.
type fileEvent struct {
	mask       Mask
	rProc      FileProc
	wProc      FileProc
	clientData any
	// shared records that rProc and wProc were installed by the same
	// AddFile call with both Readable and Writable set, i.e. the same
	// callback registered for both directions. It is used to avoid invoking
	// the callback twice in one tick when both directions fire
	// simultaneously.
	shared bool
}

func (fe *fileEvent) active() bool { return fe.mask&(Readable|Writable) != 0 }
