// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package bgworker_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-kvcore/bgworker"
)

func TestPool_SubmitExecutesJob(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	var got atomic.Int64
	done := make(chan struct{})
	p.SetExecutor(bgworker.CloseFile, func(arg any) error {
		got.Store(int64(arg.(int)))
		close(done)
		return nil
	})

	require.NoError(t, p.Submit(bgworker.CloseFile, 42))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not execute")
	}
	require.EqualValues(t, 42, got.Load())
}

func TestPool_FIFOPerQueue(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	var mu sync.Mutex
	var order []int

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	p.SetExecutor(bgworker.Fsync, func(arg any) error {
		mu.Lock()
		order = append(order, arg.(int))
		mu.Unlock()
		wg.Done()
		return nil
	})

	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(bgworker.Fsync, i))
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i, v := range order {
		require.Equal(t, i, v, "FIFO order violated at position %d", i)
	}
}

func TestPool_Pending(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	p.SetExecutor(bgworker.LazyFree, func(arg any) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil
	})

	require.NoError(t, p.Submit(bgworker.LazyFree, 1))
	require.NoError(t, p.Submit(bgworker.LazyFree, 2))

	<-started
	require.GreaterOrEqual(t, p.Pending(bgworker.LazyFree), 1)

	close(block)
}

func TestPool_WaitStep_BlocksUntilPendingJobCompletes(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	release := make(chan struct{})
	p.SetExecutor(bgworker.LazyFree, func(arg any) error {
		<-release
		return nil
	})

	require.NoError(t, p.Submit(bgworker.LazyFree, 1))
	for p.Pending(bgworker.LazyFree) == 0 {
		time.Sleep(time.Millisecond)
	}

	done := make(chan int)
	go func() { done <- p.WaitStep(bgworker.LazyFree) }()

	// Give WaitStep a chance to actually block before the job completes.
	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case n := <-done:
		require.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitStep did not return after the pending job completed")
	}
}

func TestPool_WaitStep_ReturnsImmediatelyWhenNothingPending(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	done := make(chan int, 1)
	go func() { done <- p.WaitStep(bgworker.LazyFree) }()

	select {
	case n := <-done:
		require.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitStep blocked despite nothing pending")
	}
}

func TestPool_KillAll_RejectsFurtherSubmit(t *testing.T) {
	p := bgworker.New()
	p.KillAll()

	err := p.Submit(bgworker.CloseFile, 1)
	require.ErrorIs(t, err, bgworker.ErrPoolClosed)
}

func TestPool_Submit_UnknownKind(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	err := p.Submit(bgworker.Kind(99), nil)
	require.ErrorIs(t, err, bgworker.ErrUnknownKind)
}

func TestPool_ExecutorError_IsAbsorbedNotPropagated(t *testing.T) {
	p := bgworker.New()
	defer p.KillAll()

	done := make(chan struct{})
	p.SetExecutor(bgworker.CloseFile, func(arg any) error {
		defer close(done)
		return errFakeClose
	})

	require.NoError(t, p.Submit(bgworker.CloseFile, 1))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run")
	}
	// No panic, no returned error from Submit: failure is logged and
	// swallowed per spec's "no notification of completion" contract.
}

var errFakeClose = fakeErr("close failed")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
