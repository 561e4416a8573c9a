// Command kvcored wires the reactor, keyspace, background worker pool, and
// lazy-free policy together into a minimal demonstration process: a
// dictionary seeded with a few keys, a periodic time event that deletes
// one at a time (exercising the lazy-free decision on each), and a
// SIGINT/SIGTERM-triggered graceful KillAll of the worker pool.
//
// Run with: go run ./cmd/kvcored
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"

	"github.com/joeycumines/go-kvcore/bgworker"
	"github.com/joeycumines/go-kvcore/corelog"
	"github.com/joeycumines/go-kvcore/keyspace"
	"github.com/joeycumines/go-kvcore/lazyfree"
	"github.com/joeycumines/go-kvcore/reactor"
)

// demoAggregate is a toy aggregate value whose effort is its element
// count, standing in for a list/set/hash value in a real keyspace.
type demoAggregate struct {
	name string
	size int
	rc   int32
}

func (v *demoAggregate) EstimateEffort() int { return v.size }
func (v *demoAggregate) RefCount() int32     { return v.rc }

// dictAdapter bridges keyspace.Dict to the lazyfree.Unlinker/Resetter
// interfaces, which are intentionally narrow so lazyfree does not import
// keyspace.
type dictAdapter struct {
	dict *keyspace.Dict
}

func (a *dictAdapter) UnlinkValue(key string) (any, bool) {
	e := a.dict.Unlink(key)
	if e == nil {
		return nil, false
	}
	val := e.Val()
	a.dict.FreeUnlinked(e)
	return val, true
}

func (a *dictAdapter) ResetTables() (any, any) {
	old := a.dict
	a.dict = keyspace.New()
	return old, nil
}

func main() {
	logger := corelog.New(os.Stderr, logiface.LevelInformational)

	pool := bgworker.New(bgworker.WithLogger(logger))
	defer pool.KillAll()

	policy := lazyfree.New(pool, lazyfree.WithLogger(logger), lazyfree.WithDestroyFunc(func(val any) {
		if v, ok := val.(*demoAggregate); ok {
			logger.Info().Str("key", v.name).Log("kvcored: destroyed value")
		}
	}))
	policy.InstallExecutor(func(t1, t2 any) {
		logger.Info().Log("kvcored: destroyed retired table pair off-thread")
	})

	dict := keyspace.New(keyspace.WithLogger(logger))
	adapter := &dictAdapter{dict: dict}

	seed := []struct {
		key  string
		size int
	}{
		{"small:greeting", 1},
		{"large:session-index", 500},
		{"large:audit-log", 1000},
	}
	for _, s := range seed {
		dict.Add(s.key, &demoAggregate{name: s.key, size: s.size, rc: 1})
	}

	loop, err := reactor.Create(64, reactor.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, "kvcored: failed to create reactor:", err)
		os.Exit(1)
	}
	defer loop.Destroy()

	keys := make([]string, 0, len(seed))
	for _, s := range seed {
		keys = append(keys, s.key)
	}
	idx := 0
	loop.CreateTimeEvent(200, func(l *reactor.Loop, id int64, clientData any) int64 {
		if idx >= len(keys) {
			l.Stop()
			return reactor.NoMoreTimer
		}
		key := keys[idx]
		idx++
		existed := policy.AsyncDelete(adapter, key)
		logger.Info().Str("key", key).Log(fmt.Sprintf("kvcored: async_delete existed=%v", existed))
		return 200
	}, nil, nil)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		loop.Stop()
	}()

	if err := loop.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "kvcored: reactor exited with error:", err)
		os.Exit(1)
	}

	logger.Info().Int("pending_lazy_free", policy.PendingCount()).Log("kvcored: shutting down")
}
