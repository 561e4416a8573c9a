// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package keyspace_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-kvcore/keyspace"
)

func TestDict_AddFindDelete(t *testing.T) {
	d := keyspace.New()

	require.NoError(t, d.Add("a", 1))
	require.ErrorIs(t, d.Add("a", 2), keyspace.ErrAlreadyExists)

	e := d.Find("a")
	require.NotNil(t, e)
	require.Equal(t, 1, e.Val())

	require.NoError(t, d.Delete("a"))
	require.Nil(t, d.Find("a"))
	require.ErrorIs(t, d.Delete("a"), keyspace.ErrNotFound)
}

func TestDict_AddOrFind(t *testing.T) {
	d := keyspace.New()

	e1 := d.AddOrFind("k")
	require.Nil(t, e1.Val())
	e1.SetVal("v1")

	e2 := d.AddOrFind("k")
	require.Same(t, e1, e2)
	require.Equal(t, "v1", e2.Val())
}

func TestDict_Replace(t *testing.T) {
	d := keyspace.New()

	inserted := d.Replace("k", "v1")
	require.True(t, inserted)

	inserted = d.Replace("k", "v2")
	require.False(t, inserted)
	require.Equal(t, "v2", d.Find("k").Val())
}

func TestDict_Replace_SetsBeforeDestroy(t *testing.T) {
	var destroyedWhileNewVisible bool
	var e *keyspace.Entry
	d := keyspace.New(keyspace.WithTypeDescriptor(&keyspace.TypeDescriptor{
		ValDestructor: func(val any) {
			// By contract the new value must already be installed by the
			// time the old value's destructor runs.
			if val == "old" && e != nil && e.Val() == "new" {
				destroyedWhileNewVisible = true
			}
		},
	}))

	d.Replace("k", "old")
	e = d.Find("k")
	d.Replace("k", "new")
	require.True(t, destroyedWhileNewVisible)
}

func TestDict_UnlinkThenFreeUnlinked(t *testing.T) {
	var destroyedKey, destroyedVal string
	d := keyspace.New(keyspace.WithTypeDescriptor(&keyspace.TypeDescriptor{
		KeyDestructor: func(key string) { destroyedKey = key },
		ValDestructor: func(val any) { destroyedVal = val.(string) },
	}))

	d.Add("k", "v")
	e := d.Unlink("k")
	require.NotNil(t, e)
	require.Nil(t, d.Find("k"))
	require.Empty(t, destroyedKey) // destructors not yet invoked

	d.FreeUnlinked(e)
	require.Equal(t, "k", destroyedKey)
	require.Equal(t, "v", destroyedVal)
}

// TestDict_IncrementalRehash_PreservesAllEntries inserts enough entries to
// force several rounds of growth, then asserts every key is still findable
// with its original value and that Len counts all of them.
func TestDict_IncrementalRehash_PreservesAllEntries(t *testing.T) {
	d := keyspace.New()

	const n = 2000
	for i := 0; i < n; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("key-%d", i), i))
	}

	for i := 0; i < n; i++ {
		e := d.Find(fmt.Sprintf("key-%d", i))
		require.NotNil(t, e, "key-%d missing", i)
		require.Equal(t, i, e.Val())
	}
	require.Equal(t, n, d.Len())
}

// TestDict_Rehash_IsIncremental asserts that inserting the single entry
// that crosses the growth threshold does not itself complete the rehash;
// completion is amortized across subsequent operations.
func TestDict_Rehash_IsIncremental(t *testing.T) {
	d := keyspace.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("k%d", i), i))
	}
	// The 5th insert (made while the capacity-4 table is at load factor 1.0)
	// should have started a rehash that has not completed in the same call.
	require.True(t, d.Rehashing() || d.Stats().T0Buckets > 4)

	steps := 0
	for d.Rehashing() && steps < 10_000 {
		d.Add(fmt.Sprintf("filler%d", steps), steps)
		steps++
	}
	require.False(t, d.Rehashing())
	require.Greater(t, steps, 0)
}

func TestDict_SafeIterator_BlocksRehashWhileLive(t *testing.T) {
	d := keyspace.New()
	for i := 0; i < 5; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}
	require.True(t, d.Rehashing())

	it := d.NewSafeIterator()
	count := 0
	statsBefore := d.Stats()
	for it.Next() {
		count++
		d.Add(fmt.Sprintf("extra%d", count), count) // mutation during safe iteration is allowed
	}
	it.Release()

	require.GreaterOrEqual(t, count, 4)
	require.True(t, d.Rehashing())
	require.Equal(t, statsBefore.RehashCursor, d.Stats().RehashCursor)
}

func TestDict_SafeIterator_VisitsEveryEntry(t *testing.T) {
	d := keyspace.New()
	want := map[string]bool{}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("k%d", i)
		d.Add(k, i)
		want[k] = false
	}

	it := d.NewSafeIterator()
	for it.Next() {
		want[it.Entry().Key()] = true
	}
	it.Release()

	for k, seen := range want {
		require.True(t, seen, "key %q not visited", k)
	}
}

func TestDict_UnsafeIterator_FingerprintMismatchAborts(t *testing.T) {
	orig := keyspace.AbortFunc
	defer func() { keyspace.AbortFunc = orig }()

	var aborted bool
	keyspace.AbortFunc = func(err error) { aborted = true }

	d := keyspace.New()
	d.Add("a", 1)

	it := d.NewUnsafeIterator()
	it.Next()
	d.Add("b", 2) // structural mutation during unsafe iteration
	it.Release()

	require.True(t, aborted)
}

func TestDict_UnsafeIterator_NoMutationDoesNotAbort(t *testing.T) {
	orig := keyspace.AbortFunc
	defer func() { keyspace.AbortFunc = orig }()

	var aborted bool
	keyspace.AbortFunc = func(err error) { aborted = true }

	d := keyspace.New()
	d.Add("a", 1)
	d.Add("b", 2)

	it := d.NewUnsafeIterator()
	for it.Next() {
	}
	it.Release()

	require.False(t, aborted)
}

func TestDict_Scan_VisitsEveryEntryAtLeastOnce(t *testing.T) {
	d := keyspace.New()
	want := map[string]bool{}
	for i := 0; i < 100; i++ {
		k := fmt.Sprintf("k%d", i)
		d.Add(k, i)
		want[k] = false
	}

	cursor := uint64(0)
	guard := 0
	for {
		cursor = d.Scan(cursor, func(e *keyspace.Entry) {
			want[e.Key()] = true
		}, nil, nil)
		guard++
		if cursor == 0 || guard > 10_000 {
			break
		}
	}

	for k, seen := range want {
		require.True(t, seen, "key %q never visited by scan", k)
	}
}

func TestDict_RandomEntry_EmptyReturnsNil(t *testing.T) {
	d := keyspace.New()
	require.Nil(t, d.RandomEntry())
}

func TestDict_Scan_EmptyReturnsZeroImmediately(t *testing.T) {
	d := keyspace.New()
	require.Equal(t, uint64(0), d.Scan(0, nil, nil, nil))
}

func TestDict_RandomEntry_ReturnsMember(t *testing.T) {
	d := keyspace.New()
	keys := map[string]bool{}
	for i := 0; i < 20; i++ {
		k := fmt.Sprintf("k%d", i)
		d.Add(k, i)
		keys[k] = true
	}

	for i := 0; i < 50; i++ {
		e := d.RandomEntry()
		require.NotNil(t, e)
		require.True(t, keys[e.Key()])
	}
}

func TestDict_Sample_BoundedCount(t *testing.T) {
	d := keyspace.New()
	for i := 0; i < 30; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}

	got := d.Sample(10)
	require.LessOrEqual(t, len(got), 10)
	require.NotEmpty(t, got)
}

func TestDict_AllowResizeFalse_SuppressesGrowthBelowForceRatio(t *testing.T) {
	d := keyspace.New(keyspace.WithAllowResize(false))
	for i := 0; i < 5; i++ {
		d.Add(fmt.Sprintf("k%d", i), i)
	}
	require.False(t, d.Rehashing())
}

func TestDict_Len(t *testing.T) {
	d := keyspace.New()
	require.Equal(t, 0, d.Len())
	d.Add("a", 1)
	d.Add("b", 2)
	require.Equal(t, 2, d.Len())
}
