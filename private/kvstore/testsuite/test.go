// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"storj.io/common/testcontext"
	"storj.io/redisbloom/private/kvstore"
)

// RunTests runs common kvstore.BitStore tests.
func RunTests(t *testing.T, store kvstore.BitStore) {
	t.Run("Bit", func(t *testing.T) { testBit(t, store) })
	t.Run("Batch", func(t *testing.T) { testBatch(t, store) })
	t.Run("Value", func(t *testing.T) { testValue(t, store) })
	t.Run("Counter", func(t *testing.T) { testCounter(t, store) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, store) })
	t.Run("Constraints", func(t *testing.T) { testConstraints(t, store) })
	t.Run("Parallel", func(t *testing.T) { testParallel(t, store) })
}

func testBit(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t, "bits")
	defer cleanupKeys(t, ctx, store, key)

	bit, err := store.GetBit(ctx, key, 10)
	require.NoError(t, err)
	require.False(t, bit, "absent key reads as zero")

	previous, err := store.SetBit(ctx, key, 10, true)
	require.NoError(t, err)
	require.False(t, previous)

	previous, err = store.SetBit(ctx, key, 10, true)
	require.NoError(t, err)
	require.True(t, previous)

	bit, err = store.GetBit(ctx, key, 10)
	require.NoError(t, err)
	require.True(t, bit)

	bit, err = store.GetBit(ctx, key, 11)
	require.NoError(t, err)
	require.False(t, bit)

	previous, err = store.SetBit(ctx, key, 10, false)
	require.NoError(t, err)
	require.True(t, previous)

	count, err := store.BitCount(ctx, key)
	require.NoError(t, err)
	require.Zero(t, count)
}

func testBatch(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t, "bits")
	defer cleanupKeys(t, ctx, store, key)

	offsets := []uint64{0, 7, 8, 63, 7}

	bits, err := store.GetBits(ctx, key, offsets)
	require.NoError(t, err)
	require.Equal(t, []bool{false, false, false, false, false}, bits)

	previous, err := store.SetBits(ctx, key, offsets, true)
	require.NoError(t, err)
	// the repeated offset observes the write made earlier in the same batch
	require.Equal(t, []bool{false, false, false, false, true}, previous)

	bits, err = store.GetBits(ctx, key, []uint64{63, 1, 0, 8})
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, true, true}, bits)

	count, err := store.BitCount(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 4, count)

	empty, err := store.GetBits(ctx, key, nil)
	require.NoError(t, err)
	require.Empty(t, empty)

	empty, err = store.SetBits(ctx, key, nil, true)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func testValue(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t, "bits")
	defer cleanupKeys(t, ctx, store, key)

	_, err := store.Get(ctx, key)
	require.True(t, kvstore.ErrKeyNotFound.Has(err), "got %v", err)

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	length, err := store.Len(ctx, key)
	require.NoError(t, err)
	require.Zero(t, length)

	// bit 0 is the most significant bit of the first byte
	_, err = store.SetBits(ctx, key, []uint64{0, 9, 23}, true)
	require.NoError(t, err)

	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, kvstore.Value{0x80, 0x40, 0x01}, value)

	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	length, err = store.Len(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, 3, length)
}

func testCounter(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t, "counts")
	defer cleanupKeys(t, ctx, store, key)

	for i := int64(1); i <= 3; i++ {
		n, err := store.Incr(ctx, key)
		require.NoError(t, err)
		require.Equal(t, i, n)
	}

	n, err := store.IncrBy(ctx, key, 5)
	require.NoError(t, err)
	require.EqualValues(t, 8, n)

	value, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "8", string(value))
}

func testDelete(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	bits, counts := newKey(t, "bits"), newKey(t, "counts")

	_, err := store.SetBit(ctx, bits, 100, true)
	require.NoError(t, err)
	_, err = store.Incr(ctx, counts)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, bits, counts))

	for _, key := range []kvstore.Key{bits, counts} {
		exists, err := store.Exists(ctx, key)
		require.NoError(t, err)
		require.False(t, exists, key.String())
	}

	// deleting absent keys is not an error
	require.NoError(t, store.Delete(ctx, bits, counts))
}

func testConstraints(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	_, err := store.GetBit(ctx, nil, 0)
	require.True(t, kvstore.ErrEmptyKey.Has(err), "got %v", err)

	_, err = store.SetBits(ctx, kvstore.Key{}, []uint64{1}, true)
	require.True(t, kvstore.ErrEmptyKey.Has(err), "got %v", err)

	err = store.Delete(ctx)
	require.True(t, kvstore.ErrEmptyKey.Has(err), "got %v", err)

	err = store.Delete(ctx, newKey(t, "a"), nil)
	require.True(t, kvstore.ErrEmptyKey.Has(err), "got %v", err)
}

func testParallel(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()
	key := newKey(t, "bits")
	defer cleanupKeys(t, ctx, store, key)

	// ctx.Wait would cancel ctx, the count and cleanup below still use it.
	var group errgroup.Group
	const workers = 8
	for i := 0; i < workers; i++ {
		offset := uint64(i * 3)
		group.Go(func() error {
			_, err := store.SetBits(ctx, key, []uint64{offset, offset + 1}, true)
			return err
		})
	}
	require.NoError(t, group.Wait())

	count, err := store.BitCount(ctx, key)
	require.NoError(t, err)
	require.EqualValues(t, workers*2, count, strconv.Itoa(workers))
}
