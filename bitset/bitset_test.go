// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bitset_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/redisbloom/bitset"
	"storj.io/redisbloom/private/kvstore"
	"storj.io/redisbloom/private/kvstore/redis"
	"storj.io/redisbloom/private/kvstore/teststore"
	"storj.io/redisbloom/private/testredis"
)

func TestNewValidation(t *testing.T) {
	store := teststore.New()

	for _, tt := range []struct {
		name  string
		store kvstore.BitStore
		key   string
		size  uint64
	}{
		{"nil store", nil, "a", 10},
		{"empty name", store, "", 10},
		{"zero size", store, "a", 0},
		{"too large", store, "a", bitset.MaxSize + 1},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bitset.New(tt.store, tt.key, tt.size)
			require.True(t, bitset.ErrConfig.Has(err), "got %v", err)
		})
	}

	require.Zero(t, store.CallCount().RoundTrips())
}

func TestBitSet(t *testing.T) {
	t.Run("teststore", func(t *testing.T) {
		testBitSet(t, teststore.New())
	})

	t.Run("redis", func(t *testing.T) {
		ctx := testcontext.New(t)
		defer ctx.Cleanup()

		server, err := testredis.Mini(ctx)
		require.NoError(t, err)
		defer func() { require.NoError(t, server.Close()) }()

		client, err := redis.OpenClient(ctx, server.Addr(), "", 0)
		require.NoError(t, err)
		defer ctx.Check(client.Close)

		testBitSet(t, client)
	})
}

func testBitSet(t *testing.T, store kvstore.BitStore) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	const size = 100
	set, err := bitset.New(store, "bitset:test", size)
	require.NoError(t, err)
	defer ctx.Check(func() error { return set.ClearAll(ctx) })

	require.Equal(t, "bitset:test", set.Name())
	require.EqualValues(t, size, set.Size())

	t.Run("unwritten vector", func(t *testing.T) {
		exists, err := set.Exists(ctx)
		require.NoError(t, err)
		require.False(t, exists)

		data, err := set.Bytes(ctx)
		require.NoError(t, err)
		require.Len(t, data, 13)
		require.Zero(t, data.Count())

		count, err := set.Cardinality(ctx)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("single bits", func(t *testing.T) {
		previous, err := set.Set(ctx, 42, true)
		require.NoError(t, err)
		require.False(t, previous)

		previous, err = set.Set(ctx, 42, true)
		require.NoError(t, err)
		require.True(t, previous)

		value, err := set.Get(ctx, 42)
		require.NoError(t, err)
		require.True(t, value)

		require.NoError(t, set.Clear(ctx, 42))
		value, err = set.Get(ctx, 42)
		require.NoError(t, err)
		require.False(t, value)
	})

	t.Run("batches", func(t *testing.T) {
		changed, err := set.SetAll(ctx, 1, 2, 3)
		require.NoError(t, err)
		require.True(t, changed)

		changed, err = set.SetAll(ctx, 1, 2, 3)
		require.NoError(t, err)
		require.False(t, changed)

		changed, err = set.SetAll(ctx, 3, 99)
		require.NoError(t, err)
		require.True(t, changed)

		values, err := set.GetAll(ctx, 99, 4, 1)
		require.NoError(t, err)
		require.Equal(t, []bool{true, false, true}, values)

		all, err := set.IsAllSet(ctx, 1, 2, 3, 99)
		require.NoError(t, err)
		require.True(t, all)

		all, err = set.IsAllSet(ctx, 1, 2, 4)
		require.NoError(t, err)
		require.False(t, all)

		count, err := set.Cardinality(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 4, count)
	})

	t.Run("bytes", func(t *testing.T) {
		before, err := set.Bytes(ctx)
		require.NoError(t, err)
		require.Len(t, before, 13)

		_, err = set.Set(ctx, 50, true)
		require.NoError(t, err)

		after, err := set.Bytes(ctx)
		require.NoError(t, err)
		require.Len(t, after, 13)
		require.True(t, after.Test(50))
		for i := uint64(0); i < size; i++ {
			if i == 50 {
				continue
			}
			require.Equal(t, before.Test(i), after.Test(i), "bit %d", i)
		}
		require.Equal(t, []uint64{1, 2, 3, 50, 99}, after.Indexes())
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := set.Get(ctx, size)
		require.True(t, bitset.ErrOutOfRange.Has(err), "got %v", err)

		_, err = set.SetAll(ctx, 1, size+5)
		require.True(t, bitset.ErrOutOfRange.Has(err), "got %v", err)

		value, err := set.Get(ctx, 1)
		require.NoError(t, err)
		require.True(t, value, "rejected batch must not clear existing bits")
	})

	t.Run("clear all", func(t *testing.T) {
		require.NoError(t, set.ClearAll(ctx))

		exists, err := set.Exists(ctx)
		require.NoError(t, err)
		require.False(t, exists)

		data, err := set.Bytes(ctx)
		require.NoError(t, err)
		require.Len(t, data, 13)
		require.Zero(t, data.Count())
	})
}

func TestBatchedRoundTrips(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	set, err := bitset.New(store, "roundtrips", 1<<20)
	require.NoError(t, err)

	for _, k := range []int{1, 20} {
		indexes := make([]uint64, k)
		for i := range indexes {
			indexes[i] = uint64(i) * 4099
		}

		before := store.CallCount().RoundTrips()
		_, err := set.SetAll(ctx, indexes...)
		require.NoError(t, err)
		require.Equal(t, before+1, store.CallCount().RoundTrips(), "SetAll k=%d", k)

		before = store.CallCount().RoundTrips()
		_, err = set.IsAllSet(ctx, indexes...)
		require.NoError(t, err)
		require.Equal(t, before+1, store.CallCount().RoundTrips(), "IsAllSet k=%d", k)
	}
}

func TestBytesOfLongerValue(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	wide, err := bitset.New(store, "shared", 128)
	require.NoError(t, err)
	_, err = wide.SetAll(ctx, 3, 100)
	require.NoError(t, err)

	narrow, err := bitset.New(store, "shared", 10)
	require.NoError(t, err)
	data, err := narrow.Bytes(ctx)
	require.NoError(t, err)
	require.Len(t, data, 2)
	require.True(t, data.Test(3))
	require.EqualValues(t, 1, data.Count())
}

func TestRemoteErrorsPropagate(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	set, err := bitset.New(store, "failing", 64)
	require.NoError(t, err)

	failure := errors.New("broken pipe")
	store.ForceError(failure)

	_, err = set.SetAll(ctx, 1, 2)
	require.ErrorIs(t, err, failure)
	_, err = set.Bytes(ctx)
	require.ErrorIs(t, err, failure)
	_, err = set.Cardinality(ctx)
	require.ErrorIs(t, err, failure)
}

func TestBits(t *testing.T) {
	b := bitset.Bits{0x80, 0x01, 0x00, 0xff}
	require.True(t, b.Test(0))
	require.False(t, b.Test(1))
	require.True(t, b.Test(15))
	require.False(t, b.Test(16))
	require.True(t, b.Test(24))
	require.False(t, b.Test(1000))
	require.EqualValues(t, 10, b.Count())
	require.Equal(t, []uint64{0, 15, 24, 25, 26, 27, 28, 29, 30, 31}, b.Indexes())

	require.EqualValues(t, 0, bitset.ByteLen(0))
	require.EqualValues(t, 1, bitset.ByteLen(1))
	require.EqualValues(t, 1, bitset.ByteLen(8))
	require.EqualValues(t, 2, bitset.ByteLen(9))
	require.EqualValues(t, 1199, bitset.ByteLen(9586))
}
