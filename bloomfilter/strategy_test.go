// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bloomfilter_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/redisbloom/bloomfilter"
)

func TestParseStrategy(t *testing.T) {
	for _, strategy := range []bloomfilter.Strategy{bloomfilter.Murmur128Mitz64, bloomfilter.XXH3128Mitz64} {
		require.True(t, strategy.Valid())

		parsed, err := bloomfilter.ParseStrategy(strategy.String())
		require.NoError(t, err)
		require.Equal(t, strategy, parsed)
	}

	parsed, err := bloomfilter.ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, bloomfilter.DefaultStrategy, parsed)

	_, err = bloomfilter.ParseStrategy("md5")
	require.True(t, bloomfilter.ErrConfig.Has(err))

	require.False(t, bloomfilter.Strategy(0).Valid())
	require.False(t, bloomfilter.Strategy(200).Valid())
	require.Equal(t, "unknown", bloomfilter.Strategy(200).String())
}

func TestStrategyValuesAreFrozen(t *testing.T) {
	require.Equal(t, bloomfilter.Strategy(1), bloomfilter.Murmur128Mitz64)
	require.Equal(t, "murmur128_mitz_64", bloomfilter.Murmur128Mitz64.String())
	require.Equal(t, bloomfilter.Strategy(2), bloomfilter.XXH3128Mitz64)
	require.Equal(t, "xxh3_128_mitz_64", bloomfilter.XXH3128Mitz64.String())
}

func TestIndexes(t *testing.T) {
	for _, strategy := range []bloomfilter.Strategy{bloomfilter.Murmur128Mitz64, bloomfilter.XXH3128Mitz64} {
		t.Run(strategy.String(), func(t *testing.T) {
			for i := 0; i < 100; i++ {
				data := []byte("element-" + strconv.Itoa(i))

				indexes := strategy.Indexes(data, 7, 9586)
				require.Len(t, indexes, 7)
				for _, index := range indexes {
					require.Less(t, index, uint64(9586))
				}

				require.Equal(t, indexes, strategy.Indexes(data, 7, 9586), "must be deterministic")
			}
		})
	}

	require.NotEqual(t,
		bloomfilter.Murmur128Mitz64.Indexes([]byte("alice"), 7, 1<<30),
		bloomfilter.XXH3128Mitz64.Indexes([]byte("alice"), 7, 1<<30))
}

func TestMurmurIndexesOfEmptyInput(t *testing.T) {
	// murmur3 x64 128 of an empty input with seed 0 is all zero
	require.Equal(t, []uint64{0, 0, 0}, bloomfilter.Murmur128Mitz64.Indexes(nil, 3, 1000))
	require.Equal(t, []uint64{0, 0, 0}, bloomfilter.Murmur128Mitz64.Indexes([]byte{}, 3, 1000))
}

// Released strategies are persisted with every filter, these vectors must
// never change.
func TestIndexesAreFrozen(t *testing.T) {
	for _, tt := range []struct {
		strategy bloomfilter.Strategy
		data     string
		k        uint32
		bitSize  uint64
		indexes  []uint64
	}{
		{bloomfilter.Murmur128Mitz64, "alice", 7, 9586, []uint64{4802, 6411, 8020, 43, 1652, 3261, 4870}},
		{bloomfilter.Murmur128Mitz64, "bloomfilter!", 5, 1 << 32, []uint64{3272111909, 653581381, 2330018149, 4006454917, 1387924389}},
		{bloomfilter.Murmur128Mitz64, "The quick brown fox jumps over the lazy dog", 3, 1000003, []uint64{123635, 176196, 228757}},
		{bloomfilter.XXH3128Mitz64, "alice", 7, 9586, []uint64{516, 8680, 4674, 3252, 8832, 7410, 3404}},
		{bloomfilter.XXH3128Mitz64, "bloomfilter!", 5, 1 << 32, []uint64{2626964090, 1440196080, 253428070, 3361627356, 2174859346}},
	} {
		require.Equal(t, tt.indexes, tt.strategy.Indexes([]byte(tt.data), tt.k, tt.bitSize), "%v %q", tt.strategy, tt.data)
	}
}

// Filters written by Guava's BloomFilter with Funnels.longFunnel() and
// MURMUR128_MITZ_64 set exactly these bits.
func TestInt64IndexesMatchGuava(t *testing.T) {
	for _, tt := range []struct {
		value   int64
		k       uint32
		bitSize uint64
		indexes []uint64
	}{
		{1, 7, 9586, []uint64{1106, 7164, 3636, 2692, 8750, 7806, 4278}},
		{-42, 7, 9586, []uint64{8503, 3158, 7399, 2054, 8879, 3534, 7775}},
		{70000000, 17, 1677385217, []uint64{
			620927980, 1218854863, 139396529, 737323412, 1335250295, 255791961,
			853718844, 1451645727, 372187393, 970114276, 1568041159, 488582825,
			1086509708, 7051374, 604978257, 1202905140, 123446806,
		}},
	} {
		indexes, err := bloomfilter.Hash[int64](bloomfilter.Murmur128Mitz64, tt.value, bloomfilter.Int64Encoder{}, tt.k, tt.bitSize)
		require.NoError(t, err)
		require.Equal(t, tt.indexes, indexes, "value %d", tt.value)
	}
}

func TestIndexesPanics(t *testing.T) {
	require.Panics(t, func() { bloomfilter.Murmur128Mitz64.Indexes([]byte("a"), 1, 0) })
	require.Panics(t, func() { bloomfilter.Strategy(0).Indexes([]byte("a"), 1, 10) })
}

func TestHash(t *testing.T) {
	indexes, err := bloomfilter.Hash[string](bloomfilter.DefaultStrategy, "alice", bloomfilter.StringEncoder{}, 7, 9586)
	require.NoError(t, err)
	require.Equal(t, bloomfilter.DefaultStrategy.Indexes([]byte("alice"), 7, 9586), indexes)

	_, err = bloomfilter.Hash[[]byte](bloomfilter.DefaultStrategy, nil, bloomfilter.BytesEncoder{}, 7, 9586)
	require.True(t, bloomfilter.ErrInvalidArgument.Has(err))

	var nilString *string
	pointerEncoder := bloomfilter.EncoderFunc[*string](func(value *string) ([]byte, error) {
		return []byte(*value), nil
	})
	_, err = bloomfilter.Hash(bloomfilter.DefaultStrategy, nilString, pointerEncoder, 7, 9586)
	require.True(t, bloomfilter.ErrInvalidArgument.Has(err))

	failing := bloomfilter.EncoderFunc[string](func(value string) ([]byte, error) {
		return nil, strconv.ErrSyntax
	})
	_, err = bloomfilter.Hash(bloomfilter.DefaultStrategy, "x", failing, 7, 9586)
	require.True(t, bloomfilter.ErrInvalidArgument.Has(err))
	require.ErrorIs(t, err, strconv.ErrSyntax)
}

func TestIntegerEncoders(t *testing.T) {
	data, err := bloomfilter.Int64Encoder{}.Encode(1)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, data)

	data, err = bloomfilter.Int64Encoder{}.Encode(-1)
	require.NoError(t, err)
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, data)

	data, err = bloomfilter.Uint64Encoder{}.Encode(0x0102)
	require.NoError(t, err)
	require.Equal(t, []byte{2, 1, 0, 0, 0, 0, 0, 0}, data)
}
