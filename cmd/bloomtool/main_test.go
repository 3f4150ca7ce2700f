// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/redisbloom/bloomfilter"
	"storj.io/redisbloom/private/kvstore/teststore"
)

func TestPrintPlan(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printPlan(&out, bloomfilter.Config{
		Name:                     "t1",
		ExpectedInsertions:       1000,
		FalsePositiveProbability: 0.01,
	}))
	require.Contains(t, out.String(), "t1:bits, t1:counts")
	require.Contains(t, out.String(), "9586 (1199 bytes)")
	require.Contains(t, out.String(), "hash functions: 7\n")
	require.Contains(t, out.String(), "murmur128_mitz_64")

	err := printPlan(&out, bloomfilter.Config{Name: "t1", ExpectedInsertions: 1000, FalsePositiveProbability: 1})
	require.True(t, bloomfilter.ErrConfig.Has(err))
}

func TestTool(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	store := teststore.New()
	config := bloomfilter.Config{
		Name:                     "tool",
		ExpectedInsertions:       1000,
		FalsePositiveProbability: 0.01,
	}

	for _, encoding := range []Encoding{EncodingString, EncodingInt64} {
		t.Run(string(encoding), func(t *testing.T) {
			tool, err := openTool(ctx, zaptest.NewLogger(t), store, config, encoding)
			require.NoError(t, err)
			defer ctx.Check(tool.Close)

			require.NoError(t, tool.Allocate(ctx))
			require.NoError(t, tool.CheckCompatible(ctx))

			added, err := tool.Add(ctx, []string{"1", "2"})
			require.NoError(t, err)
			require.Equal(t, []bool{true, true}, added)

			found, err := tool.Test(ctx, []string{"1", "2"})
			require.NoError(t, err)
			require.Equal(t, []bool{true, true}, found)

			stats, err := tool.Stats(ctx)
			require.NoError(t, err)
			require.Equal(t, "tool", stats.Name)
			require.NotZero(t, stats.BitsSet)

			snapshot, err := tool.Snapshot(ctx)
			require.NoError(t, err)
			require.Equal(t, stats.BitsSet, snapshot.Count())

			var out bytes.Buffer
			require.NoError(t, printStats(&out, stats))
			require.Contains(t, out.String(), "name:               tool\n")

			out.Reset()
			require.NoError(t, printResults(&out, []string{"1", "3"}, []bool{true, false}, "maybe", "absent"))
			require.Equal(t, "maybe\t1\nabsent\t3\n", out.String())

			require.NoError(t, tool.Delete(ctx))
		})
	}

	tool, err := openTool(ctx, zaptest.NewLogger(t), store, config, EncodingInt64)
	require.NoError(t, err)
	defer ctx.Check(tool.Close)
	_, err = tool.Add(ctx, []string{"not-a-number"})
	require.Error(t, err)

	_, err = openTool(ctx, zaptest.NewLogger(t), store, config, "base64")
	require.Error(t, err)
}
