// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testredis_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"
	"storj.io/redisbloom/private/kvstore"
	"storj.io/redisbloom/private/kvstore/redis"
	"storj.io/redisbloom/private/testredis"
)

func TestServers(t *testing.T) {
	for _, tt := range []struct {
		name  string
		start func(ctx *testcontext.Context) (testredis.Server, error)
	}{
		{"start", func(ctx *testcontext.Context) (testredis.Server, error) { return testredis.Start(ctx) }},
		{"mini", func(ctx *testcontext.Context) (testredis.Server, error) { return testredis.Mini(ctx) }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ctx := testcontext.New(t)
			defer ctx.Cleanup()

			server, err := tt.start(ctx)
			require.NoError(t, err)
			require.NotEmpty(t, server.Addr())

			client, err := redis.OpenClient(ctx, server.Addr(), "", 0)
			require.NoError(t, err)

			previous, err := client.SetBit(ctx, kvstore.Key("ping"), 7, true)
			require.NoError(t, err)
			require.False(t, previous)

			require.NoError(t, client.Close())
			require.NoError(t, server.Close())
		})
	}
}
