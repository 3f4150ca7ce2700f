// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package testsuite

import (
	"testing"

	"storj.io/common/testcontext"
	"storj.io/redisbloom/private/kvstore"
)

func newKey(t testing.TB, name string) kvstore.Key {
	return kvstore.Key("testsuite:" + t.Name() + ":" + name)
}

func cleanupKeys(t testing.TB, ctx *testcontext.Context, store kvstore.BitStore, keys ...kvstore.Key) {
	if err := store.Delete(ctx, keys...); err != nil {
		t.Fatalf("failed to delete %v: %v", kvstore.Keys(keys).Strings(), err)
	}
}
