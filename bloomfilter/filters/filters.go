// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package filters defines the filters used by the application.
package filters

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/redisbloom/bloomfilter"
	"storj.io/redisbloom/private/kvstore"
)

var (
	mon = monkit.Package()

	// Error is the error class for filters.
	Error = errs.Class("filters")
)

// UserIDsKeyPrefix is the storage key prefix of the user id filter.
const UserIDsKeyPrefix = "otc:bf-userId"

// UserIDsConfig configures the user id filter.
//
// ExpectedInsertions and FalsePositiveProbability must not change once the
// filter holds data.
type UserIDsConfig struct {
	Name                     string        `help:"name of the user id filter" default:"otc:bf-userId"`
	ExpectedInsertions       int64         `help:"number of user ids the filter is sized for" default:"70000000"`
	FalsePositiveProbability float64       `help:"desired false positive probability of the user id filter" default:"0.00001"`
	Strategy                 string        `help:"hashing strategy of the user id filter" default:"murmur128_mitz_64"`
	CounterTimeout           time.Duration `help:"timeout for background updates of the insertion counter" default:"5s"`
	BatchSize                int           `help:"number of user ids sent in one round trip by batched operations" default:"1000"`
	Allocate                 bool          `help:"allocate the user id filter when it is opened" default:"false"`
}

// Filter returns the bloomfilter configuration.
func (config UserIDsConfig) Filter() bloomfilter.Config {
	return bloomfilter.Config(config)
}

// Config configures all filters.
type Config struct {
	UserIDs UserIDsConfig
}

// DefaultConfig returns the configuration the application runs with.
func DefaultConfig() Config {
	return Config{
		UserIDs: UserIDsConfig{
			Name:                     UserIDsKeyPrefix,
			ExpectedInsertions:       70_000_000,
			FalsePositiveProbability: 0.00001,
			Strategy:                 bloomfilter.Murmur128Mitz64.String(),
			CounterTimeout:           5 * time.Second,
			BatchSize:                1000,
		},
	}
}

// Filters holds the filters of the application.
type Filters struct {
	// UserIDs contains the ids of known users.
	UserIDs *bloomfilter.Filter[int64]
}

// Open opens all filters on store.
func Open(ctx context.Context, log *zap.Logger, store kvstore.BitStore, config Config) (_ *Filters, err error) {
	defer mon.Task()(&ctx)(&err)

	userIDs, err := bloomfilter.Open[int64](ctx, log.Named("userids"), store, config.UserIDs.Filter(), bloomfilter.Int64Encoder{})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &Filters{
		UserIDs: userIDs,
	}, nil
}

// Close waits for pending background work of all filters.
func (filters *Filters) Close() error {
	return Error.Wrap(errs.Combine(
		filters.UserIDs.Close(),
	))
}
