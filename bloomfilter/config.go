// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bloomfilter

import (
	"context"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/redisbloom/private/kvstore"
)

// Config configures a filter.
type Config struct {
	Name                     string        `help:"name of the filter, the prefix of its storage keys" default:""`
	ExpectedInsertions       int64         `help:"number of distinct elements the filter is sized for" default:"1000000"`
	FalsePositiveProbability float64       `help:"desired false positive probability, exclusive range (0, 1)" default:"0.01"`
	Strategy                 string        `help:"hashing strategy: murmur128_mitz_64 or xxh3_128_mitz_64" default:"murmur128_mitz_64"`
	CounterTimeout           time.Duration `help:"timeout for background updates of the insertion counter" default:"5s"`
	BatchSize                int           `help:"number of elements sent in one round trip by batched operations" default:"1000"`
	Allocate                 bool          `help:"allocate the full bit vector when the filter is opened" default:"false"`
}

// Options returns the filter options described by config.
func (config Config) Options() ([]Option, error) {
	strategy, err := ParseStrategy(config.Strategy)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithStrategy(strategy)}
	if config.CounterTimeout != 0 {
		opts = append(opts, WithCounterTimeout(config.CounterTimeout))
	}
	if config.BatchSize != 0 {
		opts = append(opts, WithBatchSize(config.BatchSize))
	}
	return opts, nil
}

// Open creates the filter described by config and allocates it when
// config.Allocate is set.
func Open[T any](ctx context.Context, log *zap.Logger, store kvstore.BitStore, config Config, encoder Encoder[T]) (_ *Filter[T], err error) {
	defer mon.Task()(&ctx)(&err)

	opts, err := config.Options()
	if err != nil {
		return nil, err
	}

	filter, err := New(log, store, config.Name, config.ExpectedInsertions, config.FalsePositiveProbability, encoder, opts...)
	if err != nil {
		return nil, err
	}

	if config.Allocate {
		if err := filter.Allocate(ctx); err != nil {
			return nil, errs.Combine(err, filter.Close())
		}
	}

	return filter, nil
}
