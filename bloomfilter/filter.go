// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bloomfilter

import (
	"context"
	"strconv"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"storj.io/common/sync2"
	"storj.io/redisbloom/bitset"
	"storj.io/redisbloom/private/kvstore"
)

var (
	mon = monkit.Package()

	// Error is the default error class for bloomfilter.
	Error = errs.Class("bloomfilter")
	// ErrConfig is returned when a filter is created with invalid parameters.
	ErrConfig = errs.Class("bloomfilter config")
	// ErrInvalidArgument is returned when an element cannot be hashed.
	ErrInvalidArgument = errs.Class("bloomfilter invalid argument")
	// ErrIncompatible is returned when the stored vector was written with different parameters.
	ErrIncompatible = errs.Class("bloomfilter incompatible")
)

const (
	defaultCounterTimeout = 5 * time.Second
	defaultBatchSize      = 1000
)

// Parameters are fixed when a filter is created. Changing them for a filter
// that already holds data silently corrupts it.
type Parameters struct {
	BitSize          uint64
	NumHashFunctions uint32
	Strategy         Strategy
}

// Keys are the storage keys of a filter.
type Keys struct {
	// Bits holds the bit vector.
	Bits string
	// Counts holds the advisory number of insertions that set new bits.
	Counts string
}

// KeysFor returns the storage keys of the filter called name.
func KeysFor(name string) Keys {
	return Keys{
		Bits:   name + ":bits",
		Counts: name + ":counts",
	}
}

// Option configures optional behavior of a Filter.
type Option func(*options)

type options struct {
	strategy       Strategy
	counterTimeout time.Duration
	batchSize      int
}

// WithStrategy selects the hashing strategy.
func WithStrategy(strategy Strategy) Option {
	return func(opts *options) { opts.strategy = strategy }
}

// WithCounterTimeout limits how long a background insertion count update may take.
func WithCounterTimeout(timeout time.Duration) Option {
	return func(opts *options) { opts.counterTimeout = timeout }
}

// WithBatchSize sets how many elements AddAll and MightContainAll send per round trip.
func WithBatchSize(size int) Option {
	return func(opts *options) { opts.batchSize = size }
}

// Filter is a Bloom filter whose bits live in a remote store.
//
// A Bloom filter offers an approximate containment test with one-sided error:
// if it claims that an element is contained in it, this might be in error,
// but if it claims that an element is not contained in it, then this is
// definitely true.
//
// Any number of processes may share a filter by using the same name and
// parameters. Filter holds no state besides its parameters, every call reads
// or writes the remote vector.
type Filter[T any] struct {
	name    string
	log     *zap.Logger
	store   kvstore.BitStore
	keys    Keys
	bits    *bitset.BitSet
	encoder Encoder[T]
	params  Parameters

	counterTimeout time.Duration
	batchSize      int
	counters       sync2.WorkGroup
}

// New creates a filter sized for expectedInsertions distinct elements with
// the desired falsePositiveProbability.
//
// Adding significantly more elements than expectedInsertions saturates the
// filter and sharply deteriorates its false positive probability. The values
// of expectedInsertions and falsePositiveProbability must not change once the
// filter holds data.
func New[T any](log *zap.Logger, store kvstore.BitStore, name string, expectedInsertions int64, falsePositiveProbability float64, encoder Encoder[T], opts ...Option) (*Filter[T], error) {
	if expectedInsertions <= 0 {
		return nil, ErrConfig.New("expected insertions (%d) must be > 0", expectedInsertions)
	}
	if !(falsePositiveProbability > 0) {
		return nil, ErrConfig.New("false positive probability (%v) must be > 0.0", falsePositiveProbability)
	}
	if !(falsePositiveProbability < 1) {
		return nil, ErrConfig.New("false positive probability (%v) must be < 1.0", falsePositiveProbability)
	}

	o := applyOptions(opts)

	bitSize := OptimalNumOfBits(expectedInsertions, falsePositiveProbability)
	numHashFunctions := OptimalNumOfHashFunctions(expectedInsertions, bitSize)

	return NewWithParameters(log, store, name, Parameters{
		BitSize:          bitSize,
		NumHashFunctions: numHashFunctions,
		Strategy:         o.strategy,
	}, encoder, opts...)
}

// NewWithParameters creates a filter with explicit parameters, e.g. to attach
// to an existing filter whose parameters are known.
func NewWithParameters[T any](log *zap.Logger, store kvstore.BitStore, name string, params Parameters, encoder Encoder[T], opts ...Option) (*Filter[T], error) {
	o := applyOptions(opts)
	if params.Strategy == 0 {
		params.Strategy = o.strategy
	}

	switch {
	case log == nil:
		return nil, ErrConfig.New("logger is nil")
	case store == nil:
		return nil, ErrConfig.New("store is nil")
	case isNil(encoder):
		return nil, ErrConfig.New("encoder is nil")
	case name == "":
		return nil, ErrConfig.New("name is empty")
	case !params.Strategy.Valid():
		return nil, ErrConfig.New("invalid strategy %d", params.Strategy)
	case params.NumHashFunctions == 0:
		return nil, ErrConfig.New("numHashFunctions (%d) must be > 0", params.NumHashFunctions)
	case params.NumHashFunctions > MaxHashFunctions:
		return nil, ErrConfig.New("numHashFunctions (%d) must be <= %d", params.NumHashFunctions, MaxHashFunctions)
	case o.counterTimeout <= 0:
		return nil, ErrConfig.New("counter timeout (%v) must be > 0", o.counterTimeout)
	case o.batchSize <= 0:
		return nil, ErrConfig.New("batch size (%d) must be > 0", o.batchSize)
	}

	keys := KeysFor(name)
	bits, err := bitset.New(store, keys.Bits, params.BitSize)
	if err != nil {
		return nil, ErrConfig.Wrap(err)
	}

	log = log.Named("bloomfilter")
	log.Info("creating filter",
		zap.String("name", name),
		zap.Uint64("numBits", params.BitSize),
		zap.Uint32("numHashFunctions", params.NumHashFunctions),
		zap.Stringer("strategy", params.Strategy))

	return &Filter[T]{
		name:           name,
		log:            log,
		store:          store,
		keys:           keys,
		bits:           bits,
		encoder:        encoder,
		params:         params,
		counterTimeout: o.counterTimeout,
		batchSize:      o.batchSize,
	}, nil
}

func applyOptions(opts []Option) options {
	o := options{
		strategy:       DefaultStrategy,
		counterTimeout: defaultCounterTimeout,
		batchSize:      defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Parameters returns the frozen parameters of the filter.
func (filter *Filter[T]) Parameters() Parameters { return filter.params }

// Keys returns the storage keys of the filter.
func (filter *Filter[T]) Keys() Keys { return filter.keys }

// Indexes returns the bit indexes of value.
func (filter *Filter[T]) Indexes(value T) ([]uint64, error) {
	return Hash(filter.params.Strategy, value, filter.encoder, filter.params.NumHashFunctions, filter.params.BitSize)
}

// MightContain returns true if value might have been added to the filter,
// false if this is definitely not the case.
func (filter *Filter[T]) MightContain(ctx context.Context, value T) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	indexes, err := filter.Indexes(value)
	if err != nil {
		return false, err
	}
	return filter.bits.IsAllSet(ctx, indexes...)
}

// Add adds value to the filter and returns whether any bit changed as a
// result.
//
// A false result means the element was already added, or that it collides
// with bits set by other elements.
func (filter *Filter[T]) Add(ctx context.Context, value T) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	indexes, err := filter.Indexes(value)
	if err != nil {
		return false, err
	}

	changed, err := filter.bits.SetAll(ctx, indexes...)
	if err != nil {
		return false, err
	}

	mon.Meter("bloomfilter_added").Mark(1)
	if changed {
		mon.Meter("bloomfilter_added_new_bits").Mark(1)
		filter.incrementInsertionCount(ctx, 1)
	}
	return changed, nil
}

// AddAll adds values and returns, for each of them in order, whether it set
// any new bit.
//
// Values are sent in batches, one round trip per batch. Insertions are not
// atomic: when the store fails, the batches applied before the failure stay.
func (filter *Filter[T]) AddAll(ctx context.Context, values []T) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)

	groups, err := filter.indexesAll(values)
	if err != nil {
		return nil, err
	}

	result := make([]bool, 0, len(values))
	for start := 0; start < len(groups); start += filter.batchSize {
		end := min(start+filter.batchSize, len(groups))

		changed, err := filter.bits.SetEach(ctx, groups[start:end])
		if err != nil {
			return nil, err
		}

		var inserted int64
		for _, c := range changed {
			if c {
				inserted++
			}
		}
		mon.Meter("bloomfilter_added").Mark(len(changed))
		if inserted > 0 {
			mon.Meter("bloomfilter_added_new_bits").Mark64(inserted)
			filter.incrementInsertionCount(ctx, inserted)
		}

		result = append(result, changed...)
	}
	return result, nil
}

// MightContainAll tests values in batches and returns, for each of them in
// order, whether it might have been added.
func (filter *Filter[T]) MightContainAll(ctx context.Context, values []T) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)

	groups, err := filter.indexesAll(values)
	if err != nil {
		return nil, err
	}

	result := make([]bool, 0, len(values))
	for start := 0; start < len(groups); start += filter.batchSize {
		end := min(start+filter.batchSize, len(groups))

		found, err := filter.bits.IsAllSetEach(ctx, groups[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, found...)
	}
	return result, nil
}

// indexesAll hashes every value before anything is written, so that an
// invalid element aborts the whole operation.
func (filter *Filter[T]) indexesAll(values []T) ([][]uint64, error) {
	groups := make([][]uint64, len(values))
	for i, value := range values {
		indexes, err := filter.Indexes(value)
		if err != nil {
			return nil, err
		}
		groups[i] = indexes
	}
	return groups, nil
}

// incrementInsertionCount updates the advisory insertion counter without
// blocking the caller. Failures are logged and dropped.
func (filter *Filter[T]) incrementInsertionCount(ctx context.Context, delta int64) {
	ctx = context.WithoutCancel(ctx)
	started := filter.counters.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, filter.counterTimeout)
		defer cancel()

		key := kvstore.Key(filter.keys.Counts)
		var err error
		if delta == 1 {
			_, err = filter.store.Incr(ctx, key)
		} else {
			_, err = filter.store.IncrBy(ctx, key, delta)
		}
		if err != nil {
			mon.Event("bloomfilter_insertion_count_failed")
			filter.log.Warn("failed to update insertion count",
				zap.String("key", filter.keys.Counts),
				zap.Int64("delta", delta),
				zap.Error(err))
		}
	})
	if !started {
		filter.log.Debug("filter closed, insertion count not updated", zap.String("key", filter.keys.Counts))
	}
}

// ExpectedFpp returns the probability that MightContain erroneously returns
// true for an element that has not been added.
//
// It should be close to the false positive probability the filter was
// created with, or smaller. A significantly higher value usually means more
// elements than expected have been added. This counts all bits of the remote
// vector, do not call it in hot paths.
func (filter *Filter[T]) ExpectedFpp(ctx context.Context) (_ float64, err error) {
	defer mon.Task()(&ctx)(&err)

	bitCount, err := filter.bits.Cardinality(ctx)
	if err != nil {
		return 0, err
	}
	return expectedFpp(filter.params.BitSize, filter.params.NumHashFunctions, bitCount), nil
}

// ApproximateElementCount estimates the number of distinct elements added to
// the filter from the number of set bits. The estimate is reasonably accurate
// while it does not exceed the expected insertions the filter was sized for.
//
// This counts all bits of the remote vector, do not call it in hot paths.
func (filter *Filter[T]) ApproximateElementCount(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	bitCount, err := filter.bits.Cardinality(ctx)
	if err != nil {
		return 0, err
	}
	estimate := estimateElementCount(filter.params.BitSize, filter.params.NumHashFunctions, bitCount)

	if ce := filter.log.Check(zapcore.DebugLevel, "approximate element count"); ce != nil {
		counted, err := filter.InsertionCount(ctx)
		ce.Write(
			zap.String("name", filter.keys.Bits),
			zap.Uint64("bitSize", filter.params.BitSize),
			zap.Uint64("bitCount", bitCount),
			zap.Int64("estimate", estimate),
			zap.Int64("insertionCount", counted),
			zap.NamedError("insertionCountError", err))
	}

	return estimate, nil
}

// InsertionCount returns the advisory number of insertions that set new bits.
// It is not reconciled with ApproximateElementCount and drifts under
// concurrent writers.
func (filter *Filter[T]) InsertionCount(ctx context.Context) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)

	value, err := filter.store.Get(ctx, kvstore.Key(filter.keys.Counts))
	if kvstore.ErrKeyNotFound.Has(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	count, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return 0, Error.New("invalid insertion count %q: %v", value, err)
	}
	return count, nil
}

// Stats describes the state of a filter.
type Stats struct {
	Name string
	Parameters

	BitsSet           uint64
	EstimatedElements int64
	ExpectedFpp       float64
	InsertionCount    int64
}

// Stats returns the state of the filter, counting the bits only once.
func (filter *Filter[T]) Stats(ctx context.Context) (_ Stats, err error) {
	defer mon.Task()(&ctx)(&err)

	bitCount, err := filter.bits.Cardinality(ctx)
	if err != nil {
		return Stats{}, err
	}
	counted, err := filter.InsertionCount(ctx)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Name:              filter.Name(),
		Parameters:        filter.params,
		BitsSet:           bitCount,
		EstimatedElements: estimateElementCount(filter.params.BitSize, filter.params.NumHashFunctions, bitCount),
		ExpectedFpp:       expectedFpp(filter.params.BitSize, filter.params.NumHashFunctions, bitCount),
		InsertionCount:    counted,
	}, nil
}

// Name returns the name the filter was created with.
func (filter *Filter[T]) Name() string { return filter.name }

// Allocate materializes the full bit vector in the store, so the store does
// not grow it incrementally as bits get set. It does nothing when the vector
// already exists.
//
// The existence check and the write are not atomic. Allocate must be called
// after the filter has been created and must not run concurrently with
// another Allocate for the same name.
func (filter *Filter[T]) Allocate(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	filter.log.Info("trying to allocate filter",
		zap.String("name", filter.keys.Bits),
		zap.Uint64("size", filter.params.BitSize))

	exists, err := filter.bits.Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	filter.log.Info("allocating", zap.String("name", filter.keys.Bits))
	_, err = filter.bits.Set(ctx, filter.params.BitSize-1, false)
	return err
}

// CheckCompatible returns ErrIncompatible when the stored vector is larger
// than the filter's bit size, i.e. it was written by a filter with
// different parameters.
func (filter *Filter[T]) CheckCompatible(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	stored, err := filter.bits.StoredLen(ctx)
	if err != nil {
		return err
	}
	if expected := bitset.ByteLen(filter.params.BitSize); stored > expected {
		return ErrIncompatible.New("%q holds %d bytes, filter with %d bits uses at most %d",
			filter.keys.Bits, stored, filter.params.BitSize, expected)
	}
	return nil
}

// Snapshot returns the raw bit vector.
//
// Avoid calling this for large filters, the whole vector is transferred and
// held in memory.
func (filter *Filter[T]) Snapshot(ctx context.Context) (_ bitset.Bits, err error) {
	defer mon.Task()(&ctx)(&err)
	return filter.bits.Bytes(ctx)
}

// Delete removes the bit vector and the insertion counter from the store.
// This cannot be undone.
func (filter *Filter[T]) Delete(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	filter.log.Info("deleting filter",
		zap.String("name", filter.keys.Bits),
		zap.Uint64("size", filter.params.BitSize))

	// pending counter updates would recreate the counter key
	filter.counters.Wait()

	return filter.store.Delete(ctx, kvstore.Key(filter.keys.Bits), kvstore.Key(filter.keys.Counts))
}

// Flush waits for pending insertion counter updates.
func (filter *Filter[T]) Flush() {
	filter.counters.Wait()
}

// Close waits for pending insertion counter updates and stops further
// updates. It does not close the store, which may be shared.
func (filter *Filter[T]) Close() error {
	filter.counters.Close()
	filter.counters.Wait()
	return nil
}

// String returns the parameters of the filter.
func (filter *Filter[T]) String() string {
	return filter.Name() + "{bits=" + strconv.FormatUint(filter.params.BitSize, 10) +
		", k=" + strconv.FormatUint(uint64(filter.params.NumHashFunctions), 10) +
		", strategy=" + filter.params.Strategy.String() + "}"
}
