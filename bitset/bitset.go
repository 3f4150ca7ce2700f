// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package bitset implements a fixed size bit vector persisted in a remote
// key/value store.
//
// Each operation costs at most one round trip: operations on multiple bits
// are pipelined.
package bitset

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/redisbloom/private/kvstore"
)

var mon = monkit.Package()

// MaxSize is the largest vector redis can address, 512 MiB of bits.
const MaxSize = uint64(1) << 32

var (
	// Error is the default error class for bitset.
	Error = errs.Class("bitset")
	// ErrConfig is returned when a BitSet is created with invalid arguments.
	ErrConfig = errs.Class("bitset config")
	// ErrOutOfRange is returned when an index is not smaller than the size.
	ErrOutOfRange = errs.Class("bitset index out of range")
)

// BitSet is a named vector of Size bits stored remotely.
//
// Exercise caution when declaring a large BitSet, every full read transfers
// the whole vector and counting bits is linear in its size on the server.
type BitSet struct {
	store kvstore.BitStore
	name  kvstore.Key
	size  uint64
}

// New returns a BitSet of size bits stored under name.
func New(store kvstore.BitStore, name string, size uint64) (*BitSet, error) {
	switch {
	case store == nil:
		return nil, ErrConfig.New("store is nil")
	case name == "":
		return nil, ErrConfig.New("name is empty")
	case size == 0:
		return nil, ErrConfig.New("size should be > 0")
	case size > MaxSize:
		return nil, ErrConfig.New("size %d exceeds %d", size, MaxSize)
	}

	return &BitSet{
		store: store,
		name:  kvstore.Key(name),
		size:  size,
	}, nil
}

// Name returns the key of the vector.
func (set *BitSet) Name() string { return set.name.String() }

// Size returns the number of bits.
func (set *BitSet) Size() uint64 { return set.size }

// Get returns the bit at index.
func (set *BitSet) Get(ctx context.Context, index uint64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := set.checkRange(index); err != nil {
		return false, err
	}
	return set.store.GetBit(ctx, set.name, index)
}

// GetAll fetches the values at the given indexes, in the same order.
func (set *BitSet) GetAll(ctx context.Context, indexes ...uint64) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := set.checkRange(indexes...); err != nil {
		return nil, err
	}
	return set.store.GetBits(ctx, set.name, indexes)
}

// Set sets the bit at index to value and returns the original value.
func (set *BitSet) Set(ctx context.Context, index uint64, value bool) (previous bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := set.checkRange(index); err != nil {
		return false, err
	}
	return set.store.SetBit(ctx, set.name, index, value)
}

// SetAll sets all the bits at indexes and reports whether any of them was
// previously unset.
func (set *BitSet) SetAll(ctx context.Context, indexes ...uint64) (changed bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := set.checkRange(indexes...); err != nil {
		return false, err
	}

	previous, err := set.store.SetBits(ctx, set.name, indexes, true)
	if err != nil {
		return false, err
	}
	return anyUnset(previous), nil
}

// IsAllSet tests whether all bits at indexes are set.
func (set *BitSet) IsAllSet(ctx context.Context, indexes ...uint64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	values, err := set.GetAll(ctx, indexes...)
	if err != nil {
		return false, err
	}
	return !anyUnset(values), nil
}

// Clear unsets the bit at index.
func (set *BitSet) Clear(ctx context.Context, index uint64) (err error) {
	defer mon.Task()(&ctx)(&err)
	_, err = set.Set(ctx, index, false)
	return err
}

// ClearAll deletes the whole vector from the store.
func (set *BitSet) ClearAll(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	return set.store.Delete(ctx, set.name)
}

// Cardinality returns the number of set bits.
//
// Avoid calling this frequently for large vectors, the remote store scans
// the whole value.
func (set *BitSet) Cardinality(ctx context.Context) (_ uint64, err error) {
	defer mon.Task()(&ctx)(&err)
	return set.store.BitCount(ctx, set.name)
}

// Bytes returns a snapshot of the vector. The result is always ByteLen(Size)
// bytes long: an absent vector reads as all zeroes and bytes stored past the
// end of the vector are dropped.
//
// Avoid calling this for large vectors, the whole value is transferred and
// held in memory.
func (set *BitSet) Bytes(ctx context.Context) (_ Bits, err error) {
	defer mon.Task()(&ctx)(&err)

	value, err := set.store.Get(ctx, set.name)
	if kvstore.ErrKeyNotFound.Has(err) {
		return make(Bits, ByteLen(set.size)), nil
	}
	if err != nil {
		return nil, err
	}

	n := ByteLen(set.size)
	if uint64(len(value)) < n {
		padded := make(Bits, n)
		copy(padded, value)
		return padded, nil
	}
	return Bits(value[:n]), nil
}

// Exists returns whether the vector has been materialized in the store.
func (set *BitSet) Exists(ctx context.Context) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	return set.store.Exists(ctx, set.name)
}

// StoredLen returns the number of bytes the store currently holds for the vector.
func (set *BitSet) StoredLen(ctx context.Context) (_ uint64, err error) {
	defer mon.Task()(&ctx)(&err)
	return set.store.Len(ctx, set.name)
}

func (set *BitSet) checkRange(indexes ...uint64) error {
	for _, index := range indexes {
		if index >= set.size {
			return ErrOutOfRange.New("%d >= %d", index, set.size)
		}
	}
	return nil
}

func anyUnset(values []bool) bool {
	for _, v := range values {
		if !v {
			return true
		}
	}
	return false
}

// SetEach sets the bits of every group of indexes in a single round trip and
// reports, per group, whether any of its bits was previously unset. Groups
// are applied in order, so a group observes the bits set by earlier groups.
func (set *BitSet) SetEach(ctx context.Context, groups [][]uint64) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	indexes, err := set.flatten(groups)
	if err != nil {
		return nil, err
	}

	previous, err := set.store.SetBits(ctx, set.name, indexes, true)
	if err != nil {
		return nil, err
	}
	return perGroup(groups, previous, anyUnset), nil
}

// IsAllSetEach tests, per group of indexes, whether all of its bits are set,
// using a single round trip.
func (set *BitSet) IsAllSetEach(ctx context.Context, groups [][]uint64) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	indexes, err := set.flatten(groups)
	if err != nil {
		return nil, err
	}

	values, err := set.store.GetBits(ctx, set.name, indexes)
	if err != nil {
		return nil, err
	}
	return perGroup(groups, values, func(values []bool) bool { return !anyUnset(values) }), nil
}

func (set *BitSet) flatten(groups [][]uint64) ([]uint64, error) {
	var total int
	for _, group := range groups {
		if err := set.checkRange(group...); err != nil {
			return nil, err
		}
		total += len(group)
	}

	indexes := make([]uint64, 0, total)
	for _, group := range groups {
		indexes = append(indexes, group...)
	}
	return indexes, nil
}

func perGroup(groups [][]uint64, values []bool, fn func([]bool) bool) []bool {
	result := make([]bool, len(groups))
	offset := 0
	for i, group := range groups {
		result[i] = fn(values[offset : offset+len(group)])
		offset += len(group)
	}
	return result
}
