// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package kvstore

import (
	"context"

	"github.com/zeebo/errs"
)

var (
	// ErrKeyNotFound used when something doesn't exist.
	ErrKeyNotFound = errs.Class("key not found")

	// ErrEmptyKey is returned when an empty key is used.
	ErrEmptyKey = errs.Class("empty key")
)

// Key is the type for the keys in a `BitStore`.
type Key []byte

// Value is the type for the raw values in a `BitStore`.
type Value []byte

// Keys is the type for a slice of keys in a `BitStore`.
type Keys []Key

// BitStore describes remote key/value stores that address string values
// bit by bit, like redis.
//
// Every method costs exactly one round trip to the remote store. The batched
// methods GetBits and SetBits send all their commands together, but the batch
// as a whole is not atomic.
type BitStore interface {
	// GetBit returns the bit at offset.
	GetBit(ctx context.Context, key Key, offset uint64) (bool, error)
	// GetBits returns the bits at offsets, in the same order.
	GetBits(ctx context.Context, key Key, offsets []uint64) ([]bool, error)
	// SetBit sets the bit at offset and returns its previous value.
	SetBit(ctx context.Context, key Key, offset uint64, value bool) (bool, error)
	// SetBits sets the bits at offsets and returns their previous values, in the same order.
	SetBits(ctx context.Context, key Key, offsets []uint64, value bool) ([]bool, error)
	// BitCount returns the number of set bits in the value.
	BitCount(ctx context.Context, key Key) (uint64, error)
	// Get returns the raw value. It returns ErrKeyNotFound when the key is absent.
	Get(ctx context.Context, key Key) (Value, error)
	// Len returns the length of the value in bytes, 0 when the key is absent.
	Len(ctx context.Context, key Key) (uint64, error)
	// Exists returns whether the key exists.
	Exists(ctx context.Context, key Key) (bool, error)
	// Incr increments the integer value of key by one and returns the result.
	Incr(ctx context.Context, key Key) (int64, error)
	// IncrBy increments the integer value of key by delta and returns the result.
	IncrBy(ctx context.Context, key Key, delta int64) (int64, error)
	// Delete deletes the keys and their values.
	Delete(ctx context.Context, keys ...Key) error
	// Close closes the store.
	Close() error
}

// IsZero returns true if the value struct is a zero value.
func (value Value) IsZero() bool {
	return len(value) == 0
}

// IsZero returns true if the key struct is a zero value.
func (key Key) IsZero() bool {
	return len(key) == 0
}

// String implements the Stringer interface.
func (key Key) String() string { return string(key) }

// Strings returns everything as strings.
func (keys Keys) Strings() []string {
	strs := make([]string, 0, len(keys))
	for _, key := range keys {
		strs = append(strs, string(key))
	}
	return strs
}

// CloneValue creates a copy of value.
func CloneValue(value Value) Value { return append(Value{}, value...) }

// CheckKeys returns ErrEmptyKey when any of the keys is empty.
func CheckKeys(keys ...Key) error {
	if len(keys) == 0 {
		return ErrEmptyKey.New("no keys")
	}
	for _, key := range keys {
		if key.IsZero() {
			return ErrEmptyKey.New("")
		}
	}
	return nil
}
