// Copyright (C) 2018 Storj Labs, Inc.
// See LICENSE for copying information.

package teststore

import (
	"context"
	"math/bits"
	"strconv"
	"sync"

	"github.com/zeebo/errs"

	"storj.io/redisbloom/private/kvstore"
)

// CallCount counts calls made to a Client. Every call is one simulated round trip.
type CallCount struct {
	GetBit   int
	GetBits  int
	SetBit   int
	SetBits  int
	BitCount int
	Get      int
	Len      int
	Exists   int
	Incr     int
	IncrBy   int
	Delete   int
	Close    int
}

// RoundTrips returns the total number of round trips.
func (count CallCount) RoundTrips() int {
	return count.GetBit + count.GetBits + count.SetBit + count.SetBits +
		count.BitCount + count.Get + count.Len + count.Exists +
		count.Incr + count.IncrBy + count.Delete
}

// Client implements in-memory bit store.
//
// Values are addressed the same way redis addresses them: bit 0 is the most
// significant bit of the first byte.
type Client struct {
	mu        sync.Mutex
	items     map[string][]byte
	callCount CallCount

	forceError error
	incrError  error
}

var _ kvstore.BitStore = (*Client)(nil)

// New creates a new in-memory bit store.
func New() *Client { return &Client{items: map[string][]byte{}} }

// CallCount returns a copy of the current call counters.
func (store *Client) CallCount() CallCount {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.callCount
}

// ForceError makes every following call fail with err, nil restores normal operation.
func (store *Client) ForceError(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.forceError = err
}

// ForceIncrError makes Incr and IncrBy fail with err, nil restores normal operation.
func (store *Client) ForceIncrError(err error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.incrError = err
}

// GetBit returns the bit at offset.
func (store *Client) GetBit(ctx context.Context, key kvstore.Key, offset uint64) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.GetBit++
	if err := store.check(key); err != nil {
		return false, err
	}

	return getBit(store.items[key.String()], offset), nil
}

// GetBits returns the bits at offsets.
func (store *Client) GetBits(ctx context.Context, key kvstore.Key, offsets []uint64) ([]bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.GetBits++
	if err := store.check(key); err != nil {
		return nil, err
	}

	value := store.items[key.String()]
	result := make([]bool, len(offsets))
	for i, offset := range offsets {
		result[i] = getBit(value, offset)
	}
	return result, nil
}

// SetBit sets the bit at offset and returns the previous value.
func (store *Client) SetBit(ctx context.Context, key kvstore.Key, offset uint64, value bool) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.SetBit++
	if err := store.check(key); err != nil {
		return false, err
	}

	return store.setBit(key.String(), offset, value), nil
}

// SetBits sets the bits at offsets and returns the previous values.
func (store *Client) SetBits(ctx context.Context, key kvstore.Key, offsets []uint64, value bool) ([]bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.SetBits++
	if err := store.check(key); err != nil {
		return nil, err
	}

	result := make([]bool, len(offsets))
	for i, offset := range offsets {
		result[i] = store.setBit(key.String(), offset, value)
	}
	return result, nil
}

// BitCount returns the number of set bits.
func (store *Client) BitCount(ctx context.Context, key kvstore.Key) (uint64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.BitCount++
	if err := store.check(key); err != nil {
		return 0, err
	}

	var count uint64
	for _, b := range store.items[key.String()] {
		count += uint64(bits.OnesCount8(b))
	}
	return count, nil
}

// Get returns the raw value.
func (store *Client) Get(ctx context.Context, key kvstore.Key) (kvstore.Value, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.Get++
	if err := store.check(key); err != nil {
		return nil, err
	}

	value, ok := store.items[key.String()]
	if !ok {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	return kvstore.CloneValue(value), nil
}

// Len returns the length of the value.
func (store *Client) Len(ctx context.Context, key kvstore.Key) (uint64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.Len++
	if err := store.check(key); err != nil {
		return 0, err
	}

	return uint64(len(store.items[key.String()])), nil
}

// Exists returns whether key exists.
func (store *Client) Exists(ctx context.Context, key kvstore.Key) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.Exists++
	if err := store.check(key); err != nil {
		return false, err
	}

	_, ok := store.items[key.String()]
	return ok, nil
}

// Incr increments the decimal number stored at key.
func (store *Client) Incr(ctx context.Context, key kvstore.Key) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.Incr++
	return store.incr(key, 1)
}

// IncrBy increments the decimal number stored at key by delta.
func (store *Client) IncrBy(ctx context.Context, key kvstore.Key, delta int64) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.IncrBy++
	return store.incr(key, delta)
}

func (store *Client) incr(key kvstore.Key, delta int64) (int64, error) {
	if err := store.check(key); err != nil {
		return 0, err
	}
	if store.incrError != nil {
		return 0, store.incrError
	}

	var current int64
	if value, ok := store.items[key.String()]; ok {
		n, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, errs.New("value at %q is not an integer", key)
		}
		current = n
	}
	current += delta
	store.items[key.String()] = []byte(strconv.FormatInt(current, 10))
	return current, nil
}

// Delete deletes the keys.
func (store *Client) Delete(ctx context.Context, keys ...kvstore.Key) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.Delete++
	if err := kvstore.CheckKeys(keys...); err != nil {
		return err
	}
	if store.forceError != nil {
		return store.forceError
	}

	for _, key := range keys {
		delete(store.items, key.String())
	}
	return nil
}

// Close closes the store.
func (store *Client) Close() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.callCount.Close++
	return nil
}

func (store *Client) check(key kvstore.Key) error {
	if key.IsZero() {
		return kvstore.ErrEmptyKey.New("")
	}
	return store.forceError
}

func (store *Client) setBit(key string, offset uint64, value bool) bool {
	current := store.items[key]
	if need := offset/8 + 1; uint64(len(current)) < need {
		grown := make([]byte, need)
		copy(grown, current)
		current = grown
	}
	store.items[key] = current

	mask := byte(0x80) >> (offset % 8)
	previous := current[offset/8]&mask != 0
	if value {
		current[offset/8] |= mask
	} else {
		current[offset/8] &^= mask
	}
	return previous
}

func getBit(value []byte, offset uint64) bool {
	if offset/8 >= uint64(len(value)) {
		return false
	}
	return value[offset/8]&(byte(0x80)>>(offset%8)) != 0
}
