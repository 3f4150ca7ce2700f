// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package storelogger

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"storj.io/redisbloom/private/kvstore"
)

var mon = monkit.Package()

var id int64

// Logger implements a zap.Logger for kvstore.BitStore.
type Logger struct {
	log   *zap.Logger
	store kvstore.BitStore
}

var _ kvstore.BitStore = (*Logger)(nil)

// New creates a new Logger with log and store.
func New(log *zap.Logger, store kvstore.BitStore) *Logger {
	loggerid := atomic.AddInt64(&id, 1)
	name := strconv.Itoa(int(loggerid))
	return &Logger{log.Named(name), store}
}

// GetBit returns the bit at offset.
func (store *Logger) GetBit(ctx context.Context, key kvstore.Key, offset uint64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("GetBit", zap.ByteString("key", key), zap.Uint64("offset", offset))
	return store.store.GetBit(ctx, key, offset)
}

// GetBits returns the bits at offsets.
func (store *Logger) GetBits(ctx context.Context, key kvstore.Key, offsets []uint64) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("GetBits", zap.ByteString("key", key), zap.Uint64s("offsets", offsets))
	return store.store.GetBits(ctx, key, offsets)
}

// SetBit sets the bit at offset.
func (store *Logger) SetBit(ctx context.Context, key kvstore.Key, offset uint64, value bool) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("SetBit", zap.ByteString("key", key), zap.Uint64("offset", offset), zap.Bool("value", value))
	return store.store.SetBit(ctx, key, offset, value)
}

// SetBits sets the bits at offsets.
func (store *Logger) SetBits(ctx context.Context, key kvstore.Key, offsets []uint64, value bool) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("SetBits", zap.ByteString("key", key), zap.Uint64s("offsets", offsets), zap.Bool("value", value))
	return store.store.SetBits(ctx, key, offsets, value)
}

// BitCount returns the number of set bits.
func (store *Logger) BitCount(ctx context.Context, key kvstore.Key) (_ uint64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("BitCount", zap.ByteString("key", key))
	return store.store.BitCount(ctx, key)
}

// Get gets the raw value.
func (store *Logger) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Get", zap.ByteString("key", key))
	value, err := store.store.Get(ctx, key)
	store.log.Debug("Get result", zap.ByteString("key", key), zap.Int("value length", len(value)), zap.Binary("truncated value", truncate(value)))
	return value, err
}

// Len returns the length of the value.
func (store *Logger) Len(ctx context.Context, key kvstore.Key) (_ uint64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Len", zap.ByteString("key", key))
	return store.store.Len(ctx, key)
}

// Exists returns whether key exists.
func (store *Logger) Exists(ctx context.Context, key kvstore.Key) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Exists", zap.ByteString("key", key))
	return store.store.Exists(ctx, key)
}

// Incr increments the number at key.
func (store *Logger) Incr(ctx context.Context, key kvstore.Key) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Incr", zap.ByteString("key", key))
	return store.store.Incr(ctx, key)
}

// IncrBy increments the number at key by delta.
func (store *Logger) IncrBy(ctx context.Context, key kvstore.Key, delta int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("IncrBy", zap.ByteString("key", key), zap.Int64("delta", delta))
	return store.store.IncrBy(ctx, key, delta)
}

// Delete deletes keys and their values.
func (store *Logger) Delete(ctx context.Context, keys ...kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	store.log.Debug("Delete", zap.Strings("keys", kvstore.Keys(keys).Strings()))
	return store.store.Delete(ctx, keys...)
}

// Close closes the store.
func (store *Logger) Close() error {
	store.log.Debug("Close")
	return store.store.Close()
}

func truncate(v kvstore.Value) (t []byte) {
	if len(v)-1 < 10 {
		t = []byte(v)
	} else {
		t = v[:10]
	}
	return t
}
