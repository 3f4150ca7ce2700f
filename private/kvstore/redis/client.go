// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"

	"storj.io/redisbloom/private/kvstore"
)

var (
	// Error is a redis error.
	Error = errs.Class("redis")

	mon = monkit.Package()
)

// Config configures the connection to redis.
type Config struct {
	Address string `help:"redis connection url, e.g. redis://:password@localhost:6379/0" default:"redis://127.0.0.1:6379/0"`
}

// Client is the entrypoint into Redis.
//
// Client is safe for concurrent use. Batched operations are sent as a single
// pipeline and cost one round trip.
type Client struct {
	db redis.UniversalClient
}

var _ kvstore.BitStore = (*Client)(nil)

// NewClient wraps an existing redis client. The client is shared and closed
// together with the returned Client.
func NewClient(db redis.UniversalClient) *Client {
	return &Client{db: db}
}

// OpenClient returns a configured Client instance, verifying a successful connection to redis.
func OpenClient(ctx context.Context, address, password string, db int) (*Client, error) {
	client := NewClient(redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}))

	// ping here to verify we are able to connect to redis with the initialized client.
	if err := client.db.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.Close())
	}

	return client, nil
}

// OpenClientFrom returns a configured Client instance from a redis url, verifying a successful connection to redis.
func OpenClientFrom(ctx context.Context, address string) (*Client, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, Error.New("invalid redis url: %v", err)
	}

	client := NewClient(redis.NewClient(opts))
	if err := client.db.Ping(ctx).Err(); err != nil {
		return nil, errs.Combine(Error.New("ping failed: %v", err), client.Close())
	}

	return client, nil
}

// Open opens the client described by config.
func Open(ctx context.Context, config Config) (*Client, error) {
	return OpenClientFrom(ctx, config.Address)
}

// GetBit returns the bit at offset.
func (client *Client) GetBit(ctx context.Context, key kvstore.Key, offset uint64) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return false, kvstore.ErrEmptyKey.New("")
	}

	bit, err := client.db.GetBit(ctx, key.String(), int64(offset)).Result()
	if err != nil {
		return false, Error.Wrap(err)
	}
	return bit == 1, nil
}

// GetBits returns the bits at offsets using a single pipeline.
func (client *Client) GetBits(ctx context.Context, key kvstore.Key, offsets []uint64) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}
	if len(offsets) == 0 {
		return []bool{}, nil
	}

	cmds := make([]*redis.IntCmd, len(offsets))
	_, err = client.db.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, offset := range offsets {
			cmds[i] = pipe.GetBit(ctx, key.String(), int64(offset))
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return bits(cmds), nil
}

// SetBit sets the bit at offset and returns its previous value.
func (client *Client) SetBit(ctx context.Context, key kvstore.Key, offset uint64, value bool) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return false, kvstore.ErrEmptyKey.New("")
	}

	previous, err := client.db.SetBit(ctx, key.String(), int64(offset), bitValue(value)).Result()
	if err != nil {
		return false, Error.Wrap(err)
	}
	return previous == 1, nil
}

// SetBits sets the bits at offsets using a single pipeline and returns
// their previous values.
func (client *Client) SetBits(ctx context.Context, key kvstore.Key, offsets []uint64, value bool) (_ []bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}
	if len(offsets) == 0 {
		return []bool{}, nil
	}

	v := bitValue(value)
	cmds := make([]*redis.IntCmd, len(offsets))
	_, err = client.db.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, offset := range offsets {
			cmds[i] = pipe.SetBit(ctx, key.String(), int64(offset), v)
		}
		return nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return bits(cmds), nil
}

// BitCount returns the number of set bits.
func (client *Client) BitCount(ctx context.Context, key kvstore.Key) (_ uint64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, kvstore.ErrEmptyKey.New("")
	}

	count, err := client.db.BitCount(ctx, key.String(), nil).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return uint64(count), nil
}

// Get looks up the provided key from redis returning either an error or the result.
func (client *Client) Get(ctx context.Context, key kvstore.Key) (_ kvstore.Value, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return nil, kvstore.ErrEmptyKey.New("")
	}

	value, err := client.db.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kvstore.ErrKeyNotFound.New("%q", key)
	}
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return kvstore.Value(value), nil
}

// Len returns the length of the value stored at key.
func (client *Client) Len(ctx context.Context, key kvstore.Key) (_ uint64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, kvstore.ErrEmptyKey.New("")
	}

	n, err := client.db.StrLen(ctx, key.String()).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return uint64(n), nil
}

// Exists returns whether key exists.
func (client *Client) Exists(ctx context.Context, key kvstore.Key) (_ bool, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return false, kvstore.ErrEmptyKey.New("")
	}

	n, err := client.db.Exists(ctx, key.String()).Result()
	if err != nil {
		return false, Error.Wrap(err)
	}
	return n > 0, nil
}

// Incr increments the number stored at key by one.
func (client *Client) Incr(ctx context.Context, key kvstore.Key) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, kvstore.ErrEmptyKey.New("")
	}

	n, err := client.db.Incr(ctx, key.String()).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return n, nil
}

// IncrBy increments the number stored at key by delta.
func (client *Client) IncrBy(ctx context.Context, key kvstore.Key, delta int64) (_ int64, err error) {
	defer mon.Task()(&ctx)(&err)
	if key.IsZero() {
		return 0, kvstore.ErrEmptyKey.New("")
	}

	n, err := client.db.IncrBy(ctx, key.String(), delta).Result()
	if err != nil {
		return 0, Error.Wrap(err)
	}
	return n, nil
}

// Delete deletes the keys with a single command.
func (client *Client) Delete(ctx context.Context, keys ...kvstore.Key) (err error) {
	defer mon.Task()(&ctx)(&err)
	if err := kvstore.CheckKeys(keys...); err != nil {
		return err
	}

	err = client.db.Del(ctx, kvstore.Keys(keys).Strings()...).Err()
	if err != nil {
		return Error.Wrap(err)
	}
	return nil
}

// FlushDB deletes all keys in the currently selected DB.
func (client *Client) FlushDB(ctx context.Context) error {
	return Error.Wrap(client.db.FlushDB(ctx).Err())
}

// Close closes a redis client.
func (client *Client) Close() error {
	return Error.Wrap(client.db.Close())
}

func bitValue(value bool) int {
	if value {
		return 1
	}
	return 0
}

func bits(cmds []*redis.IntCmd) []bool {
	result := make([]bool, len(cmds))
	for i, cmd := range cmds {
		result[i] = cmd.Val() == 1
	}
	return result
}
