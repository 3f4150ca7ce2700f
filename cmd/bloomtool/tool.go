// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"strconv"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/redisbloom/bitset"
	"storj.io/redisbloom/bloomfilter"
	"storj.io/redisbloom/private/kvstore"
)

// Encoding names how command line elements are converted before hashing.
type Encoding string

const (
	// EncodingString hashes elements as their UTF-8 bytes.
	EncodingString Encoding = "string"
	// EncodingInt64 parses elements as decimal integers and hashes them as 8 little-endian bytes.
	EncodingInt64 Encoding = "int64"
)

// tool hides the element type of a filter from the commands.
type tool interface {
	Add(ctx context.Context, elements []string) ([]bool, error)
	Test(ctx context.Context, elements []string) ([]bool, error)
	Allocate(ctx context.Context) error
	CheckCompatible(ctx context.Context) error
	Stats(ctx context.Context) (bloomfilter.Stats, error)
	Snapshot(ctx context.Context) (bitset.Bits, error)
	Delete(ctx context.Context) error
	Close() error
}

// openTool opens the filter described by config with the given element encoding.
func openTool(ctx context.Context, log *zap.Logger, store kvstore.BitStore, config bloomfilter.Config, encoding Encoding) (tool, error) {
	switch encoding {
	case EncodingString, "":
		filter, err := bloomfilter.Open[string](ctx, log, store, config, bloomfilter.StringEncoder{})
		if err != nil {
			return nil, err
		}
		return &typedTool[string]{filter: filter, parse: parseString}, nil
	case EncodingInt64:
		filter, err := bloomfilter.Open[int64](ctx, log, store, config, bloomfilter.Int64Encoder{})
		if err != nil {
			return nil, err
		}
		return &typedTool[int64]{filter: filter, parse: parseInt64}, nil
	default:
		return nil, errs.New("unknown encoding %q", encoding)
	}
}

func parseString(s string) (string, error) { return s, nil }

func parseInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errs.New("invalid int64 element %q", s)
	}
	return v, nil
}

type typedTool[T any] struct {
	filter *bloomfilter.Filter[T]
	parse  func(string) (T, error)
}

func (tool *typedTool[T]) elements(args []string) ([]T, error) {
	elements := make([]T, len(args))
	for i, arg := range args {
		element, err := tool.parse(arg)
		if err != nil {
			return nil, err
		}
		elements[i] = element
	}
	return elements, nil
}

func (tool *typedTool[T]) Add(ctx context.Context, args []string) ([]bool, error) {
	elements, err := tool.elements(args)
	if err != nil {
		return nil, err
	}
	return tool.filter.AddAll(ctx, elements)
}

func (tool *typedTool[T]) Test(ctx context.Context, args []string) ([]bool, error) {
	elements, err := tool.elements(args)
	if err != nil {
		return nil, err
	}
	return tool.filter.MightContainAll(ctx, elements)
}

func (tool *typedTool[T]) Allocate(ctx context.Context) error { return tool.filter.Allocate(ctx) }

func (tool *typedTool[T]) CheckCompatible(ctx context.Context) error {
	return tool.filter.CheckCompatible(ctx)
}

func (tool *typedTool[T]) Stats(ctx context.Context) (bloomfilter.Stats, error) {
	return tool.filter.Stats(ctx)
}

func (tool *typedTool[T]) Snapshot(ctx context.Context) (bitset.Bits, error) {
	return tool.filter.Snapshot(ctx)
}

func (tool *typedTool[T]) Delete(ctx context.Context) error { return tool.filter.Delete(ctx) }

func (tool *typedTool[T]) Close() error { return tool.filter.Close() }
