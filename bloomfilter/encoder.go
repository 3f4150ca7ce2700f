// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bloomfilter

import (
	"encoding/binary"
	"reflect"
)

// Encoder converts an element to the bytes that are hashed.
//
// Encoding must be deterministic across processes and releases: a filter
// persisted with one encoding cannot be queried with another.
type Encoder[T any] interface {
	Encode(value T) ([]byte, error)
}

// EncoderFunc adapts a function to an Encoder.
type EncoderFunc[T any] func(value T) ([]byte, error)

// Encode calls fn(value).
func (fn EncoderFunc[T]) Encode(value T) ([]byte, error) { return fn(value) }

// StringEncoder encodes strings as their UTF-8 bytes.
type StringEncoder struct{}

// Encode implements Encoder.
func (StringEncoder) Encode(value string) ([]byte, error) { return []byte(value), nil }

// BytesEncoder encodes byte slices as they are. A nil slice is rejected.
type BytesEncoder struct{}

// Encode implements Encoder.
func (BytesEncoder) Encode(value []byte) ([]byte, error) {
	if value == nil {
		return nil, ErrInvalidArgument.New("nil byte slice")
	}
	return value, nil
}

// Int64Encoder encodes integers as 8 little-endian bytes.
type Int64Encoder struct{}

// Encode implements Encoder.
func (Int64Encoder) Encode(value int64) ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, uint64(value)), nil
}

// Uint64Encoder encodes integers as 8 little-endian bytes.
type Uint64Encoder struct{}

// Encode implements Encoder.
func (Uint64Encoder) Encode(value uint64) ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, value), nil
}

func encode[T any](value T, encoder Encoder[T]) ([]byte, error) {
	if isNil(value) {
		return nil, ErrInvalidArgument.New("element is nil")
	}
	data, err := encoder.Encode(value)
	if err != nil {
		if ErrInvalidArgument.Has(err) {
			return nil, err
		}
		return nil, ErrInvalidArgument.Wrap(err)
	}
	return data, nil
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	switch v := reflect.ValueOf(value); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
