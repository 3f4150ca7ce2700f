// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bloomfilter

import (
	"math"
	"strings"

	"github.com/spaolacci/murmur3"
	"github.com/zeebo/xxh3"
)

// Strategy translates an encoded element into the bit indexes it occupies.
//
// Strategies are part of every filter persisted with them: the bit selection of
// a released strategy must never change. New behavior gets a new Strategy.
type Strategy uint8

const (
	// Murmur128Mitz64 derives indexes from the 128-bit murmur3 hash of the element.
	// The lower and upper 8 bytes of the digest are combined as
	// h1 + i*h2, and made non-negative by masking off the sign bit.
	Murmur128Mitz64 Strategy = 1

	// XXH3128Mitz64 is Murmur128Mitz64 with the 128-bit xxh3 hash.
	XXH3128Mitz64 Strategy = 2

	// DefaultStrategy is used when no strategy is configured.
	DefaultStrategy = Murmur128Mitz64
)

var strategyNames = map[Strategy]string{
	Murmur128Mitz64: "murmur128_mitz_64",
	XXH3128Mitz64:   "xxh3_128_mitz_64",
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultStrategy, nil
	}
	for strategy, strategyName := range strategyNames {
		if strategyName == name {
			return strategy, nil
		}
	}
	return 0, ErrConfig.New("unknown strategy %q", name)
}

// Valid returns whether strategy is a known strategy.
func (strategy Strategy) Valid() bool {
	_, ok := strategyNames[strategy]
	return ok
}

// String returns the name of the strategy.
func (strategy Strategy) String() string {
	if name, ok := strategyNames[strategy]; ok {
		return name
	}
	return "unknown"
}

// Indexes returns numHashFunctions bit indexes in [0, bitSize) for data.
//
// It is a pure function of its arguments. It panics when strategy is not
// valid or bitSize is zero.
func (strategy Strategy) Indexes(data []byte, numHashFunctions uint32, bitSize uint64) []uint64 {
	if bitSize == 0 {
		panic("bloomfilter: zero bit size")
	}

	var hash1, hash2 uint64
	switch strategy {
	case Murmur128Mitz64:
		hash1, hash2 = murmur3.Sum128(data)
	case XXH3128Mitz64:
		h := xxh3.Hash128(data)
		hash1, hash2 = h.Lo, h.Hi
	default:
		panic("bloomfilter: invalid strategy " + strategy.String())
	}

	return mitz64(hash1, hash2, numHashFunctions, bitSize)
}

// mitz64 combines two hashes into k indexes, see "Less Hashing, Same
// Performance: Building a Better Bloom Filter" by Kirsch and Mitzenmacher.
func mitz64(hash1, hash2 uint64, k uint32, bitSize uint64) []uint64 {
	result := make([]uint64, k)
	combined := hash1
	for i := range result {
		result[i] = (combined & math.MaxInt64) % bitSize
		combined += hash2
	}
	return result
}

// Hash encodes value and returns its bit indexes.
func Hash[T any](strategy Strategy, value T, encoder Encoder[T], numHashFunctions uint32, bitSize uint64) ([]uint64, error) {
	data, err := encode(value, encoder)
	if err != nil {
		return nil, err
	}
	return strategy.Indexes(data, numHashFunctions, bitSize), nil
}
