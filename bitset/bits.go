// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bitset

import "math/bits"

// Bits is a local copy of a vector in redis bit order: bit 0 is the most
// significant bit of the first byte.
type Bits []byte

// ByteLen returns the number of bytes needed to hold size bits.
func ByteLen(size uint64) uint64 { return (size + 7) / 8 }

// Test returns whether bit i is set.
func (b Bits) Test(i uint64) bool {
	if i/8 >= uint64(len(b)) {
		return false
	}
	return b[i/8]&(0x80>>(i%8)) != 0
}

// Count returns the number of set bits.
func (b Bits) Count() uint64 {
	var count uint64
	for _, v := range b {
		count += uint64(bits.OnesCount8(v))
	}
	return count
}

// Indexes returns the positions of all set bits in ascending order.
func (b Bits) Indexes() []uint64 {
	var indexes []uint64
	for i, v := range b {
		for v != 0 {
			lead := bits.LeadingZeros8(v)
			indexes = append(indexes, uint64(i)*8+uint64(lead))
			v &^= 0x80 >> lead
		}
	}
	return indexes
}
