// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package bloomfilter

import "math"

const (
	// MaxHashFunctions is the largest supported number of hash functions.
	MaxHashFunctions = 255

	ln2Squared = math.Ln2 * math.Ln2
)

// OptimalNumOfBits computes m (total bits of the filter) expected to achieve,
// for the specified expected insertions, the required false positive probability.
//
// See https://en.wikipedia.org/wiki/Bloom_filter#Probability_of_false_positives.
func OptimalNumOfBits(expectedInsertions int64, falsePositiveProbability float64) uint64 {
	if expectedInsertions <= 0 || falsePositiveProbability <= 0 || falsePositiveProbability >= 1 {
		return 1
	}
	bits := math.Ceil(-float64(expectedInsertions) * math.Log(falsePositiveProbability) / ln2Squared)
	if bits >= math.MaxUint64 {
		return math.MaxUint64
	}
	return max(uint64(bits), 1)
}

// OptimalNumOfHashFunctions computes the optimal k (number of hashes per
// element inserted in the filter), given the expected insertions and total
// number of bits.
//
// See https://en.wikipedia.org/wiki/File:Bloom_filter_fp_probability.svg for the formula.
func OptimalNumOfHashFunctions(expectedInsertions int64, bitSize uint64) uint32 {
	if expectedInsertions <= 0 {
		return 1
	}
	k := math.Round(float64(bitSize) / float64(expectedInsertions) * math.Ln2)
	if k >= math.MaxUint32 {
		return math.MaxUint32
	}
	return max(uint32(k), 1)
}

// EstimateFalsePositiveRate estimates the false positive rate of a filter
// with bitSize bits and numHashFunctions hashes after insertions distinct
// insertions: (1 - e^(-kn/m))^k.
func EstimateFalsePositiveRate(bitSize uint64, numHashFunctions uint32, insertions int64) float64 {
	if bitSize == 0 || insertions <= 0 {
		return 0
	}
	k := float64(numHashFunctions)
	return math.Pow(1-math.Exp(-k*float64(insertions)/float64(bitSize)), k)
}

// estimateElementCount inverts the expected fill ratio of a filter: each
// insertion is expected to reduce the number of clear bits by a factor of
// k/m, so after n insertions bitCount ~ m * (1 - (1 - k/m)^n).
func estimateElementCount(bitSize uint64, numHashFunctions uint32, bitCount uint64) int64 {
	if bitCount == 0 || bitSize == 0 || numHashFunctions == 0 {
		return 0
	}
	// a saturated vector has no finite estimate
	bitCount = min(bitCount, bitSize-1)
	if bitCount == 0 {
		return 0
	}

	fraction := float64(bitCount) / float64(bitSize)
	estimate := -math.Log1p(-fraction) * float64(bitSize) / float64(numHashFunctions)
	return int64(math.Round(estimate))
}

// expectedFpp returns (bitCount/bitSize)^numHashFunctions.
func expectedFpp(bitSize uint64, numHashFunctions uint32, bitCount uint64) float64 {
	if bitSize == 0 {
		return 0
	}
	return math.Pow(float64(bitCount)/float64(bitSize), float64(numHashFunctions))
}
