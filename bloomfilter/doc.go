// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package bloomfilter implements Bloom filters whose bit vector lives in a
// remote bit store such as redis.
//
// Many processes may share one filter by opening it with the same name and
// parameters. The bit indexes of an element depend only on the element's
// encoding, the strategy, the number of hash functions and the bit size, so
// every process agrees on them without coordination.
//
// Parameters are derived once from the expected number of insertions and the
// desired false positive probability:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = round(m / n * ln(2))
//
// The vector is stored under "<name>:bits" and an advisory insertion counter
// under "<name>:counts".
package bloomfilter
