// Copyright (C) 2017 ScyllaDB

package dht

import "math"

// Full token range of the Murmur3 partitioner, see
// https://github.com/scylladb/scylla/blob/master/dht/murmur3_partitioner.hh
const (
	Murmur3MinToken = int64(math.MinInt64)
	Murmur3MaxToken = int64(math.MaxInt64)
)
