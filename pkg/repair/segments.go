// Copyright (C) 2017 ScyllaDB

package repair

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/dht"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-set/i64set"
)

// ranges is a grouping type for []node.TokenRange to allow for easier and
// more type safe operations on range lists.
type ranges []node.TokenRange

// dump writes ranges as a comma separated list of pairs.
func (s ranges) dump() string {
	buf := bytes.Buffer{}

	first := true
	for _, r := range s {
		if first {
			first = false
		} else {
			buf.WriteByte(',')
		}
		buf.WriteString(fmt.Sprintf("%d", r.StartToken))
		buf.WriteByte(':')
		buf.WriteString(fmt.Sprintf("%d", r.EndToken))
	}

	return buf.String()
}

// size returns the number of tokens in the range, sizes of the extreme
// ranges overflow int64 hence uint64.
func rangeSize(r node.TokenRange) uint64 {
	return uint64(r.EndToken) - uint64(r.StartToken)
}

// split splits the ranges so that each range size is less or equal sizeLimit.
func (s ranges) split(sizeLimit uint64) ranges {
	if len(s) == 0 || sizeLimit == 0 {
		return s
	}

	// calculate slice size after the split
	size := uint64(0)
	for _, r := range s {
		if d := rangeSize(r); d > sizeLimit {
			size += d / sizeLimit
		}
		size++
	}

	// no split needed
	if size == uint64(len(s)) {
		return s
	}

	// split the ranges
	split := make(ranges, 0, size)
	for _, r := range s {
		d := rangeSize(r)
		if d <= sizeLimit {
			split = append(split, r)
			continue
		}
		start := uint64(r.StartToken)
		for d > 0 {
			step := sizeLimit
			if d < step {
				step = d
			}
			split = append(split, node.TokenRange{
				StartToken: int64(start),
				EndToken:   int64(start + step),
			})
			start += step
			d -= step
		}
	}

	return split
}

// ringRanges builds the list of token ranges between consecutive ring tokens.
// The wraparound range through the ring minimum is split in two so that no
// range in the result wraps.
func ringRanges(tokens []int64) ranges {
	ts := i64set.New(tokens...).List()
	if len(ts) == 0 {
		return nil
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })

	var res ranges
	for i := 0; i < len(ts)-1; i++ {
		res = append(res, node.TokenRange{StartToken: ts[i], EndToken: ts[i+1]})
	}

	first := ts[0]
	last := ts[len(ts)-1]
	if last < dht.Murmur3MaxToken {
		res = append(res, node.TokenRange{StartToken: last, EndToken: dht.Murmur3MaxToken})
	}
	if first > dht.Murmur3MinToken {
		res = append(res, node.TokenRange{StartToken: dht.Murmur3MinToken, EndToken: first})
	}

	return res
}

// planRanges splits the ring given by tokens into at least segmentCount
// even ranges.
func planRanges(tokens []int64, segmentCount int) (ranges, error) {
	rr := ringRanges(tokens)
	if len(rr) == 0 {
		return nil, errors.New("empty token ring")
	}
	if segmentCount <= len(rr) {
		return rr, nil
	}

	total := uint64(0)
	for _, r := range rr {
		total += rangeSize(r)
	}
	limit := total / uint64(segmentCount)
	if limit == 0 {
		limit = 1
	}

	return rr.split(limit), nil
}

// newRunSegments materializes the range plan into segment records of a run.
func newRunSegments(runID uuid.UUID, rr ranges) ([]*Segment, error) {
	segments := make([]*Segment, 0, len(rr))
	for _, r := range rr {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}
		segments = append(segments, &Segment{
			ID:         id,
			RunID:      runID,
			StartToken: r.StartToken,
			EndToken:   r.EndToken,
			State:      SegmentStateNotStarted,
		})
	}
	return segments, nil
}

// topologyHash returns hash of all the tokens.
func topologyHash(tokens []int64) uuid.UUID {
	var (
		xx = xxhash.New()
		b  = make([]byte, 8)
		u  uint64
	)
	for _, t := range tokens {
		if t >= 0 {
			u = uint64(t)
		} else {
			u = uint64(math.MaxInt64 + t)
		}
		binary.LittleEndian.PutUint64(b, u)
		xx.Write(b) // nolint
	}
	h := xx.Sum64()

	return uuid.NewFromUint64(h>>32, uint64(uint32(h)))
}
