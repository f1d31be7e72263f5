// Copyright (C) 2017 ScyllaDB

package repair

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/reaperd/reaperd/pkg/dht"
	"github.com/reaperd/reaperd/pkg/node"
)

func TestSplitRanges(t *testing.T) {
	t.Parallel()

	table := []struct {
		S ranges
		L uint64
		E ranges
	}{
		{},
		{
			S: ranges{{0, 10}},
			L: 0,
			E: ranges{{0, 10}},
		},
		{
			S: ranges{{0, 10}, {10, 20}, {30, 40}},
			L: 10,
			E: ranges{{0, 10}, {10, 20}, {30, 40}},
		},
		{
			S: ranges{{0, 10}, {10, 20}, {30, 40}},
			L: 6,
			E: ranges{{0, 6}, {6, 10}, {10, 16}, {16, 20}, {30, 36}, {36, 40}},
		},
	}

	for _, test := range table {
		if diff := cmp.Diff(test.S.split(test.L), test.E); diff != "" {
			t.Fatal(diff)
		}
	}
}

func TestRingRanges(t *testing.T) {
	t.Parallel()

	table := []struct {
		Name   string
		Tokens []int64
		E      ranges
	}{
		{
			Name: "empty",
		},
		{
			Name:   "single token",
			Tokens: []int64{100},
			E: ranges{
				{100, dht.Murmur3MaxToken},
				{dht.Murmur3MinToken, 100},
			},
		},
		{
			Name:   "unsorted with duplicates",
			Tokens: []int64{30, 10, 20, 10},
			E: ranges{
				{10, 20},
				{20, 30},
				{30, dht.Murmur3MaxToken},
				{dht.Murmur3MinToken, 10},
			},
		},
		{
			Name:   "extreme tokens",
			Tokens: []int64{dht.Murmur3MinToken, 0, dht.Murmur3MaxToken},
			E: ranges{
				{dht.Murmur3MinToken, 0},
				{0, dht.Murmur3MaxToken},
			},
		},
	}

	for i := range table {
		test := table[i]
		t.Run(test.Name, func(t *testing.T) {
			if diff := cmp.Diff(ringRanges(test.Tokens), test.E); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestPlanRanges(t *testing.T) {
	t.Parallel()

	t.Run("empty ring", func(t *testing.T) {
		if _, err := planRanges(nil, 10); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("target count respected", func(t *testing.T) {
		tokens := []int64{dht.Murmur3MinToken, 0}
		rr, err := planRanges(tokens, 16)
		if err != nil {
			t.Fatal(err)
		}
		if len(rr) < 16 {
			t.Fatal("expected at least 16 ranges, got", len(rr))
		}
		// continuous cover of [min, max)
		for i := 1; i < len(rr); i++ {
			if rr[i-1].EndToken != rr[i].StartToken && rr[i].StartToken != dht.Murmur3MinToken {
				t.Fatal("gap between ranges", rr[i-1], rr[i])
			}
		}
		var total uint64
		for _, r := range rr {
			total += rangeSize(r)
		}
		if total != rangeSize(node.TokenRange{StartToken: dht.Murmur3MinToken, EndToken: dht.Murmur3MaxToken}) {
			t.Fatal("ranges do not cover the ring")
		}
	})

	t.Run("natural ranges kept when enough", func(t *testing.T) {
		tokens := []int64{10, 20, 30}
		rr, err := planRanges(tokens, 2)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(rr, ringRanges(tokens)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestTopologyHash(t *testing.T) {
	t.Parallel()

	h0 := topologyHash([]int64{1, 2, 3})
	h1 := topologyHash([]int64{1, 2, 3})
	if h0 != h1 {
		t.Fatal("hash not stable")
	}
	if h0 == topologyHash([]int64{1, 2, 4}) {
		t.Fatal("hash collision on different rings")
	}
}

func TestNewRunSegments(t *testing.T) {
	t.Parallel()

	runID := mustRandomID(t)
	segments, err := newRunSegments(runID, ranges{{0, 10}, {10, 20}})
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 2 {
		t.Fatal("expected 2 segments")
	}
	for _, s := range segments {
		if s.RunID != runID {
			t.Fatal("wrong run id")
		}
		if s.State != SegmentStateNotStarted {
			t.Fatal("wrong state", s.State)
		}
	}
	if segments[0].ID == segments[1].ID {
		t.Fatal("duplicate segment ids")
	}
}
