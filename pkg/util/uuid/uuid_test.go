// Copyright (C) 2017 ScyllaDB

package uuid

import (
	"encoding/binary"
	"testing"
)

func TestNewFromUint64(t *testing.T) {
	t.Parallel()

	l := uint64(11400714785074694791)&(uint64(0x0F)<<48) | (uint64(0x40) << 48)
	h := uint64(14029467366897019727)&uint64(0x3F) | uint64(0x80)
	u := NewFromUint64(l, h)

	if l != binary.LittleEndian.Uint64(u.UUID[0:8]) {
		t.Fatal("wrong lower bits")
	}
	if h != binary.LittleEndian.Uint64(u.UUID[8:16]) {
		t.Fatal("wrong higher bits")
	}
}

func TestParseRoundtrip(t *testing.T) {
	t.Parallel()

	u := MustRandom()
	v, err := Parse(u.String())
	if err != nil {
		t.Fatal(err)
	}
	if u != v {
		t.Fatal("parse mismatch", u, v)
	}
}

func TestUnmarshalCQLEmpty(t *testing.T) {
	t.Parallel()

	u := MustRandom()
	if err := u.UnmarshalCQL(nil, nil); err != nil {
		t.Fatal(err)
	}
	if u != Nil {
		t.Fatal("expected Nil uuid, got", u)
	}
}
