// Copyright (C) 2017 ScyllaDB

package uuid

import "bytes"

// Compare returns an integer comparing two UUIDs. For time based UUIDs returns
// a result of comparing timestamps. The result will be 0 if a==b, -1 if a < b,
// and +1 if a > b.
func Compare(a, b UUID) int {
	at := a.Timestamp()
	bt := b.Timestamp()
	if at != 0 && bt != 0 {
		switch {
		case at == bt:
			return 0
		case at < bt:
			return -1
		default:
			return 1
		}
	}

	return bytes.Compare(a.Bytes(), b.Bytes())
}
