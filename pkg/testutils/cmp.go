// Copyright (C) 2017 ScyllaDB

package testutils

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

// UUIDComparer creates a cmp.Comparer for comparing two uuid.UUID's.
func UUIDComparer() cmp.Option {
	return cmp.Comparer(func(a, b uuid.UUID) bool { return a == b })
}

// NearTimeComparer creates a cmp.Comparer for comparing time.Time values
// that are within a threshold duration, timestamps read back from the
// database lose sub-millisecond precision.
func NearTimeComparer(d time.Duration) cmp.Option {
	return cmp.Comparer(func(a, b time.Time) bool {
		if a.Before(b) {
			return b.Sub(a) < d
		}
		return a.Sub(b) < d
	})
}
