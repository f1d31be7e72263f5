// Copyright (C) 2017 ScyllaDB

// Package storage persists clusters, repair units, runs, segments and
// schedules. The consumer packages declare the interfaces they depend on,
// the implementations here satisfy them all. Writes replace whole records
// keyed by id, last writer wins. Missing records surface as
// service.ErrNotFound.
package storage

import (
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/schedule"
)

// Store is the union of the storage interfaces the services consume, it is
// what the server wires in.
type Store interface {
	cluster.Storage
	repair.Storage
	schedule.Storage

	// Close releases the underlying resources.
	Close() error
}
