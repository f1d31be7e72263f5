// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"context"

	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

// Storage is the persistence interface the scheduling manager consumes.
// Missing records surface as service.ErrNotFound.
type Storage interface {
	// PutSchedule creates or replaces a schedule keyed by id.
	PutSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)
	ListSchedules(ctx context.Context) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	// ListRunsForUnit tells the manager about runs already going on for a
	// unit it is about to activate.
	ListRunsForUnit(ctx context.Context, clusterName string, unitID uuid.UUID) ([]*repair.Run, error)
}
