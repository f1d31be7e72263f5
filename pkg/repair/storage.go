// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"

	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

// Storage is the persistence interface the repair service and manager
// consume. Missing records surface as service.ErrNotFound.
type Storage interface {
	GetCluster(ctx context.Context, name string) (*cluster.Cluster, error)

	PutUnit(ctx context.Context, u *Unit) error
	GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*Unit, error)
	ListUnits(ctx context.Context, clusterName string) ([]*Unit, error)

	// PutRun creates or replaces a run keyed by id.
	PutRun(ctx context.Context, r *Run) error
	GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, clusterName string) ([]*Run, error)
	ListRunsForUnit(ctx context.Context, clusterName string, unitID uuid.UUID) ([]*Run, error)
	ListRunsWithState(ctx context.Context, state RunState) ([]*Run, error)

	// PutSegments creates the segments of a run in bulk.
	PutSegments(ctx context.Context, runID uuid.UUID, segments []*Segment) error
	// UpdateSegment replaces a single segment keyed by id.
	UpdateSegment(ctx context.Context, s *Segment) error
	GetSegment(ctx context.Context, runID, id uuid.UUID) (*Segment, error)
	// ListSegments returns all the segments of a run in ring order.
	ListSegments(ctx context.Context, runID uuid.UUID) ([]*Segment, error)
	// NextFreeSegment returns the first NOT_STARTED segment of a run in
	// ring order after the cursor token, wrapping to the ring start. Nil
	// cursor means the lowest token free segment. service.ErrNotFound is
	// returned when there is no free segment.
	NextFreeSegment(ctx context.Context, runID uuid.UUID, afterToken *int64) (*Segment, error)
}
