// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"context"

	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/schedule"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

// Services contains REST API services.
type Services struct {
	Cluster  ClusterService
	Repair   RepairService
	Runner   RepairRunner
	Schedule ScheduleService
}

// ClusterService service interface for the REST API handlers.
type ClusterService interface {
	AddCluster(ctx context.Context, seedHost string) (*cluster.Cluster, error)
	GetCluster(ctx context.Context, name string) (*cluster.Cluster, error)
	ListClusters(ctx context.Context) ([]*cluster.Cluster, error)
	RemoveCluster(ctx context.Context, name string) error
	Describe(ctx context.Context, name string) (*cluster.Description, error)
	Keyspace(ctx context.Context, clusterName, keyspace string) ([]string, error)
}

// RepairService service interface for the REST API handlers.
type RepairService interface {
	PutUnit(ctx context.Context, u *repair.Unit) error
	GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Unit, error)
	ListUnits(ctx context.Context, clusterName string) ([]*repair.Unit, error)
	RegisterRun(ctx context.Context, clusterName string, unitID uuid.UUID, opts repair.RunOptions) (*repair.Run, error)
	GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Run, error)
	ListRuns(ctx context.Context, clusterName string) ([]*repair.Run, error)
	Progress(ctx context.Context, clusterName string, runID uuid.UUID) (repair.Progress, error)
}

// RepairRunner starts registered runs.
type RepairRunner interface {
	StartRun(ctx context.Context, clusterName string, runID uuid.UUID) (*repair.Run, error)
}

// ScheduleService service interface for the REST API handlers.
type ScheduleService interface {
	PutSchedule(ctx context.Context, s *schedule.Schedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
	ListSchedules(ctx context.Context) ([]*schedule.Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	Pause(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
	Resume(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
}
