// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
	"github.com/scylladb/go-set/strset"
)

// Service is the administrative surface of repairs. It manages repair units
// and registers repair runs, execution is the job of the Manager.
type Service struct {
	config   Config
	storage  Storage
	provider node.Provider
	admin    *node.CachedProvider
	logger   log.Logger
}

func NewService(config Config, storage Storage, provider node.Provider, logger log.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if storage == nil {
		return nil, service.ErrNilPtr
	}
	if provider == nil {
		return nil, service.ErrNilPtr
	}

	s := &Service{
		config:   config,
		storage:  storage,
		provider: provider,
		logger:   logger,
	}
	s.admin = node.NewCachedProvider(s.dialCluster)
	return s, nil
}

// dialCluster connects to any seed of the named cluster.
func (s *Service) dialCluster(ctx context.Context, clusterName string) (node.Proxy, error) {
	c, err := s.storage.GetCluster(ctx, clusterName)
	if err != nil {
		return nil, errors.Wrap(err, "load cluster")
	}
	return node.ConnectAny(ctx, s.provider, c.Seeds...)
}

// Close releases the cached cluster connections.
func (s *Service) Close() error {
	return s.admin.Close()
}

// PutUnit upserts a repair unit. The keyspace and tables are checked
// against the live cluster topology.
func (s *Service) PutUnit(ctx context.Context, u *Unit) error {
	if u == nil {
		return service.ErrNilPtr
	}
	if u.ID == uuid.Nil {
		var err error
		if u.ID, err = uuid.NewRandom(); err != nil {
			return errors.Wrap(err, "generate id")
		}
	}
	if err := u.Validate(); err != nil {
		return err
	}

	proxy, err := s.admin.Proxy(ctx, u.ClusterName)
	if err != nil {
		return errors.Wrap(err, "connect to cluster")
	}

	keyspaces, err := proxy.Keyspaces(ctx)
	if err != nil {
		return errors.Wrap(err, "list keyspaces")
	}
	if !strset.New(keyspaces...).Has(u.Keyspace) {
		return service.ErrValidate(errors.Errorf("keyspace %q not found", u.Keyspace))
	}

	if len(u.Tables) > 0 {
		tables, err := proxy.Tables(ctx, u.Keyspace)
		if err != nil {
			return errors.Wrap(err, "list tables")
		}
		if missing := strset.Difference(strset.New(u.Tables...), strset.New(tables...)); !missing.IsEmpty() {
			return service.ErrValidate(errors.Errorf("unknown tables %s", missing))
		}
	}

	return s.storage.PutUnit(ctx, u)
}

// GetUnit returns a repair unit of a cluster.
func (s *Service) GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*Unit, error) {
	return s.storage.GetUnit(ctx, clusterName, id)
}

// ListUnits returns the repair units of a cluster.
func (s *Service) ListUnits(ctx context.Context, clusterName string) ([]*Unit, error) {
	return s.storage.ListUnits(ctx, clusterName)
}

// RunOptions parametrize run registration. Zero values are replaced with
// defaults.
type RunOptions struct {
	Owner        string
	Cause        string
	SegmentCount int
	Parallelism  node.Parallelism
	Intensity    float64
}

// RegisterRun plans a new NOT_STARTED run of the unit, the run and its
// segments become durable before the run id is returned. The run is not
// started.
func (s *Service) RegisterRun(ctx context.Context, clusterName string, unitID uuid.UUID, opts RunOptions) (*Run, error) {
	u, err := s.storage.GetUnit(ctx, clusterName, unitID)
	if err != nil {
		return nil, errors.Wrap(err, "load unit")
	}

	if opts.SegmentCount == 0 {
		opts.SegmentCount = s.config.SegmentCount
	}
	if opts.Parallelism == "" {
		opts.Parallelism = node.ParallelismSequential
	}
	if opts.Intensity == 0 {
		opts.Intensity = 1
	}

	proxy, err := s.admin.Proxy(ctx, clusterName)
	if err != nil {
		return nil, errors.Wrap(err, "connect to cluster")
	}
	tokens, err := proxy.Tokens(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read ring tokens")
	}

	rr, err := planRanges(tokens, opts.SegmentCount)
	if err != nil {
		return nil, errors.Wrap(err, "plan segments")
	}
	s.logger.Debug(ctx, "Planned segments", "count", len(rr), "ranges", rr.dump())

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "generate id")
	}
	run := &Run{
		ID:           id,
		ClusterName:  clusterName,
		UnitID:       u.ID,
		State:        RunStateNotStarted,
		Parallelism:  opts.Parallelism,
		Intensity:    opts.Intensity,
		Owner:        opts.Owner,
		Cause:        opts.Cause,
		TopologyHash: topologyHash(tokens),
		SegmentCount: len(rr),
		CreationTime: timeNow(),
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}

	segments, err := newRunSegments(run.ID, rr)
	if err != nil {
		return nil, errors.Wrap(err, "create segments")
	}

	if err := s.storage.PutRun(ctx, run); err != nil {
		return nil, errors.Wrap(err, "save run")
	}
	if err := s.storage.PutSegments(ctx, run.ID, segments); err != nil {
		return nil, errors.Wrap(err, "save segments")
	}

	s.logger.Info(ctx, "Registered repair run",
		"run", run.ID,
		"cluster", clusterName,
		"unit", u.ID,
		"segments", run.SegmentCount,
		"owner", run.Owner,
	)
	return run, nil
}

// GetRun returns a run of a cluster.
func (s *Service) GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*Run, error) {
	return s.storage.GetRun(ctx, clusterName, id)
}

// ListRuns returns the runs of a cluster, latest first.
func (s *Service) ListRuns(ctx context.Context, clusterName string) ([]*Run, error) {
	return s.storage.ListRuns(ctx, clusterName)
}

// Progress reports the segment tally of a run.
func (s *Service) Progress(ctx context.Context, clusterName string, runID uuid.UUID) (Progress, error) {
	run, err := s.storage.GetRun(ctx, clusterName, runID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "load run")
	}
	segments, err := s.storage.ListSegments(ctx, runID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "list segments")
	}
	return aggregateProgress(run, segments), nil
}
