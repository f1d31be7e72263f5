// Copyright (C) 2017 ScyllaDB

package storage

import (
	"bytes"
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/schedule"
	"github.com/reaperd/reaperd/pkg/schema/table"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/gocqlx/v2"
	"github.com/scylladb/gocqlx/v2/qb"
)

// CQLStore is a Store backed by a cluster database keyspace. Records map to
// tables one to one, writes are upserts so the last writer wins.
type CQLStore struct {
	session gocqlx.Session
}

var _ Store = (*CQLStore)(nil)

func NewCQLStore(session gocqlx.Session) (*CQLStore, error) {
	if session.Session == nil || session.Closed() {
		return nil, errors.New("invalid session")
	}
	return &CQLStore{session: session}, nil
}

// Close closes the underlying session.
func (s *CQLStore) Close() error {
	s.session.Close()
	return nil
}

func (s *CQLStore) PutCluster(ctx context.Context, c *cluster.Cluster) error {
	return table.Cluster.InsertQuery(s.session).BindStruct(c).ExecRelease()
}

func (s *CQLStore) GetCluster(ctx context.Context, name string) (*cluster.Cluster, error) {
	var c cluster.Cluster
	q := table.Cluster.GetQuery(s.session).BindMap(qb.M{"name": name})
	if err := q.GetRelease(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CQLStore) ListClusters(ctx context.Context) ([]*cluster.Cluster, error) {
	var clusters []*cluster.Cluster
	q := qb.Select(table.Cluster.Name()).Query(s.session)
	if err := q.SelectRelease(&clusters); err != nil {
		return nil, err
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters, nil
}

func (s *CQLStore) DeleteCluster(ctx context.Context, name string) error {
	if _, err := s.GetCluster(ctx, name); err != nil {
		return err
	}
	return table.Cluster.DeleteQuery(s.session).BindMap(qb.M{"name": name}).ExecRelease()
}

func (s *CQLStore) PutUnit(ctx context.Context, u *repair.Unit) error {
	return table.RepairUnit.InsertQuery(s.session).BindStruct(u).ExecRelease()
}

func (s *CQLStore) GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Unit, error) {
	var u repair.Unit
	q := table.RepairUnit.GetQuery(s.session).BindMap(qb.M{
		"cluster_name": clusterName,
		"id":           id,
	})
	if err := q.GetRelease(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *CQLStore) ListUnits(ctx context.Context, clusterName string) ([]*repair.Unit, error) {
	var units []*repair.Unit
	q := table.RepairUnit.SelectQuery(s.session).BindMap(qb.M{"cluster_name": clusterName})
	if err := q.SelectRelease(&units); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *CQLStore) PutRun(ctx context.Context, r *repair.Run) error {
	return table.RepairRun.InsertQuery(s.session).BindStruct(r).ExecRelease()
}

func (s *CQLStore) GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Run, error) {
	var r repair.Run
	q := table.RepairRun.GetQuery(s.session).BindMap(qb.M{
		"cluster_name": clusterName,
		"id":           id,
	})
	if err := q.GetRelease(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *CQLStore) ListRuns(ctx context.Context, clusterName string) ([]*repair.Run, error) {
	var runs []*repair.Run
	q := table.RepairRun.SelectQuery(s.session).BindMap(qb.M{"cluster_name": clusterName})
	if err := q.SelectRelease(&runs); err != nil {
		return nil, err
	}
	sortRuns(runs)
	return runs, nil
}

func (s *CQLStore) ListRunsForUnit(ctx context.Context, clusterName string, unitID uuid.UUID) ([]*repair.Run, error) {
	runs, err := s.ListRuns(ctx, clusterName)
	if err != nil {
		return nil, err
	}
	filtered := runs[:0]
	for _, r := range runs {
		if r.UnitID == unitID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// ListRunsWithState scans the whole run table, it is meant for the one off
// resume at startup.
func (s *CQLStore) ListRunsWithState(ctx context.Context, state repair.RunState) ([]*repair.Run, error) {
	var runs []*repair.Run
	q := qb.Select(table.RepairRun.Name()).Query(s.session)
	if err := q.SelectRelease(&runs); err != nil {
		return nil, err
	}
	filtered := runs[:0]
	for _, r := range runs {
		if r.State == state {
			filtered = append(filtered, r)
		}
	}
	sortRuns(filtered)
	return filtered, nil
}

// sortRuns orders runs newest first.
func sortRuns(runs []*repair.Run) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreationTime.Equal(runs[j].CreationTime) {
			return runs[i].CreationTime.After(runs[j].CreationTime)
		}
		return bytes.Compare(runs[i].ID.Bytes(), runs[j].ID.Bytes()) < 0
	})
}

func (s *CQLStore) PutSegments(ctx context.Context, runID uuid.UUID, segments []*repair.Segment) error {
	q := table.RepairSegment.InsertQuery(s.session)
	defer q.Release()
	for _, seg := range segments {
		if err := q.BindStruct(seg).Exec(); err != nil {
			return errors.Wrapf(err, "save segment %s", seg.ID)
		}
	}
	return nil
}

func (s *CQLStore) UpdateSegment(ctx context.Context, seg *repair.Segment) error {
	return table.RepairSegment.InsertQuery(s.session).BindStruct(seg).ExecRelease()
}

func (s *CQLStore) GetSegment(ctx context.Context, runID, id uuid.UUID) (*repair.Segment, error) {
	segments, err := s.ListSegments(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, seg := range segments {
		if seg.ID == id {
			return seg, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s *CQLStore) ListSegments(ctx context.Context, runID uuid.UUID) ([]*repair.Segment, error) {
	var segments []*repair.Segment
	q := table.RepairSegment.SelectQuery(s.session).BindMap(qb.M{"run_id": runID})
	if err := q.SelectRelease(&segments); err != nil {
		return nil, err
	}
	return segments, nil
}

func (s *CQLStore) NextFreeSegment(ctx context.Context, runID uuid.UUID, afterToken *int64) (*repair.Segment, error) {
	// segments after the cursor in clustering order
	if afterToken != nil {
		stmt, names := table.RepairSegment.SelectBuilder().Where(qb.Gt("start_token")).ToCql()
		q := s.session.Query(stmt, names).BindMap(qb.M{
			"run_id":      runID,
			"start_token": *afterToken,
		})
		seg, err := firstFreeSegment(q)
		if err == nil || !errors.Is(err, service.ErrNotFound) {
			return seg, err
		}
	}

	// wrap to the ring start
	return firstFreeSegment(table.RepairSegment.SelectQuery(s.session).BindMap(qb.M{"run_id": runID}))
}

// firstFreeSegment walks rows in clustering order and returns the first
// NOT_STARTED segment.
func firstFreeSegment(q *gocqlx.Queryx) (*repair.Segment, error) {
	defer q.Release()
	iter := q.Iter()
	var seg repair.Segment
	for iter.StructScan(&seg) {
		if seg.State == repair.SegmentStateNotStarted {
			v := seg
			if err := iter.Close(); err != nil {
				return nil, err
			}
			return &v, nil
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return nil, service.ErrNotFound
}

func (s *CQLStore) PutSchedule(ctx context.Context, sched *schedule.Schedule) error {
	return table.RepairSchedule.InsertQuery(s.session).BindStruct(sched).ExecRelease()
}

func (s *CQLStore) GetSchedule(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	var sched schedule.Schedule
	q := table.RepairSchedule.GetQuery(s.session).BindMap(qb.M{"id": id})
	if err := q.GetRelease(&sched); err != nil {
		return nil, err
	}
	return &sched, nil
}

func (s *CQLStore) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	var schedules []*schedule.Schedule
	q := qb.Select(table.RepairSchedule.Name()).Query(s.session)
	if err := q.SelectRelease(&schedules); err != nil {
		return nil, err
	}
	sort.Slice(schedules, func(i, j int) bool {
		return bytes.Compare(schedules[i].ID.Bytes(), schedules[j].ID.Bytes()) < 0
	})
	return schedules, nil
}

func (s *CQLStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetSchedule(ctx, id); err != nil {
		return err
	}
	return table.RepairSchedule.DeleteQuery(s.session).BindMap(qb.M{"id": id}).ExecRelease()
}
