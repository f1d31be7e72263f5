// Copyright (C) 2017 ScyllaDB

package storage

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/schedule"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

// MemStore is an in-memory Store. Records are copied on the way in and out,
// a caller can never reach the stored state through a returned pointer.
type MemStore struct {
	mu        sync.RWMutex
	clusters  map[string]cluster.Cluster
	units     map[uuid.UUID]repair.Unit
	runs      map[uuid.UUID]repair.Run
	segments  map[uuid.UUID][]repair.Segment
	schedules map[uuid.UUID]schedule.Schedule
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		clusters:  make(map[string]cluster.Cluster),
		units:     make(map[uuid.UUID]repair.Unit),
		runs:      make(map[uuid.UUID]repair.Run),
		segments:  make(map[uuid.UUID][]repair.Segment),
		schedules: make(map[uuid.UUID]schedule.Schedule),
	}
}

// Close implements Store, a MemStore holds no resources.
func (s *MemStore) Close() error {
	return nil
}

func cloneStrings(v []string) []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

func cloneIDs(v []uuid.UUID) []uuid.UUID {
	if v == nil {
		return nil
	}
	out := make([]uuid.UUID, len(v))
	copy(out, v)
	return out
}

func sortByID[T any](v []*T, id func(*T) uuid.UUID) {
	sort.Slice(v, func(i, j int) bool {
		return bytes.Compare(id(v[i]).Bytes(), id(v[j]).Bytes()) < 0
	})
}

func (s *MemStore) PutCluster(ctx context.Context, c *cluster.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *c
	v.Seeds = cloneStrings(c.Seeds)
	s.clusters[c.Name] = v
	return nil
}

func (s *MemStore) GetCluster(ctx context.Context, name string) (*cluster.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clusters[name]
	if !ok {
		return nil, service.ErrNotFound
	}
	c.Seeds = cloneStrings(c.Seeds)
	return &c, nil
}

func (s *MemStore) ListClusters(ctx context.Context) ([]*cluster.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*cluster.Cluster, 0, len(s.clusters))
	for _, c := range s.clusters {
		c := c
		c.Seeds = cloneStrings(c.Seeds)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) DeleteCluster(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clusters[name]; !ok {
		return service.ErrNotFound
	}
	delete(s.clusters, name)
	return nil
}

func (s *MemStore) PutUnit(ctx context.Context, u *repair.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *u
	v.Tables = cloneStrings(u.Tables)
	s.units[u.ID] = v
	return nil
}

func (s *MemStore) GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok || u.ClusterName != clusterName {
		return nil, service.ErrNotFound
	}
	u.Tables = cloneStrings(u.Tables)
	return &u, nil
}

func (s *MemStore) ListUnits(ctx context.Context, clusterName string) ([]*repair.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*repair.Unit
	for _, u := range s.units {
		if u.ClusterName != clusterName {
			continue
		}
		u := u
		u.Tables = cloneStrings(u.Tables)
		out = append(out, &u)
	}
	sortByID(out, func(u *repair.Unit) uuid.UUID { return u.ID })
	return out, nil
}

func (s *MemStore) PutRun(ctx context.Context, r *repair.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = *r
	return nil
}

func (s *MemStore) GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok || r.ClusterName != clusterName {
		return nil, service.ErrNotFound
	}
	return &r, nil
}

func (s *MemStore) ListRuns(ctx context.Context, clusterName string) ([]*repair.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRuns(func(r *repair.Run) bool {
		return r.ClusterName == clusterName
	}), nil
}

func (s *MemStore) ListRunsForUnit(ctx context.Context, clusterName string, unitID uuid.UUID) ([]*repair.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRuns(func(r *repair.Run) bool {
		return r.ClusterName == clusterName && r.UnitID == unitID
	}), nil
}

func (s *MemStore) ListRunsWithState(ctx context.Context, state repair.RunState) ([]*repair.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRuns(func(r *repair.Run) bool {
		return r.State == state
	}), nil
}

// listRuns returns matching runs newest first. Callers hold the lock.
func (s *MemStore) listRuns(match func(*repair.Run) bool) []*repair.Run {
	var out []*repair.Run
	for _, r := range s.runs {
		r := r
		if match(&r) {
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreationTime.Equal(out[j].CreationTime) {
			return out[i].CreationTime.After(out[j].CreationTime)
		}
		return bytes.Compare(out[i].ID.Bytes(), out[j].ID.Bytes()) < 0
	})
	return out
}

func (s *MemStore) PutSegments(ctx context.Context, runID uuid.UUID, segments []*repair.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]repair.Segment, len(segments))
	for i, seg := range segments {
		v[i] = *seg
	}
	sort.Slice(v, func(i, j int) bool { return v[i].StartToken < v[j].StartToken })
	s.segments[runID] = v
	return nil
}

func (s *MemStore) UpdateSegment(ctx context.Context, seg *repair.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.segments[seg.RunID]
	for i := range v {
		if v[i].ID == seg.ID {
			v[i] = *seg
			return nil
		}
	}
	return service.ErrNotFound
}

func (s *MemStore) GetSegment(ctx context.Context, runID, id uuid.UUID) (*repair.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, seg := range s.segments[runID] {
		if seg.ID == id {
			seg := seg
			return &seg, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s *MemStore) ListSegments(ctx context.Context, runID uuid.UUID) ([]*repair.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := s.segments[runID]
	out := make([]*repair.Segment, len(v))
	for i := range v {
		seg := v[i]
		out[i] = &seg
	}
	return out, nil
}

func (s *MemStore) NextFreeSegment(ctx context.Context, runID uuid.UUID, afterToken *int64) (*repair.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var wrap *repair.Segment
	for _, seg := range s.segments[runID] {
		if seg.State != repair.SegmentStateNotStarted {
			continue
		}
		seg := seg
		if wrap == nil {
			wrap = &seg
		}
		if afterToken == nil || seg.StartToken > *afterToken {
			return &seg, nil
		}
	}
	if wrap == nil {
		return nil, service.ErrNotFound
	}
	return wrap, nil
}

func (s *MemStore) PutSchedule(ctx context.Context, sched *schedule.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := *sched
	v.RunHistory = cloneIDs(sched.RunHistory)
	s.schedules[sched.ID] = v
	return nil
}

func (s *MemStore) GetSchedule(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sched, ok := s.schedules[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	sched.RunHistory = cloneIDs(sched.RunHistory)
	return &sched, nil
}

func (s *MemStore) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schedule.Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		sched := sched
		sched.RunHistory = cloneIDs(sched.RunHistory)
		out = append(out, &sched)
	}
	sortByID(out, func(sched *schedule.Schedule) uuid.UUID { return sched.ID })
	return out, nil
}

func (s *MemStore) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[id]; !ok {
		return service.ErrNotFound
	}
	delete(s.schedules, id)
	return nil
}
