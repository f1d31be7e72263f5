// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

func mustRandomID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewRandom()
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// testStore is an in-memory Storage for tests.
type testStore struct {
	mu       sync.Mutex
	clusters map[string]cluster.Cluster
	units    map[uuid.UUID]Unit
	runs     map[uuid.UUID]Run
	segments map[uuid.UUID][]Segment

	// onUpdateSegment intercepts segment writes when set.
	onUpdateSegment func(s *Segment) error
}

func newTestStore() *testStore {
	return &testStore{
		clusters: make(map[string]cluster.Cluster),
		units:    make(map[uuid.UUID]Unit),
		runs:     make(map[uuid.UUID]Run),
		segments: make(map[uuid.UUID][]Segment),
	}
}

func (s *testStore) GetCluster(ctx context.Context, name string) (*cluster.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clusters[name]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &c, nil
}

func (s *testStore) PutCluster(ctx context.Context, c *cluster.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[c.Name] = *c
	return nil
}

func (s *testStore) PutUnit(ctx context.Context, u *Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[u.ID] = *u
	return nil
}

func (s *testStore) GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok || u.ClusterName != clusterName {
		return nil, service.ErrNotFound
	}
	return &u, nil
}

func (s *testStore) ListUnits(ctx context.Context, clusterName string) ([]*Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Unit
	for id := range s.units {
		u := s.units[id]
		if u.ClusterName == clusterName {
			out = append(out, &u)
		}
	}
	return out, nil
}

func (s *testStore) PutRun(ctx context.Context, r *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = *r
	return nil
}

func (s *testStore) GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok || r.ClusterName != clusterName {
		return nil, service.ErrNotFound
	}
	return &r, nil
}

func (s *testStore) ListRuns(ctx context.Context, clusterName string) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Run
	for id := range s.runs {
		r := s.runs[id]
		if r.ClusterName == clusterName {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *testStore) ListRunsForUnit(ctx context.Context, clusterName string, unitID uuid.UUID) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Run
	for id := range s.runs {
		r := s.runs[id]
		if r.ClusterName == clusterName && r.UnitID == unitID {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *testStore) ListRunsWithState(ctx context.Context, state RunState) ([]*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Run
	for id := range s.runs {
		r := s.runs[id]
		if r.State == state {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (s *testStore) PutSegments(ctx context.Context, runID uuid.UUID, segments []*Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]Segment, len(segments))
	for i, seg := range segments {
		v[i] = *seg
	}
	sort.Slice(v, func(i, j int) bool { return v[i].StartToken < v[j].StartToken })
	s.segments[runID] = v
	return nil
}

func (s *testStore) UpdateSegment(ctx context.Context, seg *Segment) error {
	if s.onUpdateSegment != nil {
		if err := s.onUpdateSegment(seg); err != nil {
			return err
		}
	}
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

func (s *testStore) GetSegment(ctx context.Context, runID, id uuid.UUID) (*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seg := range s.segments[runID] {
		if seg.ID == id {
			seg := seg
			return &seg, nil
		}
	}
	return nil, service.ErrNotFound
}

func (s *testStore) ListSegments(ctx context.Context, runID uuid.UUID) ([]*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.segments[runID]
	out := make([]*Segment, len(v))
	for i := range v {
		seg := v[i]
		out[i] = &seg
	}
	return out, nil
}

func (s *testStore) NextFreeSegment(ctx context.Context, runID uuid.UUID, afterToken *int64) (*Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wrap *Segment
	for _, seg := range s.segments[runID] {
		if seg.State != SegmentStateNotStarted {
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

type testTrigger struct {
	host      string
	commandID int32
	r         node.TokenRange
	keyspace  string
	handler   node.StatusHandler
}

// fire sends a notification through the handler registered on the
// triggering connection.
func (t *testTrigger) fire(status node.CommandStatus) {
	t.handler(node.Event{CommandID: t.commandID, Status: status})
}

// testCluster fakes the node side of a cluster, connections from its
// provider record repair triggers so tests can drive notifications.
type testCluster struct {
	name      string
	hosts     []string
	tokens    []int64
	keyspaces map[string][]string

	mu         sync.Mutex
	nextID     int32
	triggers   []*testTrigger
	conns      []*testProxy
	down       map[string]bool
	triggerErr error
	dials      int
	triggered  chan *testTrigger
}

func newTestCluster(name string, hosts []string, tokens []int64) *testCluster {
	return &testCluster{
		name:      name,
		hosts:     hosts,
		tokens:    tokens,
		keyspaces: map[string][]string{"test_keyspace": {"test_table"}},
		down:      make(map[string]bool),
		triggered: make(chan *testTrigger, 128),
	}
}

func (c *testCluster) record() *cluster.Cluster {
	return &cluster.Cluster{
		Name:        c.name,
		Partitioner: "org.apache.cassandra.dht.Murmur3Partitioner",
		Seeds:       c.hosts,
	}
}

func (c *testCluster) setDown(host string, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.down[host] = down
}

// trigger registers a repair command and returns its id.
func (c *testCluster) trigger(host string, h node.StatusHandler, r node.TokenRange, keyspace string) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.triggerErr != nil {
		return 0, c.triggerErr
	}
	c.nextID++
	t := &testTrigger{
		host:      host,
		commandID: c.nextID,
		r:         r,
		keyspace:  keyspace,
		handler:   h,
	}
	c.triggers = append(c.triggers, t)
	select {
	case c.triggered <- t:
	default:
	}
	return t.commandID, nil
}

func (c *testCluster) triggerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.triggers)
}

// TokenRangeEndpoints makes testCluster a topology source on its own.
func (c *testCluster) TokenRangeEndpoints(ctx context.Context, keyspace string, r node.TokenRange) ([]string, error) {
	return c.hosts, nil
}

func (c *testCluster) Connect(ctx context.Context, host string) (node.Proxy, error) {
	return c.ConnectWithHandler(ctx, nil, host)
}

func (c *testCluster) ConnectWithHandler(ctx context.Context, handler node.StatusHandler, host string) (node.Proxy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dials++
	if c.down[host] {
		return nil, errors.Errorf("host %s down", host)
	}
	p := &testProxy{cluster: c, host: host, handler: handler, alive: true}
	c.conns = append(c.conns, p)
	return p, nil
}

// fireAll delivers a notification to every handler registered on host.
// Runners drop command ids that are not theirs so overdelivery is safe.
func (c *testCluster) fireAll(host string, ev node.Event) {
	c.mu.Lock()
	var handlers []node.StatusHandler
	for _, p := range c.conns {
		if p.host == host && p.handler != nil {
			handlers = append(handlers, p.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// testProxy is a fake node.Proxy bound to a testCluster host.
type testProxy struct {
	cluster *testCluster
	host    string
	handler node.StatusHandler
	alive   bool
}

func (p *testProxy) ClusterName(ctx context.Context) (string, error) {
	return p.cluster.name, nil
}

func (p *testProxy) Partitioner(ctx context.Context) (string, error) {
	return "org.apache.cassandra.dht.Murmur3Partitioner", nil
}

func (p *testProxy) Tokens(ctx context.Context) ([]int64, error) {
	return p.cluster.tokens, nil
}

func (p *testProxy) Keyspaces(ctx context.Context) ([]string, error) {
	var out []string
	for k := range p.cluster.keyspaces {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (p *testProxy) Tables(ctx context.Context, keyspace string) ([]string, error) {
	tables, ok := p.cluster.keyspaces[keyspace]
	if !ok {
		return nil, errors.Errorf("unknown keyspace %s", keyspace)
	}
	return tables, nil
}

func (p *testProxy) TokenRangeEndpoints(ctx context.Context, keyspace string, r node.TokenRange) ([]string, error) {
	return p.cluster.hosts, nil
}

func (p *testProxy) TriggerRepair(ctx context.Context, r node.TokenRange, keyspace string, pl node.Parallelism, tables []string) (int32, error) {
	return p.cluster.trigger(p.host, p.handler, r, keyspace)
}

func (p *testProxy) IsConnectionAlive() bool {
	return p.alive
}

func (p *testProxy) Close() error {
	return nil
}
