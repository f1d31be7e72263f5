// Copyright (C) 2017 ScyllaDB

package restapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/schedule"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

func givenCluster() *cluster.Cluster {
	return &cluster.Cluster{
		Name:        "test_cluster",
		Partitioner: "org.apache.cassandra.dht.Murmur3Partitioner",
		Seeds:       []string{"192.168.100.11"},
	}
}

func jsonBody(t testing.TB, v interface{}) *bytes.Reader {
	t.Helper()

	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(b)
}

func assertJsonBody(t testing.TB, w *httptest.ResponseRecorder, expected interface{}) {
	t.Helper()

	b, err := json.Marshal(expected)
	if err != nil {
		t.Fatal(err)
	}

	actual := strings.TrimSpace(w.Body.String())

	if diff := cmp.Diff(actual, string(b)); diff != "" {
		t.Fatal(diff)
	}
}

// Service mocks, a nil function field means the call is unexpected.

type clusterServiceMock struct {
	addCluster    func(ctx context.Context, seedHost string) (*cluster.Cluster, error)
	getCluster    func(ctx context.Context, name string) (*cluster.Cluster, error)
	listClusters  func(ctx context.Context) ([]*cluster.Cluster, error)
	removeCluster func(ctx context.Context, name string) error
	describe      func(ctx context.Context, name string) (*cluster.Description, error)
	keyspace      func(ctx context.Context, clusterName, keyspace string) ([]string, error)
}

func (m clusterServiceMock) AddCluster(ctx context.Context, seedHost string) (*cluster.Cluster, error) {
	if m.addCluster == nil {
		panic("unexpected AddCluster")
	}
	return m.addCluster(ctx, seedHost)
}

func (m clusterServiceMock) GetCluster(ctx context.Context, name string) (*cluster.Cluster, error) {
	if m.getCluster == nil {
		panic("unexpected GetCluster")
	}
	return m.getCluster(ctx, name)
}

func (m clusterServiceMock) ListClusters(ctx context.Context) ([]*cluster.Cluster, error) {
	if m.listClusters == nil {
		panic("unexpected ListClusters")
	}
	return m.listClusters(ctx)
}

func (m clusterServiceMock) RemoveCluster(ctx context.Context, name string) error {
	if m.removeCluster == nil {
		panic("unexpected RemoveCluster")
	}
	return m.removeCluster(ctx, name)
}

func (m clusterServiceMock) Describe(ctx context.Context, name string) (*cluster.Description, error) {
	if m.describe == nil {
		panic("unexpected Describe")
	}
	return m.describe(ctx, name)
}

func (m clusterServiceMock) Keyspace(ctx context.Context, clusterName, keyspace string) ([]string, error) {
	if m.keyspace == nil {
		panic("unexpected Keyspace")
	}
	return m.keyspace(ctx, clusterName, keyspace)
}

type repairServiceMock struct {
	putUnit     func(ctx context.Context, u *repair.Unit) error
	getUnit     func(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Unit, error)
	listUnits   func(ctx context.Context, clusterName string) ([]*repair.Unit, error)
	registerRun func(ctx context.Context, clusterName string, unitID uuid.UUID, opts repair.RunOptions) (*repair.Run, error)
	getRun      func(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Run, error)
	listRuns    func(ctx context.Context, clusterName string) ([]*repair.Run, error)
	progress    func(ctx context.Context, clusterName string, runID uuid.UUID) (repair.Progress, error)
}

func (m repairServiceMock) PutUnit(ctx context.Context, u *repair.Unit) error {
	if m.putUnit == nil {
		panic("unexpected PutUnit")
	}
	return m.putUnit(ctx, u)
}

func (m repairServiceMock) GetUnit(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Unit, error) {
	if m.getUnit == nil {
		panic("unexpected GetUnit")
	}
	return m.getUnit(ctx, clusterName, id)
}

func (m repairServiceMock) ListUnits(ctx context.Context, clusterName string) ([]*repair.Unit, error) {
	if m.listUnits == nil {
		panic("unexpected ListUnits")
	}
	return m.listUnits(ctx, clusterName)
}

func (m repairServiceMock) RegisterRun(ctx context.Context, clusterName string, unitID uuid.UUID, opts repair.RunOptions) (*repair.Run, error) {
	if m.registerRun == nil {
		panic("unexpected RegisterRun")
	}
	return m.registerRun(ctx, clusterName, unitID, opts)
}

func (m repairServiceMock) GetRun(ctx context.Context, clusterName string, id uuid.UUID) (*repair.Run, error) {
	if m.getRun == nil {
		panic("unexpected GetRun")
	}
	return m.getRun(ctx, clusterName, id)
}

func (m repairServiceMock) ListRuns(ctx context.Context, clusterName string) ([]*repair.Run, error) {
	if m.listRuns == nil {
		panic("unexpected ListRuns")
	}
	return m.listRuns(ctx, clusterName)
}

func (m repairServiceMock) Progress(ctx context.Context, clusterName string, runID uuid.UUID) (repair.Progress, error) {
	if m.progress == nil {
		panic("unexpected Progress")
	}
	return m.progress(ctx, clusterName, runID)
}

type runnerMock struct {
	startRun func(ctx context.Context, clusterName string, runID uuid.UUID) (*repair.Run, error)
}

func (m runnerMock) StartRun(ctx context.Context, clusterName string, runID uuid.UUID) (*repair.Run, error) {
	if m.startRun == nil {
		panic("unexpected StartRun")
	}
	return m.startRun(ctx, clusterName, runID)
}

type scheduleServiceMock struct {
	putSchedule    func(ctx context.Context, s *schedule.Schedule) error
	getSchedule    func(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
	listSchedules  func(ctx context.Context) ([]*schedule.Schedule, error)
	deleteSchedule func(ctx context.Context, id uuid.UUID) error
	pause          func(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
	resume         func(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error)
}

func (m scheduleServiceMock) PutSchedule(ctx context.Context, s *schedule.Schedule) error {
	if m.putSchedule == nil {
		panic("unexpected PutSchedule")
	}
	return m.putSchedule(ctx, s)
}

func (m scheduleServiceMock) GetSchedule(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	if m.getSchedule == nil {
		panic("unexpected GetSchedule")
	}
	return m.getSchedule(ctx, id)
}

func (m scheduleServiceMock) ListSchedules(ctx context.Context) ([]*schedule.Schedule, error) {
	if m.listSchedules == nil {
		panic("unexpected ListSchedules")
	}
	return m.listSchedules(ctx)
}

func (m scheduleServiceMock) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	if m.deleteSchedule == nil {
		panic("unexpected DeleteSchedule")
	}
	return m.deleteSchedule(ctx, id)
}

func (m scheduleServiceMock) Pause(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	if m.pause == nil {
		panic("unexpected Pause")
	}
	return m.pause(ctx, id)
}

func (m scheduleServiceMock) Resume(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	if m.resume == nil {
		panic("unexpected Resume")
	}
	return m.resume(ctx, id)
}
