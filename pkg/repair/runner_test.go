// Copyright (C) 2017 ScyllaDB

package repair

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
)

func newTestRunner(store *testStore, c *testCluster, seg Segment, timeout time.Duration) *SegmentRunner {
	return &SegmentRunner{
		storage:     store,
		provider:    c,
		topology:    c,
		registry:    newRunnerRegistry(),
		segment:     seg,
		keyspace:    "test_keyspace",
		tables:      []string{"test_table"},
		parallelism: node.ParallelismSequential,
		clusterName: c.name,
		timeout:     timeout,
		events:      make(chan node.Event, notifyBuffer),
		logger:      log.NewDevelopment(),
	}
}

func putTestSegment(t *testing.T, store *testStore, runID uuid.UUID, seg Segment) {
	t.Helper()
	if err := store.PutSegments(context.Background(), runID, []*Segment{&seg}); err != nil {
		t.Fatal(err)
	}
}

func awaitTrigger(t *testing.T, c *testCluster) *testTrigger {
	t.Helper()
	select {
	case tr := <-c.triggered:
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for repair trigger")
		return nil
	}
}

func runAsync(r *SegmentRunner) chan attemptResult {
	out := make(chan attemptResult, 1)
	go func() {
		out <- r.Run(context.Background())
	}()
	return out
}

func awaitResult(t *testing.T, out chan attemptResult) attemptResult {
	t.Helper()
	select {
	case v := <-out:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for attempt result")
		return attemptResult{}
	}
}

func TestSegmentRunnerRepair(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1", "h2"}, nil)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{ID: mustRandomID(t), RunID: runID, StartToken: 0, EndToken: 100, State: SegmentStateNotStarted}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 5*time.Second)
	out := runAsync(r)

	tr := awaitTrigger(t, c)
	if diff := cmp.Diff(tr.r, node.TokenRange{StartToken: 0, EndToken: 100}); diff != "" {
		t.Fatal("wrong range triggered", diff)
	}
	tr.fire(node.CommandStarted)
	tr.fire(node.CommandSessionSuccess)
	tr.fire(node.CommandFinished)

	v := awaitResult(t, out)
	if v.outcome != attemptDone {
		t.Fatalf("outcome %v, expected done", v.outcome)
	}

	got, err := store.GetSegment(context.Background(), runID, seg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != SegmentStateDone {
		t.Fatal("segment state", got.State)
	}
	if got.CommandID != tr.commandID {
		t.Fatal("command id", got.CommandID)
	}
	if got.StartTime.IsZero() || got.EndTime.IsZero() {
		t.Fatal("missing timestamps", got.StartTime, got.EndTime)
	}
}

func TestSegmentRunnerTimeout(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1"}, nil)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{ID: mustRandomID(t), RunID: runID, StartToken: 0, EndToken: 100, State: SegmentStateNotStarted}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 30*time.Millisecond)
	out := runAsync(r)

	tr := awaitTrigger(t, c)
	tr.fire(node.CommandStarted)
	// no more notifications, the attempt must hang until the timeout

	v := awaitResult(t, out)
	if v.outcome != attemptRequeued {
		t.Fatalf("outcome %v, expected requeued", v.outcome)
	}
	if v.avoidHost != tr.host {
		t.Fatal("avoid host", v.avoidHost)
	}

	got, err := store.GetSegment(context.Background(), runID, seg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != SegmentStateNotStarted {
		t.Fatal("segment state", got.State)
	}
	if got.CommandID != 0 || got.CoordinatorHost != "" || !got.StartTime.IsZero() {
		t.Fatalf("attempt bookkeeping not cleared: %+v", got)
	}
	if got.FailCount != 1 {
		t.Fatal("fail count", got.FailCount)
	}
}

func TestSegmentRunnerStaleNotificationsIgnored(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1"}, nil)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{ID: mustRandomID(t), RunID: runID, StartToken: 0, EndToken: 100, State: SegmentStateNotStarted}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 5*time.Second)
	out := runAsync(r)

	tr := awaitTrigger(t, c)
	// a notification of an older command must not complete the segment
	tr.handler(node.Event{CommandID: tr.commandID + 100, Status: node.CommandFinished})
	tr.fire(node.CommandStarted)
	tr.fire(node.CommandFinished)

	v := awaitResult(t, out)
	if v.outcome != attemptDone {
		t.Fatalf("outcome %v, expected done", v.outcome)
	}
}

func TestSegmentRunnerExclusive(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1"}, nil)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{ID: mustRandomID(t), RunID: runID, StartToken: 0, EndToken: 100, State: SegmentStateNotStarted}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 5*time.Second)
	if !r.registry.tryAcquire(seg.ID, nil) {
		t.Fatal("acquire failed")
	}

	v := r.Run(context.Background())
	if v.outcome != attemptDeferred {
		t.Fatalf("outcome %v, expected deferred", v.outcome)
	}
	if c.triggerCount() != 0 {
		t.Fatal("repair triggered despite active runner")
	}
}

func TestSegmentRunnerNoReachableHost(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1", "h2"}, nil)
	c.setDown("h1", true)
	c.setDown("h2", true)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{ID: mustRandomID(t), RunID: runID, StartToken: 0, EndToken: 100, State: SegmentStateNotStarted}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 5*time.Second)
	v := r.Run(context.Background())
	if v.outcome != attemptDeferred {
		t.Fatalf("outcome %v, expected deferred", v.outcome)
	}

	got, err := store.GetSegment(context.Background(), runID, seg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != SegmentStateNotStarted || got.FailCount != 0 {
		t.Fatalf("segment touched: %+v", got)
	}
}

func TestSegmentRunnerAdopt(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1", "h2"}, nil)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{
		ID:              mustRandomID(t),
		RunID:           runID,
		StartToken:      0,
		EndToken:        100,
		State:           SegmentStateRunning,
		CommandID:       1337,
		CoordinatorHost: "h2",
		StartTime:       timeNow(),
	}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 5*time.Second)
	r.attach = true
	// notifications queue up in the runner until the event loop starts
	r.handleEvent(node.Event{CommandID: 1337, Status: node.CommandFinished})
	out := runAsync(r)

	v := awaitResult(t, out)
	if v.outcome != attemptDone {
		t.Fatalf("outcome %v, expected done", v.outcome)
	}
	if c.triggerCount() != 0 {
		t.Fatal("adopted repair was triggered again")
	}

	got, err := store.GetSegment(context.Background(), runID, seg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != SegmentStateDone {
		t.Fatal("segment state", got.State)
	}
	if got.CommandID != 1337 || got.CoordinatorHost != "h2" {
		t.Fatalf("adopted attempt rewritten: %+v", got)
	}
}

func TestSegmentRunnerAdoptCoordinatorGone(t *testing.T) {
	t.Parallel()

	c := newTestCluster("test_cluster", []string{"h1", "h2"}, nil)
	c.setDown("h2", true)
	store := newTestStore()
	runID := mustRandomID(t)
	seg := Segment{
		ID:              mustRandomID(t),
		RunID:           runID,
		StartToken:      0,
		EndToken:        100,
		State:           SegmentStateRunning,
		CommandID:       1337,
		CoordinatorHost: "h2",
		StartTime:       timeNow(),
	}
	putTestSegment(t, store, runID, seg)

	r := newTestRunner(store, c, seg, 5*time.Second)
	r.attach = true
	v := r.Run(context.Background())
	if v.outcome != attemptRequeued {
		t.Fatalf("outcome %v, expected requeued", v.outcome)
	}
	if v.avoidHost != "h2" {
		t.Fatal("avoid host", v.avoidHost)
	}

	got, err := store.GetSegment(context.Background(), runID, seg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != SegmentStateNotStarted || got.FailCount != 1 {
		t.Fatalf("segment not requeued: %+v", got)
	}
}

func TestPreferOtherHost(t *testing.T) {
	t.Parallel()

	table := []struct {
		N string
		H []string
		A string
		E []string
	}{
		{
			N: "no avoid",
			H: []string{"h1", "h2"},
			E: []string{"h1", "h2"},
		},
		{
			N: "avoid moved to the end",
			H: []string{"h1", "h2", "h3"},
			A: "h1",
			E: []string{"h2", "h3", "h1"},
		},
		{
			N: "single host kept",
			H: []string{"h1"},
			A: "h1",
			E: []string{"h1"},
		},
		{
			N: "avoid not a candidate",
			H: []string{"h1", "h2"},
			A: "h9",
			E: []string{"h1", "h2"},
		},
	}

	for i, test := range table {
		if diff := cmp.Diff(preferOtherHost(test.H, test.A), test.E); diff != "" {
			t.Error(i, test.N, diff)
		}
	}
}
