// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/timeutc"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
)

func newTestService(t *testing.T, store *fakeStore) *Service {
	t.Helper()
	s, err := NewService(store, log.NewDevelopment())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestServicePutScheduleDefaults(t *testing.T) {
	defer func(old func() time.Time) { timeNow = old }(timeNow)
	now := timeutc.Now()
	timeNow = func() time.Time { return now }

	store := newFakeStore()
	s := newTestService(t, store)

	sched := &Schedule{
		ClusterName: "test_cluster",
		UnitID:      uuid.MustRandom(),
		Owner:       "tester",
		Period:      24 * time.Hour,
	}
	if err := s.PutSchedule(context.Background(), sched); err != nil {
		t.Fatal(err)
	}

	if sched.ID == uuid.Nil {
		t.Fatal("id not assigned")
	}
	if sched.State != StateRunning {
		t.Fatal("state", sched.State)
	}
	if sched.Parallelism != node.ParallelismSequential {
		t.Fatal("parallelism", sched.Parallelism)
	}
	if sched.Intensity != 1 {
		t.Fatal("intensity", sched.Intensity)
	}
	if !sched.CreationTime.Equal(now) {
		t.Fatal("creation time", sched.CreationTime)
	}
	if golden := now.Add(24 * time.Hour); !sched.NextActivation.Equal(golden) {
		t.Fatalf("next activation %s, expected %s", sched.NextActivation, golden)
	}

	v, err := store.GetSchedule(context.Background(), sched.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(*sched, *v); diff != "" {
		t.Fatal("stored schedule differs", diff)
	}
}

func TestServicePutScheduleKeepsActivation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := newTestService(t, store)

	next := timeutc.Now().Add(time.Hour)
	sched := validSchedule(t)
	sched.NextActivation = next
	if err := s.PutSchedule(context.Background(), &sched); err != nil {
		t.Fatal(err)
	}
	if !sched.NextActivation.Equal(next) {
		t.Fatal("explicit activation overwritten", sched.NextActivation)
	}
}

func TestServicePutScheduleValidates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := newTestService(t, store)

	sched := validSchedule(t)
	sched.CronExpression = "0 4 * * *" // period is set too
	err := s.PutSchedule(context.Background(), &sched)
	if !service.IsErrValidate(err) {
		t.Fatal("expected validation error, got", err)
	}
	if len(store.order) != 0 {
		t.Fatal("invalid schedule stored")
	}
}

func TestServicePauseResume(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := newTestService(t, store)

	sched := validSchedule(t)
	putFakeSchedule(t, store, sched)

	p, err := s.Pause(context.Background(), sched.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.State != StatePaused {
		t.Fatal("state", p.State)
	}
	if p.PauseTime.IsZero() {
		t.Fatal("pause time not set")
	}
	v, _ := store.GetSchedule(context.Background(), sched.ID)
	if v.State != StatePaused {
		t.Fatal("pause not persisted")
	}

	// pausing again is a no-op
	p2, err := s.Pause(context.Background(), sched.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !p2.PauseTime.Equal(p.PauseTime) {
		t.Fatal("pause time moved", p2.PauseTime)
	}

	r, err := s.Resume(context.Background(), sched.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.State != StateRunning {
		t.Fatal("state", r.State)
	}
	if !r.PauseTime.IsZero() {
		t.Fatal("pause time not cleared")
	}
	if _, err := s.Resume(context.Background(), sched.ID); err != nil {
		t.Fatal(err)
	}
}

func TestServicePauseStoreError(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	s := newTestService(t, store)

	sched := validSchedule(t)
	putFakeSchedule(t, store, sched)
	store.mu.Lock()
	store.putErr = errors.New("boom")
	store.mu.Unlock()

	if _, err := s.Pause(context.Background(), sched.ID); err == nil {
		t.Fatal("expected error")
	}
}

func TestServicePauseUnknownSchedule(t *testing.T) {
	t.Parallel()

	s := newTestService(t, newFakeStore())

	if _, err := s.Pause(context.Background(), uuid.MustRandom()); !errors.Is(err, service.ErrNotFound) {
		t.Fatal("expected not found, got", err)
	}
}
