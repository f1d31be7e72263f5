// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/util/timeutc"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
	"go.uber.org/atomic"
)

// overridable knobs for tests
var (
	timeNow      = timeutc.Now
	tickInterval = time.Minute
)

// started guards the process against a second concurrent manager loop.
var started atomic.Bool

// Registrar plans new repair runs of a unit.
type Registrar interface {
	RegisterRun(ctx context.Context, clusterName string, unitID uuid.UUID, opts repair.RunOptions) (*repair.Run, error)
}

// Starter launches registered runs.
type Starter interface {
	StartRun(ctx context.Context, clusterName string, runID uuid.UUID) (*repair.Run, error)
}

// Manager is the activation loop, it wakes up on every tick and starts
// repair runs of the schedules that are due. There is at most one manager
// loop per process.
type Manager struct {
	storage   Storage
	registrar Registrar
	starter   Starter
	logger    log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Start spawns the manager loop. When a loop is already running in this
// process nothing is spawned and ok is false.
func Start(ctx context.Context, storage Storage, registrar Registrar, starter Starter, logger log.Logger) (m *Manager, ok bool) {
	if !started.CompareAndSwap(false, true) {
		logger.Info(ctx, "Scheduling manager already running")
		return nil, false
	}

	loopCtx, cancel := context.WithCancel(log.WithNewTraceID(context.Background()))
	m = &Manager{
		storage:   storage,
		registrar: registrar,
		starter:   starter,
		logger:    logger,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	logger.Info(ctx, "Starting scheduling manager", "tick", tickInterval)
	go m.loop(loopCtx)
	return m, true
}

// Close stops the loop and releases the singleton guard.
func (m *Manager) Close() {
	m.cancel()
	<-m.done
	started.Store(false)
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)

	t := time.NewTicker(tickInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

// tick goes over all the schedules, each schedule is handled on its own and
// a failure of one never stops the others.
func (m *Manager) tick(ctx context.Context) {
	schedules, err := m.storage.ListSchedules(ctx)
	if err != nil {
		m.logger.Error(ctx, "Failed to list schedules", "error", err)
		return
	}

	now := timeNow()
	var (
		counts  = make(map[State]int)
		nextDue time.Time
	)
	for _, s := range schedules {
		counts[s.State]++
		if s.NextActivation.After(now) && (nextDue.IsZero() || s.NextActivation.Before(nextDue)) {
			nextDue = s.NextActivation
		}
	}
	schedulerSchedules.WithLabelValues(StateRunning.String()).Set(float64(counts[StateRunning]))
	schedulerSchedules.WithLabelValues(StatePaused.String()).Set(float64(counts[StatePaused]))
	if !nextDue.IsZero() {
		schedulerNextActivation.Set(float64(nextDue.Unix()))
	}

	for _, s := range schedules {
		if err := m.manageSchedule(ctx, s, now); err != nil {
			m.logger.Error(ctx, "Failed to manage schedule",
				"schedule", s.ID,
				"unit", s.UnitID,
				"error", err,
			)
		}
	}
}

// manageSchedule decides what a single schedule does on this tick.
func (m *Manager) manageSchedule(ctx context.Context, s *Schedule, now time.Time) error {
	if s.NextActivation.After(now) {
		return nil
	}

	next, err := s.FollowingActivation(now)
	if err != nil {
		return errors.Wrap(err, "compute activation")
	}

	if s.State == StatePaused {
		upd := s.WithNextActivation(next)
		if err := m.storage.PutSchedule(ctx, &upd); err != nil {
			return errors.Wrap(err, "update schedule")
		}
		m.logger.Debug(ctx, "Skipping activation of paused schedule",
			"schedule", s.ID,
			"next", next,
		)
		return nil
	}

	running, err := m.unitBusy(ctx, s)
	if err != nil {
		return errors.Wrap(err, "check unit runs")
	}
	if running {
		upd := s.WithNextActivation(next)
		if err := m.storage.PutSchedule(ctx, &upd); err != nil {
			return errors.Wrap(err, "update schedule")
		}
		m.logger.Info(ctx, "Postponing repair, unit has a run in progress",
			"schedule", s.ID,
			"unit", s.UnitID,
			"next", next,
		)
		return nil
	}

	run, err := m.registrar.RegisterRun(ctx, s.ClusterName, s.UnitID, repair.RunOptions{
		Owner:        s.Owner,
		Cause:        fmt.Sprintf("schedule %s", s.ID),
		SegmentCount: s.SegmentCount,
		Parallelism:  s.Parallelism,
		Intensity:    s.Intensity,
	})
	if err != nil {
		return errors.Wrap(err, "register run")
	}
	if _, err := m.starter.StartRun(ctx, s.ClusterName, run.ID); err != nil {
		return errors.Wrap(err, "start run")
	}

	// the run is durable, only now the schedule may move on
	upd := s.WithRun(run.ID, next)
	if err := m.storage.PutSchedule(ctx, &upd); err != nil {
		return errors.Wrap(err, "update schedule")
	}
	m.logger.Info(ctx, "Activated schedule",
		"schedule", s.ID,
		"unit", s.UnitID,
		"run", run.ID,
		"next", next,
	)
	return nil
}

// unitBusy tells if the schedule unit has a run being repaired right now.
// Runs sitting in NOT_STARTED do not count.
func (m *Manager) unitBusy(ctx context.Context, s *Schedule) (bool, error) {
	runs, err := m.storage.ListRunsForUnit(ctx, s.ClusterName, s.UnitID)
	if err != nil {
		return false, err
	}
	for _, r := range runs {
		if r.State == repair.RunStateRunning {
			return true, nil
		}
	}
	return false, nil
}
