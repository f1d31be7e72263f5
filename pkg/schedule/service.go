// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"context"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"github.com/scylladb/go-log"
)

// Service is the administrative surface of schedules.
type Service struct {
	storage Storage
	logger  log.Logger
}

func NewService(storage Storage, logger log.Logger) (*Service, error) {
	if storage == nil {
		return nil, service.ErrNilPtr
	}
	return &Service{storage: storage, logger: logger}, nil
}

// PutSchedule upserts a schedule filling in defaults. A new schedule without
// an explicit NextActivation becomes due at the first instant its trigger
// yields.
func (s *Service) PutSchedule(ctx context.Context, sched *Schedule) error {
	if sched == nil {
		return service.ErrNilPtr
	}
	if sched.ID == uuid.Nil {
		var err error
		if sched.ID, err = uuid.NewRandom(); err != nil {
			return errors.Wrap(err, "generate id")
		}
	}
	if sched.State == "" {
		sched.State = StateRunning
	}
	if sched.Parallelism == "" {
		sched.Parallelism = node.ParallelismSequential
	}
	if sched.Intensity == 0 {
		sched.Intensity = 1
	}
	if sched.CreationTime.IsZero() {
		sched.CreationTime = timeNow()
	}
	if err := sched.Validate(); err != nil {
		return err
	}
	if sched.NextActivation.IsZero() {
		next, err := sched.FollowingActivation(timeNow())
		if err != nil {
			return err
		}
		sched.NextActivation = next
	}

	if err := s.storage.PutSchedule(ctx, sched); err != nil {
		return errors.Wrap(err, "save schedule")
	}
	s.logger.Info(ctx, "Saved schedule",
		"schedule", sched.ID,
		"unit", sched.UnitID,
		"next", sched.NextActivation,
	)
	return nil
}

// GetSchedule returns a schedule by id.
func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return s.storage.GetSchedule(ctx, id)
}

// ListSchedules returns all the schedules.
func (s *Service) ListSchedules(ctx context.Context) ([]*Schedule, error) {
	return s.storage.ListSchedules(ctx)
}

// DeleteSchedule removes a schedule, history of already triggered runs stays.
func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return s.storage.DeleteSchedule(ctx, id)
}

// Pause stops activations of a schedule. The activation clock keeps going,
// overdue instants of a paused schedule are skipped, not queued.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	sched, err := s.storage.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.State == StatePaused {
		return sched, nil
	}

	upd := sched.WithPaused(timeNow())
	if err := s.storage.PutSchedule(ctx, &upd); err != nil {
		return nil, errors.Wrap(err, "update schedule")
	}
	s.logger.Info(ctx, "Paused schedule", "schedule", id)
	return &upd, nil
}

// Resume turns activations of a paused schedule back on.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	sched, err := s.storage.GetSchedule(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.State == StateRunning {
		return sched, nil
	}

	upd := sched.WithResumed()
	if err := s.storage.PutSchedule(ctx, &upd); err != nil {
		return nil, errors.Wrap(err, "update schedule")
	}
	s.logger.Info(ctx, "Resumed schedule", "schedule", id)
	return &upd, nil
}
