// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"go.uber.org/multierr"
)

// State specifies the state of a Schedule.
type State string

// State enumeration.
const (
	StateRunning State = "RUNNING"
	StatePaused  State = "PAUSED"
)

func (s State) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() (text []byte, err error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch State(text) {
	case StateRunning:
		*s = StateRunning
	case StatePaused:
		*s = StatePaused
	default:
		return fmt.Errorf("unrecognized State %q", text)
	}
	return nil
}

// Schedule activates repairs of a unit over and over. Exactly one of Period
// and CronExpression drives the activation instants. Schedules are
// immutable, transitions produce copies.
type Schedule struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	ClusterName  string           `json:"cluster_name" db:"cluster_name"`
	UnitID       uuid.UUID        `json:"unit_id" db:"unit_id"`
	State        State            `json:"state" db:"state"`
	Owner        string           `json:"owner" db:"owner"`
	Intensity    float64          `json:"intensity" db:"intensity"`
	Parallelism  node.Parallelism `json:"parallelism" db:"parallelism"`
	SegmentCount int              `json:"segment_count" db:"segment_count"`

	Period         time.Duration `json:"period,omitempty" db:"period"`
	CronExpression string        `json:"cron_expression,omitempty" db:"cron_expression"`

	NextActivation time.Time   `json:"next_activation" db:"next_activation"`
	RunHistory     []uuid.UUID `json:"run_history" db:"run_history"`
	CreationTime   time.Time   `json:"creation_time" db:"creation_time"`
	PauseTime      time.Time   `json:"pause_time,omitempty" db:"pause_time"`
}

// Validate checks if all the fields are properly set.
func (s *Schedule) Validate() error {
	if s == nil {
		return service.ErrNilPtr
	}

	var errs error
	if s.ClusterName == "" {
		errs = multierr.Append(errs, errors.New("missing cluster name"))
	}
	if s.UnitID == uuid.Nil {
		errs = multierr.Append(errs, errors.New("missing unit id"))
	}
	var state State
	errs = multierr.Append(errs, state.UnmarshalText([]byte(s.State)))
	var p node.Parallelism
	errs = multierr.Append(errs, p.UnmarshalText([]byte(s.Parallelism)))
	if s.Intensity <= 0 || s.Intensity > 1 {
		errs = multierr.Append(errs, errors.New("intensity must be in range (0,1]"))
	}
	if s.SegmentCount < 0 {
		errs = multierr.Append(errs, errors.New("invalid segment count"))
	}
	switch {
	case s.Period > 0 && s.CronExpression != "":
		errs = multierr.Append(errs, errors.New("period and cron expression are mutually exclusive"))
	case s.Period <= 0 && s.CronExpression == "":
		errs = multierr.Append(errs, errors.New("missing period or cron expression"))
	case s.CronExpression != "":
		if _, err := NewCronTrigger(s.CronExpression); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return service.ErrValidate(errors.Wrap(errs, "invalid schedule"))
}

// Trigger returns the activation trigger of the schedule.
func (s *Schedule) Trigger() (Trigger, error) {
	if s.CronExpression != "" {
		return NewCronTrigger(s.CronExpression)
	}
	if s.Period > 0 {
		anchor := s.NextActivation
		if anchor.IsZero() {
			anchor = s.CreationTime
		}
		return NewPeriodTrigger(anchor, s.Period), nil
	}
	return nil, errors.New("schedule has no trigger")
}

// FollowingActivation returns the first activation instant after now.
func (s *Schedule) FollowingActivation(now time.Time) (time.Time, error) {
	t, err := s.Trigger()
	if err != nil {
		return time.Time{}, err
	}
	return t.Next(now), nil
}

// WithNextActivation returns a copy of the schedule due at next.
func (s Schedule) WithNextActivation(next time.Time) Schedule {
	s.NextActivation = next
	return s
}

// WithRun returns a copy of the schedule with runID appended to the history
// and the activation moved to next.
func (s Schedule) WithRun(runID uuid.UUID, next time.Time) Schedule {
	history := make([]uuid.UUID, 0, len(s.RunHistory)+1)
	history = append(history, s.RunHistory...)
	s.RunHistory = append(history, runID)
	s.NextActivation = next
	return s
}

// WithPaused returns a copy of the schedule moved to PAUSED at now.
func (s Schedule) WithPaused(now time.Time) Schedule {
	s.State = StatePaused
	s.PauseTime = now
	return s
}

// WithResumed returns a copy of the schedule moved back to RUNNING.
func (s Schedule) WithResumed() Schedule {
	s.State = StateRunning
	s.PauseTime = time.Time{}
	return s
}
