// Copyright (C) 2017 ScyllaDB

package schedule

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Trigger provides the next activation date.
// Implementations must return the same values for the same now parameter.
type Trigger interface {
	Next(now time.Time) time.Time
}

// PeriodTrigger activates on a fixed interval grid anchored at start.
// Overdue activations are skipped, Next never returns an instant in the
// past so a stopped manager does not generate a backlog of repairs.
type PeriodTrigger struct {
	start  time.Time
	period time.Duration
}

func NewPeriodTrigger(start time.Time, period time.Duration) PeriodTrigger {
	return PeriodTrigger{start: start, period: period}
}

// Next implements Trigger.
func (t PeriodTrigger) Next(now time.Time) time.Time {
	if t.period <= 0 {
		return time.Time{}
	}
	if t.start.After(now) {
		return t.start
	}
	n := now.Sub(t.start) / t.period
	return t.start.Add((n + 1) * t.period)
}

// CronTrigger activates on a cron expression. The standard 5 field syntax
// and the @descriptors are supported.
type CronTrigger struct {
	inner cron.Schedule
}

func NewCronTrigger(spec string) (CronTrigger, error) {
	s, err := cron.ParseStandard(spec)
	if err != nil {
		return CronTrigger{}, errors.Wrap(err, "invalid cron expression")
	}
	return CronTrigger{inner: s}, nil
}

// Next implements Trigger.
func (t CronTrigger) Next(now time.Time) time.Time {
	if t.inner == nil {
		return time.Time{}
	}
	return t.inner.Next(now)
}
