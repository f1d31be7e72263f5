// Copyright (C) 2017 ScyllaDB

package repair

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/uuid"
	"go.uber.org/multierr"
)

// RunState specifies the state of a Run.
type RunState string

// RunState enumeration. There is no failure state, failed work goes back to
// NOT_STARTED and is picked up again.
const (
	RunStateNotStarted RunState = "NOT_STARTED"
	RunStateRunning    RunState = "RUNNING"
	RunStateDone       RunState = "DONE"
)

func (s RunState) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s RunState) MarshalText() (text []byte, err error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	switch RunState(text) {
	case RunStateNotStarted:
		*s = RunStateNotStarted
	case RunStateRunning:
		*s = RunStateRunning
	case RunStateDone:
		*s = RunStateDone
	default:
		return fmt.Errorf("unrecognized RunState %q", text)
	}
	return nil
}

// SegmentState specifies the state of a Segment.
type SegmentState string

// SegmentState enumeration.
const (
	SegmentStateNotStarted SegmentState = "NOT_STARTED"
	SegmentStateRunning    SegmentState = "RUNNING"
	SegmentStateDone       SegmentState = "DONE"
)

func (s SegmentState) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s SegmentState) MarshalText() (text []byte, err error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SegmentState) UnmarshalText(text []byte) error {
	switch SegmentState(text) {
	case SegmentStateNotStarted:
		*s = SegmentStateNotStarted
	case SegmentStateRunning:
		*s = SegmentStateRunning
	case SegmentStateDone:
		*s = SegmentStateDone
	default:
		return fmt.Errorf("unrecognized SegmentState %q", text)
	}
	return nil
}

// Unit is a named set of tables in a keyspace repaired together. Empty
// Tables means all the tables of the keyspace.
type Unit struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ClusterName string    `json:"cluster_name" db:"cluster_name"`
	Keyspace    string    `json:"keyspace" db:"keyspace_name"`
	Tables      []string  `json:"tables" db:"table_names"`
}

// Validate checks if all the fields are properly set.
func (u *Unit) Validate() error {
	if u == nil {
		return service.ErrNilPtr
	}

	var errs error
	if u.ClusterName == "" {
		errs = multierr.Append(errs, errors.New("missing cluster name"))
	}
	if u.Keyspace == "" {
		errs = multierr.Append(errs, errors.New("missing keyspace"))
	}
	for _, t := range u.Tables {
		if t == "" {
			errs = multierr.Append(errs, errors.New("empty table name"))
		}
	}

	return service.ErrValidate(errors.Wrap(errs, "invalid unit"))
}

// Run is a single repair of a Unit, it gets the whole token ring repaired
// once segment by segment. Runs are immutable, transitions produce copies.
type Run struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	ClusterName  string           `json:"cluster_name" db:"cluster_name"`
	UnitID       uuid.UUID        `json:"unit_id" db:"unit_id"`
	State        RunState         `json:"state" db:"state"`
	Parallelism  node.Parallelism `json:"parallelism" db:"parallelism"`
	Intensity    float64          `json:"intensity" db:"intensity"`
	Owner        string           `json:"owner" db:"owner"`
	Cause        string           `json:"cause,omitempty" db:"cause"`
	TopologyHash uuid.UUID        `json:"topology_hash" db:"topology_hash"`
	SegmentCount int              `json:"segment_count" db:"segment_count"`
	CreationTime time.Time        `json:"creation_time" db:"creation_time"`
	StartTime    time.Time        `json:"start_time,omitempty" db:"start_time"`
	EndTime      time.Time        `json:"end_time,omitempty" db:"end_time"`
}

// WithStarted returns a copy of the run moved to RUNNING at now.
func (r Run) WithStarted(now time.Time) Run {
	r.State = RunStateRunning
	r.StartTime = now
	return r
}

// WithDone returns a copy of the run moved to DONE at now.
func (r Run) WithDone(now time.Time) Run {
	r.State = RunStateDone
	r.EndTime = now
	return r
}

// Validate checks if all the fields are properly set.
func (r *Run) Validate() error {
	if r == nil {
		return service.ErrNilPtr
	}

	var errs error
	if r.ClusterName == "" {
		errs = multierr.Append(errs, errors.New("missing cluster name"))
	}
	if r.UnitID == uuid.Nil {
		errs = multierr.Append(errs, errors.New("missing unit id"))
	}
	var state RunState
	errs = multierr.Append(errs, state.UnmarshalText([]byte(r.State)))
	var p node.Parallelism
	errs = multierr.Append(errs, p.UnmarshalText([]byte(r.Parallelism)))
	if r.Intensity <= 0 || r.Intensity > 1 {
		errs = multierr.Append(errs, errors.New("intensity must be in range (0,1]"))
	}

	return service.ErrValidate(errors.Wrap(errs, "invalid run"))
}

// Segment is a fraction of a run token ring, the unit of repair work handed
// to a node. Segments are immutable, transitions produce copies.
type Segment struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	RunID           uuid.UUID    `json:"run_id" db:"run_id"`
	StartToken      int64        `json:"start_token" db:"start_token"`
	EndToken        int64        `json:"end_token" db:"end_token"`
	State           SegmentState `json:"state" db:"state"`
	CommandID       int32        `json:"command_id,omitempty" db:"command_id"`
	CoordinatorHost string       `json:"coordinator_host,omitempty" db:"coordinator_host"`
	FailCount       int          `json:"fail_count" db:"fail_count"`
	StartTime       time.Time    `json:"start_time,omitempty" db:"start_time"`
	EndTime         time.Time    `json:"end_time,omitempty" db:"end_time"`
}

// Range returns the token range covered by the segment.
func (s Segment) Range() node.TokenRange {
	return node.TokenRange{StartToken: s.StartToken, EndToken: s.EndToken}
}

// WithRunning returns a copy of the segment moved to RUNNING, bound to the
// coordinator host and the node command id that repairs it.
func (s Segment) WithRunning(now time.Time, host string, commandID int32) Segment {
	s.State = SegmentStateRunning
	s.StartTime = now
	s.CoordinatorHost = host
	s.CommandID = commandID
	return s
}

// WithDone returns a copy of the segment moved to DONE at now.
func (s Segment) WithDone(now time.Time) Segment {
	s.State = SegmentStateDone
	s.EndTime = now
	return s
}

// WithReset returns a copy of the segment put back to NOT_STARTED with the
// attempt bookkeeping cleared and the fail count bumped.
func (s Segment) WithReset() Segment {
	s.State = SegmentStateNotStarted
	s.StartTime = time.Time{}
	s.CoordinatorHost = ""
	s.CommandID = 0
	s.FailCount++
	return s
}

// Progress is a snapshot of run progress derived from segment states.
type Progress struct {
	RunID           uuid.UUID `json:"run_id"`
	State           RunState  `json:"state"`
	SegmentCount    int       `json:"segment_count"`
	SegmentDone     int       `json:"segment_done"`
	SegmentRunning  int       `json:"segment_running"`
	PercentComplete int       `json:"percent_complete"`
}

func aggregateProgress(run *Run, segments []*Segment) Progress {
	p := Progress{
		RunID:        run.ID,
		State:        run.State,
		SegmentCount: len(segments),
	}
	for _, s := range segments {
		switch s.State {
		case SegmentStateDone:
			p.SegmentDone++
		case SegmentStateRunning:
			p.SegmentRunning++
		}
	}
	if p.SegmentCount > 0 {
		p.PercentComplete = 100 * p.SegmentDone / p.SegmentCount
	} else if run.State == RunStateDone {
		p.PercentComplete = 100
	}
	return p
}
