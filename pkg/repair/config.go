// Copyright (C) 2017 ScyllaDB

package repair

import (
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/service"
	"go.uber.org/multierr"
)

// Config specifies the repair service configuration.
type Config struct {
	// PoolSize bounds the number of segments repaired simultaneously across
	// all runs.
	PoolSize int `yaml:"pool_size"`
	// SegmentTimeout is how long a segment repair may stay silent before it
	// is considered hung and put back to the queue.
	SegmentTimeout time.Duration `yaml:"segment_timeout"`
	// RetryDelay is how long a timed out segment waits before the next
	// attempt.
	RetryDelay time.Duration `yaml:"retry_delay"`
	// PollInterval is how often run supervisors look for dispatchable
	// segments when nothing is eligible.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SegmentCount is the default number of segments a run is split into
	// when a request does not say otherwise.
	SegmentCount int `yaml:"segment_count"`
}

// DefaultConfig returns a Config initialized with default values.
func DefaultConfig() Config {
	return Config{
		PoolSize:       15,
		SegmentTimeout: 30 * time.Minute,
		RetryDelay:     10 * time.Second,
		PollInterval:   200 * time.Millisecond,
		SegmentCount:   200,
	}
}

// Validate checks if all the fields are properly set.
func (c *Config) Validate() (err error) {
	if c == nil {
		return service.ErrNilPtr
	}

	if c.PoolSize <= 0 {
		err = multierr.Append(err, errors.New("invalid pool_size, must be > 0"))
	}
	if c.SegmentTimeout <= 0 {
		err = multierr.Append(err, errors.New("invalid segment_timeout, must be > 0"))
	}
	if c.RetryDelay <= 0 {
		err = multierr.Append(err, errors.New("invalid retry_delay, must be > 0"))
	}
	if c.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("invalid poll_interval, must be > 0"))
	}
	if c.SegmentCount <= 0 {
		err = multierr.Append(err, errors.New("invalid segment_count, must be > 0"))
	}

	return
}
