// Copyright (C) 2017 ScyllaDB

package cluster

import (
	"context"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/service"
	"go.uber.org/multierr"
)

// Cluster is a managed database cluster reachable through its seed hosts.
type Cluster struct {
	Name        string   `json:"name" db:"name"`
	Partitioner string   `json:"partitioner" db:"partitioner"`
	Seeds       []string `json:"seeds" db:"seeds"`
}

// Validate checks if all the fields are properly set.
func (c *Cluster) Validate() error {
	if c == nil {
		return service.ErrNilPtr
	}

	var errs error
	if c.Name == "" {
		errs = multierr.Append(errs, errors.New("missing name"))
	}
	if len(c.Seeds) == 0 {
		errs = multierr.Append(errs, errors.New("missing seeds"))
	}

	return service.ErrValidate(errors.Wrap(errs, "invalid cluster"))
}

// Storage is the persistence interface the cluster service consumes.
type Storage interface {
	PutCluster(ctx context.Context, c *Cluster) error
	GetCluster(ctx context.Context, name string) (*Cluster, error)
	ListClusters(ctx context.Context) ([]*Cluster, error)
	DeleteCluster(ctx context.Context, name string) error
}
