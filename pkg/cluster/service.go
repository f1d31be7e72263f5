// Copyright (C) 2017 ScyllaDB

package cluster

import (
	"context"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/reaperd/reaperd/pkg/util/parallel"
	"github.com/scylladb/go-log"
	"github.com/scylladb/go-set/strset"
)

// ErrClusterExists is returned by AddCluster when a cluster with the same
// name is already registered.
var ErrClusterExists = errors.New("cluster already exists")

// Service manages the registry of known clusters.
type Service struct {
	storage  Storage
	provider node.Provider
	admin    *node.CachedProvider
	logger   log.Logger
}

func NewService(storage Storage, provider node.Provider, logger log.Logger) (*Service, error) {
	if storage == nil {
		return nil, service.ErrNilPtr
	}
	if provider == nil {
		return nil, service.ErrNilPtr
	}

	s := &Service{
		storage:  storage,
		provider: provider,
		logger:   logger,
	}
	s.admin = node.NewCachedProvider(s.dialCluster)
	return s, nil
}

// dialCluster connects to any seed of the named cluster.
func (s *Service) dialCluster(ctx context.Context, clusterName string) (node.Proxy, error) {
	c, err := s.storage.GetCluster(ctx, clusterName)
	if err != nil {
		return nil, errors.Wrap(err, "load cluster")
	}
	return node.ConnectAny(ctx, s.provider, c.Seeds...)
}

// Close releases the cached cluster connections.
func (s *Service) Close() error {
	return s.admin.Close()
}

// AddCluster registers the cluster reachable through seedHost. The cluster
// name and partitioner are read from the node, a second registration under
// the same name fails with ErrClusterExists.
func (s *Service) AddCluster(ctx context.Context, seedHost string) (*Cluster, error) {
	if seedHost == "" {
		return nil, service.ErrValidate(errors.New("missing seed host"))
	}

	proxy, err := s.provider.Connect(ctx, seedHost)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to seed %s", seedHost)
	}
	defer proxy.Close()

	name, err := proxy.ClusterName(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read cluster name")
	}
	partitioner, err := proxy.Partitioner(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read partitioner")
	}

	if _, err := s.storage.GetCluster(ctx, name); err == nil {
		return nil, errors.Wrapf(ErrClusterExists, "%q", name)
	} else if !errors.Is(err, service.ErrNotFound) {
		return nil, errors.Wrap(err, "load cluster")
	}

	c := &Cluster{
		Name:        name,
		Partitioner: partitioner,
		Seeds:       []string{seedHost},
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.storage.PutCluster(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cluster")
	}

	s.logger.Info(ctx, "Added cluster",
		"cluster", c.Name,
		"partitioner", c.Partitioner,
		"seed", seedHost,
	)
	return c, nil
}

// GetCluster returns a cluster by name.
func (s *Service) GetCluster(ctx context.Context, name string) (*Cluster, error) {
	return s.storage.GetCluster(ctx, name)
}

// ListClusters returns all the registered clusters.
func (s *Service) ListClusters(ctx context.Context) ([]*Cluster, error) {
	return s.storage.ListClusters(ctx)
}

// RemoveCluster drops the cluster record. Repair history of the cluster is
// left in place.
func (s *Service) RemoveCluster(ctx context.Context, name string) error {
	if err := s.storage.DeleteCluster(ctx, name); err != nil {
		return err
	}
	s.admin.Invalidate(name)
	s.logger.Info(ctx, "Removed cluster", "cluster", name)
	return nil
}

// KeyspaceInfo is a keyspace with its tables.
type KeyspaceInfo struct {
	Name   string   `json:"name"`
	Tables []string `json:"tables"`
}

// Description is the stored cluster record together with the live schema of
// the cluster.
type Description struct {
	Cluster
	Keyspaces []KeyspaceInfo `json:"keyspaces"`
}

// Describe returns the cluster record and its keyspaces with tables read
// from a live node.
func (s *Service) Describe(ctx context.Context, name string) (*Description, error) {
	c, err := s.storage.GetCluster(ctx, name)
	if err != nil {
		return nil, err
	}

	proxy, err := s.admin.Proxy(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "connect to cluster")
	}
	keyspaces, err := proxy.Keyspaces(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list keyspaces")
	}

	infos := make([]KeyspaceInfo, len(keyspaces))
	err = parallel.Run(len(keyspaces), parallel.NoLimit, func(i int) error {
		k := keyspaces[i]
		tables, err := proxy.Tables(ctx, k)
		if err != nil {
			return errors.Wrapf(err, "list tables of %q", k)
		}
		infos[i] = KeyspaceInfo{Name: k, Tables: tables}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Description{Cluster: *c, Keyspaces: infos}, nil
}

// Keyspace returns the tables of a keyspace read from a live node. Unknown
// keyspaces surface as service.ErrNotFound.
func (s *Service) Keyspace(ctx context.Context, clusterName, keyspace string) ([]string, error) {
	proxy, err := s.admin.Proxy(ctx, clusterName)
	if err != nil {
		return nil, errors.Wrap(err, "connect to cluster")
	}

	keyspaces, err := proxy.Keyspaces(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list keyspaces")
	}
	if !strset.New(keyspaces...).Has(keyspace) {
		return nil, errors.Wrapf(service.ErrNotFound, "keyspace %q", keyspace)
	}

	return proxy.Tables(ctx, keyspace)
}
