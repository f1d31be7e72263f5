// Copyright (C) 2017 ScyllaDB

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/config"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/node/nodesim"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/restapi"
	"github.com/reaperd/reaperd/pkg/schedule"
	"github.com/reaperd/reaperd/pkg/storage"
	"github.com/reaperd/reaperd/pkg/util/httppprof"
	"github.com/scylladb/go-log"
	"github.com/scylladb/gocqlx/v2"
	"golang.org/x/sync/errgroup"
)

type server struct {
	config config.Config
	store  storage.Store
	sim    *nodesim.Cluster
	logger log.Logger

	clusterSvc *cluster.Service
	repairSvc  *repair.Service
	repairMgr  *repair.Manager
	schedSvc   *schedule.Service
	schedMgr   *schedule.Manager

	httpServer       *http.Server
	httpsServer      *http.Server
	prometheusServer *http.Server
	debugServer      *http.Server

	errCh chan error
}

func newServer(c config.Config, logger log.Logger) (*server, error) {
	s := &server{
		config: c,
		logger: logger,

		errCh: make(chan error, 4),
	}

	if err := s.makeStore(); err != nil {
		return nil, err
	}
	if err := s.makeServices(); err != nil {
		return nil, err
	}
	s.makeServers()

	return s, nil
}

func (s *server) makeStore() error {
	switch s.config.Storage {
	case config.StorageMemory:
		s.store = storage.NewMemStore()
	case config.StorageDatabase:
		session, err := gocqlx.WrapSession(gocqlClusterConfig(s.config).CreateSession())
		if err != nil {
			return errors.Wrapf(err, "database")
		}
		store, err := storage.NewCQLStore(session)
		if err != nil {
			session.Close()
			return errors.Wrapf(err, "database store")
		}
		s.store = store
	default:
		return errors.Errorf("unknown storage %q", s.config.Storage)
	}
	return nil
}

func (s *server) makeProvider() (node.Provider, error) {
	switch s.config.Transport {
	case config.TransportSim:
		sim, err := nodesim.New(nodesim.DefaultConfig())
		if err != nil {
			return nil, errors.Wrapf(err, "node simulator")
		}
		s.sim = sim
		return sim, nil
	default:
		return nil, errors.Errorf("unknown transport %q", s.config.Transport)
	}
}

func (s *server) makeServices() error {
	provider, err := s.makeProvider()
	if err != nil {
		return err
	}

	s.clusterSvc, err = cluster.NewService(s.store, provider, s.logger.Named("cluster"))
	if err != nil {
		return errors.Wrapf(err, "cluster service")
	}

	s.repairSvc, err = repair.NewService(s.config.Repair, s.store, provider, s.logger.Named("repair"))
	if err != nil {
		return errors.Wrapf(err, "repair service")
	}

	s.repairMgr, err = repair.NewManager(s.config.Repair, s.store, provider, s.logger.Named("repair"))
	if err != nil {
		return errors.Wrapf(err, "repair manager")
	}

	s.schedSvc, err = schedule.NewService(s.store, s.logger.Named("schedule"))
	if err != nil {
		return errors.Wrapf(err, "schedule service")
	}

	return nil
}

func (s *server) makeServers() {
	services := restapi.Services{
		Cluster:  s.clusterSvc,
		Repair:   s.repairSvc,
		Runner:   s.repairMgr,
		Schedule: s.schedSvc,
	}
	h := restapi.New(services, s.logger.Named("http"))

	if s.config.HTTP != "" {
		s.httpServer = &http.Server{
			Addr:    s.config.HTTP,
			Handler: h,
		}
	}
	if s.config.HTTPS != "" {
		s.httpsServer = &http.Server{
			Addr:    s.config.HTTPS,
			Handler: h,
		}
	}
	if s.config.Prometheus != "" {
		s.prometheusServer = &http.Server{
			Addr:    s.config.Prometheus,
			Handler: restapi.NewPrometheus(),
		}
	}
	if s.config.Debug != "" {
		s.debugServer = &http.Server{
			Addr:    s.config.Debug,
			Handler: httppprof.Handler(),
		}
	}
}

// startServices resumes repair runs interrupted by the previous shutdown and
// spawns the scheduling loop.
func (s *server) startServices(ctx context.Context) error {
	if err := s.repairMgr.ResumeAll(ctx); err != nil {
		return errors.Wrapf(err, "repair manager")
	}

	m, ok := schedule.Start(ctx, s.store, s.repairSvc, s.repairMgr, s.logger.Named("schedule"))
	if !ok {
		return errors.New("scheduling manager already running")
	}
	s.schedMgr = m

	return nil
}

func (s *server) startServers(ctx context.Context) {
	if s.httpServer != nil {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.httpServer.Addr)
		go func() {
			s.errCh <- s.httpServer.ListenAndServe()
		}()
	}

	if s.httpsServer != nil {
		s.logger.Info(ctx, "Starting HTTPS server", "address", s.httpsServer.Addr)
		go func() {
			s.errCh <- errors.Wrap(s.httpsServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile), "HTTPS server start")
		}()
	}

	if s.prometheusServer != nil {
		s.logger.Info(ctx, "Starting Prometheus server", "address", s.prometheusServer.Addr)
		go func() {
			s.errCh <- errors.Wrap(s.prometheusServer.ListenAndServe(), "prometheus server start")
		}()
	}

	if s.debugServer != nil {
		s.logger.Info(ctx, "Starting debug server", "address", s.debugServer.Addr)
		go func() {
			s.errCh <- errors.Wrap(s.debugServer.ListenAndServe(), "debug server start")
		}()
	}

	s.logger.Info(ctx, "Service started")
}

func (s *server) shutdownServers(ctx context.Context, timeout time.Duration) {
	s.logger.Info(ctx, "Closing servers", "timeout", timeout)

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var eg errgroup.Group
	eg.Go(s.shutdownHTTPServer(tctx, s.httpServer))
	eg.Go(s.shutdownHTTPServer(tctx, s.httpsServer))
	eg.Go(s.shutdownHTTPServer(tctx, s.prometheusServer))
	eg.Go(s.shutdownHTTPServer(tctx, s.debugServer))
	eg.Wait() // nolint: errcheck
}

func (s *server) shutdownHTTPServer(ctx context.Context, server *http.Server) func() error {
	return func() error {
		if server == nil {
			return nil
		}
		if err := server.Shutdown(ctx); err != nil {
			s.logger.Info(ctx, "Closing server failed", "address", server.Addr, "error", err)
		} else {
			s.logger.Info(ctx, "Closing server done", "address", server.Addr)
		}

		// Force close
		return server.Close()
	}
}

func (s *server) close() {
	// The scheduling loop goes down first so nothing new starts, then the
	// repair manager drains its workers while the store and the node
	// connections are still usable. The store must be closed last.
	if s.schedMgr != nil {
		s.schedMgr.Close()
	}
	s.repairMgr.Close()
	s.repairSvc.Close()
	s.clusterSvc.Close()
	if s.sim != nil {
		s.sim.Close()
	}
	s.store.Close()
}
