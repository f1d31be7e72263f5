// Copyright (C) 2017 ScyllaDB

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg"
	"github.com/reaperd/reaperd/pkg/config"
	"github.com/reaperd/reaperd/pkg/util/netwait"
	"github.com/scylladb/go-log"
	"github.com/scylladb/go-log/gocqllog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootArgs = struct {
	configFiles []string
	version     bool
}{}

var rootCmd = &cobra.Command{
	Use:           "reaperd",
	Short:         "Cluster repair scheduler",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,

	RunE: func(cmd *cobra.Command, args []string) (runError error) {
		// Print version and return
		if rootArgs.version {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", pkg.Version())
			return
		}

		// Read configuration
		c, err := config.ParseConfigFiles(rootArgs.configFiles)
		if err != nil {
			runError = errors.Wrapf(err, "configuration %q", rootArgs.configFiles)
			fmt.Fprintf(cmd.OutOrStderr(), "%s\n", runError)
			return
		}
		if err := c.Validate(); err != nil {
			runError = errors.Wrapf(err, "configuration %q", rootArgs.configFiles)
			fmt.Fprintf(cmd.OutOrStderr(), "%s\n", runError)
			return
		}

		// Get a base context
		ctx := log.WithNewTraceID(context.Background())

		// Create logger
		logger, err := config.MakeLogger(c.Logger)
		if err != nil {
			return errors.Wrapf(err, "logger")
		}
		defer func() {
			if runError != nil {
				logger.Error(ctx, "Bye", "error", runError)
			} else {
				logger.Info(ctx, "Bye")
			}
			logger.Sync() // nolint
		}()

		// Log version and config
		logger.Info(ctx, "Reaperd server", "version", pkg.Version(), "pid", os.Getpid())
		logger.Info(ctx, "Using config", "c", config.Obfuscate(c), "config_files", rootArgs.configFiles)

		// Redirect standard logger to the logger
		zap.RedirectStdLog(log.BaseOf(logger))
		// Set logger to netwait
		netwait.DefaultWaiter.Logger = logger.Named("wait")

		// Set gocql logger
		gocql.Logger = gocqllog.StdLogger{
			BaseCtx: ctx,
			Logger:  logger.Named("gocql"),
		}

		if c.Storage == config.StorageDatabase {
			// Wait for database
			logger.Info(ctx, "Checking database connectivity...")
			initHost, err := netwait.AnyHostPort(ctx, c.Database.Hosts, "9042")
			if err != nil {
				return errors.Wrapf(
					err,
					"no connection to database, make sure the database is running and that the database section in config file(s) %s is set correctly",
					strings.Join(rootArgs.configFiles, ", "),
				)
			}
			c.Database.InitAddr = net.JoinHostPort(initHost, "9042")

			// Create keyspace if needed
			ok, err := keyspaceExists(c)
			if err != nil {
				return errors.Wrapf(err, "db init")
			}
			if !ok {
				logger.Info(ctx, "Creating keyspace", "keyspace", c.Database.Keyspace)
				if err := createKeyspace(c); err != nil {
					return errors.Wrapf(err, "db init")
				}
				logger.Info(ctx, "Keyspace created", "keyspace", c.Database.Keyspace)
			}

			// Migrate schema
			logger.Info(ctx, "Migrating schema", "keyspace", c.Database.Keyspace)
			if err := migrateSchema(c, logger); err != nil {
				return errors.Wrapf(err, "db init")
			}
			logger.Info(ctx, "Schema up to date", "keyspace", c.Database.Keyspace)
		}

		// Start server
		server, err := newServer(c, logger)
		if err != nil {
			return errors.Wrapf(err, "server init")
		}
		if err := server.startServices(ctx); err != nil {
			return errors.Wrapf(err, "server start")
		}
		server.startServers(ctx)
		defer func() {
			server.shutdownServers(ctx, 30*time.Second)
			server.close()
		}()

		// Wait signal
		signalCh := make(chan os.Signal, 1)
		signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-server.errCh:
			if err != nil {
				return err
			}
		case sig := <-signalCh:
			logger.Info(ctx, "Received signal", "signal", sig)
		}

		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringSliceVarP(&rootArgs.configFiles, "config-file", "c", []string{"/etc/reaperd/reaperd.yaml"}, "configuration file `path`")
	f.BoolVar(&rootArgs.version, "version", false, "print version and exit")
}
