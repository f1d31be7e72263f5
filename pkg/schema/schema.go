// Copyright (C) 2017 ScyllaDB

// Package schema owns the database schema of the daemon. The cql directory
// holds the ordered migration files embedded into the binary and applied at
// startup.
package schema

import (
	"context"
	"embed"
	"io/fs"
	"strings"

	"github.com/scylladb/go-log"
	"github.com/scylladb/gocqlx/v2"
	"github.com/scylladb/gocqlx/v2/migrate"
)

//go:embed cql/*.cql
var files embed.FS

// Logger reports migration progress.
var Logger = log.NopLogger

// Migrate brings the session keyspace to the latest schema version.
func Migrate(ctx context.Context, session gocqlx.Session) error {
	f, err := fs.Sub(files, "cql")
	if err != nil {
		return err
	}
	migrate.Callback = logCallback
	return migrate.FromFS(ctx, session, f)
}

func logCallback(ctx context.Context, session gocqlx.Session, ev migrate.CallbackEvent, name string) error {
	if ev == migrate.BeforeMigration && strings.HasSuffix(name, ".cql") {
		Logger.Info(ctx, "Running migration", "migration", name)
	}
	return nil
}
