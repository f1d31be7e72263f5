// Copyright (C) 2017 ScyllaDB

package testutils

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/reaperd/reaperd/pkg/schema"
	"github.com/scylladb/gocqlx/v2"
)

var (
	flagCluster  = flag.String("cluster", "127.0.0.1", "a comma-separated list of host:port tuples of the storage cluster")
	flagUser     = flag.String("user", "", "CQL user")
	flagPassword = flag.String("password", "", "CQL password")
)

const testKeyspace = "test_reaperd"

var initOnce sync.Once

// CreateSession recreates the test keyspace, applies the schema migrations
// and returns a session bound to it.
func CreateSession(tb testing.TB) gocqlx.Session {
	tb.Helper()

	cluster := createCluster(strings.Split(*flagCluster, ",")...)
	initOnce.Do(func() {
		createTestKeyspace(tb, cluster, testKeyspace)
	})
	session := createSessionFromCluster(tb, cluster)

	if err := schema.Migrate(context.Background(), session); err != nil {
		tb.Fatal("migrate:", err)
	}
	return session
}

func createCluster(hosts ...string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(hosts...)
	cluster.Timeout = 30 * time.Second
	cluster.Consistency = gocql.Quorum
	cluster.MaxWaitSchemaAgreement = 2 * time.Minute
	if *flagUser != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: *flagUser,
			Password: *flagPassword,
		}
	}
	return cluster
}

func createSessionFromCluster(tb testing.TB, cluster *gocql.ClusterConfig) gocqlx.Session {
	tb.Helper()
	cluster.Keyspace = testKeyspace
	session, err := gocqlx.WrapSession(cluster.CreateSession())
	if err != nil {
		tb.Fatal("create session:", err)
	}
	return session
}

func createTestKeyspace(tb testing.TB, cluster *gocql.ClusterConfig, keyspace string) {
	tb.Helper()

	c := *cluster
	c.Keyspace = "system"
	session, err := gocqlx.WrapSession(c.CreateSession())
	if err != nil {
		tb.Fatal(err)
	}
	defer session.Close()

	ExecStmt(tb, session, "DROP KEYSPACE IF EXISTS "+keyspace)
	ExecStmt(tb, session, fmt.Sprintf("CREATE KEYSPACE %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1}", keyspace))
}

// ExecStmt executes given statement.
func ExecStmt(tb testing.TB, session gocqlx.Session, stmt string) {
	tb.Helper()

	if err := session.ExecStmt(stmt); err != nil {
		tb.Fatal("exec failed", stmt, err)
	}
}
