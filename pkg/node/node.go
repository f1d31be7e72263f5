// Copyright (C) 2017 ScyllaDB

// Package node provides access to the management interface of cluster nodes.
// It defines the narrow surface the repair orchestration consumes, transport
// implementations plug in behind the Proxy and Provider interfaces.
package node

import (
	"context"
	"fmt"
)

// CommandStatus is the status of a repair command reported by a node.
type CommandStatus string

// CommandStatus enumeration, mirrors the node side repair notifications.
const (
	CommandStarted        CommandStatus = "STARTED"
	CommandSessionSuccess CommandStatus = "SESSION_SUCCESS"
	CommandSessionFailed  CommandStatus = "SESSION_FAILED"
	CommandFinished       CommandStatus = "FINISHED"
)

func (s CommandStatus) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s CommandStatus) MarshalText() (text []byte, err error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *CommandStatus) UnmarshalText(text []byte) error {
	switch CommandStatus(text) {
	case CommandStarted:
		*s = CommandStarted
	case CommandSessionSuccess:
		*s = CommandSessionSuccess
	case CommandSessionFailed:
		*s = CommandSessionFailed
	case CommandFinished:
		*s = CommandFinished
	default:
		return fmt.Errorf("unrecognized CommandStatus %q", text)
	}
	return nil
}

// Event is a single repair status notification issued by a node. CommandID
// correlates the event with a TriggerRepair call.
type Event struct {
	CommandID int32
	Status    CommandStatus
	Message   string
}

// StatusHandler receives repair status notifications. Notifications are
// delivered on arbitrary goroutines, implementations must be safe for
// concurrent use and must not block.
type StatusHandler func(ev Event)

// Parallelism specifies how repair sessions are run on replicas, it is set
// per repair run and passed through to the nodes.
type Parallelism string

// Parallelism enumeration.
const (
	ParallelismSequential Parallelism = "SEQUENTIAL"
	ParallelismParallel   Parallelism = "PARALLEL"
)

func (p Parallelism) String() string {
	return string(p)
}

// MarshalText implements encoding.TextMarshaler.
func (p Parallelism) MarshalText() (text []byte, err error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Parallelism) UnmarshalText(text []byte) error {
	switch Parallelism(text) {
	case ParallelismSequential:
		*p = ParallelismSequential
	case ParallelismParallel:
		*p = ParallelismParallel
	default:
		return fmt.Errorf("unrecognized Parallelism %q", text)
	}
	return nil
}

// TokenRange is a half open interval [StartToken, EndToken) in the token ring.
type TokenRange struct {
	StartToken int64 `json:"start_token"`
	EndToken   int64 `json:"end_token"`
}

// Contains returns true if token belongs to the range.
func (r TokenRange) Contains(token int64) bool {
	return r.StartToken <= token && token < r.EndToken
}

// Overlaps returns true if the ranges share at least one token. Both ranges
// must be normalized, i.e. not wrap around the ring minimum.
func (r TokenRange) Overlaps(o TokenRange) bool {
	return r.StartToken < o.EndToken && o.StartToken < r.EndToken
}

func (r TokenRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.StartToken, r.EndToken)
}

// Proxy is a management connection to a single node. All calls are subject to
// the connection state, use IsConnectionAlive to probe before reuse.
type Proxy interface {
	// ClusterName returns the name of the cluster the node belongs to.
	ClusterName(ctx context.Context) (string, error)
	// Partitioner returns the fully qualified name of the cluster partitioner.
	Partitioner(ctx context.Context) (string, error)
	// Tokens returns all the tokens of the ring the node sees.
	Tokens(ctx context.Context) ([]int64, error)
	// Keyspaces returns the keyspace names of the cluster.
	Keyspaces(ctx context.Context) ([]string, error)
	// Tables returns the table names of a keyspace.
	Tables(ctx context.Context, keyspace string) ([]string, error)
	// TokenRangeEndpoints returns hosts storing the token range ordered by
	// preference, the first entry is the natural coordinator candidate.
	TokenRangeEndpoints(ctx context.Context, keyspace string, r TokenRange) ([]string, error)
	// TriggerRepair starts a repair of the token range on the node and
	// returns the node assigned command id without waiting for the repair to
	// run. Progress is reported through the StatusHandler registered at
	// connect time.
	TriggerRepair(ctx context.Context, r TokenRange, keyspace string, p Parallelism, tables []string) (int32, error)
	// IsConnectionAlive tells if the connection can still be used.
	IsConnectionAlive() bool
	// Close releases the connection.
	Close() error
}

// Provider creates management connections to nodes. Connect is meant for
// administrative calls, ConnectWithHandler registers a StatusHandler for
// repair notifications issued over the connection lifetime.
type Provider interface {
	Connect(ctx context.Context, host string) (Proxy, error)
	ConnectWithHandler(ctx context.Context, handler StatusHandler, host string) (Proxy, error)
}
