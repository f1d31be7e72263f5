// Copyright (C) 2017 ScyllaDB

// Package netwait blocks until a TCP endpoint starts accepting connections.
package netwait

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/scylladb/go-log"
	"go.uber.org/multierr"
)

// Waiter polls a set of addresses until one of them accepts a TCP
// connection, making up to MaxAttempts polls RetryBackoff apart.
type Waiter struct {
	RetryBackoff time.Duration
	MaxAttempts  int
	Logger       log.Logger
}

// DefaultWaiter tolerates about 2 minutes of endpoint downtime.
var DefaultWaiter = Waiter{
	RetryBackoff: 2 * time.Second,
	MaxAttempts:  60,
}

// AnyHostPort waits with DefaultWaiter, see Waiter.WaitAnyHostPort.
func AnyHostPort(ctx context.Context, hosts []string, port string) (string, error) {
	return DefaultWaiter.WaitAnyHostPort(ctx, hosts, port)
}

// WaitAnyHostPort returns the first of hosts that accepted a TCP connection
// on the given port, polling until the waiter gives up.
func (w Waiter) WaitAnyHostPort(ctx context.Context, hosts []string, port string) (string, error) {
	addrs := make([]string, len(hosts))
	for i, h := range hosts {
		addrs[i] = net.JoinHostPort(h, port)
	}

	addr, err := w.WaitAnyAddr(ctx, addrs...)
	if err != nil {
		return "", err
	}
	host, _, err := net.SplitHostPort(addr)
	return host, err
}

// WaitAnyAddr returns the first of addrs that accepted a TCP connection,
// polling until the waiter gives up.
func (w Waiter) WaitAnyAddr(ctx context.Context, addrs ...string) (string, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		addr, err := dialAny(addrs)
		if err == nil {
			return addr, nil
		}
		lastErr = err

		if attempt+1 >= w.MaxAttempts {
			break
		}

		w.Logger.Info(ctx, "Waiting for network connection",
			"sleep", w.RetryBackoff,
			"error", err,
		)
		select {
		case <-time.After(w.RetryBackoff):
		case <-ctx.Done():
			return "", lastErr
		}
	}

	return "", errors.Wrapf(lastErr, "giving up after %d attempts", w.MaxAttempts)
}

// dialAny tries the addresses in order and returns the first that accepts a
// connection, or the combined dial errors when none does. No addresses is
// an immediate success.
func dialAny(addrs []string) (string, error) {
	var errs error
	for _, addr := range addrs {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return addr, nil
		}
		errs = multierr.Append(errs, err)
	}
	return "", errs
}
