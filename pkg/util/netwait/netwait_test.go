// Copyright (C) 2017 ScyllaDB

package netwait

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/scylladb/go-log"
)

// liveAddr starts a listener for the duration of the test and returns its
// address.
func liveAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		l.Close()
	})
	return l.Addr().String()
}

// deadAddr returns an address nothing listens on.
func deadAddr(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func testWaiter() Waiter {
	return Waiter{
		RetryBackoff: 10 * time.Millisecond,
		MaxAttempts:  3,
		Logger:       log.NewDevelopment(),
	}
}

func TestWaiterWaitAnyAddr(t *testing.T) {
	w := testWaiter()

	table := []struct {
		Name  string
		Addrs func(t *testing.T) []string
		Error bool
	}{
		{
			Name:  "no addresses",
			Addrs: func(t *testing.T) []string { return nil },
		},
		{
			Name:  "single live address",
			Addrs: func(t *testing.T) []string { return []string{liveAddr(t)} },
		},
		{
			Name: "live address after a dead one",
			Addrs: func(t *testing.T) []string {
				return []string{deadAddr(t), liveAddr(t)}
			},
		},
		{
			Name: "all addresses dead",
			Addrs: func(t *testing.T) []string {
				return []string{deadAddr(t), deadAddr(t)}
			},
			Error: true,
		},
	}

	for i := range table {
		test := table[i]

		t.Run(test.Name, func(t *testing.T) {
			_, err := w.WaitAnyAddr(context.Background(), test.Addrs(t)...)
			if test.Error && err == nil {
				t.Fatal("Expected error")
			}
			if !test.Error && err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestWaiterRetriesUntilEndpointIsUp(t *testing.T) {
	w := testWaiter()
	w.MaxAttempts = 100

	addr := deadAddr(t)

	done := make(chan error, 1)
	go func() {
		_, err := w.WaitAnyAddr(context.Background(), addr)
		done <- err
	}()

	time.Sleep(5 * w.RetryBackoff)

	l, err := net.Listen("tcp", addr)
	if err != nil {
		t.Skip("Address rebind failed", err)
	}
	defer l.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(10 * w.RetryBackoff):
		t.Fatal("Retry timeout")
	}
}

func TestWaiterWaitAnyHostPortStripsPort(t *testing.T) {
	addr := liveAddr(t)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}

	w := testWaiter()
	h, err := w.WaitAnyHostPort(context.Background(), []string{host}, port)
	if err != nil {
		t.Fatal(err)
	}
	if h != host {
		t.Fatalf("WaitAnyHostPort() = %s, expected %s", h, host)
	}
}

func TestWaiterGivesUpAfterMaxAttempts(t *testing.T) {
	w := testWaiter()

	_, err := w.WaitAnyAddr(context.Background(), deadAddr(t))
	if err == nil {
		t.Fatal("Expected error")
	}
}
