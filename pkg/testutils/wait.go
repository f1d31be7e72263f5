// Copyright (C) 2017 ScyllaDB

package testutils

import (
	"testing"
	"time"
)

// WaitCond polls cond every interval and fails the test when it does not
// become true within wait. Zero wait checks the condition exactly once.
func WaitCond(t *testing.T, cond func() bool, interval, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in %s", wait)
		}
		time.Sleep(interval)
	}
}
