// Copyright (C) 2017 ScyllaDB

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestPermanent(t *testing.T) {
	t.Parallel()

	table := []struct {
		Name      string
		Err       error
		Permanent bool
	}{
		{
			Name: "plain",
			Err:  errors.New("test error"),
		},
		{
			Name:      "direct",
			Err:       Permanent(errors.New("test error")),
			Permanent: true,
		},
		{
			Name:      "wrapped",
			Err:       errors.Wrap(Permanent(errors.New("test error")), "foo"),
			Permanent: true,
		},
	}

	for i := range table {
		test := table[i]

		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			if got := IsPermanent(test.Err); got != test.Permanent {
				t.Fatalf("IsPermanent() = %v, expected %v", got, test.Permanent)
			}
		})
	}
}

func noBackoff() Backoff {
	return BackoffFunc(func() time.Duration { return 0 })
}

func TestRunStopsOnSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	op := func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	if err := Run(context.Background(), op, noBackoff()); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, expected 3", calls)
	}
}

func TestRunStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	op := func() error {
		calls++
		return Permanent(errors.New("broken"))
	}

	if err := Run(context.Background(), op, noBackoff()); err == nil {
		t.Fatal("Expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, expected 1", calls)
	}
}

func TestWithNotifySeesEveryFailedAttempt(t *testing.T) {
	t.Parallel()

	notified := 0
	op := func() error {
		if notified < 2 {
			return errors.New("not yet")
		}
		return nil
	}
	n := func(err error, wait time.Duration) {
		notified++
	}

	if err := WithNotify(context.Background(), op, WithMaxRetries(noBackoff(), 5), n); err != nil {
		t.Fatal(err)
	}
	if notified != 2 {
		t.Fatalf("notified = %d, expected 2", notified)
	}
}
