// Copyright (C) 2017 ScyllaDB

package parallel

import (
	"go.uber.org/multierr"
)

// NoLimit runs all function calls at once.
const NoLimit = 0

// Run calls f(0), f(1), ..., f(n-1) on at most limit goroutines at a time
// and returns the combined errors of all calls. Limit NoLimit runs all
// calls at once.
func Run(n, limit int, f func(i int) error) error {
	if limit <= 0 || limit > n {
		limit = n
	}

	work := make(chan int)
	go func() {
		for i := 0; i < n; i++ {
			work <- i
		}
		close(work)
	}()

	results := make(chan error)
	for j := 0; j < limit; j++ {
		go func() {
			for i := range work {
				results <- f(i)
			}
		}()
	}

	var errs error
	for i := 0; i < n; i++ {
		errs = multierr.Append(errs, <-results)
	}
	return errs
}
