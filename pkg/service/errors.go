// Copyright (C) 2017 ScyllaDB

package service

import (
	"github.com/gocql/gocql"
	"github.com/pkg/errors"
)

// Common errors
var (
	// ErrNotFound is returned when an object was not found.
	ErrNotFound = gocql.ErrNotFound

	// ErrNilPtr is returned on nil receivers and parameters.
	ErrNilPtr = errors.New("nil")
)

type errValidate struct {
	err error
}

func (e errValidate) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

// ErrValidate marks error as a validation error, it should be returned on
// malformed requests and bad parameters.
func ErrValidate(err error) error {
	if err == nil {
		return nil
	}
	return errValidate{err: err}
}

// IsErrValidate checks if given error is a validation error.
func IsErrValidate(err error) bool {
	_, ok := errors.Cause(err).(errValidate) // nolint: errorlint
	return ok
}
