// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/service"
	"github.com/scylladb/go-log"
)

// httpError is a wrapper holding an error, HTTP status code and a user-facing
// message.
type httpError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	TraceID    string `json:"trace_id"`
}

func (e *httpError) Error() string {
	return e.Message
}

func newHTTPError(r *http.Request, statusCode int, message string) *httpError {
	return &httpError{
		StatusCode: statusCode,
		Message:    message,
		TraceID:    log.TraceID(r.Context()),
	}
}

func respondBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	render.Respond(w, r, newHTTPError(r, http.StatusBadRequest, errors.Wrap(err, "malformed request").Error()))
}

// respondError maps service errors to status codes: unknown resources to
// 404, duplicate clusters to 403, validation faults to 400, the rest to
// 500.
// nolint: errorlint
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var herr *httpError

	switch cause := errors.Cause(err); {
	case cause == service.ErrNotFound:
		herr = newHTTPError(r, http.StatusNotFound, errors.Wrap(err, "get resource").Error())
	case cause == cluster.ErrClusterExists:
		herr = newHTTPError(r, http.StatusForbidden, err.Error())
	case service.IsErrValidate(cause):
		herr = newHTTPError(r, http.StatusBadRequest, err.Error())
	default:
		herr = newHTTPError(r, http.StatusInternalServerError, err.Error())
	}

	render.Respond(w, r, herr)
}
