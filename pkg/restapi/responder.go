// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/util/httplog"
	"github.com/scylladb/go-log"
)

// responder is installed as render.Respond, it intercepts errors handed to
// render and turns them into json error bodies carrying the request trace
// id. Errors not wrapped in httpError come out as 500.
func responder(w http.ResponseWriter, r *http.Request, v interface{}) {
	switch t := v.(type) {
	case *httpError:
		httplog.RequestLoggerSetRequestError(r, t)
		render.Status(r, t.StatusCode)
		render.DefaultResponder(w, r, t)
	case error:
		herr := &httpError{
			StatusCode: http.StatusInternalServerError,
			Message:    errors.Wrap(t, "unexpected error, consult logs").Error(),
			TraceID:    log.TraceID(r.Context()),
		}
		httplog.RequestLoggerSetRequestError(r, t)
		render.Status(r, herr.StatusCode)
		render.DefaultResponder(w, r, herr)
	default:
		render.DefaultResponder(w, r, v)
	}
}
