// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reaperd/reaperd/pkg/util/httphandler"
	"github.com/reaperd/reaperd/pkg/util/httplog"
	"github.com/scylladb/go-log"
)

func init() {
	render.Respond = responder
}

// New returns an http.Handler implementing reaperd v1 REST API.
func New(services Services, logger log.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		httplog.TraceID,
		httplog.RequestLogger(logger),
		render.SetContentType(render.ContentTypeJSON),
	)

	r.Get("/ping", httphandler.Heartbeat())
	r.Get("/version", httphandler.Version())

	r.Mount("/api/v1/clusters", newClusterHandler(services))
	r.Mount("/api/v1/schedules", newScheduleHandler(services.Schedule))

	// NotFound registered last due to https://github.com/go-chi/chi/issues/297
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.Context(), "Request path not found", "path", r.URL.Path)
		render.Respond(w, r, &httpError{
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("find endpoint for path %s - make sure api-url is correct", r.URL.Path),
			TraceID:    log.TraceID(r.Context()),
		})
	})

	return r
}

// NewPrometheus returns an http.Handler exposing Prometheus metrics on
// '/metrics'.
func NewPrometheus() http.Handler {
	r := chi.NewRouter()

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
