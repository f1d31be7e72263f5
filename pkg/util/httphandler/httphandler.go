// Copyright (C) 2017 ScyllaDB

// Package httphandler provides free standing handlers for utility endpoints.
package httphandler

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/reaperd/reaperd/pkg"
)

// Heartbeat answers liveness probes with 204 and no body.
func Heartbeat() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// Version reports the version of the running binary.
func Version() http.HandlerFunc {
	type info struct {
		Version string `json:"version"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		render.Respond(w, r, info{Version: pkg.Version()})
	}
}
