// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/schedule"
)

type scheduleHandler struct {
	svc ScheduleService
}

func newScheduleHandler(svc ScheduleService) *chi.Mux {
	m := chi.NewMux()
	h := scheduleHandler{
		svc: svc,
	}

	m.Get("/", h.listSchedules)
	m.Post("/", h.createSchedule)

	m.Route("/{schedule_id}", func(r chi.Router) {
		r.Get("/", h.loadSchedule)
		r.Delete("/", h.deleteSchedule)
		r.Put("/pause", h.pauseSchedule)
		r.Put("/resume", h.resumeSchedule)
	})

	return m
}

func (h scheduleHandler) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.svc.ListSchedules(r.Context())
	if err != nil {
		respondError(w, r, errors.Wrap(err, "list schedules"))
		return
	}

	if len(schedules) == 0 {
		render.Respond(w, r, []struct{}{})
		return
	}
	render.Respond(w, r, schedules)
}

func (h scheduleHandler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var s schedule.Schedule
	if err := render.DecodeJSON(r.Body, &s); err != nil {
		respondBadRequest(w, r, err)
		return
	}

	if err := h.svc.PutSchedule(r.Context(), &s); err != nil {
		respondError(w, r, errors.Wrap(err, "create schedule"))
		return
	}

	location := r.URL.ResolveReference(&url.URL{
		Path: path.Join("schedules", s.ID.String()),
	})
	w.Header().Set("Location", location.String())
	render.Status(r, http.StatusCreated)
	render.Respond(w, r, &s)
}

func (h scheduleHandler) loadSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "schedule_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	s, err := h.svc.GetSchedule(r.Context(), id)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "load schedule %q", id))
		return
	}
	render.Respond(w, r, s)
}

func (h scheduleHandler) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "schedule_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	if err := h.svc.DeleteSchedule(r.Context(), id); err != nil {
		respondError(w, r, errors.Wrapf(err, "delete schedule %q", id))
		return
	}
}

func (h scheduleHandler) pauseSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "schedule_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	s, err := h.svc.Pause(r.Context(), id)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "pause schedule %q", id))
		return
	}
	render.Respond(w, r, s)
}

func (h scheduleHandler) resumeSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "schedule_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	s, err := h.svc.Resume(r.Context(), id)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "resume schedule %q", id))
		return
	}
	render.Respond(w, r, s)
}
