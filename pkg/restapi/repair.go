// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/node"
	"github.com/reaperd/reaperd/pkg/repair"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

type repairHandler struct {
	svc    RepairService
	runner RepairRunner
}

func newUnitHandler(services Services) *chi.Mux {
	m := chi.NewMux()
	h := repairHandler{
		svc:    services.Repair,
		runner: services.Runner,
	}

	m.Get("/", h.listUnits)
	m.Post("/", h.createUnit)
	m.Get("/{unit_id}", h.loadUnit)
	m.Post("/{unit_id}/runs", h.createRun)

	return m
}

func newRunHandler(services Services) *chi.Mux {
	m := chi.NewMux()
	h := repairHandler{
		svc:    services.Repair,
		runner: services.Runner,
	}

	m.Get("/", h.listRuns)
	m.Get("/{run_id}", h.loadRun)
	m.Get("/{run_id}/progress", h.runProgress)

	return m
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	v := chi.URLParam(r, name)
	if v == "" {
		return uuid.Nil, errors.Errorf("missing %s", name)
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, errors.Errorf("invalid %s %q", name, v)
	}
	return id, nil
}

func (h repairHandler) listUnits(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	units, err := h.svc.ListUnits(r.Context(), c.Name)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "list cluster %q units", c.Name))
		return
	}

	if len(units) == 0 {
		render.Respond(w, r, []struct{}{})
		return
	}
	render.Respond(w, r, units)
}

func (h repairHandler) createUnit(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	var u repair.Unit
	if err := render.DecodeJSON(r.Body, &u); err != nil {
		respondBadRequest(w, r, err)
		return
	}
	u.ClusterName = c.Name

	if err := h.svc.PutUnit(r.Context(), &u); err != nil {
		respondError(w, r, errors.Wrap(err, "create unit"))
		return
	}

	location := r.URL.ResolveReference(&url.URL{
		Path: path.Join("units", u.ID.String()),
	})
	w.Header().Set("Location", location.String())
	render.Status(r, http.StatusCreated)
	render.Respond(w, r, &u)
}

func (h repairHandler) loadUnit(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	unitID, err := uuidParam(r, "unit_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	u, err := h.svc.GetUnit(r.Context(), c.Name, unitID)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "load unit %q", unitID))
		return
	}
	render.Respond(w, r, u)
}

// runRequest is the create run request body.
type runRequest struct {
	Owner        string           `json:"owner"`
	Cause        string           `json:"cause"`
	SegmentCount int              `json:"segment_count"`
	Parallelism  node.Parallelism `json:"parallelism"`
	Intensity    float64          `json:"intensity"`
}

func (h repairHandler) createRun(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	unitID, err := uuidParam(r, "unit_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	var req runRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondBadRequest(w, r, err)
		return
	}

	// Runs start right away unless the caller asks for a plain registration
	// with start=false.
	start := true
	if v := r.FormValue("start"); v != "" {
		if start, err = strconv.ParseBool(v); err != nil {
			respondBadRequest(w, r, err)
			return
		}
	}

	run, err := h.svc.RegisterRun(r.Context(), c.Name, unitID, repair.RunOptions{
		Owner:        req.Owner,
		Cause:        req.Cause,
		SegmentCount: req.SegmentCount,
		Parallelism:  req.Parallelism,
		Intensity:    req.Intensity,
	})
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "register run of unit %q", unitID))
		return
	}

	if start {
		if run, err = h.runner.StartRun(r.Context(), c.Name, run.ID); err != nil {
			respondError(w, r, errors.Wrapf(err, "start run %q", run.ID))
			return
		}
	}

	location := r.URL.ResolveReference(&url.URL{
		Path: path.Join("..", "..", "runs", run.ID.String()),
	})
	w.Header().Set("Location", location.String())
	render.Status(r, http.StatusCreated)
	render.Respond(w, r, run)
}

func (h repairHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	runs, err := h.svc.ListRuns(r.Context(), c.Name)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "list cluster %q runs", c.Name))
		return
	}

	if len(runs) == 0 {
		render.Respond(w, r, []struct{}{})
		return
	}
	render.Respond(w, r, runs)
}

func (h repairHandler) loadRun(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	runID, err := uuidParam(r, "run_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	run, err := h.svc.GetRun(r.Context(), c.Name, runID)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "load run %q", runID))
		return
	}
	render.Respond(w, r, run)
}

func (h repairHandler) runProgress(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	runID, err := uuidParam(r, "run_id")
	if err != nil {
		respondBadRequest(w, r, err)
		return
	}

	p, err := h.svc.Progress(r.Context(), c.Name, runID)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "load run %q progress", runID))
		return
	}
	render.Respond(w, r, p)
}
