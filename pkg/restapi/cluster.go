// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"context"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"github.com/reaperd/reaperd/pkg/cluster"
	"github.com/reaperd/reaperd/pkg/util/uuid"
)

type clusterFilter struct {
	svc ClusterService
}

func (h clusterFilter) clusterCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clusterName := chi.URLParam(r, "cluster_name")
		if clusterName == "" {
			respondBadRequest(w, r, errors.New("missing cluster name"))
			return
		}

		c, err := h.svc.GetCluster(r.Context(), clusterName)
		if err != nil {
			respondError(w, r, errors.Wrapf(err, "load cluster %q", clusterName))
			return
		}

		ctx := context.WithValue(r.Context(), ctxCluster, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type clusterHandler struct {
	svc    ClusterService
	repair RepairService
}

func newClusterHandler(services Services) *chi.Mux {
	m := chi.NewMux()
	h := clusterHandler{
		svc:    services.Cluster,
		repair: services.Repair,
	}

	m.Get("/", h.listClusters)
	m.Post("/", h.addCluster)

	m.Route("/{cluster_name}", func(r chi.Router) {
		r.Use(clusterFilter{svc: services.Cluster}.clusterCtx)
		r.Get("/", h.describeCluster)
		r.Delete("/", h.deleteCluster)
		r.Get("/keyspaces/{keyspace_name}", h.loadKeyspace)
		r.Mount("/units", newUnitHandler(services))
		r.Mount("/runs", newRunHandler(services))
	})

	return m
}

func (h clusterHandler) listClusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.svc.ListClusters(r.Context())
	if err != nil {
		respondError(w, r, errors.Wrap(err, "list clusters"))
		return
	}

	if len(clusters) == 0 {
		render.Respond(w, r, []struct{}{})
		return
	}
	render.Respond(w, r, clusters)
}

func (h clusterHandler) addCluster(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.AddCluster(r.Context(), r.FormValue("seedHost"))
	if err != nil {
		respondError(w, r, errors.Wrap(err, "add cluster"))
		return
	}

	location := r.URL.ResolveReference(&url.URL{
		Path: path.Join("clusters", c.Name),
	})
	w.Header().Set("Location", location.String())
	w.WriteHeader(http.StatusCreated)
}

// clusterView is the describe response, the stored record and live schema
// together with ids of the repair resources held for the cluster.
type clusterView struct {
	*cluster.Description
	UnitIDs []uuid.UUID `json:"unit_ids"`
	RunIDs  []uuid.UUID `json:"run_ids"`
}

func (h clusterHandler) describeCluster(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	d, err := h.svc.Describe(r.Context(), c.Name)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "describe cluster %q", c.Name))
		return
	}

	units, err := h.repair.ListUnits(r.Context(), c.Name)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "list cluster %q units", c.Name))
		return
	}
	runs, err := h.repair.ListRuns(r.Context(), c.Name)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "list cluster %q runs", c.Name))
		return
	}

	v := clusterView{
		Description: d,
		UnitIDs:     make([]uuid.UUID, 0, len(units)),
		RunIDs:      make([]uuid.UUID, 0, len(runs)),
	}
	for _, u := range units {
		v.UnitIDs = append(v.UnitIDs, u.ID)
	}
	for _, run := range runs {
		v.RunIDs = append(v.RunIDs, run.ID)
	}
	render.Respond(w, r, v)
}

func (h clusterHandler) deleteCluster(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	if err := h.svc.RemoveCluster(r.Context(), c.Name); err != nil {
		respondError(w, r, errors.Wrapf(err, "delete cluster %q", c.Name))
		return
	}
}

func (h clusterHandler) loadKeyspace(w http.ResponseWriter, r *http.Request) {
	c := mustClusterFromCtx(r)

	keyspace := chi.URLParam(r, "keyspace_name")
	if keyspace == "" {
		respondBadRequest(w, r, errors.New("missing keyspace name"))
		return
	}

	tables, err := h.svc.Keyspace(r.Context(), c.Name, keyspace)
	if err != nil {
		respondError(w, r, errors.Wrapf(err, "load keyspace %q", keyspace))
		return
	}

	render.Respond(w, r, cluster.KeyspaceInfo{Name: keyspace, Tables: tables})
}
