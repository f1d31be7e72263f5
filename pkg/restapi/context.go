// Copyright (C) 2017 ScyllaDB

package restapi

import (
	"net/http"

	"github.com/reaperd/reaperd/pkg/cluster"
)

// ctxt is a context key type.
type ctxt byte

const (
	ctxCluster ctxt = iota
)

func mustClusterFromCtx(r *http.Request) *cluster.Cluster {
	c, ok := r.Context().Value(ctxCluster).(*cluster.Cluster)
	if !ok {
		panic("missing cluster in context")
	}
	return c
}
