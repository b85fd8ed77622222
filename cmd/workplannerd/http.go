// Copyright 2022-2023 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package main

import (
	"net/http"
	"time"

	"github.com/diffeo/go-workplanner/planner"
	"github.com/diffeo/go-workplanner/restserver"
	"github.com/diffeo/go-workplanner/workplan"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"
)

// HTTP serves the workplanner REST interface.
type HTTP struct {
	Planner     *planner.Planner
	Store       workplan.Store
	Laddr       string
	LogRequests bool
}

// Serve runs an HTTP server on the specified local address.  This
// serves connections forever, or until the listener fails.
func (h *HTTP) Serve() error {
	r := mux.NewRouter()
	restserver.PopulateRouter(r, h.Planner, h.Store)
	r.Handle("/metrics", promhttp.Handler())

	n := negroni.New(negroni.NewRecovery())
	if h.LogRequests {
		n.Use(negroni.HandlerFunc(logRequest))
	}
	n.UseHandler(r)

	return http.ListenAndServe(h.Laddr, n)
}

func logRequest(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	start := time.Now()
	next(w, r)
	logrus.WithFields(logrus.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"duration": time.Since(start),
	}).Debug("Handled request")
}
