package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raft-election/internal/raft/metrics"
	"raft-election/internal/raft/server"
)

type statusSource interface {
	Status() server.Status
}

// newRouter serves the node status, the election report and the Prometheus metrics of a node
func newRouter(node statusSource, gatherer prometheus.Gatherer, report *metrics.Metrics, clusterSize int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, node.Status())
	})
	r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, report.GetReport(clusterSize))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
