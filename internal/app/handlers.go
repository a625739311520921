// Package app HTTP handlers for record ingest and monitoring endpoints.
package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"logship/internal/metrics"
	"logship/pkg/types"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (app *App) registerHandlers(router *mux.Router) {
	router.HandleFunc("/v1/records", app.recordsIngestHandler).Methods("POST")
	router.HandleFunc("/healthz", app.healthHandler).Methods("GET")
	router.HandleFunc("/stats", app.statsHandler).Methods("GET")
	router.HandleFunc("/sinks/{name}/restart", app.sinkRestartHandler).Methods("POST")

	if app.config.Metrics.Enabled {
		router.Handle(app.config.Metrics.Path, promhttp.Handler()).Methods("GET")
	}
}

// recordsIngestHandler accepts a JSON array of access records and feeds them
// into the batcher. Ingest never blocks on a slow backend: records the
// batcher cannot queue are counted and reported in the response.
func (app *App) recordsIngestHandler(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var records []types.AccessRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		metrics.IngestRecordsTotal.WithLabelValues("invalid").Inc()
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if len(records) == 0 {
		http.Error(w, "Empty record batch", http.StatusBadRequest)
		return
	}

	accepted := 0
	dropped := 0
	now := time.Now().UTC()
	for i := range records {
		if records[i].Timestamp.IsZero() {
			records[i].Timestamp = now
		}
		if records[i].TraceID == "" {
			records[i].TraceID = uuid.NewString()
		}
		if app.batcher.Add(records[i]) {
			accepted++
		} else {
			dropped++
		}
	}
	metrics.IngestRecordsTotal.WithLabelValues("accepted").Add(float64(accepted))
	metrics.IngestRecordsTotal.WithLabelValues("dropped").Add(float64(dropped))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": accepted,
		"dropped":  dropped,
	})
}

func (app *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(app.startTime).String(),
		"sinks":     app.controller.Names(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// statsHandler returns a snapshot of the batcher counters and the configured
// sinks. Per-sink delivery counters live on the metrics endpoint.
func (app *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"application": map[string]interface{}{
			"name":      app.config.App.Name,
			"uptime":    time.Since(app.startTime).String(),
			"timestamp": time.Now().Unix(),
		},
		"batcher": map[string]interface{}{
			"size":    app.config.Batch.Size,
			"linger":  app.config.Batch.LingerDuration().String(),
			"dropped": app.batcher.Dropped(),
		},
		"sinks": app.controller.Names(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// sinkRestartHandler re-initializes the named sink, picking up credential or
// endpoint changes without restarting the daemon.
func (app *App) sinkRestartHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := app.controller.Restart(r.Context(), name); err != nil {
		http.Error(w, fmt.Sprintf("Restart failed: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "success",
		"sink":   name,
	})
}
