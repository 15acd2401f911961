package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kirillkom/docrouter/internal/config"
	"github.com/kirillkom/docrouter/internal/core/ports"
	"github.com/kirillkom/docrouter/internal/observability/metrics"
)

type Router struct {
	ingestUC    ports.DocumentIngestor
	reader      ports.RunReader
	cfg         config.APIConfig
	metrics     http.Handler
	httpMetrics *metrics.HTTPServerMetrics
	health      func(context.Context) map[string]string
}

func NewRouter(
	ingestUC ports.DocumentIngestor,
	reader ports.RunReader,
	cfg config.APIConfig,
	metricsHandler http.Handler,
	httpMetrics *metrics.HTTPServerMetrics,
	health func(context.Context) map[string]string,
) *Router {
	return &Router{
		ingestUC:    ingestUC,
		reader:      reader,
		cfg:         cfg,
		metrics:     metricsHandler,
		httpMetrics: httpMetrics,
		health:      health,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/runs/", rt.getRunByID)
	mux.HandleFunc("/v1/stats", rt.getStats)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics)
	}

	var handler http.Handler = mux
	if rt.cfg.MaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.QueueWait.Std())
	}
	if rt.cfg.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	}
	handler = accessLogMiddleware(handler, rt.httpMetrics)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if rt.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	components := rt.health(r.Context())
	status := http.StatusOK
	for _, state := range components {
		if state != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, status, components)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	sync := r.URL.Query().Get("mode") == "sync"

	run, err := rt.ingestUC.Ingest(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
		sync,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	status := http.StatusAccepted
	if sync {
		status = http.StatusOK
	}
	writeJSON(w, status, run)
}

func (rt *Router) getRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "run id is required"})
		return
	}

	run, err := rt.reader.GetRun(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) getStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.reader.Stats(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
