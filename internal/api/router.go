package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerAPIRoutes registers all API endpoints on the given mux
func registerAPIRoutes(mux *http.ServeMux, h *Handler) {
	// Catalog and reference library
	mux.HandleFunc("GET /api/techniques", h.Techniques)
	mux.HandleFunc("GET /api/references", h.References)
	mux.HandleFunc("GET /api/references/videos", h.ReferenceVideos)
	mux.HandleFunc("POST /api/references/cache/clear", h.ClearReferenceCache)

	// Upload and handoff
	mux.HandleFunc("POST /api/uploads", h.Upload)
	mux.HandleFunc("GET /api/handoff/{token}", h.GetHandoff)

	// Analyses
	mux.HandleFunc("GET /api/analyses", h.ListAnalyses)
	mux.HandleFunc("POST /api/analyses", h.CreateAnalysis)
	mux.HandleFunc("GET /api/analyses/stream", h.AnalysisStream)
	mux.HandleFunc("POST /api/analyses/clear", h.ClearAnalyses)
	mux.HandleFunc("GET /api/analyses/{id}", h.GetAnalysis)
	mux.HandleFunc("DELETE /api/analyses/{id}", h.CancelAnalysis)
	mux.HandleFunc("POST /api/analyses/{id}/retry", h.RetryAnalysis)
	mux.HandleFunc("GET /api/analyses/{id}/frames/{side}/{index}", h.Frame)

	// Analysis service proxy
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	mux.HandleFunc("GET /api/analyze", h.AnalyzeHealth)

	// Configuration
	mux.HandleFunc("GET /api/config", h.GetConfig)
	mux.HandleFunc("PUT /api/config", h.UpdateConfig)
}

// NewRouter creates a new HTTP router with all API endpoints
func NewRouter(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	registerAPIRoutes(mux, h)

	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
