package api

import (
	"errors"
	"net/http"

	"github.com/gwlsn/strikelab/internal/backend"
	"github.com/gwlsn/strikelab/internal/logger"
)

// Analyze handles POST /api/analyze by forwarding the "video" field to the
// analysis service
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	limit := h.cfg.MaxUploadBytes()
	h.cfgMu.RUnlock()

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No video file provided")
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	logger.Debug("Forwarding video to analysis service", "file", header.Filename, "size", header.Size)

	data, err := h.backend.Analyze(r.Context(), header.Filename, file)
	if err != nil {
		var svcErr *backend.ServiceError
		if errors.As(err, &svcErr) {
			writeError(w, svcErr.StatusCode, svcErr.Message)
			return
		}
		logger.Error("Analysis service request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// AnalyzeHealth handles GET /api/analyze
func (h *Handler) AnalyzeHealth(w http.ResponseWriter, r *http.Request) {
	status, err := h.backend.Health(r.Context())
	if err != nil {
		logger.Warn("Analysis service health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "Backend connection failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"backend_status":  status,
		"frontend_status": "healthy",
	})
}
