package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gwlsn/strikelab/internal/backend"
	"github.com/gwlsn/strikelab/internal/browse"
	"github.com/gwlsn/strikelab/internal/config"
	"github.com/gwlsn/strikelab/internal/handoff"
	"github.com/gwlsn/strikelab/internal/jobs"
	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/techniques"
)

// Handler provides HTTP API handlers
type Handler struct {
	queue      *jobs.Queue
	workerPool *jobs.WorkerPool
	handoffs   handoff.Store
	library    *browse.Browser // nil when no reference library is configured
	backend    *backend.Client

	cfgMu   sync.RWMutex
	cfg     *config.Config
	cfgPath string
}

// NewHandler creates a new API handler. library may be nil.
func NewHandler(queue *jobs.Queue, workerPool *jobs.WorkerPool, handoffs handoff.Store, library *browse.Browser, client *backend.Client, cfg *config.Config, cfgPath string) *Handler {
	return &Handler{
		queue:      queue,
		workerPool: workerPool,
		handoffs:   handoffs,
		library:    library,
		backend:    client,
		cfg:        cfg,
		cfgPath:    cfgPath,
	}
}

// response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDataNotFound reports a missing or expired handoff
func writeDataNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, handoff.ErrDataNotFound.Error())
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Techniques handles GET /api/techniques?category=...
func (h *Handler) Techniques(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"categories": techniques.Categories,
			"levels":     techniques.Levels,
			"techniques": techniques.All(),
			"grouped":    techniques.Grouped(),
		})
		return
	}

	list, err := techniques.ByCategory(techniques.Category(category))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category":   category,
		"techniques": list,
	})
}

// References handles GET /api/references?path=...
func (h *Handler) References(w http.ResponseWriter, r *http.Request) {
	if h.library == nil {
		writeError(w, http.StatusNotFound, "no reference library configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := h.library.Browse(ctx, r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ReferenceVideos handles GET /api/references/videos, a flat listing of the library
func (h *Handler) ReferenceVideos(w http.ResponseWriter, r *http.Request) {
	if h.library == nil {
		writeError(w, http.StatusNotFound, "no reference library configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	videos, err := h.library.Videos(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"videos": videos,
		"count":  len(videos),
	})
}

// ClearReferenceCache handles POST /api/references/cache/clear?path=...
// Without a path the whole probe cache is dropped.
func (h *Handler) ClearReferenceCache(w http.ResponseWriter, r *http.Request) {
	if h.library == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		h.library.ClearCache()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared"})
		return
	}

	abs, _, err := h.library.Resolve(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.library.InvalidateCache(abs)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cache cleared", "path": path})
}

// GetConfig handles GET /api/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workers":         h.workerPool.WorkerCount(),
		"frame_count":     h.cfg.FrameCount,
		"max_frame_count": h.cfg.MaxFrameCount,
		"log_level":       logger.Level(),
		"seek_timeout":    h.cfg.SeekTimeout.String(),
		"signals":         h.cfg.Signals,
		"differences":     h.cfg.Differences,
		"handoff_backend": h.cfg.HandoffBackend,
		"has_library":     h.library != nil,
		"backend_url":     h.backend.BaseURL(),
	})
}

// UpdateConfigRequest is the request body for updating config
type UpdateConfigRequest struct {
	Workers    *int    `json:"workers,omitempty"`
	FrameCount *int    `json:"frame_count,omitempty"`
	LogLevel   *string `json:"log_level,omitempty"`
}

// UpdateConfig handles PUT /api/config
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()

	if req.FrameCount != nil {
		n := *req.FrameCount
		if !jobs.IsValidFrameCount(n) || n > h.cfg.MaxFrameCount {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("frame_count must be between %d and %d", jobs.MinFrameCount, h.cfg.MaxFrameCount))
			return
		}
	}
	if req.LogLevel != nil {
		switch *req.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			writeError(w, http.StatusBadRequest, "log_level must be one of debug, info, warn, error")
			return
		}
	}

	if req.FrameCount != nil {
		h.cfg.FrameCount = *req.FrameCount
	}
	if req.LogLevel != nil {
		h.cfg.LogLevel = *req.LogLevel
		logger.SetLevel(*req.LogLevel)
	}
	if req.Workers != nil && *req.Workers > 0 {
		workers := jobs.ClampWorkerCount(*req.Workers)
		h.cfg.Workers = workers
		// Dynamically resize the worker pool
		h.workerPool.Resize(workers)
	}

	// Persist config to disk
	if h.cfgPath != "" {
		if err := h.cfg.Save(h.cfgPath); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save config: %v", err))
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// frameDefaults returns the configured default and maximum frame counts
func (h *Handler) frameDefaults() (def, maxFrames int) {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.cfg.FrameCount, h.cfg.MaxFrameCount
}
