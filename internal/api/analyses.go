package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/handoff"
	"github.com/gwlsn/strikelab/internal/jobs"
	"github.com/gwlsn/strikelab/internal/pose"
)

// Overlay colors per side
var (
	userColor      = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	referenceColor = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
)

// CreateAnalysisRequest is the request body for starting an analysis
type CreateAnalysisRequest struct {
	Token      string `json:"token"`
	FrameCount int    `json:"frame_count,omitempty"`
}

// CreateAnalysis handles POST /api/analyses
func (h *Handler) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CreateAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	def, maxFrames := h.frameDefaults()
	frames := req.FrameCount
	if frames == 0 {
		frames = def
	}
	if !jobs.IsValidFrameCount(frames) || frames > maxFrames {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("frame_count must be between %d and %d", jobs.MinFrameCount, maxFrames))
		return
	}

	resolved, err := handoff.Resolve(r.Context(), h.handoffs, req.Token)
	if err != nil {
		if errors.Is(err, handoff.ErrDataNotFound) {
			writeDataNotFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job, err := h.queue.Add(jobs.NewJob{
		Token:           resolved.Token,
		UserVideo:       resolved.UserVideo.Name,
		ReferenceVideo:  resolved.ReferenceVideo.Name,
		UserPath:        resolved.UserVideo.Path,
		ReferencePath:   resolved.ReferenceVideo.Path,
		Technique:       resolved.Technique,
		ExperienceLevel: resolved.ExperienceLevel,
		FrameCount:      frames,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// ListAnalyses handles GET /api/analyses
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": h.queue.GetAll(),
		"stats":    h.queue.Stats(),
	})
}

// GetAnalysis handles GET /api/analyses/{id}
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	job := h.queue.Get(r.PathValue("id"))
	if job == nil {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// CancelAnalysis handles DELETE /api/analyses/{id}
// With ?remove=true the analysis is cancelled if still active, then dropped
// from the list.
func (h *Handler) CancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	remove, _ := strconv.ParseBool(r.URL.Query().Get("remove"))
	if remove {
		job := h.queue.Get(id)
		if job == nil {
			writeJobError(w, jobs.ErrJobNotFound)
			return
		}
		if !job.IsTerminal() {
			if err := h.workerPool.CancelJob(id); err != nil && !errors.Is(err, jobs.ErrJobTerminal) {
				writeJobError(w, err)
				return
			}
		}
		h.queue.Remove(id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
		return
	}

	if err := h.workerPool.CancelJob(id); err != nil {
		writeJobError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// RetryAnalysis handles POST /api/analyses/{id}/retry
func (h *Handler) RetryAnalysis(w http.ResponseWriter, r *http.Request) {
	job, err := h.queue.Retry(r.PathValue("id"))
	if err != nil {
		writeJobError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

// ClearAnalyses handles POST /api/analyses/clear?status=...
func (h *Handler) ClearAnalyses(w http.ResponseWriter, r *http.Request) {
	count := h.queue.Clear(jobs.Status(r.URL.Query().Get("status")))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": count,
		"message": fmt.Sprintf("Cleared %d analyses", count),
	})
}

// Frame handles GET /api/analyses/{id}/frames/{side}/{index}
// The index may carry a ".png" suffix.
func (h *Handler) Frame(w http.ResponseWriter, r *http.Request) {
	side, err := analysis.ParseSide(r.PathValue("side"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	index, err := strconv.Atoi(strings.TrimSuffix(r.PathValue("index"), ".png"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid frame index")
		return
	}

	frame, err := h.queue.Frame(r.PathValue("id"), side, index)
	if err != nil {
		writeJobError(w, err)
		return
	}
	if frame.Image == nil {
		writeError(w, http.StatusNotFound, "frame has no image")
		return
	}

	c := userColor
	if side == analysis.SideReference {
		c = referenceColor
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, pose.DrawOverlay(frame.Image, frame.Keypoints, c)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(buf.Bytes())
}

// writeJobError maps queue errors to status codes
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, jobs.ErrFrameNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, jobs.ErrJobTerminal), errors.Is(err, jobs.ErrJobNotRetryable), errors.Is(err, jobs.ErrJobNotRunning):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
