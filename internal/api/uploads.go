package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/gwlsn/strikelab/internal/browse"
	"github.com/gwlsn/strikelab/internal/ffmpeg"
	"github.com/gwlsn/strikelab/internal/handoff"
	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/techniques"
)

// maxMemory is how much of a multipart form is kept in memory before spilling to disk
const maxMemory = 32 << 20

// UploadResponse is returned by a successful upload
type UploadResponse struct {
	Token           string          `json:"token"`
	UserVideo       handoff.BlobRef `json:"user_video"`
	ReferenceVideo  handoff.BlobRef `json:"reference_video"`
	Technique       string          `json:"technique,omitempty"`
	ExperienceLevel string          `json:"experience_level,omitempty"`
}

// Upload handles POST /api/uploads
// Fields: user_video (file), reference_video (file) or reference (library path),
// technique, experience_level.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	h.cfgMu.RLock()
	limit := h.cfg.MaxUploadBytes()
	dir := h.cfg.UploadDir()
	h.cfgMu.RUnlock()

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %s", humanize.IBytes(uint64(limit))))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	technique, err := techniques.ValidateSelection(r.FormValue("technique"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	level, err := techniques.ParseLevel(r.FormValue("experience_level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	userFile, userHeader, err := r.FormFile("user_video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No user video provided")
		return
	}
	defer userFile.Close()

	// The reference is either uploaded or picked from the library
	var reference handoff.BlobRef
	refFile, refHeader, refErr := r.FormFile("reference_video")
	switch {
	case refErr == nil:
		defer refFile.Close()
	case r.FormValue("reference") != "":
		reference, err = h.libraryReference(r.FormValue("reference"))
		if err != nil {
			if errors.Is(err, browse.ErrOutsideLibrary) || errors.Is(err, browse.ErrNotVideo) || errors.Is(err, os.ErrNotExist) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "No reference video provided")
		return
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create upload directory: %v", err))
		return
	}

	user, err := saveUpload(dir, userFile, userHeader)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	// Files written by this request, removed again if the handoff is not stored
	saved := []handoff.BlobRef{user}
	if reference.IsZero() {
		reference, err = saveUpload(dir, refFile, refHeader)
		if err != nil {
			handoff.RemoveBlobs(saved...)
			writeUploadError(w, err)
			return
		}
		saved = append(saved, reference)
	}

	token, err := h.handoffs.Put(r.Context(), handoff.Handoff{
		UserVideo:       user,
		ReferenceVideo:  reference,
		Technique:       technique,
		ExperienceLevel: string(level),
	})
	if err != nil {
		if rmErr := handoff.RemoveBlobs(saved...); rmErr != nil {
			logger.Warn("Failed to remove orphaned uploads", "error", rmErr)
		}
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to store upload: %v", err))
		return
	}

	logger.Info("Videos uploaded",
		"token", token,
		"user_video", user.Name,
		"user_size", humanize.IBytes(uint64(user.Size)),
		"reference_video", reference.Name,
		"reference_size", humanize.IBytes(uint64(reference.Size)),
		"technique", technique,
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		Token:           token,
		UserVideo:       publicRef(user),
		ReferenceVideo:  publicRef(reference),
		Technique:       technique,
		ExperienceLevel: string(level),
	})
}

// errUnsupportedVideo is returned for uploads without a video extension
var errUnsupportedVideo = errors.New("unsupported video format")

func writeUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnsupportedVideo) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// saveUpload copies one uploaded file into dir under a unique name
func saveUpload(dir string, src multipart.File, header *multipart.FileHeader) (handoff.BlobRef, error) {
	name := filepath.Base(header.Filename)
	if !ffmpeg.IsVideoFile(name) {
		return handoff.BlobRef{}, fmt.Errorf("%w: %s", errUnsupportedVideo, name)
	}

	path := filepath.Join(dir, uuid.NewString()+"-"+name)
	dst, err := os.Create(path)
	if err != nil {
		return handoff.BlobRef{}, fmt.Errorf("create %s: %w", name, err)
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return handoff.BlobRef{}, fmt.Errorf("save %s: %w", name, err)
	}

	return handoff.BlobRef{Path: path, Name: name, Size: size}, nil
}

// libraryReference points a handoff at a reference library file
func (h *Handler) libraryReference(path string) (handoff.BlobRef, error) {
	if h.library == nil {
		return handoff.BlobRef{}, fmt.Errorf("%w: no reference library configured", browse.ErrOutsideLibrary)
	}
	abs, info, err := h.library.Resolve(path)
	if err != nil {
		return handoff.BlobRef{}, err
	}
	return handoff.BlobRef{Path: abs, Name: info.Name(), Size: info.Size()}, nil
}

// HandoffSummary is what the analysis page learns about an upload
type HandoffSummary struct {
	Token           string          `json:"token"`
	UserVideo       handoff.BlobRef `json:"user_video"`
	ReferenceVideo  handoff.BlobRef `json:"reference_video"`
	Technique       string          `json:"technique,omitempty"`
	ExperienceLevel string          `json:"experience_level,omitempty"`
}

// GetHandoff handles GET /api/handoff/{token}
func (h *Handler) GetHandoff(w http.ResponseWriter, r *http.Request) {
	resolved, err := handoff.Resolve(r.Context(), h.handoffs, r.PathValue("token"))
	if err != nil {
		if errors.Is(err, handoff.ErrDataNotFound) {
			logger.Debug("Handoff not resolved", "error", err)
			writeDataNotFound(w)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, HandoffSummary{
		Token:           resolved.Token,
		UserVideo:       publicRef(resolved.UserVideo),
		ReferenceVideo:  publicRef(resolved.ReferenceVideo),
		Technique:       resolved.Technique,
		ExperienceLevel: resolved.ExperienceLevel,
	})
}

// publicRef hides the on-disk location of a blob
func publicRef(b handoff.BlobRef) handoff.BlobRef {
	b.Path = ""
	return b
}
