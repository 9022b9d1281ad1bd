// Package handoff carries an upload from the upload step to the analysis
// step under an opaque token.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a handoff survives without being resolved.
const DefaultTTL = 30 * time.Minute

// ErrDataNotFound is returned when a token, a blob reference or the file
// behind it is missing. It is the user-visible "data-not-found" state.
var ErrDataNotFound = errors.New("data-not-found")

// BlobRef points at an uploaded file on disk.
type BlobRef struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// IsZero reports whether the reference is unset.
func (b BlobRef) IsZero() bool {
	return b.Path == ""
}

// Handoff is the data the upload step leaves for the analysis step.
type Handoff struct {
	UserVideo       BlobRef   `json:"user_video"`
	ReferenceVideo  BlobRef   `json:"reference_video"`
	Technique       string    `json:"technique,omitempty"`
	ExperienceLevel string    `json:"experience_level,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store keeps handoffs for a limited time. Implementations must be safe for
// concurrent use. Get returns ErrDataNotFound for unknown or expired tokens.
type Store interface {
	Put(ctx context.Context, h Handoff) (string, error)
	Get(ctx context.Context, token string) (*Handoff, error)
	Delete(ctx context.Context, token string) error
	Close() error
}

// NewToken returns a fresh opaque token.
func NewToken() string {
	return uuid.NewString()
}

// notFound wraps ErrDataNotFound with what was missing.
func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataNotFound, fmt.Sprintf(format, args...))
}

// Resolved is a handoff whose files were confirmed present.
type Resolved struct {
	Handoff
	Token         string
	UserInfo      os.FileInfo
	ReferenceInfo os.FileInfo
}

// Resolve looks up token and checks that both uploaded files still exist.
// Any missing piece is ErrDataNotFound.
func Resolve(ctx context.Context, store Store, token string) (*Resolved, error) {
	if token == "" {
		return nil, notFound("empty token")
	}
	h, err := store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	r := &Resolved{Handoff: *h, Token: token}
	for _, blob := range []struct {
		label string
		ref   BlobRef
		info  *os.FileInfo
	}{
		{"user video", h.UserVideo, &r.UserInfo},
		{"reference video", h.ReferenceVideo, &r.ReferenceInfo},
	} {
		if blob.ref.IsZero() {
			return nil, notFound("%s not recorded", blob.label)
		}
		info, err := os.Stat(blob.ref.Path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, notFound("%s missing: %s", blob.label, blob.ref.Name)
			}
			return nil, fmt.Errorf("stat %s: %w", blob.label, err)
		}
		if info.IsDir() {
			return nil, notFound("%s is not a file: %s", blob.label, blob.ref.Name)
		}
		*blob.info = info
	}
	return r, nil
}
