package handoff

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SweepUploads removes files directly under dir that were last written
// before now minus maxAge. Files for which inUse reports true are kept, as
// is anything outside dir such as library references.
func SweepUploads(dir string, maxAge time.Duration, now time.Time, inUse func(path string) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read upload dir: %w", err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if inUse != nil && inUse(path) {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// RemoveBlobs deletes the files behind refs, ignoring ones already gone.
func RemoveBlobs(refs ...BlobRef) error {
	var errs []error
	for _, ref := range refs {
		if ref.IsZero() {
			continue
		}
		if err := os.Remove(ref.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
