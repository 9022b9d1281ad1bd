package browse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gwlsn/strikelab/internal/ffmpeg"
	"github.com/gwlsn/strikelab/internal/logger"
)

// maxConcurrentProbes bounds ffprobe processes started by one listing
const maxConcurrentProbes = 8

var (
	ErrOutsideLibrary = errors.New("path is outside the reference library")
	ErrNotVideo       = errors.New("not a video file")
)

// Prober reads video metadata. *ffmpeg.Prober implements it.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Entry represents a file or directory in the reference library
type Entry struct {
	Name      string              `json:"name"`
	Path      string              `json:"path"` // relative to the library root
	IsDir     bool                `json:"is_dir"`
	Size      int64               `json:"size"`
	SizeHuman string              `json:"size_human"`
	ModTime   time.Time           `json:"mod_time"`
	VideoInfo *ffmpeg.ProbeResult `json:"video_info,omitempty"`
	FileCount int                 `json:"file_count,omitempty"` // For directories: number of video files
}

// BrowseResult contains the result of browsing a library directory
type BrowseResult struct {
	Path       string   `json:"path"`
	Parent     string   `json:"parent,omitempty"`
	Entries    []*Entry `json:"entries"`
	VideoCount int      `json:"video_count"`
	TotalSize  int64    `json:"total_size"`
	TotalHuman string   `json:"total_human"`
}

// Browser lists professional reference videos under a root directory
type Browser struct {
	prober Prober
	root   string

	// Cache for probe results (path -> result)
	cacheMu sync.RWMutex
	cache   map[string]*ffmpeg.ProbeResult
	flight  singleflight.Group
}

// NewBrowser creates a new Browser with the given prober and library root
func NewBrowser(prober Prober, root string) *Browser {
	// Convert to absolute path for consistent comparisons
	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}
	return &Browser{
		prober: prober,
		root:   absRoot,
		cache:  make(map[string]*ffmpeg.ProbeResult),
	}
}

// Root returns the absolute library root.
func (b *Browser) Root() string {
	return b.root
}

// resolve maps a library-relative (or absolute) path to an absolute path inside the root.
func (b *Browser) resolve(path string) (string, error) {
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(b.root, filepath.FromSlash(path))
	}
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideLibrary, path)
	}
	return abs, nil
}

func (b *Browser) relative(abs string) string {
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// Browse returns the contents of a library directory. Paths outside the
// library fall back to the root.
func (b *Browser) Browse(ctx context.Context, path string) (*BrowseResult, error) {
	dir, err := b.resolve(path)
	if err != nil {
		dir = b.root
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	result := &BrowseResult{
		Path:    b.relative(dir),
		Entries: make([]*Entry, 0, len(entries)),
	}

	// Set parent path (if not at root)
	if dir != b.root {
		result.Parent = b.relative(filepath.Dir(dir))
		if result.Parent == "" {
			result.Parent = "."
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)

	for _, e := range entries {
		// Skip hidden files
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}

		entryPath := filepath.Join(dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}

		entry := &Entry{
			Name:    e.Name(),
			Path:    b.relative(entryPath),
			IsDir:   e.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}

		if e.IsDir() {
			entry.FileCount, entry.Size = countVideos(entryPath)
		} else if ffmpeg.IsVideoFile(e.Name()) {
			g.Go(func() error {
				// Unprobeable files are still listed
				entry.VideoInfo, _ = b.Probe(gctx, entryPath)
				return nil
			})
			result.VideoCount++
			result.TotalSize += info.Size()
		} else {
			continue
		}

		entry.SizeHuman = humanize.Bytes(uint64(entry.Size))
		result.Entries = append(result.Entries, entry)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	result.TotalHuman = humanize.Bytes(uint64(result.TotalSize))

	// Sort entries: directories first, then by name
	sort.Slice(result.Entries, func(i, j int) bool {
		if result.Entries[i].IsDir != result.Entries[j].IsDir {
			return result.Entries[i].IsDir // Directories first
		}
		return strings.ToLower(result.Entries[i].Name) < strings.ToLower(result.Entries[j].Name)
	})

	return result, nil
}

// countVideos counts video files in a directory (non-recursive for speed)
func countVideos(dirPath string) (count int, totalSize int64) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0, 0
	}

	for _, e := range entries {
		if e.IsDir() || !ffmpeg.IsVideoFile(e.Name()) {
			continue
		}
		count++
		if info, err := e.Info(); err == nil {
			totalSize += info.Size()
		}
	}
	return count, totalSize
}

// Videos returns every video in the library, recursively, sorted by path.
func (b *Browser) Videos(ctx context.Context) ([]*Entry, error) {
	var paths []string
	err := filepath.WalkDir(b.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if d.IsDir() {
			if p != b.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if ffmpeg.IsVideoFile(p) && !strings.HasPrefix(d.Name(), ".") {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, p := range paths {
		g.Go(func() error {
			info, err := os.Stat(p)
			if err != nil {
				return nil
			}
			entry := &Entry{
				Name:      filepath.Base(p),
				Path:      b.relative(p),
				Size:      info.Size(),
				SizeHuman: humanize.Bytes(uint64(info.Size())),
				ModTime:   info.ModTime(),
			}
			entry.VideoInfo, _ = b.Probe(gctx, p)
			entries[i] = entry
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := entries[:0]
	for _, e := range entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// Resolve validates that path names a video file inside the library and
// returns its absolute path.
func (b *Browser) Resolve(path string) (string, os.FileInfo, error) {
	abs, err := b.resolve(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, err
	}
	if info.IsDir() || !ffmpeg.IsVideoFile(abs) {
		return "", nil, fmt.Errorf("%w: %s", ErrNotVideo, path)
	}
	return abs, info, nil
}

// Probe returns cached metadata for path. Concurrent probes of the same file
// share one ffprobe run.
func (b *Browser) Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error) {
	b.cacheMu.RLock()
	if result, ok := b.cache[path]; ok {
		b.cacheMu.RUnlock()
		return result, nil
	}
	b.cacheMu.RUnlock()

	v, err, _ := b.flight.Do(path, func() (any, error) {
		result, err := b.prober.Probe(ctx, path)
		if err != nil {
			logger.Debug("Probe failed", "path", path, "error", err)
			return nil, err
		}
		b.cacheMu.Lock()
		b.cache[path] = result
		b.cacheMu.Unlock()
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ffmpeg.ProbeResult), nil
}

// InvalidateCache removes a specific path from the cache
func (b *Browser) InvalidateCache(path string) {
	b.cacheMu.Lock()
	delete(b.cache, path)
	b.cacheMu.Unlock()
}

// ClearCache clears the probe cache
func (b *Browser) ClearCache() {
	b.cacheMu.Lock()
	b.cache = make(map[string]*ffmpeg.ProbeResult)
	b.cacheMu.Unlock()
}
