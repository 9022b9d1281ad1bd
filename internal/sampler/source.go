package sampler

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Video is a seekable visual stream. Seek returns a channel that is closed
// once the requested position is the current frame; it may never close.
type Video interface {
	Duration() time.Duration
	NaturalSize() (width, height int)
	Seek(ctx context.Context, t time.Duration) <-chan struct{}
	Frame() image.Image
}

// Source guards a Video so that only one sampling pass seeks it at a time.
type Source struct {
	Name  string
	video Video
	sem   *semaphore.Weighted
	gen   atomic.Uint64
}

// NewSource wraps video for sampling.
func NewSource(name string, video Video) *Source {
	return &Source{
		Name:  name,
		video: video,
		sem:   semaphore.NewWeighted(1),
	}
}

// Video returns the wrapped video.
func (s *Source) Video() Video {
	return s.video
}

// Generation returns how many sampling passes have acquired the source.
func (s *Source) Generation() uint64 {
	return s.gen.Load()
}

// acquire blocks until no other pass holds the source, or ctx is done.
func (s *Source) acquire(ctx context.Context) (uint64, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	return s.gen.Add(1), nil
}

// Busy reports whether a sampling pass currently holds the source.
func (s *Source) Busy() bool {
	if s.sem.TryAcquire(1) {
		s.sem.Release(1)
		return false
	}
	return true
}

func (s *Source) release() {
	s.sem.Release(1)
}
