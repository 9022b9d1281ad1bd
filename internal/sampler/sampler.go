// Package sampler extracts evenly spaced frames from a video and attaches
// keypoints from a pose detector.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/metrics"
	"github.com/gwlsn/strikelab/internal/pose"
)

const (
	DefaultSeekTimeout = time.Second
	DefaultSettleDelay = 100 * time.Millisecond
	DefaultWidth       = 640
	DefaultHeight      = 480
)

// SampledFrame is one captured frame with its detected keypoints.
type SampledFrame struct {
	Index     int
	Timestamp time.Duration
	Image     *image.RGBA
	Keypoints []pose.Keypoint

	// BestEffort is set when the seek did not settle before the timeout;
	// Image then holds whatever frame the video was showing.
	BestEffort bool
	SeekErr    error

	// Valid is set when the detector found every pose.Required keypoint.
	Valid bool
}

// TimestampSeconds returns the sample position in seconds.
func (f SampledFrame) TimestampSeconds() float64 {
	return f.Timestamp.Seconds()
}

// Options configures a Sampler. Zero values select the defaults.
type Options struct {
	SeekTimeout   time.Duration
	SettleDelay   time.Duration
	DefaultWidth  int
	DefaultHeight int
	Clock         Clock
	// Side labels metrics ("user" or "reference").
	Side string
}

// Sampler produces SampledFrames from a Source.
type Sampler struct {
	detector pose.Detector
	opts     Options
}

// New creates a Sampler using detector for keypoints.
func New(detector pose.Detector, opts Options) *Sampler {
	if opts.SeekTimeout <= 0 {
		opts.SeekTimeout = DefaultSeekTimeout
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.DefaultWidth <= 0 {
		opts.DefaultWidth = DefaultWidth
	}
	if opts.DefaultHeight <= 0 {
		opts.DefaultHeight = DefaultHeight
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if detector == nil {
		detector = pose.StaticDetector{}
	}
	return &Sampler{detector: detector, opts: opts}
}

// WithSide returns a copy of s that labels its metrics with side.
func (s *Sampler) WithSide(side string) *Sampler {
	c := *s
	c.opts.Side = side
	return &c
}

// Timestamps returns the frameCount evenly spaced positions (D/n)*i for i in [0, n).
func Timestamps(duration time.Duration, frameCount int) []time.Duration {
	if frameCount < 1 || duration <= 0 {
		return nil
	}
	step := duration / time.Duration(frameCount)
	out := make([]time.Duration, frameCount)
	for i := range out {
		out[i] = step * time.Duration(i)
	}
	return out
}

// Sample seeks src to frameCount evenly spaced positions in order and
// captures each one. A seek that does not settle within the timeout yields a
// best-effort frame and sampling continues. Only one Sample runs per Source
// at a time; a concurrent call waits for the first to finish.
func (s *Sampler) Sample(ctx context.Context, src *Source, frameCount int) ([]SampledFrame, error) {
	if frameCount < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameCount, frameCount)
	}

	gen, err := src.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer src.release()

	video := src.Video()
	duration := video.Duration()
	if duration <= 0 {
		return nil, UnreadyMediaError(src.Name)
	}

	width, height := video.NaturalSize()
	if width <= 0 || height <= 0 {
		width, height = s.opts.DefaultWidth, s.opts.DefaultHeight
	}

	logger.Debug("Sampling video",
		"source", src.Name,
		"generation", gen,
		"duration", duration.String(),
		"frame_count", frameCount,
		"size", fmt.Sprintf("%dx%d", width, height),
	)

	frames := make([]SampledFrame, 0, frameCount)
	for i, ts := range Timestamps(duration, frameCount) {
		frame, err := s.sampleOne(ctx, src, i, ts, width, height)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}

	metrics.FramesSampledTotal.WithLabelValues(s.side()).Add(float64(len(frames)))
	return frames, nil
}

func (s *Sampler) sampleOne(ctx context.Context, src *Source, index int, ts time.Duration, width, height int) (SampledFrame, error) {
	frame := SampledFrame{Index: index, Timestamp: ts}

	settled := src.Video().Seek(ctx, ts)
	select {
	case <-settled:
		if s.opts.SettleDelay > 0 {
			select {
			case <-s.opts.Clock.After(s.opts.SettleDelay):
			case <-ctx.Done():
				return frame, ctx.Err()
			}
		}
	case <-s.opts.Clock.After(s.opts.SeekTimeout):
		timeoutErr := &SeekTimeoutError{Index: index, Timestamp: ts, Timeout: s.opts.SeekTimeout}
		frame.BestEffort = true
		frame.SeekErr = timeoutErr
		metrics.SeekTimeoutsTotal.Inc()
		logger.Warn("Seek did not settle, using best-effort frame",
			"source", src.Name,
			"frame_index", index,
			"timestamp", ts.String(),
			"timeout", s.opts.SeekTimeout.String(),
		)
	case <-ctx.Done():
		return frame, ctx.Err()
	}

	frame.Image = capture(src.Video().Frame(), width, height)

	points, err := s.detector.Detect(ctx, frame.Image)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return frame, err
		}
		return frame, fmt.Errorf("detect keypoints for frame %d: %w", index, err)
	}
	frame.Keypoints = pose.Sanitize(points)
	frame.Valid = pose.HasRequired(frame.Keypoints)
	if !frame.Valid {
		logger.Debug("Frame is missing required keypoints",
			"source", src.Name,
			"frame_index", index,
			"keypoints", len(frame.Keypoints),
		)
	}

	return frame, nil
}

// capture copies the current frame into a new width x height buffer anchored
// at the origin. A nil frame yields a blank buffer.
func capture(current image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if current != nil {
		draw.Draw(dst, dst.Bounds(), current, current.Bounds().Min, draw.Src)
	}
	return dst
}

func (s *Sampler) side() string {
	if s.opts.Side == "" {
		return "unknown"
	}
	return s.opts.Side
}
