package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gwlsn/strikelab/internal/logger"
)

// Decoder exposes a video file as a seekable single-frame source.
// Only one seek is in flight at a time: starting a new seek cancels the
// previous one, and a result from a superseded seek is discarded.
type Decoder struct {
	ffmpegPath string
	probe      *ProbeResult

	mu      sync.Mutex
	current image.Image
	gen     uint64
	cancel  context.CancelFunc
}

// OpenDecoder probes path and returns a Decoder for it. A file whose
// duration cannot be determined still opens; callers check Duration.
func OpenDecoder(ctx context.Context, prober *Prober, ffmpegPath, path string) (*Decoder, error) {
	probe, err := prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", path, err)
	}
	return NewDecoder(ffmpegPath, probe), nil
}

// NewDecoder creates a Decoder from an existing probe result.
func NewDecoder(ffmpegPath string, probe *ProbeResult) *Decoder {
	return &Decoder{ffmpegPath: ffmpegPath, probe: probe}
}

// Duration returns the probed duration, or 0 when unknown.
func (d *Decoder) Duration() time.Duration {
	if !d.probe.HasDuration() {
		return 0
	}
	return d.probe.Duration
}

// NaturalSize returns the video's coded dimensions, or zeros when unknown.
func (d *Decoder) NaturalSize() (int, int) {
	return d.probe.Width, d.probe.Height
}

// Seek decodes the frame at t in the background. The returned channel is
// closed once that frame is current; it is never closed if decoding fails
// or the seek is superseded, so callers must pair it with a timeout.
func (d *Decoder) Seek(ctx context.Context, t time.Duration) <-chan struct{} {
	done := make(chan struct{})

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.gen++
	gen := d.gen
	seekCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		img, err := d.decodeAt(seekCtx, t)
		if err != nil {
			if seekCtx.Err() == nil {
				logger.Debug("Frame decode failed", "path", d.probe.Path, "position", t.String(), "error", err)
			}
			return
		}

		d.mu.Lock()
		stale := d.gen != gen
		if !stale {
			d.current = img
		}
		d.mu.Unlock()

		if !stale {
			close(done)
		}
	}()

	return done
}

// Frame returns the most recently decoded frame, or nil before the first seek completes.
func (d *Decoder) Frame() image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Close cancels any in-flight seek.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	return nil
}

func (d *Decoder) decodeAt(ctx context.Context, t time.Duration) (image.Image, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, frameArgs(d.probe.Path, t)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %s", t)
	}

	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// frameArgs builds the ffmpeg arguments that write the single frame at t to stdout as PNG.
// Input seeking (-ss before -i) jumps to the nearest keyframe then decodes forward.
func frameArgs(path string, t time.Duration) []string {
	return []string{
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", t.Seconds()),
		"-i", path,
		"-frames:v", "1",
		"-an", "-sn",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	}
}
