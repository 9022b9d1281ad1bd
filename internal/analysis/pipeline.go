package analysis

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/ffmpeg"
	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/metrics"
	"github.com/gwlsn/strikelab/internal/sampler"
	"github.com/gwlsn/strikelab/internal/tracing"
)

// Phase names a step of Pipeline.Run.
type Phase string

const (
	PhaseOpening           Phase = "opening"
	PhaseSamplingUser      Phase = "sampling_user"
	PhaseSamplingReference Phase = "sampling_reference"
	PhaseComparing         Phase = "comparing"
	PhaseDone              Phase = "done"
)

// Video is a sampler.Video that holds resources until closed.
type Video interface {
	sampler.Video
	Close() error
}

// VideoOpener opens a video file for sampling.
type VideoOpener interface {
	Open(ctx context.Context, path string) (Video, error)
}

// FFmpegOpener opens videos with ffprobe and decodes frames with ffmpeg.
type FFmpegOpener struct {
	Prober     *ffmpeg.Prober
	FFmpegPath string
}

func (o FFmpegOpener) Open(ctx context.Context, path string) (Video, error) {
	d, err := ffmpeg.OpenDecoder(ctx, o.Prober, o.FFmpegPath, path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Request describes one analysis run.
type Request struct {
	UserPath      string
	ReferencePath string
	FrameCount    int
}

// Pipeline samples both videos and produces a report.
type Pipeline struct {
	opener  VideoOpener
	sampler *sampler.Sampler
	engine  *compare.Engine
}

// NewPipeline creates a Pipeline.
func NewPipeline(opener VideoOpener, s *sampler.Sampler, engine *compare.Engine) *Pipeline {
	return &Pipeline{opener: opener, sampler: s, engine: engine}
}

// Run samples the user video then the reference video and returns the
// session holding both sequences and the report. onPhase, if set, is called
// as each phase starts. A sampling failure aborts the run; the caller may
// retry.
func (p *Pipeline) Run(ctx context.Context, req Request, onPhase func(Phase)) (Session, error) {
	ctx, span := tracing.Tracer("analysis").Start(ctx, "analysis.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("frame_count", req.FrameCount),
		attribute.String("user_path", req.UserPath),
		attribute.String("reference_path", req.ReferencePath),
	)

	notify := func(ph Phase) {
		if onPhase != nil {
			onPhase(ph)
		}
	}

	ctrl := NewController(p.engine)

	for _, step := range []struct {
		side  Side
		path  string
		phase Phase
	}{
		{SideUser, req.UserPath, PhaseSamplingUser},
		{SideReference, req.ReferencePath, PhaseSamplingReference},
	} {
		notify(step.phase)
		frames, err := p.sampleFile(ctx, step.side, step.path, req.FrameCount)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ctrl.Session(), fmt.Errorf("sample %s video: %w", step.side, err)
		}

		if step.side == SideReference {
			notify(PhaseComparing)
		}
		start := time.Now()
		if _, err := ctrl.SetFrames(step.side, frames); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ctrl.Session(), err
		}
		if step.side == SideReference {
			metrics.StageDuration.WithLabelValues("compare").Observe(time.Since(start).Seconds())
		}
	}

	session := ctrl.Session()
	if session.Report != nil {
		span.SetAttributes(
			attribute.Int("form_score", session.Report.FormScore),
			attribute.Int("power_score", session.Report.PowerScore),
			attribute.Int("explosiveness_score", session.Report.ExplosivenessScore),
		)
	}
	notify(PhaseDone)
	return session, nil
}

func (p *Pipeline) sampleFile(ctx context.Context, side Side, path string, frameCount int) ([]sampler.SampledFrame, error) {
	ctx, span := tracing.Tracer("analysis").Start(ctx, "analysis.sample")
	defer span.End()
	span.SetAttributes(attribute.String("side", string(side)))

	start := time.Now()
	video, err := p.opener.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer video.Close()

	frames, err := p.sampler.WithSide(string(side)).Sample(ctx, sampler.NewSource(string(side), video), frameCount)
	if err != nil {
		return nil, err
	}

	metrics.StageDuration.WithLabelValues("sample_" + string(side)).Observe(time.Since(start).Seconds())

	bestEffort := 0
	for _, f := range frames {
		if f.BestEffort {
			bestEffort++
		}
	}
	span.SetAttributes(attribute.Int("frames", len(frames)), attribute.Int("best_effort_frames", bestEffort))
	logger.Debug("Sampled video", "side", side, "path", path, "frames", len(frames), "best_effort", bestEffort)
	return frames, nil
}
