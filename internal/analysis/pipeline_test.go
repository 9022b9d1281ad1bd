package analysis

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

type instantClock struct{}

func (instantClock) Now() time.Time { return time.Unix(0, 0) }
func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

type stubVideo struct {
	duration time.Duration
	closed   bool
}

func (v *stubVideo) Duration() time.Duration { return v.duration }
func (v *stubVideo) NaturalSize() (int, int) { return 32, 24 }
func (v *stubVideo) Frame() image.Image      { return image.NewRGBA(image.Rect(0, 0, 32, 24)) }
func (v *stubVideo) Close() error            { v.closed = true; return nil }
func (v *stubVideo) Seek(context.Context, time.Duration) <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

type stubOpener struct {
	mu     sync.Mutex
	videos map[string]*stubVideo
	opened []string
}

func (o *stubOpener) Open(_ context.Context, path string) (Video, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, path)
	v, ok := o.videos[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return v, nil
}

func newTestPipeline(opener VideoOpener) *Pipeline {
	s := sampler.New(pose.StaticDetector{}, sampler.Options{Clock: instantClock{}, SettleDelay: time.Millisecond})
	return NewPipeline(opener, s, compare.New(nil, nil))
}

func TestPipelineRun(t *testing.T) {
	opener := &stubOpener{videos: map[string]*stubVideo{
		"user.mp4": {duration: 10 * time.Second},
		"ref.mp4":  {duration: 6 * time.Second},
	}}

	var phases []Phase
	session, err := newTestPipeline(opener).Run(context.Background(), Request{
		UserPath:      "user.mp4",
		ReferencePath: "ref.mp4",
		FrameCount:    5,
	}, func(p Phase) { phases = append(phases, p) })
	require.NoError(t, err)

	assert.Equal(t, StateReportComputed, session.State())
	assert.Len(t, session.UserFrames, 5)
	assert.Len(t, session.ReferenceFrames, 5)
	assert.Equal(t, 100, session.Report.FormScore)

	userTimes := make([]float64, len(session.UserFrames))
	for i, f := range session.UserFrames {
		userTimes[i] = f.TimestampSeconds()
	}
	assert.Equal(t, []float64{0, 2, 4, 6, 8}, userTimes)
	refTimes := make([]time.Duration, len(session.ReferenceFrames))
	for i, f := range session.ReferenceFrames {
		refTimes[i] = f.Timestamp
	}
	assert.Equal(t, []time.Duration{0, 1200 * time.Millisecond, 2400 * time.Millisecond, 3600 * time.Millisecond, 4800 * time.Millisecond}, refTimes)

	require.Len(t, session.Report.Differences, 3)
	for _, d := range session.Report.Differences {
		assert.Contains(t, []compare.Severity{compare.SeverityGood, compare.SeverityMinor, compare.SeverityModerate}, d.Severity, d.Area)
		assert.NotEmpty(t, d.Description)
	}
	assert.Equal(t, []string{"user.mp4", "ref.mp4"}, opener.opened)
	assert.Equal(t, []Phase{PhaseSamplingUser, PhaseSamplingReference, PhaseComparing, PhaseDone}, phases)
	assert.True(t, opener.videos["user.mp4"].closed)
	assert.True(t, opener.videos["ref.mp4"].closed)
}

func TestPipelineUnreadyReferenceAborts(t *testing.T) {
	opener := &stubOpener{videos: map[string]*stubVideo{
		"user.mp4": {duration: 10 * time.Second},
		"ref.mp4":  {},
	}}

	session, err := newTestPipeline(opener).Run(context.Background(), Request{
		UserPath: "user.mp4", ReferencePath: "ref.mp4", FrameCount: 5,
	}, nil)
	assert.ErrorIs(t, err, sampler.ErrUnreadyMedia)
	assert.Contains(t, err.Error(), "reference")
	assert.Equal(t, StateFramesPartial, session.State())
	assert.Nil(t, session.Report)
}

func TestPipelineOpenFailure(t *testing.T) {
	opener := &stubOpener{videos: map[string]*stubVideo{}}

	_, err := newTestPipeline(opener).Run(context.Background(), Request{
		UserPath: "missing.mp4", ReferencePath: "ref.mp4", FrameCount: 5,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample user video")
	assert.Equal(t, []string{"missing.mp4"}, opener.opened)
}

func TestPipelineInvalidFrameCount(t *testing.T) {
	opener := &stubOpener{videos: map[string]*stubVideo{"user.mp4": {duration: time.Second}}}

	_, err := newTestPipeline(opener).Run(context.Background(), Request{
		UserPath: "user.mp4", ReferencePath: "ref.mp4", FrameCount: 0,
	}, nil)
	assert.ErrorIs(t, err, sampler.ErrInvalidFrameCount)
}
