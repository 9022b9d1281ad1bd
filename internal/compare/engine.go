// Package compare scores a user's technique against a reference by
// comparing keypoints frame by frame.
package compare

import (
	"errors"
	"fmt"
	"math"

	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

// ErrIncompleteInput is returned when either frame sequence is empty
var ErrIncompleteInput = errors.New("comparison requires frames from both videos")

// Power and explosiveness adjustments
const (
	powerBase         = 75
	explosivenessBase = 80
)

// Engine computes comparison reports. The zero value is not usable; use New.
type Engine struct {
	signals SignalProvider
	regions RegionAnalyzer
}

// New creates an Engine. Nil arguments select KinematicSignals and PlaceholderRegions.
func New(signals SignalProvider, regions RegionAnalyzer) *Engine {
	if signals == nil {
		signals = KinematicSignals{}
	}
	if regions == nil {
		regions = PlaceholderRegions{}
	}
	return &Engine{signals: signals, regions: regions}
}

// Compare pairs frames by position, truncated to the shorter sequence, and
// builds the report. Either sequence being empty is ErrIncompleteInput.
func (e *Engine) Compare(user, reference []sampler.SampledFrame) (*Report, error) {
	if len(user) == 0 || len(reference) == 0 {
		return nil, fmt.Errorf("%w (user=%d, reference=%d)", ErrIncompleteInput, len(user), len(reference))
	}

	n := min(len(user), len(reference))
	user, reference = user[:n], reference[:n]

	var total float64
	var withoutOverlap, invalid int
	for i := 0; i < n; i++ {
		sim, ok := FrameSimilarity(user[i].Keypoints, reference[i].Keypoints)
		if !ok {
			withoutOverlap++
		}
		if !pose.HasRequired(user[i].Keypoints) || !pose.HasRequired(reference[i].Keypoints) {
			invalid++
		}
		total += sim
	}

	signals := e.signals.Signals(user, reference)

	return &Report{
		FormScore:            ClampScore(int(math.Round(total / float64(n) * 100))),
		PowerScore:           PowerScore(signals.HipRotation),
		ExplosivenessScore:   ExplosivenessScore(signals.MovementSpeed),
		Differences:          e.regions.Differences(user, reference),
		FramesCompared:       n,
		FramesWithoutOverlap: withoutOverlap,
		InvalidFrames:        invalid,
		Signals:              signals,
	}, nil
}

// FrameSimilarity averages max(0, 1-distance) over keypoint names present in
// both frames. With no shared names it returns 0 and false.
func FrameSimilarity(user, reference []pose.Keypoint) (float64, bool) {
	ref := pose.Index(reference)

	var sum float64
	var shared int
	for _, u := range user {
		r, ok := ref[u.Name]
		if !ok {
			continue
		}
		sum += math.Max(0, 1-distance(u, r))
		shared++
	}
	if shared == 0 {
		return 0, false
	}
	return sum / float64(shared), true
}

// PowerScore maps the hip-rotation signal to a score.
func PowerScore(hipRotation float64) int {
	score := powerBase
	switch {
	case hipRotation > 0.8:
		score += 15
	case hipRotation > 0.6:
		score += 10
	default:
		score -= 10
	}
	return ClampScore(score)
}

// ExplosivenessScore maps the movement-speed signal to a score.
func ExplosivenessScore(movementSpeed float64) int {
	score := explosivenessBase
	switch {
	case movementSpeed > 0.9:
		score += 15
	case movementSpeed > 0.7:
		score += 10
	default:
		score -= 15
	}
	return ClampScore(score)
}

func distance(a, b pose.Keypoint) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
