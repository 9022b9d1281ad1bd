package compare

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

// SignalProvider derives the motion signals for a pair of aligned sequences.
// Both slices have the same non-zero length.
type SignalProvider interface {
	Signals(user, reference []sampler.SampledFrame) Signals
}

// FixedSignals always returns the same values.
type FixedSignals Signals

func (f FixedSignals) Signals(_, _ []sampler.SampledFrame) Signals {
	return Signals(f)
}

// RandomSignals draws signals from a seeded source in the demo ranges
// hip rotation [0.6, 1.0) and movement speed [0.7, 1.0).
type RandomSignals struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSignals returns a RandomSignals seeded with seed.
func NewRandomSignals(seed uint64) *RandomSignals {
	return &RandomSignals{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomSignals) Signals(_, _ []sampler.SampledFrame) Signals {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Signals{
		HipRotation:   0.6 + r.rng.Float64()*0.4,
		MovementSpeed: 0.7 + r.rng.Float64()*0.3,
	}
}

// KinematicSignals compares how much the user's hip line rotates and how fast
// the wrists travel against the reference. Sequences without both hips in any
// frame are measured on the shoulder line instead. Each signal is the ratio of
// the smaller to the larger measure, so identical motion scores 1.
type KinematicSignals struct{}

func (KinematicSignals) Signals(user, reference []sampler.SampledFrame) Signals {
	return Signals{
		HipRotation:   ratio(rotationSpan(user), rotationSpan(reference)),
		MovementSpeed: ratio(wristSpeed(user), wristSpeed(reference)),
	}
}

// rotationSpan is the range of hip-line angles across frames, in radians,
// falling back to the shoulder line when no frame has both hips.
func rotationSpan(frames []sampler.SampledFrame) float64 {
	if span, ok := lineSpan(frames, pose.LeftHip, pose.RightHip); ok {
		return span
	}
	span, _ := lineSpan(frames, pose.LeftShoulder, pose.RightShoulder)
	return span
}

// lineSpan is the range of angles of the line from left to right over the
// frames holding both joints. ok is false when no frame holds both.
func lineSpan(frames []sampler.SampledFrame, left, right string) (float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range frames {
		l, okL := pose.Find(f.Keypoints, left)
		r, okR := pose.Find(f.Keypoints, right)
		if !okL || !okR {
			continue
		}
		a := math.Atan2(r.Y-l.Y, r.X-l.X)
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	if math.IsInf(lo, 1) {
		return 0, false
	}
	return hi - lo, true
}

// wristSpeed is the mean wrist displacement per second between consecutive frames.
func wristSpeed(frames []sampler.SampledFrame) float64 {
	var sum float64
	var n int
	for i := 1; i < len(frames); i++ {
		dt := (frames[i].Timestamp - frames[i-1].Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		prev := pose.Index(frames[i-1].Keypoints)
		for _, name := range []string{pose.LeftWrist, pose.RightWrist} {
			a, okA := prev[name]
			b, okB := pose.Find(frames[i].Keypoints, name)
			if !okA || !okB {
				continue
			}
			sum += distance(a, b) / dt
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ratio returns min/max of two non-negative measures; two zero measures are identical.
func ratio(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	return math.Min(a, b) / math.Max(a, b)
}
