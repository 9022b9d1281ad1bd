package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

func TestRandomSignalsDeterministicPerSeed(t *testing.T) {
	a, b := NewRandomSignals(42), NewRandomSignals(42)
	for i := 0; i < 20; i++ {
		sa, sb := a.Signals(nil, nil), b.Signals(nil, nil)
		assert.Equal(t, sa, sb)
		assert.GreaterOrEqual(t, sa.HipRotation, 0.6)
		assert.Less(t, sa.HipRotation, 1.0)
		assert.GreaterOrEqual(t, sa.MovementSpeed, 0.7)
		assert.Less(t, sa.MovementSpeed, 1.0)
	}
}

func TestKinematicSignalsIdenticalMotion(t *testing.T) {
	frames := rotatingFrames(0.2, 0.05)
	got := KinematicSignals{}.Signals(frames, frames)
	assert.InDelta(t, 1, got.HipRotation, 1e-9)
	assert.InDelta(t, 1, got.MovementSpeed, 1e-9)
}

func TestKinematicSignalsStaticLayout(t *testing.T) {
	got := KinematicSignals{}.Signals(staticFrames(4), staticFrames(4))
	assert.Equal(t, Signals{HipRotation: 1, MovementSpeed: 1}, got)
}

func TestKinematicSignalsHalfMotion(t *testing.T) {
	user := rotatingFrames(0.1, 0.05)
	ref := rotatingFrames(0.2, 0.1)

	got := KinematicSignals{}.Signals(user, ref)
	// atan(0.5) / atan(1)
	assert.InDelta(t, 0.59, got.HipRotation, 0.01)
	assert.InDelta(t, 0.5, got.MovementSpeed, 1e-6)
}

func TestKinematicSignalsUserStill(t *testing.T) {
	got := KinematicSignals{}.Signals(staticFrames(3), rotatingFrames(0.2, 0.1))
	assert.Zero(t, got.HipRotation)
	assert.Zero(t, got.MovementSpeed)
}

// rotatingFrames tilts the right shoulder down by tilt per frame and moves the
// left wrist right by step per frame.
func rotatingFrames(tilt, step float64) []sampler.SampledFrame {
	frames := make([]sampler.SampledFrame, 3)
	for i := range frames {
		f := float64(i)
		frames[i] = frameWith(i,
			kp(pose.LeftShoulder, 0.3, 0.4),
			kp(pose.RightShoulder, 0.7, 0.4+tilt*f),
			kp(pose.LeftWrist, 0.1+step*f, 0.8),
		)
	}
	return frames
}

func TestKinematicSignalsPrefersHips(t *testing.T) {
	// Shoulders stay level in both; only the user's hips rotate.
	hips := func(tilt float64) []sampler.SampledFrame {
		frames := make([]sampler.SampledFrame, 3)
		for i := range frames {
			f := float64(i)
			frames[i] = frameWith(i,
				kp(pose.LeftShoulder, 0.3, 0.4),
				kp(pose.RightShoulder, 0.7, 0.4),
				kp(pose.LeftHip, 0.35, 0.7),
				kp(pose.RightHip, 0.65, 0.7+tilt*f),
			)
		}
		return frames
	}

	got := KinematicSignals{}.Signals(hips(0), hips(0.1))
	assert.Zero(t, got.HipRotation)

	got = KinematicSignals{}.Signals(hips(0.1), hips(0.1))
	assert.InDelta(t, 1, got.HipRotation, 1e-9)
}
