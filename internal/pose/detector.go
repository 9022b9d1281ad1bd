package pose

import (
	"context"
	"image"
)

// Detector extracts keypoints from a still image. Implementations wrap an
// external pose-estimation capability and must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Keypoint, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Keypoint, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Keypoint, error) {
	return f(ctx, img)
}

// StaticDetector returns the same upper-body layout for every image.
// It stands in for a real model until one is wired up.
type StaticDetector struct{}

// Detect returns a fresh copy of StaticLayout.
func (StaticDetector) Detect(ctx context.Context, _ image.Image) ([]Keypoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Keypoint, len(StaticLayout))
	copy(out, StaticLayout)
	return out, nil
}

// StaticLayout is the constant pose returned by StaticDetector.
var StaticLayout = []Keypoint{
	{Name: LeftShoulder, X: 0.3, Y: 0.4, Confidence: 0.9},
	{Name: RightShoulder, X: 0.7, Y: 0.4, Confidence: 0.9},
	{Name: LeftElbow, X: 0.2, Y: 0.6, Confidence: 0.8},
	{Name: RightElbow, X: 0.8, Y: 0.6, Confidence: 0.8},
	{Name: LeftWrist, X: 0.1, Y: 0.8, Confidence: 0.7},
	{Name: RightWrist, X: 0.9, Y: 0.8, Confidence: 0.7},
}
