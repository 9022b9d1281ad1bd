package jobs

// Worker count limits
const (
	MinWorkers = 1
	MaxWorkers = 6
)

// Frames sampled per video
const (
	MinFrameCount = 1
	MaxFrameCount = 60
)

// ClampWorkerCount ensures the worker count is within valid bounds.
func ClampWorkerCount(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// IsValidFrameCount returns true if n frames may be sampled per video.
func IsValidFrameCount(n int) bool {
	return n >= MinFrameCount && n <= MaxFrameCount
}
