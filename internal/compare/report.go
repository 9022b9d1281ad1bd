package compare

// Severity grades how far a body region deviates from the reference.
type Severity string

const (
	SeverityGood     Severity = "good"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
)

// Difference is one per-region finding.
type Difference struct {
	Area        string   `json:"area"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Signals are the normalized motion measures behind the power and explosiveness scores.
type Signals struct {
	HipRotation   float64 `json:"hip_rotation"`
	MovementSpeed float64 `json:"movement_speed"`
}

// Report is the result of comparing a user sequence with a reference sequence.
// It is derived data and never persisted.
type Report struct {
	FormScore          int          `json:"form_score"`
	PowerScore         int          `json:"power_score"`
	ExplosivenessScore int          `json:"explosiveness_score"`
	Differences        []Difference `json:"differences"`

	FramesCompared       int `json:"frames_compared"`
	FramesWithoutOverlap int `json:"frames_without_overlap"`
	// InvalidFrames counts compared pairs where either frame lacks a
	// pose.Required keypoint.
	InvalidFrames int     `json:"invalid_frames"`
	Signals       Signals `json:"signals"`
}

// Score bounds
const (
	MinScore = 0
	MaxScore = 100
)

// ClampScore keeps a score within [MinScore, MaxScore].
func ClampScore(n int) int {
	if n < MinScore {
		return MinScore
	}
	if n > MaxScore {
		return MaxScore
	}
	return n
}
