// Package pose defines the keypoint vocabulary shared by the sampler, the
// comparison engine and the overlay renderer, plus the detector capability
// that produces keypoints from a still image.
package pose

// Keypoint is a named, normalized 2D anatomical landmark.
// X and Y are fractions of the frame width and height.
type Keypoint struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Vocabulary names. A detector may return any subset of these.
const (
	Nose          = "nose"
	LeftShoulder  = "left_shoulder"
	RightShoulder = "right_shoulder"
	LeftElbow     = "left_elbow"
	RightElbow    = "right_elbow"
	LeftWrist     = "left_wrist"
	RightWrist    = "right_wrist"
	LeftHip       = "left_hip"
	RightHip      = "right_hip"
	LeftKnee      = "left_knee"
	RightKnee     = "right_knee"
	LeftAnkle     = "left_ankle"
	RightAnkle    = "right_ankle"
)

// Vocabulary lists every keypoint name a frame may carry, in display order.
var Vocabulary = []string{
	Nose,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
}

// Required is the subset a frame must contain to be considered valid.
var Required = []string{LeftShoulder, RightShoulder}

// Connection is a skeleton edge between two named joints.
type Connection struct {
	From string
	To   string
}

// Connections is the skeleton drawn on overlays.
var Connections = []Connection{
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
}

// DrawConfidence is the minimum confidence for a point to be drawn.
const DrawConfidence = 0.5

var known = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Vocabulary))
	for _, name := range Vocabulary {
		m[name] = struct{}{}
	}
	return m
}()

// IsKnown reports whether name is part of the vocabulary.
func IsKnown(name string) bool {
	_, ok := known[name]
	return ok
}

// Sanitize drops names outside the vocabulary and repeated names (the first
// occurrence wins), and clamps coordinates and confidence into [0,1].
// The input slice is not modified.
func Sanitize(points []Keypoint) []Keypoint {
	out := make([]Keypoint, 0, len(points))
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if !IsKnown(p.Name) {
			continue
		}
		if _, dup := seen[p.Name]; dup {
			continue
		}
		seen[p.Name] = struct{}{}
		p.X = clamp01(p.X)
		p.Y = clamp01(p.Y)
		p.Confidence = clamp01(p.Confidence)
		out = append(out, p)
	}
	return out
}

// HasRequired reports whether every name in Required is present.
func HasRequired(points []Keypoint) bool {
	for _, name := range Required {
		if _, ok := Find(points, name); !ok {
			return false
		}
	}
	return true
}

// Find returns the keypoint with the given name.
func Find(points []Keypoint, name string) (Keypoint, bool) {
	for _, p := range points {
		if p.Name == name {
			return p, true
		}
	}
	return Keypoint{}, false
}

// Index maps keypoint names to points.
func Index(points []Keypoint) map[string]Keypoint {
	m := make(map[string]Keypoint, len(points))
	for _, p := range points {
		m[p.Name] = p
	}
	return m
}

func clamp01(v float64) float64 {
	if v != v { // NaN
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
