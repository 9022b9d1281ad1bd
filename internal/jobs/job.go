package jobs

import (
	"time"

	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/compare"
)

// Status represents the current state of a job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is one analysis of a user video against a reference video
type Job struct {
	ID              string `json:"id"`
	Token           string `json:"token"` // Handoff token the job was created from
	UserVideo       string `json:"user_video"`
	ReferenceVideo  string `json:"reference_video"`
	UserPath        string `json:"-"`
	ReferencePath   string `json:"-"`
	Technique       string `json:"technique,omitempty"`
	ExperienceLevel string `json:"experience_level,omitempty"`
	FrameCount      int    `json:"frame_count"`

	Status   Status         `json:"status"`
	Phase    analysis.Phase `json:"phase,omitempty"`
	State    analysis.State `json:"state"`
	Error    string         `json:"error,omitempty"`
	Attempts int            `json:"attempts"`

	Report           *compare.Report `json:"report,omitempty"`
	BestEffortFrames int             `json:"best_effort_frames,omitempty"` // Frames captured after a seek timeout
	ElapsedMs        int64           `json:"elapsed_ms,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Sampled frames, kept for overlays
	session analysis.Session
}

// IsTerminal returns true if the job is in a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed || j.Status == StatusCancelled
}

// CanRetry reports whether the job may be queued again
func (j *Job) CanRetry() bool {
	return j.Status == StatusFailed || j.Status == StatusCancelled
}

// Request builds the pipeline request for the job
func (j *Job) Request() analysis.Request {
	return analysis.Request{
		UserPath:      j.UserPath,
		ReferencePath: j.ReferencePath,
		FrameCount:    j.FrameCount,
	}
}

// Copy returns a shallow copy safe to hand to other goroutines. Frames and
// the report are immutable once set, so they are shared.
func (j *Job) Copy() *Job {
	c := *j
	return &c
}

// Session returns the sampled frames and report of a finished job
func (j *Job) Session() analysis.Session {
	return j.session
}

// JobEvent represents an event for SSE streaming
type JobEvent struct {
	Type string `json:"type"` // "added", "started", "phase", "complete", "failed", "cancelled", "requeued", "removed"
	Job  *Job   `json:"job,omitempty"`
}
