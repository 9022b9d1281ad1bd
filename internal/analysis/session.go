// Package analysis drives one comparison from sampling to report.
package analysis

import (
	"errors"
	"fmt"

	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/sampler"
)

// State is the progress of a Session.
type State string

const (
	StateFramesAbsent   State = "frames_absent"
	StateFramesPartial  State = "frames_partial"
	StateFramesReady    State = "frames_ready"
	StateReportComputed State = "report_computed"
)

// Side identifies which video a frame sequence came from.
type Side string

const (
	SideUser      Side = "user"
	SideReference Side = "reference"
)

// ParseSide validates a side name.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideUser, SideReference:
		return Side(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSide, s)
}

var (
	ErrUnknownSide = errors.New("unknown video side")
	ErrEmptyFrames = errors.New("frame sequence is empty")
	ErrNotReady    = errors.New("session does not have frames from both videos")
)

// Session holds the frames and report of one analysis. Transitions return a
// new Session and leave the receiver untouched.
type Session struct {
	UserFrames      []sampler.SampledFrame
	ReferenceFrames []sampler.SampledFrame
	Report          *compare.Report
}

// State derives the session's state from what it holds.
func (s Session) State() State {
	switch {
	case s.Report != nil:
		return StateReportComputed
	case len(s.UserFrames) > 0 && len(s.ReferenceFrames) > 0:
		return StateFramesReady
	case len(s.UserFrames) > 0 || len(s.ReferenceFrames) > 0:
		return StateFramesPartial
	default:
		return StateFramesAbsent
	}
}

// Frames returns the sequence for side.
func (s Session) Frames(side Side) []sampler.SampledFrame {
	if side == SideReference {
		return s.ReferenceFrames
	}
	return s.UserFrames
}

// WithFrames stores frames for side, replacing any earlier sequence. A stale
// report is dropped; callers holding both sequences recompute it.
func (s Session) WithFrames(side Side, frames []sampler.SampledFrame) (Session, error) {
	if len(frames) == 0 {
		return s, fmt.Errorf("%w: %s", ErrEmptyFrames, side)
	}
	next := s
	switch side {
	case SideUser:
		next.UserFrames = frames
	case SideReference:
		next.ReferenceFrames = frames
	default:
		return s, fmt.Errorf("%w: %q", ErrUnknownSide, side)
	}
	next.Report = nil
	return next, nil
}

// WithReport attaches a report. Both sequences must be present.
func (s Session) WithReport(report *compare.Report) (Session, error) {
	if len(s.UserFrames) == 0 || len(s.ReferenceFrames) == 0 {
		return s, ErrNotReady
	}
	next := s
	next.Report = report
	return next, nil
}
