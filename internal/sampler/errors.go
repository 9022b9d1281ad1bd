package sampler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidFrameCount is returned when fewer than one frame is requested
	ErrInvalidFrameCount = errors.New("frame count must be at least 1")

	// ErrUnreadyMedia is returned when the video has no decodable duration yet
	ErrUnreadyMedia = errors.New("media not ready: unknown duration")

	// ErrSeekTimeout matches any SeekTimeoutError via errors.Is
	ErrSeekTimeout = errors.New("seek timed out")
)

// SeekTimeoutError records a seek that did not settle before the fallback
// timeout. It is not fatal; the frame captured after it is best effort.
type SeekTimeoutError struct {
	Index     int
	Timestamp time.Duration
	Timeout   time.Duration
}

func (e *SeekTimeoutError) Error() string {
	return fmt.Sprintf("seek to %s (frame %d) did not settle within %s", e.Timestamp, e.Index, e.Timeout)
}

func (e *SeekTimeoutError) Unwrap() error {
	return ErrSeekTimeout
}

// UnreadyMediaError wraps ErrUnreadyMedia with the name of the offending video
func UnreadyMediaError(name string) error {
	return fmt.Errorf("%w: %s", ErrUnreadyMedia, name)
}
