package jobs

import (
	"errors"
	"fmt"
)

// Sentinel errors for job operations.
// These can be checked with errors.Is().
var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotRunning   = errors.New("job is not running")
	ErrJobNotRetryable = errors.New("job cannot be retried")
	ErrJobTerminal     = errors.New("job already finished")
	ErrFrameNotFound   = errors.New("frame not found")
)

// jobNotFoundError returns a wrapped error for a missing job.
func jobNotFoundError(id string) error {
	return fmt.Errorf("%w: %s", ErrJobNotFound, id)
}

// jobStatusError wraps a sentinel with the job's current status.
func jobStatusError(sentinel error, id string, status Status) error {
	return fmt.Errorf("%w (status: %s): %s", sentinel, status, id)
}
