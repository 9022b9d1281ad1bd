package analysis

import (
	"sync"

	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/metrics"
	"github.com/gwlsn/strikelab/internal/sampler"
)

// Controller owns one Session and recomputes its report whenever both frame
// sequences are present. Safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	engine  *compare.Engine
	session Session
}

// NewController creates a Controller with an empty session.
func NewController(engine *compare.Engine) *Controller {
	if engine == nil {
		engine = compare.New(nil, nil)
	}
	return &Controller{engine: engine}
}

// Session returns the current session.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetFrames replaces the frames for side. When the session then holds both
// sequences the report is recomputed before the new session is published.
func (c *Controller) SetFrames(side Side, frames []sampler.SampledFrame) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := c.session.WithFrames(side, frames)
	if err != nil {
		return c.session, err
	}

	if next.State() == StateFramesReady {
		report, err := c.engine.Compare(next.UserFrames, next.ReferenceFrames)
		if err != nil {
			return c.session, err
		}
		if next, err = next.WithReport(report); err != nil {
			return c.session, err
		}
		metrics.FormScore.Observe(float64(report.FormScore))
	}

	c.session = next
	return next, nil
}
