package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/metrics"
	"github.com/gwlsn/strikelab/internal/sampler"
)

// NewJob describes an analysis to queue
type NewJob struct {
	Token           string
	UserVideo       string
	ReferenceVideo  string
	UserPath        string
	ReferencePath   string
	Technique       string
	ExperienceLevel string
	FrameCount      int
}

// Queue holds analysis jobs in memory and broadcasts their changes
type Queue struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string // Job IDs in order of creation

	// Subscribers for job events
	subsMu      sync.RWMutex
	subscribers map[chan JobEvent]struct{}
}

// NewQueue creates a new job queue
func NewQueue() *Queue {
	return &Queue{
		jobs:        make(map[string]*Job),
		order:       make([]string, 0),
		subscribers: make(map[chan JobEvent]struct{}),
	}
}

// Add adds a new pending job to the queue
func (q *Queue) Add(nj NewJob) (*Job, error) {
	if !IsValidFrameCount(nj.FrameCount) {
		return nil, fmt.Errorf("frame count %d out of range [%d, %d]", nj.FrameCount, MinFrameCount, MaxFrameCount)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	job := &Job{
		ID:              generateID(),
		Token:           nj.Token,
		UserVideo:       nj.UserVideo,
		ReferenceVideo:  nj.ReferenceVideo,
		UserPath:        nj.UserPath,
		ReferencePath:   nj.ReferencePath,
		Technique:       nj.Technique,
		ExperienceLevel: nj.ExperienceLevel,
		FrameCount:      nj.FrameCount,
		Status:          StatusPending,
		State:           analysis.StateFramesAbsent,
		CreatedAt:       time.Now(),
	}

	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.updateDepth()

	q.broadcast(JobEvent{Type: "added", Job: job.Copy()})

	return job.Copy(), nil
}

// Get returns a copy of a job by ID, or nil
func (q *Queue) Get(id string) *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	return job.Copy()
}

// GetAll returns copies of all jobs in order
func (q *Queue) GetAll() []*Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	jobs := make([]*Job, 0, len(q.order))
	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok {
			jobs = append(jobs, job.Copy())
		}
	}
	return jobs
}

// GetNext returns the next pending job (for workers to pick up)
func (q *Queue) GetNext() *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok && job.Status == StatusPending {
			return job.Copy()
		}
	}
	return nil
}

// StartJob marks a pending job as running. Only one caller wins.
func (q *Queue) StartJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}

	if job.Status != StatusPending {
		return fmt.Errorf("job not pending: %s", job.Status)
	}

	job.Status = StatusRunning
	job.Phase = analysis.PhaseOpening
	job.Error = ""
	job.Attempts++
	job.StartedAt = time.Now()
	q.updateDepth()

	q.broadcast(JobEvent{Type: "started", Job: job.Copy()})

	return nil
}

// UpdatePhase records the pipeline phase of a running job
func (q *Queue) UpdatePhase(id string, phase analysis.Phase) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.Status != StatusRunning {
		return
	}

	job.Phase = phase
	switch phase {
	case analysis.PhaseSamplingReference:
		job.State = analysis.StateFramesPartial
	case analysis.PhaseComparing:
		job.State = analysis.StateFramesReady
	}

	q.broadcast(JobEvent{Type: "phase", Job: job.Copy()})
}

// CompleteJob stores the session of a finished analysis
func (q *Queue) CompleteJob(id string, session analysis.Session) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusRunning {
		return jobStatusError(ErrJobNotRunning, id, job.Status)
	}

	job.Status = StatusComplete
	job.Phase = analysis.PhaseDone
	job.State = session.State()
	job.Report = session.Report
	job.BestEffortFrames = countBestEffort(session.UserFrames) + countBestEffort(session.ReferenceFrames)
	job.session = session
	job.CompletedAt = time.Now()
	job.ElapsedMs = job.CompletedAt.Sub(job.StartedAt).Milliseconds()

	metrics.AnalysesTotal.WithLabelValues(string(StatusComplete)).Inc()
	q.broadcast(JobEvent{Type: "complete", Job: job.Copy()})

	return nil
}

// FailJob marks a job as failed. The partial session is kept so the state
// shows how far sampling got.
func (q *Queue) FailJob(id string, errMsg string, partial analysis.Session) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}
	if job.Status != StatusRunning {
		return jobStatusError(ErrJobNotRunning, id, job.Status)
	}

	job.Status = StatusFailed
	job.Error = errMsg
	job.State = partial.State()
	job.session = partial
	job.CompletedAt = time.Now()

	metrics.AnalysesTotal.WithLabelValues(string(StatusFailed)).Inc()
	q.broadcast(JobEvent{Type: "failed", Job: job.Copy()})

	return nil
}

// CancelJob cancels a pending or running job
func (q *Queue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}

	if job.IsTerminal() {
		return jobStatusError(ErrJobTerminal, id, job.Status)
	}

	job.Status = StatusCancelled
	job.CompletedAt = time.Now()
	q.updateDepth()

	metrics.AnalysesTotal.WithLabelValues(string(StatusCancelled)).Inc()
	q.broadcast(JobEvent{Type: "cancelled", Job: job.Copy()})

	return nil
}

// Requeue resets a running job back to pending and moves it to the front of the queue.
// Used when reducing worker count to return jobs to the queue.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return jobNotFoundError(id)
	}

	if job.Status != StatusRunning {
		return jobStatusError(ErrJobNotRunning, id, job.Status)
	}

	q.resetLocked(job)
	q.moveToFrontLocked(id)

	q.broadcast(JobEvent{Type: "requeued", Job: job.Copy()})

	return nil
}

// Retry queues a failed or cancelled job again at the front of the queue
func (q *Queue) Retry(id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil, jobNotFoundError(id)
	}
	if !job.CanRetry() {
		return nil, jobStatusError(ErrJobNotRetryable, id, job.Status)
	}

	q.resetLocked(job)
	job.Error = ""
	job.CompletedAt = time.Time{}
	q.moveToFrontLocked(id)

	q.broadcast(JobEvent{Type: "requeued", Job: job.Copy()})

	return job.Copy(), nil
}

// resetLocked returns a job to pending. Called with lock held.
func (q *Queue) resetLocked(job *Job) {
	job.Status = StatusPending
	job.Phase = ""
	job.State = analysis.StateFramesAbsent
	job.Report = nil
	job.BestEffortFrames = 0
	job.session = analysis.Session{}
	job.StartedAt = time.Time{}
	q.updateDepth()
}

// moveToFrontLocked moves id to the front of the order. Called with lock held.
func (q *Queue) moveToFrontLocked(id string) {
	newOrder := []string{id}
	for _, oid := range q.order {
		if oid != id {
			newOrder = append(newOrder, oid)
		}
	}
	q.order = newOrder
}

// Frame returns one sampled frame of a job
func (q *Queue) Frame(id string, side analysis.Side, index int) (sampler.SampledFrame, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return sampler.SampledFrame{}, jobNotFoundError(id)
	}
	frames := job.session.Frames(side)
	if index < 0 || index >= len(frames) {
		return sampler.SampledFrame{}, fmt.Errorf("%w: %s %s[%d]", ErrFrameNotFound, id, side, index)
	}
	return frames[index], nil
}

// Clear removes jobs from the queue. If filterStatus is empty, clears all
// non-running jobs. If specified, clears only jobs matching that status.
// Running jobs are never cleared.
func (q *Queue) Clear(filterStatus Status) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := 0
	newOrder := make([]string, 0, len(q.order))
	for _, id := range q.order {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		// Never clear running jobs
		if job.Status == StatusRunning {
			newOrder = append(newOrder, id)
			continue
		}
		// If filtering by status, only clear matching jobs
		if filterStatus != "" && job.Status != filterStatus {
			newOrder = append(newOrder, id)
			continue
		}
		delete(q.jobs, id)
		count++
	}
	q.order = newOrder
	q.updateDepth()

	return count
}

// InUse reports whether a pending or running job reads the file at path
func (q *Queue) InUse(path string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, job := range q.jobs {
		if job.IsTerminal() {
			continue
		}
		if job.UserPath == path || job.ReferencePath == path {
			return true
		}
	}
	return false
}

// Remove removes a single job from the queue
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.jobs, id)

	// Remove from order slice
	newOrder := make([]string, 0, len(q.order))
	for _, jid := range q.order {
		if jid != id {
			newOrder = append(newOrder, jid)
		}
	}
	q.order = newOrder
	q.updateDepth()

	// Broadcast removal event
	q.broadcast(JobEvent{Type: "removed", Job: &Job{ID: id}})
}

// Subscribe returns a channel that receives job events
func (q *Queue) Subscribe() chan JobEvent {
	ch := make(chan JobEvent, 100)

	q.subsMu.Lock()
	q.subscribers[ch] = struct{}{}
	q.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription
func (q *Queue) Unsubscribe(ch chan JobEvent) {
	q.subsMu.Lock()
	delete(q.subscribers, ch)
	q.subsMu.Unlock()

	close(ch)
}

// broadcast sends an event to all subscribers
func (q *Queue) broadcast(event JobEvent) {
	q.subsMu.RLock()
	defer q.subsMu.RUnlock()

	for ch := range q.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// Stats returns queue statistics
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var stats Stats
	for _, job := range q.jobs {
		stats.Total++
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusComplete:
			stats.Complete++
		case StatusFailed:
			stats.Failed++
		case StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// updateDepth publishes the number of pending jobs. Called with lock held.
func (q *Queue) updateDepth() {
	pending := 0
	for _, job := range q.jobs {
		if job.Status == StatusPending {
			pending++
		}
	}
	metrics.QueueDepth.Set(float64(pending))
}

// generateID creates a unique, time-ordered job ID
func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func countBestEffort(frames []sampler.SampledFrame) int {
	n := 0
	for _, f := range frames {
		if f.BestEffort {
			n++
		}
	}
	return n
}
