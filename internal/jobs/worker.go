package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/logger"
	"github.com/gwlsn/strikelab/internal/metrics"
)

// pollInterval is how long an idle worker waits before checking the queue again
var pollInterval = 500 * time.Millisecond

// Runner executes one analysis. *analysis.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req analysis.Request, onPhase func(analysis.Phase)) (analysis.Session, error)
}

// Worker processes analysis jobs from the queue
type Worker struct {
	id     int
	pool   *WorkerPool
	queue  *Queue
	runner Runner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Currently running job (for cancellation)
	currentJobMu sync.Mutex
	currentJob   *Job
	jobCancel    context.CancelFunc
	jobDone      chan struct{} // Closed when current job finishes
}

// WorkerPool manages multiple workers
type WorkerPool struct {
	mu           sync.Mutex
	workers      []*Worker
	queue        *Queue
	runner       Runner
	nextWorkerID int

	ctx    context.Context
	cancel context.CancelFunc
}

// runningJob tracks a job being processed by a worker.
// Used by Resize to collect and manage running jobs.
type runningJob struct {
	worker *Worker
	jobID  string
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(queue *Queue, runner Runner, workers int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	workers = ClampWorkerCount(workers)

	pool := &WorkerPool{
		workers: make([]*Worker, 0, workers),
		queue:   queue,
		runner:  runner,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		pool.workers = append(pool.workers, pool.createWorker())
	}

	return pool
}

// createWorker creates a new worker with the next available ID
func (p *WorkerPool) createWorker() *Worker {
	worker := &Worker{
		id:     p.nextWorkerID,
		pool:   p,
		queue:  p.queue,
		runner: p.runner,
	}
	p.nextWorkerID++
	return worker
}

// Start starts all workers
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, w := range p.workers {
		w.Start(p.ctx)
	}
}

// Stop stops all workers. Jobs interrupted by shutdown are returned to pending.
func (p *WorkerPool) Stop() {
	p.cancel()

	p.mu.Lock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
}

// CancelJob cancels a job. A running job is interrupted; a pending one is
// marked cancelled before any worker picks it up.
func (p *WorkerPool) CancelJob(jobID string) error {
	p.mu.Lock()
	workers := make([]*Worker, len(p.workers))
	copy(workers, p.workers)
	p.mu.Unlock()

	// Two workers may briefly hold the same job while racing to start it
	interrupted := false
	for _, w := range workers {
		if done := w.CancelCurrentJob(jobID); done != nil {
			<-done
			interrupted = true
		}
	}
	if interrupted {
		if job := p.queue.Get(jobID); job != nil && job.Status == StatusCancelled {
			return nil
		}
	}
	return p.queue.CancelJob(jobID)
}

// Resize changes the number of workers in the pool
// If n > current, new workers are started immediately
// If n < current, excess workers are stopped immediately
// Workers running the most recently created jobs are stopped first
func (p *WorkerPool) Resize(n int) {
	n = ClampWorkerCount(n)

	p.mu.Lock()
	defer p.mu.Unlock()

	current := len(p.workers)

	if n > current {
		for i := current; i < n; i++ {
			worker := p.createWorker()
			worker.Start(p.ctx)
			p.workers = append(p.workers, worker)
		}
	} else if n < current {
		workersToStop := current - n

		// First, collect all running jobs and their workers
		var runningJobs []runningJob
		for _, w := range p.workers {
			w.currentJobMu.Lock()
			if w.currentJob != nil {
				runningJobs = append(runningJobs, runningJob{
					worker: w,
					jobID:  w.currentJob.ID,
				})
			}
			w.currentJobMu.Unlock()
		}

		// Job IDs are time-ordered, so lexicographically larger = more recent
		sort.Slice(runningJobs, func(i, j int) bool {
			return runningJobs[i].jobID > runningJobs[j].jobID
		})

		stopped := 0
		for _, rj := range runningJobs {
			if stopped >= workersToStop {
				break
			}

			// A stopped worker puts its interrupted job back at the front of the queue
			rj.worker.Stop()

			for j, w := range p.workers {
				if w == rj.worker {
					p.workers = append(p.workers[:j], p.workers[j+1:]...)
					break
				}
			}
			stopped++
		}

		// If we still need to remove more workers (idle ones), remove from end
		for len(p.workers) > n {
			w := p.workers[len(p.workers)-1]
			p.workers = p.workers[:len(p.workers)-1]
			w.Stop()
		}
	}

	logger.Info("Worker pool resized", "from", current, "to", n)
}

// WorkerCount returns the current number of workers
func (p *WorkerPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// Start starts the worker's processing loop
func (w *Worker) Start(parentCtx context.Context) {
	w.ctx, w.cancel = context.WithCancel(parentCtx)
	w.wg.Add(1)

	go w.run()
}

// Stop stops the worker. Stopping a worker that was never started is a no-op.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}

// run is the main worker loop
func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job := w.queue.GetNext()
		if job == nil {
			// No jobs available, wait a bit
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(pollInterval):
				continue
			}
		}

		w.processJob(job)
	}
}

func (w *Worker) processJob(job *Job) {
	jobCtx, jobCancel := context.WithCancel(w.ctx)
	defer jobCancel()

	// Register before starting so a running job is always cancellable
	w.currentJobMu.Lock()
	w.currentJob = job
	w.jobCancel = jobCancel
	w.jobDone = make(chan struct{})
	w.currentJobMu.Unlock()

	defer func() {
		w.currentJobMu.Lock()
		w.currentJob = nil
		w.jobCancel = nil
		if w.jobDone != nil {
			close(w.jobDone)
			w.jobDone = nil
		}
		w.currentJobMu.Unlock()
	}()

	// Mark job as started (first worker to call this wins)
	if err := w.queue.StartJob(job.ID); err != nil {
		return
	}
	if jobCtx.Err() != nil {
		if w.ctx.Err() == nil {
			_ = w.queue.CancelJob(job.ID)
		} else {
			_ = w.queue.Requeue(job.ID)
		}
		return
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	logger.Info("Analysis started",
		"job_id", job.ID,
		"worker", w.id,
		"user_video", job.UserVideo,
		"reference_video", job.ReferenceVideo,
		"frame_count", job.FrameCount,
	)
	start := time.Now()

	session, err := w.runner.Run(jobCtx, job.Request(), func(phase analysis.Phase) {
		w.queue.UpdatePhase(job.ID, phase)
	})
	if err != nil {
		if jobCtx.Err() != nil {
			// User cancel: jobCtx cancelled but w.ctx still active
			// Shutdown: w.ctx also cancelled, job goes back to pending
			if w.ctx.Err() == nil {
				logger.Info("Analysis cancelled", "job_id", job.ID)
				_ = w.queue.CancelJob(job.ID)
			} else {
				logger.Info("Analysis interrupted by shutdown", "job_id", job.ID)
				_ = w.queue.Requeue(job.ID)
			}
			return
		}
		logger.Error("Analysis failed", "job_id", job.ID, "error", err)
		_ = w.queue.FailJob(job.ID, err.Error(), session)
		return
	}

	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues("total").Observe(elapsed.Seconds())

	if err := w.queue.CompleteJob(job.ID, session); err != nil {
		logger.Warn("Failed to record analysis result", "job_id", job.ID, "error", err)
		return
	}

	attrs := []any{"job_id", job.ID, "elapsed", elapsed.String()}
	if session.Report != nil {
		attrs = append(attrs, "form_score", session.Report.FormScore)
	}
	logger.Info("Analysis complete", attrs...)
}

// CancelCurrentJob cancels the job if it matches the given ID.
// Returns a channel that will be closed when the job finishes, or nil if job not found.
func (w *Worker) CancelCurrentJob(jobID string) <-chan struct{} {
	w.currentJobMu.Lock()
	defer w.currentJobMu.Unlock()

	if w.currentJob != nil && w.currentJob.ID == jobID && w.jobCancel != nil {
		w.jobCancel()
		return w.jobDone
	}
	return nil
}
