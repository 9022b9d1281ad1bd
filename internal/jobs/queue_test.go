package jobs_test

import (
	"errors"
	"testing"
	"time"

	"github.com/gwlsn/strikelab/internal/analysis"
	"github.com/gwlsn/strikelab/internal/compare"
	"github.com/gwlsn/strikelab/internal/jobs"
	"github.com/gwlsn/strikelab/internal/pose"
	"github.com/gwlsn/strikelab/internal/sampler"
)

func newJob(frames int) jobs.NewJob {
	return jobs.NewJob{
		Token:          "token-1",
		UserVideo:      "me.mp4",
		ReferenceVideo: "pro.mp4",
		UserPath:       "/tmp/uploads/me.mp4",
		ReferencePath:  "/tmp/uploads/pro.mp4",
		Technique:      "jab",
		FrameCount:     frames,
	}
}

func completedSession(n int) analysis.Session {
	frames := make([]sampler.SampledFrame, n)
	for i := range frames {
		frames[i] = sampler.SampledFrame{Index: i, Keypoints: pose.StaticLayout}
	}
	frames[0].BestEffort = true
	return analysis.Session{
		UserFrames:      frames,
		ReferenceFrames: frames,
		Report:          &compare.Report{FormScore: 100, PowerScore: 90, ExplosivenessScore: 95},
	}
}

func TestQueue(t *testing.T) {
	queue := jobs.NewQueue()

	job, err := queue.Add(newJob(5))
	if err != nil {
		t.Fatalf("failed to add job: %v", err)
	}

	if job.ID == "" {
		t.Error("job ID should not be empty")
	}
	if job.Status != jobs.StatusPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}
	if job.State != analysis.StateFramesAbsent {
		t.Errorf("expected state frames_absent, got %s", job.State)
	}

	got := queue.Get(job.ID)
	if got == nil {
		t.Fatal("failed to get job")
	}
	if got.UserPath != "/tmp/uploads/me.mp4" {
		t.Errorf("expected user path, got %s", got.UserPath)
	}
	if got.Request().FrameCount != 5 {
		t.Errorf("expected frame count 5, got %d", got.Request().FrameCount)
	}
}

func TestQueueRejectsInvalidFrameCount(t *testing.T) {
	queue := jobs.NewQueue()
	for _, n := range []int{0, -1, jobs.MaxFrameCount + 1} {
		if _, err := queue.Add(newJob(n)); err == nil {
			t.Errorf("expected error for frame count %d", n)
		}
	}
}

func TestQueueLifecycle(t *testing.T) {
	queue := jobs.NewQueue()
	job, _ := queue.Add(newJob(5))

	if err := queue.StartJob(job.ID); err != nil {
		t.Fatalf("failed to start job: %v", err)
	}
	if err := queue.StartJob(job.ID); err == nil {
		t.Error("expected second start to fail")
	}

	got := queue.Get(job.ID)
	if got.Status != jobs.StatusRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", got.Attempts)
	}

	queue.UpdatePhase(job.ID, analysis.PhaseSamplingReference)
	got = queue.Get(job.ID)
	if got.Phase != analysis.PhaseSamplingReference || got.State != analysis.StateFramesPartial {
		t.Errorf("expected sampling_reference/frames_partial, got %s/%s", got.Phase, got.State)
	}

	if err := queue.CompleteJob(job.ID, completedSession(5)); err != nil {
		t.Fatalf("failed to complete job: %v", err)
	}

	got = queue.Get(job.ID)
	if got.Status != jobs.StatusComplete {
		t.Errorf("expected status complete, got %s", got.Status)
	}
	if got.State != analysis.StateReportComputed {
		t.Errorf("expected state report_computed, got %s", got.State)
	}
	if got.Report == nil || got.Report.FormScore != 100 {
		t.Errorf("expected report with form score 100, got %+v", got.Report)
	}
	if got.BestEffortFrames != 2 {
		t.Errorf("expected 2 best-effort frames, got %d", got.BestEffortFrames)
	}
	if got.CompletedAt.IsZero() {
		t.Error("expected completed_at to be set")
	}
}

func TestQueueCompleteRequiresRunning(t *testing.T) {
	queue := jobs.NewQueue()
	job, _ := queue.Add(newJob(5))

	err := queue.CompleteJob(job.ID, completedSession(5))
	if !errors.Is(err, jobs.ErrJobNotRunning) {
		t.Errorf("expected ErrJobNotRunning, got %v", err)
	}
}

func TestQueueFailRequiresRunning(t *testing.T) {
	queue := jobs.NewQueue()
	pending, _ := queue.Add(newJob(5))
	cancelled, _ := queue.Add(newJob(5))
	done, _ := queue.Add(newJob(5))

	if err := queue.FailJob(pending.ID, "boom", analysis.Session{}); !errors.Is(err, jobs.ErrJobNotRunning) {
		t.Errorf("expected ErrJobNotRunning for pending job, got %v", err)
	}

	// A worker that loses the race with a cancel must not overwrite the result
	queue.StartJob(cancelled.ID)
	queue.CancelJob(cancelled.ID)
	if err := queue.FailJob(cancelled.ID, "context canceled", analysis.Session{}); !errors.Is(err, jobs.ErrJobNotRunning) {
		t.Errorf("expected ErrJobNotRunning for cancelled job, got %v", err)
	}

	queue.StartJob(done.ID)
	queue.CompleteJob(done.ID, completedSession(5))
	if err := queue.FailJob(done.ID, "late failure", analysis.Session{}); !errors.Is(err, jobs.ErrJobNotRunning) {
		t.Errorf("expected ErrJobNotRunning for complete job, got %v", err)
	}

	if got := queue.Get(cancelled.ID); got.Status != jobs.StatusCancelled || got.Error != "" {
		t.Errorf("expected cancelled job untouched, got %s %q", got.Status, got.Error)
	}
	if got := queue.Get(done.ID); got.Status != jobs.StatusComplete || got.Report == nil {
		t.Errorf("expected complete job untouched, got %s", got.Status)
	}

	stats := queue.Stats()
	if stats.Failed != 0 || stats.Cancelled != 1 || stats.Complete != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestQueueFrame(t *testing.T) {
	queue := jobs.NewQueue()
	job, _ := queue.Add(newJob(3))
	queue.StartJob(job.ID)
	queue.CompleteJob(job.ID, completedSession(3))

	frame, err := queue.Frame(job.ID, analysis.SideReference, 2)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if frame.Index != 2 {
		t.Errorf("expected frame 2, got %d", frame.Index)
	}

	if _, err := queue.Frame(job.ID, analysis.SideUser, 3); !errors.Is(err, jobs.ErrFrameNotFound) {
		t.Errorf("expected ErrFrameNotFound, got %v", err)
	}
	if _, err := queue.Frame("missing", analysis.SideUser, 0); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestQueueFailAndRetry(t *testing.T) {
	queue := jobs.NewQueue()
	first, _ := queue.Add(newJob(5))
	second, _ := queue.Add(newJob(5))

	queue.StartJob(first.ID)
	partial, _ := analysis.Session{}.WithFrames(analysis.SideUser, completedSession(5).UserFrames)
	if err := queue.FailJob(first.ID, "sample reference video: media not ready", partial); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	got := queue.Get(first.ID)
	if got.Status != jobs.StatusFailed || got.Error == "" {
		t.Errorf("expected failed job with error, got %s %q", got.Status, got.Error)
	}
	if got.State != analysis.StateFramesPartial {
		t.Errorf("expected partial state to be kept, got %s", got.State)
	}

	// Only failed or cancelled jobs can be retried
	if _, err := queue.Retry(second.ID); !errors.Is(err, jobs.ErrJobNotRetryable) {
		t.Errorf("expected ErrJobNotRetryable, got %v", err)
	}

	retried, err := queue.Retry(first.ID)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retried.Status != jobs.StatusPending || retried.Error != "" {
		t.Errorf("expected clean pending job, got %s %q", retried.Status, retried.Error)
	}
	if retried.State != analysis.StateFramesAbsent {
		t.Errorf("expected state reset, got %s", retried.State)
	}

	// Retried job goes to the front
	if next := queue.GetNext(); next.ID != first.ID {
		t.Errorf("expected retried job first, got %s", next.ID)
	}
}

func TestQueueGetNext(t *testing.T) {
	queue := jobs.NewQueue()

	if queue.GetNext() != nil {
		t.Error("expected nil from empty queue")
	}

	job1, _ := queue.Add(newJob(5))
	job2, _ := queue.Add(newJob(5))

	if next := queue.GetNext(); next.ID != job1.ID {
		t.Errorf("expected first job, got %s", next.ID)
	}

	queue.StartJob(job1.ID)
	if next := queue.GetNext(); next.ID != job2.ID {
		t.Errorf("expected second job, got %s", next.ID)
	}
}

func TestQueueCancel(t *testing.T) {
	queue := jobs.NewQueue()
	job, _ := queue.Add(newJob(5))

	if err := queue.CancelJob(job.ID); err != nil {
		t.Fatalf("failed to cancel job: %v", err)
	}
	if got := queue.Get(job.ID); got.Status != jobs.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", got.Status)
	}

	// Cancelling a terminal job fails
	if err := queue.CancelJob(job.ID); !errors.Is(err, jobs.ErrJobTerminal) {
		t.Errorf("expected ErrJobTerminal, got %v", err)
	}
	if err := queue.CancelJob("missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestQueueRequeue(t *testing.T) {
	queue := jobs.NewQueue()
	job1, _ := queue.Add(newJob(5))
	job2, _ := queue.Add(newJob(5))

	queue.StartJob(job2.ID)
	if err := queue.Requeue(job2.ID); err != nil {
		t.Fatalf("Requeue failed: %v", err)
	}

	all := queue.GetAll()
	if all[0].ID != job2.ID || all[1].ID != job1.ID {
		t.Error("expected requeued job at the front")
	}
	if all[0].Status != jobs.StatusPending {
		t.Errorf("expected pending, got %s", all[0].Status)
	}

	if err := queue.Requeue(job1.ID); !errors.Is(err, jobs.ErrJobNotRunning) {
		t.Errorf("expected ErrJobNotRunning, got %v", err)
	}
}

func TestQueueStatsAndClear(t *testing.T) {
	queue := jobs.NewQueue()
	running, _ := queue.Add(newJob(5))
	done, _ := queue.Add(newJob(5))
	cancelled, _ := queue.Add(newJob(5))
	queue.Add(newJob(5))

	queue.StartJob(running.ID)
	queue.StartJob(done.ID)
	queue.CompleteJob(done.ID, completedSession(5))
	queue.CancelJob(cancelled.ID)

	stats := queue.Stats()
	if stats.Total != 4 || stats.Running != 1 || stats.Complete != 1 || stats.Cancelled != 1 || stats.Pending != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if n := queue.Clear(jobs.StatusComplete); n != 1 {
		t.Errorf("expected 1 cleared, got %d", n)
	}
	if n := queue.Clear(""); n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}
	if all := queue.GetAll(); len(all) != 1 || all[0].ID != running.ID {
		t.Error("running job should never be cleared")
	}

	queue.Remove(running.ID)
	if queue.Get(running.ID) != nil {
		t.Error("expected job removed")
	}
}

func TestQueueInUse(t *testing.T) {
	queue := jobs.NewQueue()
	job, _ := queue.Add(newJob(5))

	if !queue.InUse("/tmp/uploads/me.mp4") || !queue.InUse("/tmp/uploads/pro.mp4") {
		t.Error("pending job should hold its videos")
	}
	if queue.InUse("/tmp/uploads/other.mp4") {
		t.Error("unrelated file should not be in use")
	}

	queue.CancelJob(job.ID)
	if queue.InUse("/tmp/uploads/me.mp4") {
		t.Error("cancelled job should release its videos")
	}
}

func TestQueueReturnsCopies(t *testing.T) {
	queue := jobs.NewQueue()
	job, _ := queue.Add(newJob(5))

	job.Status = jobs.StatusFailed
	if got := queue.Get(job.ID); got.Status != jobs.StatusPending {
		t.Error("mutating a returned job should not change the queue")
	}
}

func TestQueueSubscription(t *testing.T) {
	queue := jobs.NewQueue()
	ch := queue.Subscribe()

	job, _ := queue.Add(newJob(5))

	expect := func(eventType string) {
		t.Helper()
		select {
		case event := <-ch:
			if event.Type != eventType {
				t.Errorf("expected event type %q, got %q", eventType, event.Type)
			}
			if event.Job.ID != job.ID {
				t.Error("event job ID mismatch")
			}
		case <-time.After(time.Second):
			t.Errorf("timeout waiting for %q event", eventType)
		}
	}

	expect("added")
	queue.StartJob(job.ID)
	expect("started")
	queue.UpdatePhase(job.ID, analysis.PhaseSamplingUser)
	expect("phase")
	queue.CompleteJob(job.ID, completedSession(5))
	expect("complete")

	queue.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}
}
