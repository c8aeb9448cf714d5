// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Frankambaa/TaskMaster/internal/logging"
)

// =============================================================================
// TARGET
// =============================================================================

// Target is the display surface a reveal writes to, usually one message
// bubble. Frame and Complete are called from the job goroutine and must not
// call back into the Scheduler or Job.
type Target interface {
	// TargetID identifies the surface. A new reveal on the same id cancels
	// the previous one.
	TargetID() string
	// Frame shows partially revealed markup.
	Frame(markup string)
	// Complete shows the final markup.
	Complete(markup string)
}

// Result describes a finished reveal.
type Result struct {
	TargetID string
	Markup   string
	Chars    int
}

// =============================================================================
// JOB
// =============================================================================

// Job is one incremental reveal of FullText into a target.
type Job struct {
	target   Target
	fullText string
	doc      *Document

	cancel context.CancelFunc
	done   chan struct{}

	// mu orders writes to the target against Cancel: once Cancel returns
	// no further frame reaches the target.
	mu        sync.Mutex
	revealed  int
	cancelled bool
	completed bool
}

// Target returns the job's target.
func (j *Job) Target() Target { return j.target }

// FullText returns the text being revealed.
func (j *Job) FullText() string { return j.fullText }

// Cancel stops the reveal. It is safe to call more than once.
func (j *Job) Cancel() {
	j.mu.Lock()
	if !j.completed {
		j.cancelled = true
	}
	j.mu.Unlock()
	j.cancel()
}

// Wait blocks until the job goroutine has exited.
func (j *Job) Wait() {
	<-j.done
}

// Done is closed when the job goroutine has exited.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Revealed returns how many characters have been shown so far.
func (j *Job) Revealed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.revealed
}

// Cancelled reports whether the job was cancelled before completing.
func (j *Job) Cancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// Completed reports whether the final markup reached the target.
func (j *Job) Completed() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.completed
}

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler runs reveal jobs, at most one per target.
type Scheduler struct {
	renderer Renderer
	logger   *slog.Logger

	mu           sync.Mutex
	delay        time.Duration
	charsPerTick int
	jobs         map[string]*Job
	closed       bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithCharsPerTick reveals n characters per tick instead of one.
func WithCharsPerTick(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.charsPerTick = n
		}
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler creates a scheduler revealing one character every delay.
// A zero delay shows text instantly.
func NewScheduler(r Renderer, delay time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		renderer:     r,
		delay:        delay,
		charsPerTick: 1,
		jobs:         make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	return s
}

// Renderer returns the renderer in use.
func (s *Scheduler) Renderer() Renderer {
	return s.renderer
}

// SetDelay changes the per-tick delay for jobs started afterwards.
func (s *Scheduler) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Format renders text instantly.
func (s *Scheduler) Format(text string) string {
	return Format(s.renderer, text)
}

// Show cancels any reveal on target and writes the formatted text at once.
func (s *Scheduler) Show(target Target, text string) string {
	s.mu.Lock()
	if prev := s.jobs[target.TargetID()]; prev != nil {
		delete(s.jobs, target.TargetID())
		s.mu.Unlock()
		prev.Cancel()
	} else {
		s.mu.Unlock()
	}
	markup := s.Format(text)
	target.Complete(markup)
	return markup
}

// StartReveal begins revealing text into target, cancelling any reveal
// already running on the same target. onDone runs after the final markup
// has been written; it does not run for cancelled jobs.
func (s *Scheduler) StartReveal(ctx context.Context, target Target, text string, onDone func(Result)) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		target:   target,
		fullText: text,
		doc:      Parse(text),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		job.Cancel()
		close(job.done)
		return job
	}
	prev := s.jobs[target.TargetID()]
	s.jobs[target.TargetID()] = job
	delay, step := s.delay, s.charsPerTick
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
		s.logger.Debug("reveal superseded", "target", target.TargetID())
	}

	go s.run(jobCtx, job, delay, step, onDone)
	return job
}

func (s *Scheduler) run(ctx context.Context, job *Job, delay time.Duration, step int, onDone func(Result)) {
	defer close(job.done)
	defer s.forget(job)

	total := job.doc.Len()
	if delay > 0 {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()

		for n := step; n < total; n += step {
			select {
			case <-ctx.Done():
				job.Cancel()
				return
			case <-ticker.C:
			}

			markup := s.renderer.Render(job.doc.Prefix(n))
			job.mu.Lock()
			if job.cancelled {
				job.mu.Unlock()
				return
			}
			job.revealed = n
			job.target.Frame(markup)
			job.mu.Unlock()
		}
	}

	markup := s.renderer.Render(job.doc)
	job.mu.Lock()
	if job.cancelled || ctx.Err() != nil {
		job.cancelled = true
		job.mu.Unlock()
		return
	}
	job.revealed = total
	job.completed = true
	job.target.Complete(markup)
	job.mu.Unlock()

	if onDone != nil {
		onDone(Result{TargetID: job.target.TargetID(), Markup: markup, Chars: total})
	}
}

func (s *Scheduler) forget(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.jobs[job.target.TargetID()] == job {
		delete(s.jobs, job.target.TargetID())
	}
}

// Active returns the number of running jobs.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cancel cancels the reveal on targetID, if any.
func (s *Scheduler) Cancel(targetID string) {
	s.mu.Lock()
	job := s.jobs[targetID]
	delete(s.jobs, targetID)
	s.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
}

// CancelAll cancels every running reveal and waits for the jobs to exit.
// The scheduler stays usable.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for id, j := range s.jobs {
		jobs = append(jobs, j)
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		j.Cancel()
	}
	for _, j := range jobs {
		j.Wait()
	}
}

// Teardown cancels every job and refuses new ones.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.CancelAll()
}
