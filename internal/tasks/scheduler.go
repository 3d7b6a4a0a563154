package tasks

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vbx/internal/credentials"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
)

const (
	defaultConcurrency = 5
	maxConcurrency     = 20
	defaultStopGrace   = 10 * time.Second
	defaultKillWait    = 5 * time.Second
)

// Signal is the cooperative stop flag shared by every pipeline of a batch.
//
// A nil Signal is never stopped.
type Signal struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSignal() *Signal {
	ctx, cancel := context.WithCancel(context.Background())
	return &Signal{ctx: ctx, cancel: cancel}
}

// Stop raises the flag. It is safe to call more than once.
func (s *Signal) Stop() {
	if s != nil {
		s.cancel()
	}
}

// Stopped reports whether Stop was called.
func (s *Signal) Stopped() bool {
	return s != nil && s.ctx.Err() != nil
}

// Done is closed when Stop is called.
func (s *Signal) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.ctx.Done()
}

// Recorder persists each record as soon as its job finishes.
type Recorder interface {
	RecordOutcome(ctx context.Context, runID string, rec models.Record) error
}

// SchedulerOpts configures a [Scheduler].
type SchedulerOpts struct {
	Concurrency int           // Pipelines in flight at once, clamped to [1, 20]
	StopGrace   time.Duration // Time running pipelines get to observe Stop before a forced stop
	KillWait    time.Duration // Time pipelines get to unwind after a forced stop before they are abandoned
	Recorder    Recorder      // Optional incremental persistence
	Logger      *log.Logger
}

// Scheduler runs a distributed batch through a bounded worker pool.
type Scheduler struct {
	pipeline *Pipeline
	opts     SchedulerOpts
	logger   *log.Logger

	mu      sync.Mutex
	active  *batch
	pending bool // Stop arrived before Run
	stopped atomic.Bool
}

// batch holds the cancellation handles of the run in progress.
type batch struct {
	stop     *Signal
	cancel   context.CancelFunc
	abandon  chan struct{}
	killOnce sync.Once
	grace    *time.Timer
	total    int
	progress chan<- ProgressUpdate
}

// NewScheduler creates a scheduler running jobs through p.
func NewScheduler(p *Pipeline, opts SchedulerOpts) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Concurrency > maxConcurrency {
		opts.Concurrency = maxConcurrency
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.KillWait <= 0 {
		opts.KillWait = defaultKillWait
	}
	if opts.Logger == nil {
		opts.Logger = p.logger
	}
	return &Scheduler{pipeline: p, opts: opts, logger: opts.Logger}
}

// Run executes every job of dist and returns one record per job, sorted by job id.
//
// Individual job failures never make Run fail; it only returns an error for an empty batch, a batch
// with duplicate job ids, or an output directory that cannot be created. A Stop that arrived before
// Run is applied as soon as the batch starts.
func (s *Scheduler) Run(ctx context.Context, runID string, dist *credentials.Distribution, progress chan<- ProgressUpdate) (*models.BatchResult, error) {
	if dist == nil || dist.Len() == 0 {
		return nil, shared.ErrEmptyBatch
	}
	if err := uniqueJobs(dist.Pairs()); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.pipeline.OutputDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	pairs := dist.Pairs()
	workers := min(s.opts.Concurrency, len(pairs))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := &batch{stop: NewSignal(), cancel: cancel, abandon: make(chan struct{}), total: len(pairs), progress: progress}
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: scheduler is already running a batch", shared.ErrInvalidArgument)
	}
	s.active = b
	s.stopped.Store(false)
	s.mu.Unlock()
	defer s.release(b)

	p := s.pipeline.withProgress(progress)
	agg := newAggregator(runID, p.OutputDir(), len(pairs), p.opts.Now(), progress)
	logger := s.logger.With("run", runID)
	logger.Info("batch started", "jobs", len(pairs), "accounts", len(dist.Assignments), "concurrency", workers)
	sendProgress(progress, batchStartUpdate(len(pairs), len(dist.Assignments)))

	s.mu.Lock()
	if s.pending {
		s.pending = false
		s.stop(b)
	}
	s.mu.Unlock()

	jobs := make(chan credentials.Pair)
	results := make(chan models.Record, len(pairs))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go s.worker(runCtx, &wg, p, b.stop, jobs, results)
	}

	var dispatched atomic.Int64
	go func() {
		defer close(jobs)
		for _, pair := range pairs {
			if b.stop.Stopped() || runCtx.Err() != nil {
				return
			}
			select {
			case jobs <- pair:
				dispatched.Add(1)
			case <-b.stop.Done():
				return
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

collect:
	for {
		select {
		case rec, ok := <-results:
			if !ok {
				break collect
			}
			s.record(ctx, logger, runID, agg, rec)
		case <-b.abandon:
			logger.Warn("abandoning pipelines that did not unwind after forced stop")
			break collect
		}
	}

	for _, rec := range agg.missing(pairs, int(dispatched.Load()), p.opts.Now()) {
		s.record(ctx, logger, runID, agg, rec)
	}

	result := agg.finish(p.opts.Now())
	logger.Info("batch finished", "succeeded", result.Succeeded, "failed", result.Failed, "cancelled", result.Cancelled)
	sendProgress(progress, batchDoneUpdate(result))
	return result, nil
}

func uniqueJobs(pairs []credentials.Pair) error {
	seen := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		if seen[p.Job.ID] {
			return fmt.Errorf("%w: duplicate job id %d", shared.ErrInvalidArgument, p.Job.ID)
		}
		seen[p.Job.ID] = true
	}
	return nil
}

// worker runs one pipeline at a time until the jobs channel closes.
func (s *Scheduler) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	p *Pipeline,
	stop *Signal,
	jobs <-chan credentials.Pair,
	results chan<- models.Record,
) {
	defer wg.Done()
	for pair := range jobs {
		results <- p.Execute(ctx, stop, pair.Job, pair.Account)
	}
}

func (s *Scheduler) record(ctx context.Context, logger *log.Logger, runID string, agg *aggregator, rec models.Record) {
	if !agg.add(rec) {
		return
	}
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.RecordOutcome(context.WithoutCancel(ctx), runID, rec); err != nil {
		logger.Warn("failed to persist record", "job", rec.JobID, "err", err)
	}
}

func (s *Scheduler) release(b *batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.grace != nil {
		b.grace.Stop()
	}
	b.stop.Stop()
	if s.active == b {
		s.active = nil
	}
}

// Stop asks the running batch to stop: no new jobs start and running pipelines unwind at their next
// checkpoint. Pipelines still running after the stop grace period are forced to stop. Called with no
// batch running, Stop applies to the next batch Run starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		if !s.pending {
			s.pending = true
			s.logger.Warn("stop requested before batch started")
		}
		return
	}
	s.stop(s.active)
}

// stop must be called with s.mu held.
func (s *Scheduler) stop(b *batch) {
	if b.stop.Stopped() {
		return
	}
	s.stopped.Store(true)
	b.stop.Stop()
	s.logger.Warn("stop requested", "grace", s.opts.StopGrace)
	sendProgress(b.progress, stoppingUpdate(b.total))

	b.grace = time.AfterFunc(s.opts.StopGrace, func() {
		s.logger.Warn("stop grace period elapsed")
		s.kill(b)
	})
}

// Kill stops the running batch immediately: in-flight remote calls are cancelled, and pipelines that
// have not unwound after the kill wait are abandoned and reported as cancelled.
func (s *Scheduler) Kill() {
	s.mu.Lock()
	b := s.active
	if b != nil {
		s.stopped.Store(true)
		b.stop.Stop()
	}
	s.mu.Unlock()

	if b != nil {
		s.kill(b)
	}
}

func (s *Scheduler) kill(b *batch) {
	b.killOnce.Do(func() {
		s.logger.Warn("forcing stop", "wait", s.opts.KillWait)
		b.cancel()
		time.AfterFunc(s.opts.KillWait, func() { close(b.abandon) })
	})
}

// Stopped reports whether Stop or Kill was called during the current or last batch.
func (s *Scheduler) Stopped() bool {
	return s.stopped.Load()
}
