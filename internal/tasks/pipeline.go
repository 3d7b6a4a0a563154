package tasks

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vbx/internal/credentials"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/retry"
	"github.com/desertthunder/vbx/internal/services"
	"github.com/desertthunder/vbx/internal/shared"
	"github.com/desertthunder/vbx/internal/storage"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 20 * time.Minute
	maxSeed             = 65535
)

// PipelineOpts configures how every job of a batch is carried through the remote workflow.
type PipelineOpts struct {
	OutputDir    string                // Directory artifacts are written to
	Params       models.Params         // Generation parameters shared by the batch
	Resolution   models.Resolution     // Requested output tier
	Quality      models.UpscaleQuality // Upscale target when Resolution is upscaled
	PollInterval time.Duration         // Delay between status checks
	PollTimeout  time.Duration         // Wall-clock deadline of one poll loop
	Retry        retry.Policy          // Applied to every remote call
	Sink         storage.Sink          // Optional mirror for finished artifacts
	Logger       *log.Logger

	// Sleep waits between polls. Defaults to [retry.Sleep].
	Sleep func(ctx context.Context, d time.Duration) error
	// Now reads the clock used for poll deadlines. Defaults to [time.Now].
	Now func() time.Time
}

// Pipeline drives single jobs through the generation state machine:
//
//	CREATED -> (UPLOADING) -> SUBMITTED -> POLLING -> SUCCEEDED_PRIMARY
//	  -> (UPSCALING -> POLLING_UPSCALE -> SUCCEEDED_UPSCALE) -> DOWNLOADED -> CLEANED -> DONE
//
// FAILED is reachable from every step and CANCELLED from every checkpoint.
type Pipeline struct {
	remote   services.RemoteClient
	pool     *credentials.Pool
	opts     PipelineOpts
	logger   *log.Logger
	progress chan<- ProgressUpdate
}

// NewPipeline creates a pipeline. Unset poll settings fall back to 3s and 20m.
func NewPipeline(remote services.RemoteClient, pool *credentials.Pool, opts PipelineOpts) *Pipeline {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	if opts.Quality == "" {
		opts.Quality = models.Quality1080p
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{remote: remote, pool: pool, opts: opts, logger: opts.Logger}
}

// OutputDir is where artifacts are written.
func (p *Pipeline) OutputDir() string { return p.opts.OutputDir }

// WantsUpscale reports whether jobs run the upscale branch. Upscaling only happens when the requested
// tier differs from the native one and the aspect ratio has a higher tier.
func (p *Pipeline) WantsUpscale() bool {
	return p.opts.Resolution != models.NativeResolution && p.opts.Params.AspectRatio.SupportsUpscale()
}

// withProgress returns a shallow copy reporting job updates to progress.
func (p *Pipeline) withProgress(progress chan<- ProgressUpdate) *Pipeline {
	cp := *p
	cp.progress = progress
	return &cp
}

// Execute runs job with acct until it reaches a terminal state and returns its record.
//
// It never returns an error: failures, cancellations and panics all become the record's verdict.
func (p *Pipeline) Execute(ctx context.Context, stop *Signal, job models.Job, acct *models.Account) (rec models.Record) {
	x := &execution{
		Pipeline: p,
		stop:     stop,
		job:      job,
		acct:     acct,
		logger:   p.logger.With("job", job.ID, "account", acct.Name),
		state:    models.StateCreated,
	}
	x.rec = models.Record{
		JobID:     job.ID,
		Prompt:    job.Prompt,
		AssetPath: job.AssetPath,
		Account:   acct.Name,
		Started:   p.opts.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			x.logger.Error("pipeline panicked", "panic", r)
			x.fail(fmt.Errorf("unexpected failure: %v", r))
		}
		rec = x.finish()
	}()

	if err := x.run(ctx); err != nil {
		x.fail(err)
	}
	return rec
}

// execution is the mutable state of one job. It is owned by a single goroutine.
type execution struct {
	*Pipeline
	stop      *Signal
	job       models.Job
	acct      *models.Account
	logger    *log.Logger
	state     models.JobState
	transient []string
	rec       models.Record
}

func (x *execution) run(ctx context.Context) error {
	if x.stop.Stopped() {
		return shared.Errorf(shared.KindCancelled, "", "stopped before start")
	}

	token, err := retry.Value(ctx, x.opts.Retry, "resolve token", func(ctx context.Context) (string, error) {
		return x.pool.ResolveToken(ctx, x.acct)
	})
	if err != nil {
		return err
	}
	auth := services.Auth{Account: x.acct, Token: token}
	params := x.params()

	handle, err := x.submit(ctx, auth, params)
	if err != nil {
		return err
	}

	if err := x.advance(ctx, models.StatePolling); err != nil {
		return err
	}
	payload, err := x.poll(ctx, auth, handle, "generation")
	if err != nil {
		return err
	}
	if err := x.advance(ctx, models.StateSucceededPrimary); err != nil {
		return err
	}

	switch {
	case x.WantsUpscale():
		if payload, err = x.upscale(ctx, auth, payload, params); err != nil {
			return err
		}
	case x.opts.Resolution != models.NativeResolution:
		x.logger.Info("upscale skipped", "aspect", x.opts.Params.AspectRatio)
		sendProgress(x.progress, jobMessageUpdate(x.job.ID, "upscale skipped for %s", x.opts.Params.AspectRatio))
	}

	path, err := x.download(ctx, auth, payload)
	if err != nil {
		return err
	}
	x.rec.Success = true
	x.rec.Detail = path

	x.mirror(ctx, path)
	x.cleanup(ctx, auth)
	x.setState(models.StateCleaned)
	x.setState(models.StateDone)
	return nil
}

// params resolves per-job parameters. A zero seed becomes a random one.
func (x *execution) params() models.Params {
	params := x.opts.Params
	if params.Seed == 0 {
		params.Seed = rand.IntN(maxSeed)
	}
	return params
}

func (x *execution) submit(ctx context.Context, auth services.Auth, params models.Params) (models.OperationHandle, error) {
	if x.job.Kind() == models.TextOnly {
		if err := x.advance(ctx, models.StateSubmitted); err != nil {
			return models.OperationHandle{}, err
		}
		return retry.Value(ctx, x.opts.Retry, "submit", func(ctx context.Context) (models.OperationHandle, error) {
			return x.remote.Submit(ctx, auth, x.job.Prompt, params)
		})
	}

	if err := x.advance(ctx, models.StateUploading); err != nil {
		return models.OperationHandle{}, err
	}
	data, err := os.ReadFile(x.job.AssetPath)
	if err != nil {
		return models.OperationHandle{}, shared.NewError(shared.KindBadRequest, "upload", fmt.Errorf("failed to read asset: %w", err))
	}
	mediaID, err := retry.Value(ctx, x.opts.Retry, "upload", func(ctx context.Context) (string, error) {
		return x.remote.UploadAsset(ctx, auth, data, services.MimeType(x.job.AssetPath), params.AspectRatio)
	})
	if err != nil {
		return models.OperationHandle{}, err
	}
	x.transient = append(x.transient, mediaID)

	if err := x.advance(ctx, models.StateSubmitted); err != nil {
		return models.OperationHandle{}, err
	}
	return retry.Value(ctx, x.opts.Retry, "submit", func(ctx context.Context) (models.OperationHandle, error) {
		return x.remote.SubmitFromAsset(ctx, auth, x.job.Prompt, mediaID, params)
	})
}

// poll checks handle until it reaches a terminal status or the deadline passes. Status is logged
// only when it changes, and the loop never sleeps past the deadline.
func (x *execution) poll(ctx context.Context, auth services.Auth, handle models.OperationHandle, stage string) (models.Payload, error) {
	deadline := x.opts.Now().Add(x.opts.PollTimeout)
	policy := x.bounded(x.opts.Retry, deadline)
	last := ""

	for n := 1; ; n++ {
		if x.stop.Stopped() {
			return models.Payload{}, shared.Errorf(shared.KindCancelled, stage, "stopped while polling")
		}

		res, err := retry.Value(ctx, policy, "poll", func(ctx context.Context) (models.PollResult, error) {
			return x.remote.Poll(ctx, auth, handle)
		})
		if err != nil {
			if ctx.Err() == nil && !x.stop.Stopped() && !x.opts.Now().Before(deadline) {
				return models.Payload{}, shared.NewError(shared.KindPollTimeout, stage,
					fmt.Errorf("no terminal status after %s: %w", x.opts.PollTimeout, err))
			}
			return models.Payload{}, err
		}

		raw := res.Raw
		if raw == "" {
			raw = res.Status.String()
		}
		if raw != last {
			x.logger.Info("status changed", "stage", stage, "operation", handle.Name, "status", raw, "poll", n)
			sendProgress(x.progress, jobMessageUpdate(x.job.ID, "%s %s", stage, res.Status))
			last = raw
		}

		switch res.Status {
		case models.StatusSuccessful:
			return res.Payload, nil
		case models.StatusFailed, models.StatusCancelled:
			return models.Payload{}, shared.Errorf(shared.KindRemoteWorkflow, stage, "remote reported %s", res.Status)
		}

		remaining := deadline.Sub(x.opts.Now())
		if remaining <= 0 {
			return models.Payload{}, shared.Errorf(shared.KindPollTimeout, stage, "no terminal status after %s", x.opts.PollTimeout)
		}
		if err := x.wait(ctx, min(x.opts.PollInterval, remaining)); err != nil {
			return models.Payload{}, err
		}
	}
}

// bounded returns p with backoff sleeps cut short at deadline. Once the deadline has passed the
// policy stops retrying.
func (x *execution) bounded(p retry.Policy, deadline time.Time) retry.Policy {
	sleep := p.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		remaining := deadline.Sub(x.opts.Now())
		if remaining <= 0 {
			return shared.ErrPollTimeout
		}
		return sleep(ctx, min(d, remaining))
	}
	return p
}

// wait sleeps for d, waking early when the batch is stopped or ctx is cancelled.
func (x *execution) wait(ctx context.Context, d time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if x.stop != nil {
		unregister := context.AfterFunc(x.stop.ctx, cancel)
		defer unregister()
	}

	if err := x.opts.Sleep(ctx, d); err != nil {
		return shared.NewError(shared.KindCancelled, "poll", err)
	}
	return nil
}

func (x *execution) upscale(ctx context.Context, auth services.Auth, primary models.Payload, params models.Params) (models.Payload, error) {
	if primary.MediaID == "" {
		return models.Payload{}, shared.Errorf(shared.KindRemoteWorkflow, "upscale", "primary result has no media id")
	}

	if err := x.advance(ctx, models.StateUpscaling); err != nil {
		return models.Payload{}, err
	}
	handle, err := retry.Value(ctx, x.opts.Retry, "upscale", func(ctx context.Context) (models.OperationHandle, error) {
		return x.remote.RequestUpscale(ctx, auth, primary.MediaID, x.opts.Quality, params)
	})
	if err != nil {
		return models.Payload{}, err
	}

	if err := x.advance(ctx, models.StatePollingUpscale); err != nil {
		return models.Payload{}, err
	}
	payload, err := x.poll(ctx, auth, handle, "upscale")
	if err != nil {
		return models.Payload{}, err
	}
	if err := x.advance(ctx, models.StateSucceededUpscale); err != nil {
		return models.Payload{}, err
	}

	x.transient = append(x.transient, primary.MediaID)
	return payload, nil
}

// download fetches the final payload exactly once. It is the last cancellation checkpoint:
// once the artifact exists the job completes.
func (x *execution) download(ctx context.Context, auth services.Auth, payload models.Payload) (string, error) {
	if err := x.checkpoint(ctx, models.StateDownloaded); err != nil {
		return "", err
	}

	path := filepath.Join(x.opts.OutputDir, shared.ArtifactFilename(x.job.ID, x.job.Prompt))
	err := x.opts.Retry.Do(ctx, "download", func(ctx context.Context) error {
		return x.remote.FetchArtifact(ctx, auth, payload, path)
	})
	if err != nil {
		return "", err
	}

	x.setState(models.StateDownloaded)
	x.logger.Info("artifact saved", "path", path)
	return path, nil
}

func (x *execution) mirror(ctx context.Context, path string) {
	if x.opts.Sink == nil || x.opts.Sink.Name() == "local" {
		return
	}

	uri, err := x.opts.Sink.Put(ctx, path, filepath.Base(path))
	if err != nil {
		x.logger.Warn("mirror failed", "sink", x.opts.Sink.Name(), "err", err)
		return
	}
	x.rec.MirrorURI = uri
	x.logger.Debug("artifact mirrored", "uri", uri)
}

// cleanup deletes the remote media this job created. It never changes the verdict.
func (x *execution) cleanup(ctx context.Context, auth services.Auth) {
	switch {
	case len(x.transient) == 0:
		return
	case !x.acct.CanCleanup():
		x.logger.Debug("cleanup skipped: account has no session cookie")
		return
	case x.stop.Stopped() || ctx.Err() != nil:
		x.logger.Debug("cleanup skipped: batch stopping")
		return
	}

	if err := x.remote.DeleteTransient(ctx, auth, x.transient); err != nil {
		x.logger.Warn("cleanup failed", "media", x.transient, "err", shared.NewError(shared.KindCleanup, "cleanup", err))
		return
	}
	x.logger.Debug("transient media deleted", "count", len(x.transient))
}

// checkpoint reports a cancellation error if the batch was stopped or its context cancelled.
func (x *execution) checkpoint(ctx context.Context, next models.JobState) error {
	if x.stop.Stopped() {
		return shared.Errorf(shared.KindCancelled, "", "stopped before %s", next)
	}
	if err := ctx.Err(); err != nil {
		return shared.NewError(shared.KindCancelled, next.String(), err)
	}
	return nil
}

// advance moves to next after passing a checkpoint.
func (x *execution) advance(ctx context.Context, next models.JobState) error {
	if err := x.checkpoint(ctx, next); err != nil {
		return err
	}
	x.setState(next)
	return nil
}

func (x *execution) setState(s models.JobState) {
	x.state = s
	x.logger.Debug("state changed", "state", s)
	sendProgress(x.progress, jobStateUpdate(x.job.ID, s, ""))
}

func (x *execution) fail(err error) {
	x.rec.Success = false
	x.rec.Detail = err.Error()

	kind := shared.KindOf(err)
	if kind == shared.KindCancelled {
		x.rec.Cancelled = true
		x.logger.Warn("job cancelled", "state", x.state)
		x.state = models.StateCancelled
	} else {
		if kind == shared.KindCredential {
			x.pool.Invalidate(x.acct)
		}
		x.logger.Error("job failed", "state", x.state, "kind", kind, "err", err)
		x.state = models.StateFailed
	}
	sendProgress(x.progress, jobStateUpdate(x.job.ID, x.state, x.rec.Detail))
}

func (x *execution) finish() models.Record {
	x.rec.State = x.state
	x.rec.Finished = x.opts.Now()
	return x.rec
}
