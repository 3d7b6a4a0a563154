package main

import (
	"context"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/repositories"
	"github.com/urfave/cli/v3"
)

// Retry re-runs the jobs of a stored run that failed or were cancelled, keeping their ids and the run's
// generation settings. The new run records the original as its parent.
func (r *Runner) Retry(ctx context.Context, cmd *cli.Command) error {
	parent, jobs, err := r.retryJobs(ctx, cmd.StringArg("run"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		r.writePlain("✓ Every job of run %s succeeded, nothing to retry\n", parent.ID())
		return nil
	}

	cfg := *r.config
	opts := parent.Options()
	cfg.Engine.TargetResolution = opts.TargetResolution
	cfg.Engine.AspectRatio = opts.AspectRatio
	cfg.Engine.UpscaleQuality = opts.UpscaleQuality
	cfg.Engine.Rotation = opts.Rotation
	if opts.Concurrency > 0 {
		cfg.Engine.Concurrency = opts.Concurrency
	}
	if parent.OutputDir() != "" {
		cfg.Engine.OutputDir = parent.OutputDir()
	}
	r.config = &cfg
	if err := r.applyOverrides(cmd); err != nil {
		return err
	}

	r.logger.Info("retrying run", "parent", parent.ID(), "jobs", len(jobs))
	return r.runBatch(ctx, cmd, batchPlan{
		jobs:        jobs,
		source:      "retry",
		parentRunID: parent.ID(),
		interactive: cmd.Bool("tui"),
	})
}

// retryJobs loads the run with id, or the latest run when id is empty, and the jobs it did not finish.
func (r *Runner) retryJobs(ctx context.Context, id string) (*models.Run, []models.Job, error) {
	db, err := r.openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	runs := repositories.NewRunRepository(db)
	var run *models.Run
	if id == "" {
		run, err = runs.Latest()
	} else {
		run, err = runs.Get(id)
	}
	if err != nil {
		return nil, nil, err
	}
	if run.Status() == models.RunRunning {
		r.logger.Warn("run is still marked running, it may have been interrupted", "run", run.ID())
	}

	result, err := repositories.NewRecordRepository(db).Result(ctx, run)
	if err != nil {
		return nil, nil, err
	}
	return run, result.FailedJobs(), nil
}
