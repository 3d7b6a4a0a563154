package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/desertthunder/vbx/internal/credentials"
	"github.com/desertthunder/vbx/internal/formatter"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/repositories"
	"github.com/desertthunder/vbx/internal/retry"
	"github.com/desertthunder/vbx/internal/shared"
	"github.com/desertthunder/vbx/internal/storage"
	"github.com/desertthunder/vbx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// batchPlan is one batch invocation after flags are resolved.
type batchPlan struct {
	jobs        []models.Job
	source      string
	parentRunID string
	interactive bool
}

// Run starts a new batch from --prompt or --file.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	jobs, source, err := loadJobs(cmd)
	if err != nil {
		return err
	}
	if err := r.applyOverrides(cmd); err != nil {
		return err
	}
	return r.runBatch(ctx, cmd, batchPlan{jobs: jobs, source: source, interactive: cmd.Bool("tui")})
}

// loadJobs builds the batch from --file, or from --prompt repeated --count times.
func loadJobs(cmd *cli.Command) ([]models.Job, string, error) {
	prompt, file, asset := cmd.String("prompt"), cmd.String("file"), cmd.String("asset")

	switch {
	case prompt != "" && file != "":
		return nil, "", fmt.Errorf("%w: --prompt and --file are mutually exclusive", shared.ErrInvalidArgument)
	case file != "":
		if asset != "" {
			return nil, "", fmt.Errorf("%w: --asset only applies to --prompt, use an asset_path column instead", shared.ErrInvalidArgument)
		}
		jobs, err := formatter.ReadPrompts(file)
		return jobs, file, err
	case prompt != "":
		jobs, err := formatter.RepeatPrompt(prompt, int(cmd.Int("count")), asset)
		return jobs, "prompt", err
	default:
		return nil, "", fmt.Errorf("%w: --prompt or --file", shared.ErrMissingArgument)
	}
}

// applyOverrides folds command-line settings into a copy of the config and validates it.
func (r *Runner) applyOverrides(cmd *cli.Command) error {
	cfg := *r.config

	if n := int(cmd.Int("concurrency")); n != 0 {
		cfg.Engine.Concurrency = n
	}
	if dir := cmd.String("output"); dir != "" {
		cfg.Engine.OutputDir = dir
	}
	if cmd.Bool("upscale") {
		cfg.Engine.TargetResolution = models.ResolutionUpscaled.String()
	}
	if cmd.Bool("portrait") {
		cfg.Engine.AspectRatio = models.AspectPortrait.String()
	}
	if q := cmd.String("quality"); q != "" {
		cfg.Engine.UpscaleQuality = q
	}
	if rot := cmd.String("rotation"); rot != "" {
		cfg.Engine.Rotation = rot
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	r.config = &cfg
	return nil
}

// runBatch persists a run, executes it, writes its report and prints the outcome.
func (r *Runner) runBatch(ctx context.Context, cmd *cli.Command, plan batchPlan) error {
	format, err := formatter.ParseFormat(cmd.String("report"))
	if err != nil {
		return err
	}

	accounts, err := r.loadAccounts()
	if err != nil {
		return err
	}

	if plan.interactive {
		restore, err := r.logToFile()
		if err != nil {
			return err
		}
		defer restore()
	}

	engine := r.config.Engine
	resolution, err := models.ParseResolution(engine.TargetResolution)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}
	aspect, err := models.ParseAspectRatio(engine.AspectRatio)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
	}

	sink := r.sink
	if sink == nil {
		if sink, err = storage.New(ctx, r.config.Storage); err != nil {
			return fmt.Errorf("failed to create storage sink: %w", err)
		}
		if c, ok := sink.(io.Closer); ok {
			defer c.Close()
		}
	}

	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	runs := repositories.NewRunRepository(db)
	records := repositories.NewRecordRepository(db)

	pool := credentials.NewPool(accounts, r.tokens)
	var dist *credentials.Distribution
	if strings.EqualFold(engine.Rotation, "round_robin") {
		dist = pool.RoundRobin(plan.jobs)
	} else {
		dist = pool.Distribute(plan.jobs)
	}

	run := models.NewRun(plan.source, len(plan.jobs), engine.OutputDir, models.RunOptions{
		Concurrency:      engine.Concurrency,
		TargetResolution: resolution.String(),
		AspectRatio:      aspect.String(),
		UpscaleQuality:   engine.UpscaleQuality,
		Rotation:         engine.Rotation,
		Accounts:         len(accounts),
	})
	run.SetParentRunID(plan.parentRunID)
	if err := runs.Create(run); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	r.logger.Info("starting batch", "run", run.ID(), "jobs", len(plan.jobs), "accounts", len(accounts),
		"rotation", engine.Rotation, "resolution", resolution, "aspect", aspect, "sink", sink.Name())

	pipeline := tasks.NewPipeline(r.remote, pool, tasks.PipelineOpts{
		OutputDir: engine.OutputDir,
		Params: models.Params{
			ModelKey:      engine.TextModelKey,
			AssetModelKey: engine.AssetModelKey,
			AspectRatio:   aspect,
			Seed:          engine.Seed,
			ProjectID:     engine.ProjectID,
		},
		Resolution:   resolution,
		Quality:      models.UpscaleQuality(engine.UpscaleQuality),
		PollInterval: r.config.Poll.PollInterval(),
		PollTimeout:  r.config.Poll.PollTimeout(),
		Retry:        retry.FromConfig(r.config.Retry),
		Sink:         sink,
		Logger:       r.logger,
	})
	scheduler := tasks.NewScheduler(pipeline, tasks.SchedulerOpts{
		Concurrency: engine.Concurrency,
		StopGrace:   engine.StopGrace(),
		Recorder:    records,
		Logger:      r.logger,
	})

	var result *models.BatchResult
	if plan.interactive {
		result, err = r.runInteractive(ctx, scheduler, run.ID(), plan.jobs, dist)
	} else {
		result, err = r.runHeadless(ctx, scheduler, run.ID(), dist)
	}
	if err != nil {
		finished := time.Now().UTC()
		run.SetStatus(models.RunFailed)
		run.SetFinishedAt(&finished)
		if uerr := runs.Update(run); uerr != nil {
			r.logger.Error("failed to update run", "run", run.ID(), "err", uerr)
		}
		return err
	}

	run.Complete(result, scheduler.Stopped())
	if path, err := formatter.WriteReport(result, format, cmd.String("report-path")); err != nil {
		r.logger.Error("failed to write report", "err", err)
	} else {
		run.SetReportPath(path)
		r.logger.Info("report written", "path", path)
	}
	if err := runs.Update(run); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, cmd.Bool("pretty"))
	}
	r.printResult(run, result)
	return nil
}

// runHeadless runs the batch, logging progress. The first interrupt stops the batch; the second kills it.
func (r *Runner) runHeadless(ctx context.Context, s *tasks.Scheduler, runID string, dist *credentials.Distribution) (*models.BatchResult, error) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	progress := make(chan tasks.ProgressUpdate, 100)
	finished := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		interrupts := 0
		for {
			select {
			case u := <-progress:
				r.logProgress(u)
			case <-sigs:
				interrupts++
				if interrupts == 1 {
					r.logger.Warn("interrupt received, stopping batch (press Ctrl+C again to kill)")
					s.Stop()
				} else {
					r.logger.Warn("second interrupt received, killing batch")
					s.Kill()
				}
			case <-finished:
				for {
					select {
					case u := <-progress:
						r.logProgress(u)
					default:
						return
					}
				}
			}
		}
	}()

	result, err := s.Run(ctx, runID, dist, progress)
	close(finished)
	<-done
	return result, err
}

func (r *Runner) logProgress(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.JobStatus:
		r.logger.Debug(u.Message)
	case tasks.BatchDone:
	default:
		r.logger.Info(u.Message)
	}
}

// printResult writes the batch summary and the jobs that did not succeed.
func (r *Runner) printResult(run *models.Run, result *models.BatchResult) {
	r.writePlainHeader(fmt.Sprintf("Run %s: %s", run.ID(), run.Status()))
	r.writePlain("%s\n", result.Summary())
	r.writePlain("Output: %s\n", result.OutputDir)
	if run.ReportPath() != "" {
		r.writePlain("Report: %s\n", run.ReportPath())
	}

	if failed := result.Total() - result.Succeeded; failed > 0 {
		r.writePlainln("Jobs that did not succeed:")
		for _, rec := range result.Records {
			if !rec.Success {
				r.writePlain("  #%d [%s] %s\n", rec.JobID, rec.Outcome(), rec.Detail)
			}
		}
		r.writePlainln("Run 'vbx retry %s' to re-run them.", run.ID())
	}
}
