package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vbx/internal/credentials"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
	"github.com/desertthunder/vbx/internal/tasks"
	"github.com/desertthunder/vbx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI starts a new batch in the interactive view.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	jobs, source, err := loadJobs(cmd)
	if err != nil {
		return err
	}
	if err := r.applyOverrides(cmd); err != nil {
		return err
	}
	return r.runBatch(ctx, cmd, batchPlan{jobs: jobs, source: source, interactive: true})
}

// logToFile redirects logs to a file so they do not interfere with TUI rendering. The returned
// function restores the previous logger.
func (r *Runner) logToFile() (func(), error) {
	fileLogger, err := shared.NewFileLogger("./tmp/vbx-tui.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	shared.SetLogLevel(fileLogger, r.logger.GetLevel())

	previous := r.logger
	r.SetLogger(fileLogger)
	return func() { r.SetLogger(previous) }, nil
}

// runInteractive runs the batch behind the terminal UI. Stop and kill requests come from its key bindings.
func (r *Runner) runInteractive(
	ctx context.Context,
	s *tasks.Scheduler,
	runID string,
	jobs []models.Job,
	dist *credentials.Distribution,
) (*models.BatchResult, error) {
	run := func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.BatchResult, error) {
		return s.Run(ctx, runID, dist, progress)
	}

	title := fmt.Sprintf("vbx: %d jobs (run %s)", len(jobs), runID)
	model := ui.NewModel(ctx, title, jobs, run, s)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		s.Kill()
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if err == nil && result == nil {
		s.Kill()
		return nil, fmt.Errorf("%w: interface closed before the batch finished", shared.ErrUserCancelled)
	}
	return result, err
}
