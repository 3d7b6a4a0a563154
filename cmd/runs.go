package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/vbx/internal/formatter"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/repositories"
	"github.com/desertthunder/vbx/internal/shared"
	"github.com/urfave/cli/v3"
)

// runSummary is the JSON shape of a listed run.
type runSummary struct {
	ID          string           `json:"id"`
	Sequence    int              `json:"sequence"`
	Status      models.RunStatus `json:"status"`
	Source      string           `json:"source"`
	ParentRunID string           `json:"parent_run_id,omitempty"`
	TotalJobs   int              `json:"total_jobs"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	Cancelled   int              `json:"cancelled"`
	OutputDir   string           `json:"output_dir"`
	ReportPath  string           `json:"report_path,omitempty"`
	StartedAt   string           `json:"started_at"`
}

func summarize(run *models.Run) runSummary {
	return runSummary{
		ID:          run.ID(),
		Sequence:    run.Sequence(),
		Status:      run.Status(),
		Source:      run.Source(),
		ParentRunID: run.ParentRunID(),
		TotalJobs:   run.TotalJobs(),
		Succeeded:   run.Succeeded(),
		Failed:      run.Failed(),
		Cancelled:   run.Cancelled(),
		OutputDir:   run.OutputDir(),
		ReportPath:  run.ReportPath(),
		StartedAt:   run.StartedAt().Format("2006-01-02 15:04:05"),
	}
}

// RunsList lists stored runs, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(map[string]any{
		"status": cmd.String("status"),
		"limit":  int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		out := make([]runSummary, len(runs))
		for i, run := range runs {
			out[i] = summarize(run)
		}
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	if len(runs) == 0 {
		r.writePlain("No runs yet. Start one with 'vbx run --prompt \"...\"'\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Runs (%d)", len(runs)))
	for _, run := range runs {
		r.writePlain("#%-4d %s  %-9s %3d/%-3d ok  %s  %s\n",
			run.Sequence(), run.ID(), run.Status(), run.Succeeded(), run.TotalJobs(),
			run.StartedAt().Local().Format("2006-01-02 15:04"), run.Source())
	}
	return nil
}

// RunsShow prints a stored run and its records.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := findRun(db, cmd.StringArg("id"))
	if err != nil {
		return err
	}

	records := repositories.NewRecordRepository(db)
	var result *models.BatchResult
	if cmd.Bool("failed") {
		recs, err := records.FailedByRun(ctx, run.ID())
		if err != nil {
			return err
		}
		result = &models.BatchResult{RunID: run.ID(), OutputDir: run.OutputDir(), Records: recs}
		result.Sort()
	} else if result, err = records.Result(ctx, run); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			Run    runSummary          `json:"run"`
			Result *models.BatchResult `json:"result"`
		}{summarize(run), result}, cmd.Bool("pretty"))
	}

	text, err := formatter.ReportToText(result)
	if err != nil {
		return err
	}
	r.writePlainHeader(fmt.Sprintf("Run #%d %s: %s", run.Sequence(), run.ID(), run.Status()))
	if run.ParentRunID() != "" {
		r.writePlain("Retry of: %s\n", run.ParentRunID())
	}
	r.writePlain("Source: %s\nOutput: %s\n\n%s", run.Source(), run.OutputDir(), text)
	return nil
}

// RunsReport renders the report of a stored run.
func (r *Runner) RunsReport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := findRun(db, cmd.StringArg("id"))
	if err != nil {
		return err
	}
	result, err := repositories.NewRecordRepository(db).Result(ctx, run)
	if err != nil {
		return err
	}

	path, err := formatter.WriteReport(result, format, cmd.String("output"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Report written to %s\n", path)
	return nil
}

// RunsOpen opens a run's output directory with the system file browser.
func (r *Runner) RunsOpen(ctx context.Context, cmd *cli.Command) error {
	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := findRun(db, cmd.StringArg("id"))
	if err != nil {
		return err
	}
	r.logger.Info("opening output directory", "path", run.OutputDir())
	return shared.OpenPath(run.OutputDir())
}

// RunsDelete hides a run from listings. Its records and artifacts are kept.
func (r *Runner) RunsDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: run id", shared.ErrMissingArgument)
	}

	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.NewRunRepository(db).Delete(id); err != nil {
		return err
	}
	r.writePlain("✓ Run %s deleted\n", id)
	return nil
}

// findRun returns the run with id, or the latest run when id is empty.
func findRun(db *sql.DB, id string) (*models.Run, error) {
	runs := repositories.NewRunRepository(db)
	if id == "" {
		return runs.Latest()
	}
	return runs.Get(id)
}
