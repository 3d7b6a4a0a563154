package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/vbx/internal/models"
)

const recordColumns = `
	job_id, prompt, asset_path, account, success, cancelled, state, detail, mirror_uri, started_at, finished_at
`

// RecordRepository stores per-job outcomes of a run, keyed by (run id, job id).
//
// It satisfies the scheduler's recorder so each outcome is written as soon as its job finishes,
// which keeps the history of an interrupted run intact.
type RecordRepository struct {
	db *sql.DB
}

// NewRecordRepository creates a new RecordRepository with the given database connection
func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// RecordOutcome upserts rec under runID. A later record for the same job replaces the earlier one.
func (r *RecordRepository) RecordOutcome(ctx context.Context, runID string, rec models.Record) error {
	query := `
		INSERT INTO run_records (
			run_id, job_id, prompt, asset_path, account, success, cancelled, state, detail, mirror_uri, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, job_id) DO UPDATE SET
			account = excluded.account,
			success = excluded.success,
			cancelled = excluded.cancelled,
			state = excluded.state,
			detail = excluded.detail,
			mirror_uri = excluded.mirror_uri,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`

	_, err := r.db.ExecContext(ctx, query,
		runID,
		rec.JobID,
		rec.Prompt,
		rec.AssetPath,
		rec.Account,
		rec.Success,
		rec.Cancelled,
		rec.State.String(),
		rec.Detail,
		rec.MirrorURI,
		zeroTime(rec.Started),
		zeroTime(rec.Finished),
	)
	if err != nil {
		return fmt.Errorf("failed to store record for job %d: %w", rec.JobID, err)
	}
	return nil
}

// ListByRun returns every record of a run ordered by job id.
func (r *RecordRepository) ListByRun(ctx context.Context, runID string) ([]models.Record, error) {
	query := "SELECT " + recordColumns + " FROM run_records WHERE run_id = ? ORDER BY job_id ASC"
	return r.query(ctx, query, runID)
}

// FailedByRun returns the records of a run that did not succeed, cancelled ones included.
func (r *RecordRepository) FailedByRun(ctx context.Context, runID string) ([]models.Record, error) {
	query := "SELECT " + recordColumns + " FROM run_records WHERE run_id = ? AND success = 0 ORDER BY job_id ASC"
	return r.query(ctx, query, runID)
}

// Result rebuilds the batch result of a stored run.
func (r *RecordRepository) Result(ctx context.Context, run *models.Run) (*models.BatchResult, error) {
	recs, err := r.ListByRun(ctx, run.ID())
	if err != nil {
		return nil, err
	}

	result := &models.BatchResult{
		RunID:     run.ID(),
		OutputDir: run.OutputDir(),
		Records:   recs,
		Started:   run.StartedAt(),
	}
	if f := run.FinishedAt(); f != nil {
		result.Finished = *f
	}
	result.Sort()
	return result, nil
}

func (r *RecordRepository) query(ctx context.Context, query string, args ...any) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var recs []models.Record
	for rows.Next() {
		var (
			rec        models.Record
			state      string
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		err := rows.Scan(
			&rec.JobID, &rec.Prompt, &rec.AssetPath, &rec.Account, &rec.Success, &rec.Cancelled,
			&state, &rec.Detail, &rec.MirrorURI, &startedAt, &finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if rec.State, err = models.ParseJobState(state); err != nil {
			return nil, fmt.Errorf("record for job %d: %w", rec.JobID, err)
		}
		rec.Started = startedAt.Time
		rec.Finished = finishedAt.Time
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return recs, nil
}

func zeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
