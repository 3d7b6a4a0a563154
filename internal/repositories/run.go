package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
)

const runColumns = `
	id, sequence, status, source, parent_run_id, total_jobs, succeeded, failed, cancelled,
	output_dir, options, report_path, started_at, finished_at, created_at, updated_at, deleted_at
`

// RunRepository implements models.Repository[*models.Run] for batch run history.
//
// Handles run CRUD operations with soft delete support and status-based queries.
type RunRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with generated ID and sequence
func (r *RunRepository) Create(run *models.Run) error {
	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if run.ID() == "" {
		run.SetID(shared.GenerateID())
	}
	run.SetSequence(sequence)

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	options, err := json.Marshal(run.Options())
	if err != nil {
		return fmt.Errorf("failed to encode run options: %w", err)
	}

	query := `
		INSERT INTO runs (
			id, sequence, status, source, parent_run_id, total_jobs, succeeded, failed, cancelled,
			output_dir, options, report_path, started_at, finished_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID(),
		sequence,
		string(run.Status()),
		run.Source(),
		nullString(run.ParentRunID()),
		run.TotalJobs(),
		run.Succeeded(),
		run.Failed(),
		run.Cancelled(),
		run.OutputDir(),
		string(options),
		nullString(run.ReportPath()),
		run.StartedAt(),
		run.FinishedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE id = ? AND deleted_at IS NULL"
	run, err := scanRun(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Latest returns the most recently created run.
func (r *RunRepository) Latest() (*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE deleted_at IS NULL ORDER BY sequence DESC LIMIT 1"
	run, err := scanRun(r.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no runs recorded", shared.ErrNotFound)
	}
	return run, err
}

// Update writes the mutable fields of a run: status, counts, report path and finish time.
func (r *RunRepository) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	run.SetUpdatedAt(now)

	query := `
		UPDATE runs
		SET status = ?, total_jobs = ?, succeeded = ?, failed = ?, cancelled = ?,
			report_path = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		string(run.Status()),
		run.TotalJobs(),
		run.Succeeded(),
		run.Failed(),
		run.Cancelled(),
		nullString(run.ReportPath()),
		run.FinishedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return requireRow(result, "run", run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec("UPDATE runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL", time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return requireRow(result, "run", id)
}

// List retrieves runs matching criteria, newest first.
//
// Supported criteria: "status" (string), "source" (string) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE deleted_at IS NULL"
	args := []any{}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	if source, ok := criteria["source"].(string); ok && source != "" {
		query += " AND source = ?"
		args = append(args, source)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		id          string
		sequence    int
		status      string
		source      string
		parentRunID sql.NullString
		totalJobs   int
		succeeded   int
		failed      int
		cancelled   int
		outputDir   string
		options     string
		reportPath  sql.NullString
		startedAt   time.Time
		finishedAt  sql.NullTime
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &status, &source, &parentRunID, &totalJobs, &succeeded, &failed, &cancelled,
		&outputDir, &options, &reportPath, &startedAt, &finishedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var opts models.RunOptions
	if err := json.Unmarshal([]byte(options), &opts); err != nil {
		return nil, fmt.Errorf("failed to decode options of run %s: %w", id, err)
	}

	return models.RestoreRun(
		id, sequence, models.RunStatus(status), source, parentRunID.String,
		totalJobs, succeeded, failed, cancelled, outputDir, opts, reportPath.String,
		startedAt, nullTime(finishedAt), createdAt, updatedAt, nullTime(deletedAt),
	), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func requireRow(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s %s not found or already deleted", shared.ErrNotFound, entity, id)
	}
	return nil
}
