package models

import (
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a stored batch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed" // every job succeeded
	RunPartial   RunStatus = "partial"   // some jobs failed or were cancelled
	RunFailed    RunStatus = "failed"    // no job succeeded
	RunStopped   RunStatus = "stopped"   // stopped by the user before every job ran
)

// RunOptions captures the settings a run was started with, stored as JSON.
type RunOptions struct {
	Concurrency      int    `json:"concurrency"`
	TargetResolution string `json:"target_resolution"`
	AspectRatio      string `json:"aspect_ratio"`
	UpscaleQuality   string `json:"upscale_quality"`
	Rotation         string `json:"rotation"`
	Accounts         int    `json:"accounts"`
}

// Run is a persisted batch execution.
type Run struct {
	id          string
	sequence    int
	status      RunStatus
	source      string
	parentRunID string
	totalJobs   int
	succeeded   int
	failed      int
	cancelled   int
	outputDir   string
	options     RunOptions
	reportPath  string
	startedAt   time.Time
	finishedAt  *time.Time
	createdAt   time.Time
	updatedAt   time.Time
	deletedAt   *time.Time
}

var _ Model = (*Run)(nil)

// NewRun creates a running batch for source (a prompt file, "prompt", or "retry").
func NewRun(source string, totalJobs int, outputDir string, opts RunOptions) *Run {
	now := time.Now().UTC()
	return &Run{
		status:    RunRunning,
		source:    source,
		totalJobs: totalJobs,
		outputDir: outputDir,
		options:   opts,
		startedAt: now,
		createdAt: now,
		updatedAt: now,
	}
}

// RestoreRun rebuilds a Run from stored columns.
func RestoreRun(
	id string, sequence int, status RunStatus, source, parentRunID string,
	totalJobs, succeeded, failed, cancelled int, outputDir string, opts RunOptions, reportPath string,
	startedAt time.Time, finishedAt *time.Time, createdAt, updatedAt time.Time, deletedAt *time.Time,
) *Run {
	return &Run{
		id: id, sequence: sequence, status: status, source: source, parentRunID: parentRunID,
		totalJobs: totalJobs, succeeded: succeeded, failed: failed, cancelled: cancelled,
		outputDir: outputDir, options: opts, reportPath: reportPath,
		startedAt: startedAt, finishedAt: finishedAt, createdAt: createdAt, updatedAt: updatedAt, deletedAt: deletedAt,
	}
}

func (r *Run) ID() string             { return r.id }
func (r *Run) Sequence() int          { return r.sequence }
func (r *Run) Status() RunStatus      { return r.status }
func (r *Run) Source() string         { return r.source }
func (r *Run) ParentRunID() string    { return r.parentRunID }
func (r *Run) TotalJobs() int         { return r.totalJobs }
func (r *Run) Succeeded() int         { return r.succeeded }
func (r *Run) Failed() int            { return r.failed }
func (r *Run) Cancelled() int         { return r.cancelled }
func (r *Run) OutputDir() string      { return r.outputDir }
func (r *Run) Options() RunOptions    { return r.options }
func (r *Run) ReportPath() string     { return r.reportPath }
func (r *Run) StartedAt() time.Time   { return r.startedAt }
func (r *Run) FinishedAt() *time.Time { return r.finishedAt }
func (r *Run) CreatedAt() time.Time   { return r.createdAt }
func (r *Run) UpdatedAt() time.Time   { return r.updatedAt }
func (r *Run) DeletedAt() *time.Time  { return r.deletedAt }

func (r *Run) SetID(id string)            { r.id = id }
func (r *Run) SetSequence(seq int)        { r.sequence = seq }
func (r *Run) SetParentRunID(id string)   { r.parentRunID = id }
func (r *Run) SetReportPath(p string)     { r.reportPath = p }
func (r *Run) SetUpdatedAt(t time.Time)   { r.updatedAt = t }
func (r *Run) SetDeletedAt(t *time.Time)  { r.deletedAt = t }
func (r *Run) SetStatus(status RunStatus) { r.status = status }
func (r *Run) SetTotalJobs(total int)     { r.totalJobs = total }
func (r *Run) SetOutputDir(dir string)    { r.outputDir = dir }
func (r *Run) SetOptions(opts RunOptions) { r.options = opts }
func (r *Run) SetStartedAt(t time.Time)   { r.startedAt = t }
func (r *Run) SetFinishedAt(t *time.Time) { r.finishedAt = t }
func (r *Run) IsDeleted() bool            { return r.deletedAt != nil }

// Complete folds a finished batch into the run and derives its status.
func (r *Run) Complete(result *BatchResult, stopped bool) {
	r.succeeded = result.Succeeded
	r.failed = result.Failed
	r.cancelled = result.Cancelled
	r.totalJobs = result.Total()

	finished := result.Finished
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	r.finishedAt = &finished

	switch {
	case stopped && r.cancelled > 0:
		r.status = RunStopped
	case r.succeeded == r.totalJobs:
		r.status = RunCompleted
	case r.succeeded == 0:
		r.status = RunFailed
	default:
		r.status = RunPartial
	}
}

// Validate checks required fields.
func (r *Run) Validate() error {
	if r.id == "" {
		return errors.New("run id is required")
	}
	switch r.status {
	case RunRunning, RunCompleted, RunPartial, RunFailed, RunStopped:
	default:
		return fmt.Errorf("invalid run status %q", r.status)
	}
	if r.totalJobs < 0 {
		return errors.New("total jobs must not be negative")
	}
	return nil
}
