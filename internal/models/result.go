package models

import (
	"fmt"
	"sort"
	"time"
)

// Record is the single terminal outcome of one job.
type Record struct {
	JobID     int       `json:"job_id"`
	Prompt    string    `json:"prompt"`
	AssetPath string    `json:"asset_path,omitempty"`
	Account   string    `json:"account,omitempty"`
	Success   bool      `json:"success"`
	Cancelled bool      `json:"cancelled,omitempty"`
	State     JobState  `json:"state"`
	Detail    string    `json:"detail"` // Artifact path on success, reason otherwise
	MirrorURI string    `json:"mirror_uri,omitempty"`
	Started   time.Time `json:"started_at,omitzero"`
	Finished  time.Time `json:"finished_at,omitzero"`
}

// Job rebuilds the job that produced the record.
func (r Record) Job() Job {
	return Job{ID: r.JobID, Prompt: r.Prompt, AssetPath: r.AssetPath}
}

// Outcome is a short label for reports: ok, failed or cancelled.
func (r Record) Outcome() string {
	switch {
	case r.Success:
		return "ok"
	case r.Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Duration is the wall time the job spent in its pipeline.
func (r Record) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// BatchResult is the report handed back to the caller, one record per input job.
type BatchResult struct {
	RunID     string    `json:"run_id"`
	OutputDir string    `json:"output_dir"`
	Records   []Record  `json:"records"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Cancelled int       `json:"cancelled"`
	Started   time.Time `json:"started_at"`
	Finished  time.Time `json:"finished_at"`
}

// Sort orders records by ascending job id and recounts totals.
func (b *BatchResult) Sort() {
	sort.SliceStable(b.Records, func(i, j int) bool {
		return b.Records[i].JobID < b.Records[j].JobID
	})

	b.Succeeded, b.Failed, b.Cancelled = 0, 0, 0
	for _, r := range b.Records {
		switch {
		case r.Success:
			b.Succeeded++
		case r.Cancelled:
			b.Cancelled++
		default:
			b.Failed++
		}
	}
}

// Total is the number of records.
func (b *BatchResult) Total() int {
	return len(b.Records)
}

// FailedJobs returns the jobs that did not succeed, including cancelled ones, in id order.
//
// This is the subset re-submitted by a retry.
func (b *BatchResult) FailedJobs() []Job {
	var jobs []Job
	for _, r := range b.Records {
		if !r.Success {
			jobs = append(jobs, r.Job())
		}
	}
	return jobs
}

// SuccessRate is the percentage of succeeded jobs.
func (b *BatchResult) SuccessRate() float64 {
	if len(b.Records) == 0 {
		return 0
	}
	return float64(b.Succeeded) / float64(len(b.Records)) * 100
}

// Summary is a one-line description of the batch.
func (b *BatchResult) Summary() string {
	return fmt.Sprintf("%d/%d succeeded, %d failed, %d cancelled (%.1f%%)",
		b.Succeeded, b.Total(), b.Failed, b.Cancelled, b.SuccessRate())
}
