package tasks

import (
	"time"

	"github.com/desertthunder/vbx/internal/credentials"
	"github.com/desertthunder/vbx/internal/models"
)

// progressStep is the smallest percentage change reported, which caps batch updates at 20.
const progressStep = 5

// aggregator folds pipeline records into a [models.BatchResult] and reports coarse progress.
//
// It is used by a single goroutine.
type aggregator struct {
	result   *models.BatchResult
	seen     map[int]bool
	total    int
	bucket   int
	progress chan<- ProgressUpdate
}

func newAggregator(runID, outputDir string, total int, started time.Time, progress chan<- ProgressUpdate) *aggregator {
	return &aggregator{
		result: &models.BatchResult{
			RunID:     runID,
			OutputDir: outputDir,
			Records:   make([]models.Record, 0, total),
			Started:   started,
		},
		seen:     make(map[int]bool, total),
		total:    total,
		progress: progress,
	}
}

// add records one outcome. Only the first record per job counts. It reports whether rec was new.
func (a *aggregator) add(rec models.Record) bool {
	if a.seen[rec.JobID] {
		return false
	}
	a.seen[rec.JobID] = true
	a.result.Records = append(a.result.Records, rec)

	switch {
	case rec.Success:
		a.result.Succeeded++
	case rec.Cancelled:
		a.result.Cancelled++
	default:
		a.result.Failed++
	}

	done := len(a.result.Records)
	pct := 100
	if a.total > 0 {
		pct = done * 100 / a.total
	}
	if b := pct / progressStep; b > a.bucket {
		a.bucket = b
		sendProgress(a.progress, batchProgressUpdate(done, a.total, pct))
	}
	return true
}

// missing builds cancelled records for every pair that has not reported. The first dispatched
// pairs were handed to workers that were abandoned after a kill; the rest never started.
func (a *aggregator) missing(pairs []credentials.Pair, dispatched int, at time.Time) []models.Record {
	var recs []models.Record
	for i, p := range pairs {
		if a.seen[p.Job.ID] {
			continue
		}
		detail := "cancelled by user: not started"
		if i < dispatched {
			detail = "cancelled by user: abandoned after forced stop"
		}
		recs = append(recs, models.Record{
			JobID:     p.Job.ID,
			Prompt:    p.Job.Prompt,
			AssetPath: p.Job.AssetPath,
			Account:   p.Account.Name,
			Cancelled: true,
			State:     models.StateCancelled,
			Detail:    detail,
			Finished:  at,
		})
	}
	return recs
}

// finish sorts the records by job id and stamps the finish time.
func (a *aggregator) finish(at time.Time) *models.BatchResult {
	a.result.Sort()
	a.result.Finished = at
	return a.result
}
