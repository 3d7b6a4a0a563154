package tasks

import (
	"fmt"

	"github.com/desertthunder/vbx/internal/models"
)

// ProgressUpdate represents a progress event during a batch.
//
// Updates are advisory: they are sent without blocking and may be dropped when the consumer falls behind.
type ProgressUpdate struct {
	Phase   Phase  // Kind of update
	Step    int    // Completed jobs so far
	Total   int    // Jobs in the batch
	Percent int    // Completion percentage, set for batch updates
	JobID   int    // Job the update concerns, set for job updates
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data, e.g. the final [models.BatchResult]
}

// Phase is the kind of a [ProgressUpdate].
type Phase int

const (
	BatchProgress Phase = iota // Coarse batch-level progress
	JobStatus                  // A job changed state
	BatchDone                  // The batch finished; Data holds the result
)

func (p Phase) String() string {
	switch p {
	case BatchProgress:
		return "batch_progress"
	case JobStatus:
		return "job_status"
	case BatchDone:
		return "batch_done"
	default:
		return ""
	}
}

// sendProgress sends an update without blocking. A nil channel disables reporting.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func batchStartUpdate(total int, accounts int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchProgress,
		Total:   total,
		Message: fmt.Sprintf("Starting %d jobs across %d accounts...", total, accounts),
	}
}

func batchProgressUpdate(step, total, percent int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchProgress,
		Step:    step,
		Total:   total,
		Percent: percent,
		Message: fmt.Sprintf("[%d/%d] %d%% complete", step, total, percent),
	}
}

func stoppingUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchProgress,
		Total:   total,
		Message: "Stopping: no new jobs will start, running jobs stop at their next checkpoint...",
	}
}

func jobStateUpdate(jobID int, state models.JobState, detail string) ProgressUpdate {
	msg := fmt.Sprintf("Job %d: %s", jobID, state)
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return ProgressUpdate{Phase: JobStatus, JobID: jobID, Message: msg, Data: state}
}

func jobMessageUpdate(jobID int, format string, args ...any) ProgressUpdate {
	return ProgressUpdate{Phase: JobStatus, JobID: jobID, Message: fmt.Sprintf("Job %d: ", jobID) + fmt.Sprintf(format, args...)}
}

func batchDoneUpdate(result *models.BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchDone,
		Step:    result.Total(),
		Total:   result.Total(),
		Percent: 100,
		Message: result.Summary(),
		Data:    result,
	}
}
