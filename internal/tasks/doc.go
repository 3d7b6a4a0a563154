// Package tasks runs batches of generation jobs across several accounts with bounded concurrency.
//
// # Pipeline
//
// [Pipeline.Execute] carries one job through the remote workflow: optional asset upload, submit,
// poll, optional upscale, download and best-effort cleanup of transient remote media. Every remote
// call goes through the batch's [retry.Policy]. Each job ends with exactly one [models.Record],
// whatever step it stopped in; panics are recovered into failure records.
//
// The upscale branch runs only when an upscaled tier was requested and the aspect ratio supports
// it. Portrait jobs keep the primary result.
//
// # Poll Loop
//
// Status checks run on a fixed interval until the remote reports a terminal status or the poll
// deadline passes. Status is logged only when it changes, and the last sleep is shortened so the
// loop never waits past the deadline. A FAILED or CANCELLED remote status is terminal and not retried.
//
// # Scheduler
//
// [Scheduler.Run] dispatches the (job, account) pairs of a [credentials.Distribution] to a fixed
// pool of workers, interleaving accounts so early concurrency spreads across them. Records stream
// into an aggregator that reports coarse progress at most every 5% and returns the final
// [models.BatchResult] sorted by job id.
//
// # Cancellation
//
// [Scheduler.Stop] raises a shared [Signal]. No new jobs start, and running pipelines observe the
// signal at every state boundary and between polls, ending as CANCELLED. Pipelines still running
// after the stop grace period are forced to stop by cancelling their context ([Scheduler.Kill]
// does this immediately). Pipelines that still have not reported after the kill wait are abandoned,
// and their jobs are reported as cancelled. Artifacts already downloaded are left in place.
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent with select/default so reporting never blocks a worker.
// The caller owns the progress channel and must not close it: an abandoned pipeline may still
// report after [Scheduler.Run] returns.
package tasks
