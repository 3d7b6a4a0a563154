// Package repositories implements SQLite persistence for batch run history.
//
// [RunRepository] stores one row per batch with its options, counts and final status, and supports soft
// deletes via deleted_at timestamps. [RecordRepository] stores the per-job outcomes of each run and is
// written incrementally while a batch executes, so the failed jobs of an interrupted run can be retried.
//
// Sequence numbers provide stable, human-readable ordering (run #42) independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
