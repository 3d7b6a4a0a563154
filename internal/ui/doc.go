// Package ui implements the live batch view using bubbletea's Elm architecture.
//
// The view moves through three states:
//  1. [RunningView] : Progress bar, batch status and a per-job list with each job's latest state
//  2. [StoppingView] : Stop was requested; running jobs unwind while the list keeps updating
//  3. [ResultView] : Summary counts and the jobs that did not succeed
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Init starts the batch in a goroutine; progress updates flow through a channel and are read one command at a time.
//
// Keys: s stops cooperatively (ctrl+c too; a second press kills), k kills at once, q quits once the batch is done.
package ui
