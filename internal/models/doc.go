// Package models defines the value types shared by the batch engine, its remote client, and the persistence layer.
//
// The package contains three categories of types:
//
// 1. Batch inputs
//   - [Job] : one prompt with an optional asset, classified by [Job.Kind]
//   - [Account] : a credential with optional proxy and pre-resolved token
//   - [Params] : generation parameters shared by a batch
//
// 2. Remote workflow values
//   - [OperationHandle] : identifies a remote job for polling
//   - [Status], [PollResult], [Payload] : poll outcomes
//   - [Resolution], [AspectRatio], [UpscaleQuality] : output policy
//
// 3. Results
//   - [Record] : exactly one terminal outcome per job, with its final [JobState]
//   - [BatchResult] : records sorted by job id, with totals
//   - [Run] : a persisted batch execution implementing [Model]
package models
