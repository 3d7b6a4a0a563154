package models

import (
	"fmt"
	"strings"
)

// JobKind distinguishes text-only jobs from jobs that start from an uploaded asset.
type JobKind int

const (
	TextOnly JobKind = iota
	TextPlusAsset
)

func (k JobKind) String() string {
	if k == TextPlusAsset {
		return "text+asset"
	}
	return "text"
}

// Job is one prompt (plus optional asset) carried through the generation workflow.
//
// Jobs are values: the pipeline that runs a job owns its state and reports it in a [Record].
type Job struct {
	ID        int    `json:"id"`
	Prompt    string `json:"prompt"`
	AssetPath string `json:"asset_path,omitempty"`
}

// Kind reports whether the job carries an asset.
func (j Job) Kind() JobKind {
	if j.AssetPath != "" {
		return TextPlusAsset
	}
	return TextOnly
}

// JobState is a step of the per-job state machine.
type JobState int

const (
	StateCreated JobState = iota
	StateUploading
	StateSubmitted
	StatePolling
	StateSucceededPrimary
	StateUpscaling
	StatePollingUpscale
	StateSucceededUpscale
	StateDownloaded
	StateCleaned
	StateDone
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	StateCreated:          "CREATED",
	StateUploading:        "UPLOADING",
	StateSubmitted:        "SUBMITTED",
	StatePolling:          "POLLING",
	StateSucceededPrimary: "SUCCEEDED_PRIMARY",
	StateUpscaling:        "UPSCALING",
	StatePollingUpscale:   "POLLING_UPSCALE",
	StateSucceededUpscale: "SUCCEEDED_UPSCALE",
	StateDownloaded:       "DOWNLOADED",
	StateCleaned:          "CLEANED",
	StateDone:             "DONE",
	StateFailed:           "FAILED",
	StateCancelled:        "CANCELLED",
}

func (s JobState) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

func (s JobState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *JobState) UnmarshalText(b []byte) error {
	st, err := ParseJobState(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// ParseJobState parses the value produced by [JobState.String].
func ParseJobState(s string) (JobState, error) {
	for i, name := range stateNames {
		if strings.EqualFold(name, s) {
			return JobState(i), nil
		}
	}
	return StateFailed, fmt.Errorf("unknown job state %q", s)
}

// Account is a credential used to call the remote service.
//
// Accounts are shared read-only between workers; resolved tokens live in the credential pool.
type Account struct {
	Name   string // Unique display name
	Secret string // Session cookie used for token fetch and media deletion
	Proxy  string // Optional proxy URL
	Token  string // Optional pre-resolved bearer token
}

// CanCleanup reports whether the account carries the cookie needed to delete remote media.
func (a *Account) CanCleanup() bool {
	return a != nil && a.Secret != ""
}

// String masks the secret so accounts can be logged safely.
func (a Account) String() string {
	return fmt.Sprintf("Account(%s)", a.Name)
}
