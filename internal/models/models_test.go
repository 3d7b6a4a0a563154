package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tc := []struct {
		raw  string
		want Status
	}{
		{"MEDIA_GENERATION_STATUS_SUCCESSFUL", StatusSuccessful},
		{"MEDIA_GENERATION_STATUS_FAILED", StatusFailed},
		{"MEDIA_GENERATION_STATUS_CANCELLED", StatusCancelled},
		{"MEDIA_GENERATION_STATUS_PENDING", StatusPending},
		{"MEDIA_GENERATION_STATUS_ACTIVE", StatusPending},
		{"", StatusPending},
	}

	for _, tt := range tc {
		t.Run(tt.raw, func(t *testing.T) {
			if got := ParseStatus(tt.raw); got != tt.want {
				t.Errorf("ParseStatus(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestJobKind(t *testing.T) {
	if (Job{ID: 1, Prompt: "p"}).Kind() != TextOnly {
		t.Error("job without asset should be text only")
	}
	if (Job{ID: 1, Prompt: "p", AssetPath: "a.png"}).Kind() != TextPlusAsset {
		t.Error("job with asset should be text+asset")
	}
}

func TestJobStateText(t *testing.T) {
	for s := StateCreated; s <= StateCancelled; s++ {
		parsed, err := ParseJobState(s.String())
		if err != nil {
			t.Fatalf("ParseJobState(%s) failed: %v", s, err)
		}
		if parsed != s {
			t.Errorf("round trip of %s gave %s", s, parsed)
		}
	}
	if _, err := ParseJobState("SLEEPING"); err == nil {
		t.Error("expected error for unknown state")
	}

	data, err := json.Marshal(Record{JobID: 1, State: StateDone})
	if err != nil {
		t.Fatal(err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatal(err)
	}
	if r.State != StateDone {
		t.Errorf("expected DONE after decode, got %s", r.State)
	}
}

func TestUpscalePolicy(t *testing.T) {
	if !AspectLandscape.SupportsUpscale() {
		t.Error("landscape should support upscale")
	}
	if AspectPortrait.SupportsUpscale() {
		t.Error("portrait should not support upscale")
	}
	if Quality720p.ModelKey() != "veo_2_720p_upsampler_8s" {
		t.Errorf("unexpected 720p model %s", Quality720p.ModelKey())
	}
	if UpscaleQuality("").ModelKey() != "veo_2_1080p_upsampler_8s" {
		t.Error("empty quality should default to 1080p")
	}
}

func TestBatchResult(t *testing.T) {
	b := &BatchResult{Records: []Record{
		{JobID: 3, Success: true},
		{JobID: 1, Cancelled: true, Prompt: "one"},
		{JobID: 2, Prompt: "two", AssetPath: "two.png"},
	}}
	b.Sort()

	for i, r := range b.Records {
		if r.JobID != i+1 {
			t.Fatalf("expected sorted ids, got %v at %d", r.JobID, i)
		}
	}
	if b.Succeeded != 1 || b.Failed != 1 || b.Cancelled != 1 {
		t.Errorf("unexpected totals: %+v", b)
	}

	failed := b.FailedJobs()
	if len(failed) != 2 || failed[0].ID != 1 || failed[1].AssetPath != "two.png" {
		t.Errorf("unexpected failed subset: %+v", failed)
	}
}

func TestRunComplete(t *testing.T) {
	tc := []struct {
		name    string
		result  BatchResult
		stopped bool
		want    RunStatus
	}{
		{name: "all ok", result: BatchResult{Records: []Record{{Success: true}}, Succeeded: 1}, want: RunCompleted},
		{name: "none ok", result: BatchResult{Records: []Record{{}}, Failed: 1}, want: RunFailed},
		{name: "mixed", result: BatchResult{Records: []Record{{Success: true}, {}}, Succeeded: 1, Failed: 1}, want: RunPartial},
		{name: "stopped", result: BatchResult{Records: []Record{{Success: true}, {Cancelled: true}}, Succeeded: 1, Cancelled: 1}, stopped: true, want: RunStopped},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			run := NewRun("prompts.txt", 0, "out", RunOptions{})
			run.SetID("run-1")
			tt.result.Finished = time.Now()
			run.Complete(&tt.result, tt.stopped)
			if run.Status() != tt.want {
				t.Errorf("status = %s, want %s", run.Status(), tt.want)
			}
			if run.FinishedAt() == nil {
				t.Error("finished time should be set")
			}
			if err := run.Validate(); err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
