package models

import (
	"fmt"
	"strings"
)

// OperationHandle identifies one in-flight remote job (primary or upscale).
type OperationHandle struct {
	Name    string `json:"operation_name"`
	SceneID string `json:"scene_id"`
}

// Status is the remote state of an operation.
type Status int

const (
	StatusPending Status = iota
	StatusSuccessful
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccessful:
		return "SUCCESSFUL"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "PENDING"
	}
}

// Terminal reports whether polling should stop.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// ParseStatus maps a remote status string such as "MEDIA_GENERATION_STATUS_SUCCESSFUL".
//
// Anything that is not a known terminal value is treated as pending.
func ParseStatus(raw string) Status {
	s := strings.TrimPrefix(strings.ToUpper(raw), "MEDIA_GENERATION_STATUS_")
	switch s {
	case "SUCCESSFUL":
		return StatusSuccessful
	case "FAILED":
		return StatusFailed
	case "CANCELLED":
		return StatusCancelled
	default:
		return StatusPending
	}
}

// Payload references a finished remote result.
type Payload struct {
	URL     string `json:"url,omitempty"`      // Direct download URL, when available
	MediaID string `json:"media_id,omitempty"` // Media identifier, used for upscale and cleanup
}

// PollResult is the outcome of one status check.
type PollResult struct {
	Status  Status
	Raw     string  // Remote status string, used for change-only logging
	Payload Payload // Set when Status is [StatusSuccessful]
}

// Resolution is the requested output tier.
type Resolution int

const (
	ResolutionStandard Resolution = iota
	ResolutionUpscaled
)

// NativeResolution is the tier produced by a primary generation.
const NativeResolution = ResolutionStandard

func (r Resolution) String() string {
	if r == ResolutionUpscaled {
		return "upscaled"
	}
	return "standard"
}

// ParseResolution parses "standard" or "upscaled".
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(s) {
	case "", "standard":
		return ResolutionStandard, nil
	case "upscaled":
		return ResolutionUpscaled, nil
	}
	return ResolutionStandard, fmt.Errorf("unknown resolution %q", s)
}

// AspectRatio is the requested frame shape.
type AspectRatio int

const (
	AspectLandscape AspectRatio = iota
	AspectPortrait
)

func (a AspectRatio) String() string {
	if a == AspectPortrait {
		return "portrait"
	}
	return "landscape"
}

// VideoValue is the remote enum for video requests.
func (a AspectRatio) VideoValue() string {
	if a == AspectPortrait {
		return "VIDEO_ASPECT_RATIO_PORTRAIT"
	}
	return "VIDEO_ASPECT_RATIO_LANDSCAPE"
}

// ImageValue is the remote enum for asset uploads.
func (a AspectRatio) ImageValue() string {
	if a == AspectPortrait {
		return "IMAGE_ASPECT_RATIO_PORTRAIT"
	}
	return "IMAGE_ASPECT_RATIO_LANDSCAPE"
}

// SupportsUpscale reports whether the higher tier exists for this aspect ratio.
func (a AspectRatio) SupportsUpscale() bool {
	return a == AspectLandscape
}

// ParseAspectRatio parses "landscape" or "portrait".
func ParseAspectRatio(s string) (AspectRatio, error) {
	switch strings.ToLower(s) {
	case "", "landscape":
		return AspectLandscape, nil
	case "portrait":
		return AspectPortrait, nil
	}
	return AspectLandscape, fmt.Errorf("unknown aspect ratio %q", s)
}

// UpscaleQuality is the target tier of an upscale job.
type UpscaleQuality string

const (
	Quality720p  UpscaleQuality = "720p"
	Quality1080p UpscaleQuality = "1080p"
)

// ModelKey returns the upsampler model for the quality, defaulting to 1080p.
func (q UpscaleQuality) ModelKey() string {
	if q == Quality720p {
		return "veo_2_720p_upsampler_8s"
	}
	return "veo_2_1080p_upsampler_8s"
}

// Params are the generation parameters shared by every job in a batch.
type Params struct {
	ModelKey      string      // Video model used for text-only generations
	AssetModelKey string      // Video model used for asset-seeded generations, ModelKey when empty
	AspectRatio   AspectRatio // Frame shape
	Seed          int         // Seed for the request; 0 is resolved to a random seed by the pipeline
	ProjectID     string      // Remote project, may be empty
}
