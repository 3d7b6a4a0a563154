package services

import (
	"context"

	"github.com/desertthunder/vbx/internal/models"
)

// Auth carries the credential a call is made with.
type Auth struct {
	Account *models.Account
	Token   string
}

// RemoteClient is the generation workflow as seen by a job pipeline.
//
// Transport failures are returned as [shared.Error] values of kind network, timeout or server so a
// retry policy can classify them; rejected credentials are kind credential.
type RemoteClient interface {
	// Submit starts a text-only generation.
	Submit(ctx context.Context, auth Auth, prompt string, params models.Params) (models.OperationHandle, error)

	// SubmitFromAsset starts a generation from a previously uploaded asset.
	SubmitFromAsset(ctx context.Context, auth Auth, prompt, mediaID string, params models.Params) (models.OperationHandle, error)

	// UploadAsset uploads raw asset bytes and returns the remote media id.
	UploadAsset(ctx context.Context, auth Auth, data []byte, mime string, aspect models.AspectRatio) (string, error)

	// Poll checks the status of an operation once.
	Poll(ctx context.Context, auth Auth, handle models.OperationHandle) (models.PollResult, error)

	// RequestUpscale starts an upscale job for a finished primary result.
	RequestUpscale(ctx context.Context, auth Auth, mediaID string, quality models.UpscaleQuality, params models.Params) (models.OperationHandle, error)

	// FetchArtifact writes the result referenced by payload to outputPath.
	FetchArtifact(ctx context.Context, auth Auth, payload models.Payload, outputPath string) error

	// DeleteTransient deletes intermediate remote media. Failures never fail a job.
	DeleteTransient(ctx context.Context, auth Auth, mediaIDs []string) error
}

// TokenFetcher exchanges an account's session secret for a bearer token.
type TokenFetcher interface {
	FetchToken(ctx context.Context, acct *models.Account) (string, error)
}

// SessionInfo describes the session behind a token, as reported by the session endpoint.
type SessionInfo struct {
	Token   string
	User    string
	Email   string
	Expires string
}
