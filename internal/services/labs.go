package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
)

const (
	uploadPath        = "/v1:uploadUserImage"
	generateTextPath  = "/v1/video:batchAsyncGenerateVideoText"
	generateAssetPath = "/v1/video:batchAsyncGenerateVideoStartImage"
	upscalePath       = "/v1/video:batchAsyncGenerateVideoUpsampleVideo"
	checkPath         = "/v1/video:batchCheckAsyncVideoGenerationStatus"
	mediaPath         = "/v1/media/"

	defaultPaygateTier = "PAYGATE_TIER_TWO"
	labsOrigin         = "https://labs.google"
)

// LabsOpts configures a [LabsClient].
type LabsOpts struct {
	BaseURL           string            // API root, e.g. https://aisandbox-pa.googleapis.com
	SessionURL        string            // Cookie-authenticated session endpoint returning access_token
	DeleteURL         string            // Cookie-authenticated media deletion endpoint
	PaygateTier       string            // Client context tier sent with generation requests
	RequestsPerSecond float64           // Per-account pacing, 0 disables
	Timeout           time.Duration     // Per-request timeout
	Transport         http.RoundTripper // Overrides proxy-aware transports, used in tests
}

// LabsClient implements [RemoteClient] and [TokenFetcher] over the JSON generation API.
type LabsClient struct {
	opts LabsOpts
	tr   *transports
}

var (
	_ RemoteClient = (*LabsClient)(nil)
	_ TokenFetcher = (*LabsClient)(nil)
)

// NewLabsClient creates a client, filling unset endpoints from the default config.
func NewLabsClient(opts LabsOpts) *LabsClient {
	defaults := shared.DefaultConfig().Remote
	if opts.BaseURL == "" {
		opts.BaseURL = defaults.BaseURL
	}
	if opts.SessionURL == "" {
		opts.SessionURL = defaults.SessionURL
	}
	if opts.DeleteURL == "" {
		opts.DeleteURL = defaults.DeleteURL
	}
	if opts.PaygateTier == "" {
		opts.PaygateTier = defaultPaygateTier
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &LabsClient{opts: opts, tr: newTransports(opts.Transport, opts.Timeout, opts.RequestsPerSecond)}
}

// NewLabsClientFromConfig builds a client from the [remote] config section.
func NewLabsClientFromConfig(c shared.RemoteConfig) *LabsClient {
	return NewLabsClient(LabsOpts{
		BaseURL:           c.BaseURL,
		SessionURL:        c.SessionURL,
		DeleteURL:         c.DeleteURL,
		RequestsPerSecond: c.RequestsPerSecond,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
	})
}

type clientContext struct {
	ProjectID   string `json:"projectId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	Tool        string `json:"tool,omitempty"`
	PaygateTier string `json:"userPaygateTier,omitempty"`
}

type textInput struct {
	Prompt string `json:"prompt"`
}

type mediaRef struct {
	MediaID string `json:"mediaId"`
}

type sceneMetadata struct {
	SceneID string `json:"sceneId"`
}

type videoRequest struct {
	AspectRatio   string        `json:"aspectRatio"`
	Seed          int           `json:"seed"`
	TextInput     *textInput    `json:"textInput,omitempty"`
	StartImage    *mediaRef     `json:"startImage,omitempty"`
	VideoInput    *mediaRef     `json:"videoInput,omitempty"`
	VideoModelKey string        `json:"videoModelKey"`
	Metadata      sceneMetadata `json:"metadata"`
}

type generateRequest struct {
	ClientContext clientContext  `json:"clientContext"`
	Requests      []videoRequest `json:"requests"`
}

type operationRef struct {
	Name     string `json:"name"`
	MediaID  string `json:"mediaId,omitempty"`
	Metadata struct {
		Video struct {
			FifeURL           string `json:"fifeUrl"`
			MediaGenerationID string `json:"mediaGenerationId"`
		} `json:"video"`
	} `json:"metadata"`
}

type operationEntry struct {
	Operation         operationRef `json:"operation"`
	SceneID           string       `json:"sceneId,omitempty"`
	Status            string       `json:"status,omitempty"`
	MediaGenerationID string       `json:"mediaGenerationId,omitempty"`
	Response          struct {
		MediaID string `json:"mediaId"`
	} `json:"response"`
	Metadata struct {
		MediaID string `json:"mediaId"`
	} `json:"metadata"`
}

// mediaID returns the first media identifier present in the entry.
func (e operationEntry) mediaID() string {
	for _, id := range []string{
		e.MediaGenerationID,
		e.Response.MediaID,
		e.Operation.MediaID,
		e.Metadata.MediaID,
		e.Operation.Metadata.Video.MediaGenerationID,
	} {
		if id != "" {
			return id
		}
	}
	return ""
}

type operationsResponse struct {
	Operations []operationEntry `json:"operations"`
}

func (r operationsResponse) first(op string) (operationEntry, error) {
	if len(r.Operations) == 0 {
		return operationEntry{}, shared.Errorf(shared.KindBadRequest, op, "response has no operations")
	}
	return r.Operations[0], nil
}

// Submit starts a text-only generation.
func (c *LabsClient) Submit(ctx context.Context, auth Auth, prompt string, params models.Params) (models.OperationHandle, error) {
	req := c.videoRequest(params)
	req.TextInput = &textInput{Prompt: prompt}
	return c.generate(ctx, auth, "submit", generateTextPath, params, req)
}

// SubmitFromAsset starts a generation whose first frame is the uploaded asset mediaID.
func (c *LabsClient) SubmitFromAsset(ctx context.Context, auth Auth, prompt, mediaID string, params models.Params) (models.OperationHandle, error) {
	req := c.videoRequest(params)
	req.TextInput = &textInput{Prompt: prompt}
	req.StartImage = &mediaRef{MediaID: mediaID}
	if params.AssetModelKey != "" {
		req.VideoModelKey = params.AssetModelKey
	}
	return c.generate(ctx, auth, "submit from asset", generateAssetPath, params, req)
}

// RequestUpscale starts an upscale of the finished video mediaID.
func (c *LabsClient) RequestUpscale(ctx context.Context, auth Auth, mediaID string, quality models.UpscaleQuality, params models.Params) (models.OperationHandle, error) {
	req := c.videoRequest(params)
	req.VideoInput = &mediaRef{MediaID: mediaID}
	req.VideoModelKey = quality.ModelKey()

	body := generateRequest{
		ClientContext: clientContext{SessionID: sessionID()},
		Requests:      []videoRequest{req},
	}
	return c.startOperation(ctx, auth, "upscale", upscalePath, body, req.Metadata.SceneID)
}

func (c *LabsClient) videoRequest(params models.Params) videoRequest {
	return videoRequest{
		AspectRatio:   params.AspectRatio.VideoValue(),
		Seed:          params.Seed,
		VideoModelKey: params.ModelKey,
		Metadata:      sceneMetadata{SceneID: shared.GenerateID()},
	}
}

func (c *LabsClient) generate(ctx context.Context, auth Auth, op, path string, params models.Params, req videoRequest) (models.OperationHandle, error) {
	body := generateRequest{
		ClientContext: clientContext{ProjectID: params.ProjectID, Tool: "PINHOLE", PaygateTier: c.opts.PaygateTier},
		Requests:      []videoRequest{req},
	}
	return c.startOperation(ctx, auth, op, path, body, req.Metadata.SceneID)
}

func (c *LabsClient) startOperation(ctx context.Context, auth Auth, op, path string, body generateRequest, sceneID string) (models.OperationHandle, error) {
	var resp operationsResponse
	if err := c.postJSON(ctx, auth, op, c.opts.BaseURL+path, body, &resp); err != nil {
		return models.OperationHandle{}, err
	}

	entry, err := resp.first(op)
	if err != nil {
		return models.OperationHandle{}, err
	}
	if entry.Operation.Name == "" {
		return models.OperationHandle{}, shared.Errorf(shared.KindBadRequest, op, "response has no operation name")
	}
	if entry.SceneID != "" {
		sceneID = entry.SceneID
	}
	return models.OperationHandle{Name: entry.Operation.Name, SceneID: sceneID}, nil
}

// UploadAsset uploads image bytes and returns the media generation id.
func (c *LabsClient) UploadAsset(ctx context.Context, auth Auth, data []byte, mime string, aspect models.AspectRatio) (string, error) {
	body := map[string]any{
		"imageInput": map[string]any{
			"aspectRatio":    aspect.ImageValue(),
			"isUserUploaded": true,
			"mimeType":       mime,
			"rawImageBytes":  base64.StdEncoding.EncodeToString(data),
		},
		"clientContext": clientContext{SessionID: sessionID(), Tool: "ASSET_MANAGER"},
	}

	var resp struct {
		MediaGenerationID struct {
			MediaGenerationID string `json:"mediaGenerationId"`
		} `json:"mediaGenerationId"`
	}
	if err := c.postJSON(ctx, auth, "upload", c.opts.BaseURL+uploadPath, body, &resp); err != nil {
		return "", err
	}
	if resp.MediaGenerationID.MediaGenerationID == "" {
		return "", shared.Errorf(shared.KindBadRequest, "upload", "response has no mediaGenerationId")
	}
	return resp.MediaGenerationID.MediaGenerationID, nil
}

// Poll checks an operation's status once.
func (c *LabsClient) Poll(ctx context.Context, auth Auth, handle models.OperationHandle) (models.PollResult, error) {
	body := map[string]any{
		"operations": []map[string]any{{
			"operation": map[string]string{"name": handle.Name},
			"sceneId":   handle.SceneID,
		}},
	}

	var resp operationsResponse
	if err := c.postJSON(ctx, auth, "poll", c.opts.BaseURL+checkPath, body, &resp); err != nil {
		return models.PollResult{}, err
	}
	entry, err := resp.first("poll")
	if err != nil {
		return models.PollResult{}, err
	}

	result := models.PollResult{Status: models.ParseStatus(entry.Status), Raw: entry.Status}
	if result.Status == models.StatusSuccessful {
		result.Payload = models.Payload{
			URL:     entry.Operation.Metadata.Video.FifeURL,
			MediaID: entry.mediaID(),
		}
	}
	return result, nil
}

// FetchArtifact downloads the payload to outputPath. Direct URLs are streamed; otherwise the
// encoded video is fetched by media id. The file only appears once the download completes.
func (c *LabsClient) FetchArtifact(ctx context.Context, auth Auth, payload models.Payload, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	switch {
	case payload.URL != "":
		return c.download(ctx, auth, payload.URL, outputPath)
	case payload.MediaID != "":
		return c.downloadEncoded(ctx, auth, payload.MediaID, outputPath)
	default:
		return shared.Errorf(shared.KindBadRequest, "download", "payload has neither url nor media id")
	}
}

func (c *LabsClient) download(ctx context.Context, auth Auth, rawURL, outputPath string) error {
	if err := c.tr.wait(ctx, auth.Account); err != nil {
		return err
	}
	client, err := c.tr.client(auth.Account)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return shared.NewError(shared.KindBadRequest, "download", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return transportError(ctx, "download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError("download", resp.StatusCode, body)
	}
	return writeAtomic(outputPath, func(w io.Writer) error {
		if _, err := io.Copy(w, resp.Body); err != nil {
			return transportError(ctx, "download", err)
		}
		return nil
	})
}

func (c *LabsClient) downloadEncoded(ctx context.Context, auth Auth, mediaID, outputPath string) error {
	var resp struct {
		Video struct {
			EncodedVideo string `json:"encodedVideo"`
		} `json:"video"`
	}

	u := c.opts.BaseURL + mediaPath + url.PathEscape(mediaID) + "?clientContext.tool=PINHOLE"
	if err := c.doJSON(ctx, auth, "download", http.MethodGet, u, nil, &resp); err != nil {
		return err
	}
	if resp.Video.EncodedVideo == "" {
		return shared.Errorf(shared.KindBadRequest, "download", "media %s has no encoded video", mediaID)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Video.EncodedVideo)
	if err != nil {
		return shared.NewError(shared.KindBadRequest, "download", fmt.Errorf("invalid encoded video: %w", err))
	}
	return writeAtomic(outputPath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// DeleteTransient deletes remote media with the account's session cookie.
func (c *LabsClient) DeleteTransient(ctx context.Context, auth Auth, mediaIDs []string) error {
	if len(mediaIDs) == 0 {
		return nil
	}
	if !auth.Account.CanCleanup() {
		return shared.Errorf(shared.KindCredential, "delete", "account %s has no session cookie", auth.Account.Name)
	}

	body := map[string]any{"json": map[string]any{"names": mediaIDs}}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal delete request: %w", err)
	}

	resp, err := c.cookieRequest(ctx, auth.Account, "delete", http.MethodPost, c.opts.DeleteURL, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return statusError("delete", resp.StatusCode, body)
	}
	return nil
}

// FetchToken exchanges the account's session cookie for an access token.
func (c *LabsClient) FetchToken(ctx context.Context, acct *models.Account) (string, error) {
	info, err := c.Session(ctx, acct)
	if err != nil {
		return "", err
	}
	return info.Token, nil
}

// Session reads the session behind the account's cookie. A missing token is not an error here.
func (c *LabsClient) Session(ctx context.Context, acct *models.Account) (*SessionInfo, error) {
	if acct.Secret == "" {
		return nil, shared.Errorf(shared.KindCredential, "session", "account %s has no session cookie", acct.Name)
	}

	resp, err := c.cookieRequest(ctx, acct, "session", http.MethodGet, c.opts.SessionURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, "session", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, statusError("session", resp.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		Expires     string `json:"expires"`
		User        struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &SessionInfo{}, nil
	}
	return &SessionInfo{
		Token:   payload.AccessToken,
		User:    payload.User.Name,
		Email:   payload.User.Email,
		Expires: payload.Expires,
	}, nil
}

func (c *LabsClient) cookieRequest(ctx context.Context, acct *models.Account, op, method, rawURL string, body []byte) (*http.Response, error) {
	if err := c.tr.wait(ctx, acct); err != nil {
		return nil, err
	}
	client, err := c.tr.client(acct)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, shared.NewError(shared.KindBadRequest, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cookie", acct.Secret)
	req.Header.Set("Origin", labsOrigin)
	req.Header.Set("Referer", labsOrigin+"/")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	return resp, nil
}

func (c *LabsClient) postJSON(ctx context.Context, auth Auth, op, rawURL string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", op, err)
	}
	return c.doJSON(ctx, auth, op, http.MethodPost, rawURL, data, out)
}

// doJSON sends an authorized request and decodes a JSON response into out.
func (c *LabsClient) doJSON(ctx context.Context, auth Auth, op, method, rawURL string, data []byte, out any) error {
	if auth.Token == "" {
		return shared.Errorf(shared.KindCredential, op, "no access token")
	}
	if err := c.tr.wait(ctx, auth.Account); err != nil {
		return err
	}
	client, err := c.tr.authorized(ctx, auth)
	if err != nil {
		return err
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return shared.NewError(shared.KindBadRequest, op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", labsOrigin)
	req.Header.Set("Referer", labsOrigin+"/")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, op, err)
	}
	if resp.StatusCode/100 != 2 {
		return statusError(op, resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return shared.NewError(shared.KindBadRequest, op, fmt.Errorf("invalid JSON response: %w", err))
	}
	return nil
}

// writeAtomic writes to path+".part" and renames on success.
func writeAtomic(path string, write func(w io.Writer) error) error {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// MimeType guesses an upload mime type from the file extension, defaulting to JPEG.
func MimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func sessionID() string {
	return fmt.Sprintf(";%d", time.Now().UnixMilli())
}
