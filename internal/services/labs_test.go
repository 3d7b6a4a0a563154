package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
)

func newTestClient(srv *httptest.Server) *LabsClient {
	return NewLabsClient(LabsOpts{
		BaseURL:    srv.URL,
		SessionURL: srv.URL + "/api/auth/session",
		DeleteURL:  srv.URL + "/trpc/media.deleteMedia",
		Timeout:    5 * time.Second,
	})
}

// failingTransport fails every round trip with err.
type failingTransport struct{ err error }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func testAuth() Auth {
	return Auth{Account: &models.Account{Name: "acct-1", Secret: "sid=abc"}, Token: "tok-1"}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode request body: %v", err)
	}
	return body
}

func TestLabsClient(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("Fills Defaults", func(t *testing.T) {
			c := NewLabsClient(LabsOpts{BaseURL: "http://example.com/"})

			if c.opts.BaseURL != "http://example.com" {
				t.Errorf("expected trailing slash trimmed, got %s", c.opts.BaseURL)
			}
			if c.opts.SessionURL == "" || c.opts.DeleteURL == "" {
				t.Error("expected session and delete URLs from defaults")
			}
			if c.opts.PaygateTier != defaultPaygateTier {
				t.Errorf("expected paygate tier %s, got %s", defaultPaygateTier, c.opts.PaygateTier)
			}
		})

		t.Run("From Config", func(t *testing.T) {
			cfg := shared.DefaultConfig().Remote
			cfg.TimeoutSeconds = 7
			c := NewLabsClientFromConfig(cfg)

			if c.opts.Timeout != 7*time.Second {
				t.Errorf("expected 7s timeout, got %v", c.opts.Timeout)
			}
		})
	})

	t.Run("Submit", func(t *testing.T) {
		t.Run("Sends Text Request With Bearer Token", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != generateTextPath {
					t.Errorf("expected path %s, got %s", generateTextPath, r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
					t.Errorf("expected bearer header, got %q", got)
				}

				body := decodeBody(t, r)
				reqs := body["requests"].([]any)
				req := reqs[0].(map[string]any)
				if req["aspectRatio"] != "VIDEO_ASPECT_RATIO_LANDSCAPE" {
					t.Errorf("unexpected aspect ratio %v", req["aspectRatio"])
				}
				if req["textInput"].(map[string]any)["prompt"] != "a cat" {
					t.Errorf("unexpected prompt %v", req["textInput"])
				}
				if _, ok := req["startImage"]; ok {
					t.Error("text request should not carry a start image")
				}
				cc := body["clientContext"].(map[string]any)
				if cc["tool"] != "PINHOLE" || cc["projectId"] != "proj" {
					t.Errorf("unexpected client context %v", cc)
				}

				json.NewEncoder(w).Encode(map[string]any{
					"operations": []any{map[string]any{"operation": map[string]any{"name": "op-1"}, "sceneId": "scene-1"}},
				})
			}))
			defer srv.Close()

			h, err := newTestClient(srv).Submit(context.Background(), testAuth(), "a cat", models.Params{ModelKey: "m", Seed: 42, ProjectID: "proj"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if h.Name != "op-1" || h.SceneID != "scene-1" {
				t.Errorf("unexpected handle %+v", h)
			}
		})

		t.Run("From Asset Carries Start Image", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != generateAssetPath {
					t.Errorf("expected path %s, got %s", generateAssetPath, r.URL.Path)
				}
				req := decodeBody(t, r)["requests"].([]any)[0].(map[string]any)
				if req["startImage"].(map[string]any)["mediaId"] != "media-9" {
					t.Errorf("unexpected start image %v", req["startImage"])
				}
				json.NewEncoder(w).Encode(map[string]any{
					"operations": []any{map[string]any{"operation": map[string]any{"name": "op-2"}}},
				})
			}))
			defer srv.Close()

			h, err := newTestClient(srv).SubmitFromAsset(context.Background(), testAuth(), "p", "media-9", models.Params{})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if h.Name != "op-2" {
				t.Errorf("expected op-2, got %s", h.Name)
			}
			if h.SceneID == "" {
				t.Error("expected locally generated scene id")
			}
		})

		t.Run("Empty Operations Is Bad Request", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"operations":[]}`))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).Submit(context.Background(), testAuth(), "p", models.Params{})
			if shared.KindOf(err) != shared.KindBadRequest {
				t.Errorf("expected bad request, got %v", err)
			}
		})

		t.Run("Missing Token Is Credential Error", func(t *testing.T) {
			c := NewLabsClient(LabsOpts{BaseURL: "http://127.0.0.1:1"})
			_, err := c.Submit(context.Background(), Auth{Account: &models.Account{Name: "a"}}, "p", models.Params{})
			if !errors.Is(err, shared.ErrCredential) {
				t.Errorf("expected ErrCredential, got %v", err)
			}
		})
	})

	t.Run("Status Classification", func(t *testing.T) {
		tests := []struct {
			name string
			code int
			kind shared.ErrorKind
		}{
			{"Unauthorized", http.StatusUnauthorized, shared.KindCredential},
			{"Forbidden", http.StatusForbidden, shared.KindCredential},
			{"Too Many Requests", http.StatusTooManyRequests, shared.KindServer},
			{"Internal Server Error", http.StatusInternalServerError, shared.KindServer},
			{"Bad Gateway", http.StatusBadGateway, shared.KindServer},
			{"Bad Request", http.StatusBadRequest, shared.KindBadRequest},
			{"Not Found", http.StatusNotFound, shared.KindBadRequest},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.code)
					w.Write([]byte(`{"error":"nope"}`))
				}))
				defer srv.Close()

				_, err := newTestClient(srv).Poll(context.Background(), testAuth(), models.OperationHandle{Name: "op"})
				if got := shared.KindOf(err); got != tt.kind {
					t.Errorf("expected kind %v, got %v (%v)", tt.kind, got, err)
				}
			})
		}

		t.Run("Transport Failure Is Network", func(t *testing.T) {
			c := NewLabsClient(LabsOpts{
				BaseURL:   "http://example.invalid",
				Transport: failingTransport{errors.New("connection reset")},
			})
			_, err := c.Poll(context.Background(), testAuth(), models.OperationHandle{Name: "op"})
			if shared.KindOf(err) != shared.KindNetwork {
				t.Errorf("expected network kind, got %v", err)
			}
			if !shared.IsRetryable(err) {
				t.Error("expected network failure to be retryable")
			}
		})

		t.Run("Cancelled Context Is Cancelled", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			}))
			defer srv.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := newTestClient(srv).Poll(ctx, testAuth(), models.OperationHandle{Name: "op"})
			if shared.KindOf(err) != shared.KindCancelled {
				t.Errorf("expected cancelled kind, got %v", err)
			}
		})
	})

	t.Run("Poll", func(t *testing.T) {
		tests := []struct {
			name    string
			body    string
			status  models.Status
			url     string
			mediaID string
		}{
			{
				name:   "Pending",
				body:   `{"operations":[{"status":"MEDIA_GENERATION_STATUS_PENDING"}]}`,
				status: models.StatusPending,
			},
			{
				name:   "Unknown Status Is Pending",
				body:   `{"operations":[{"status":"MEDIA_GENERATION_STATUS_ACTIVE"}]}`,
				status: models.StatusPending,
			},
			{
				name:   "Failed",
				body:   `{"operations":[{"status":"MEDIA_GENERATION_STATUS_FAILED"}]}`,
				status: models.StatusFailed,
			},
			{
				name:    "Successful With URL",
				body:    `{"operations":[{"status":"MEDIA_GENERATION_STATUS_SUCCESSFUL","mediaGenerationId":"m-1","operation":{"name":"op","metadata":{"video":{"fifeUrl":"https://cdn/v.mp4"}}}}]}`,
				status:  models.StatusSuccessful,
				url:     "https://cdn/v.mp4",
				mediaID: "m-1",
			},
			{
				name:    "Media Id From Video Metadata",
				body:    `{"operations":[{"status":"MEDIA_GENERATION_STATUS_SUCCESSFUL","operation":{"name":"op","metadata":{"video":{"mediaGenerationId":"m-2"}}}}]}`,
				status:  models.StatusSuccessful,
				mediaID: "m-2",
			},
			{
				name:    "Media Id From Response",
				body:    `{"operations":[{"status":"MEDIA_GENERATION_STATUS_SUCCESSFUL","response":{"mediaId":"m-3"},"operation":{"mediaId":"m-4"}}]}`,
				status:  models.StatusSuccessful,
				mediaID: "m-3",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path != checkPath {
						t.Errorf("expected path %s, got %s", checkPath, r.URL.Path)
					}
					ops := decodeBody(t, r)["operations"].([]any)
					if ops[0].(map[string]any)["sceneId"] != "scene" {
						t.Errorf("expected scene id in request, got %v", ops[0])
					}
					w.Write([]byte(tt.body))
				}))
				defer srv.Close()

				res, err := newTestClient(srv).Poll(context.Background(), testAuth(), models.OperationHandle{Name: "op", SceneID: "scene"})
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if res.Status != tt.status {
					t.Errorf("expected status %v, got %v", tt.status, res.Status)
				}
				if res.Payload.URL != tt.url {
					t.Errorf("expected url %q, got %q", tt.url, res.Payload.URL)
				}
				if res.Payload.MediaID != tt.mediaID {
					t.Errorf("expected media id %q, got %q", tt.mediaID, res.Payload.MediaID)
				}
			})
		}
	})

	t.Run("UploadAsset", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != uploadPath {
				t.Errorf("expected path %s, got %s", uploadPath, r.URL.Path)
			}
			img := decodeBody(t, r)["imageInput"].(map[string]any)
			if img["mimeType"] != "image/png" {
				t.Errorf("unexpected mime %v", img["mimeType"])
			}
			if img["aspectRatio"] != "IMAGE_ASPECT_RATIO_PORTRAIT" {
				t.Errorf("unexpected aspect ratio %v", img["aspectRatio"])
			}
			raw, _ := base64.StdEncoding.DecodeString(img["rawImageBytes"].(string))
			if string(raw) != "png-bytes" {
				t.Errorf("unexpected image bytes %q", raw)
			}
			w.Write([]byte(`{"mediaGenerationId":{"mediaGenerationId":"asset-1"}}`))
		}))
		defer srv.Close()

		id, err := newTestClient(srv).UploadAsset(context.Background(), testAuth(), []byte("png-bytes"), "image/png", models.AspectPortrait)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "asset-1" {
			t.Errorf("expected asset-1, got %s", id)
		}
	})

	t.Run("RequestUpscale", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != upscalePath {
				t.Errorf("expected path %s, got %s", upscalePath, r.URL.Path)
			}
			req := decodeBody(t, r)["requests"].([]any)[0].(map[string]any)
			if req["videoModelKey"] != models.Quality720p.ModelKey() {
				t.Errorf("unexpected model key %v", req["videoModelKey"])
			}
			if req["videoInput"].(map[string]any)["mediaId"] != "m-1" {
				t.Errorf("unexpected video input %v", req["videoInput"])
			}
			w.Write([]byte(`{"operations":[{"operation":{"name":"up-1"}}]}`))
		}))
		defer srv.Close()

		h, err := newTestClient(srv).RequestUpscale(context.Background(), testAuth(), "m-1", models.Quality720p, models.Params{ModelKey: "base"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if h.Name != "up-1" {
			t.Errorf("expected up-1, got %s", h.Name)
		}
	})

	t.Run("FetchArtifact", func(t *testing.T) {
		t.Run("Streams URL To File", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("video-data"))
			}))
			defer srv.Close()

			out := filepath.Join(t.TempDir(), "nested", "1_clip.mp4")
			err := newTestClient(srv).FetchArtifact(context.Background(), testAuth(), models.Payload{URL: srv.URL + "/v.mp4"}, out)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := mustRead(t, out); got != "video-data" {
				t.Errorf("unexpected content %q", got)
			}
			if _, err := os.Stat(out + ".part"); !os.IsNotExist(err) {
				t.Error("expected partial file to be gone")
			}
		})

		t.Run("Falls Back To Encoded Video", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasPrefix(r.URL.Path, mediaPath) {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("clientContext.tool") != "PINHOLE" {
					t.Errorf("expected tool query, got %s", r.URL.RawQuery)
				}
				enc := base64.StdEncoding.EncodeToString([]byte("decoded"))
				w.Write([]byte(`{"video":{"encodedVideo":"` + enc + `"}}`))
			}))
			defer srv.Close()

			out := filepath.Join(t.TempDir(), "2_clip.mp4")
			err := newTestClient(srv).FetchArtifact(context.Background(), testAuth(), models.Payload{MediaID: "m-1"}, out)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got := mustRead(t, out); got != "decoded" {
				t.Errorf("unexpected content %q", got)
			}
		})

		t.Run("Failed Download Leaves No File", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}))
			defer srv.Close()

			out := filepath.Join(t.TempDir(), "3_clip.mp4")
			err := newTestClient(srv).FetchArtifact(context.Background(), testAuth(), models.Payload{URL: srv.URL}, out)
			if shared.KindOf(err) != shared.KindServer {
				t.Errorf("expected server kind, got %v", err)
			}
			if _, err := os.Stat(out); !os.IsNotExist(err) {
				t.Error("expected no output file")
			}
		})

		t.Run("Empty Payload", func(t *testing.T) {
			c := NewLabsClient(LabsOpts{BaseURL: "http://example.invalid"})
			err := c.FetchArtifact(context.Background(), testAuth(), models.Payload{}, filepath.Join(t.TempDir(), "x.mp4"))
			if shared.KindOf(err) != shared.KindBadRequest {
				t.Errorf("expected bad request, got %v", err)
			}
		})
	})

	t.Run("DeleteTransient", func(t *testing.T) {
		t.Run("Posts Names With Cookie", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Cookie") != "sid=abc" {
					t.Errorf("expected cookie header, got %q", r.Header.Get("Cookie"))
				}
				names := decodeBody(t, r)["json"].(map[string]any)["names"].([]any)
				if len(names) != 2 || names[0] != "a" || names[1] != "b" {
					t.Errorf("unexpected names %v", names)
				}
			}))
			defer srv.Close()

			if err := newTestClient(srv).DeleteTransient(context.Background(), testAuth(), []string{"a", "b"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})

		t.Run("No Ids Is No-Op", func(t *testing.T) {
			c := NewLabsClient(LabsOpts{Transport: failingTransport{errors.New("unused")}})
			if err := c.DeleteTransient(context.Background(), testAuth(), nil); err != nil {
				t.Errorf("expected nil, got %v", err)
			}
		})

		t.Run("Requires Cookie", func(t *testing.T) {
			c := NewLabsClient(LabsOpts{})
			auth := Auth{Account: &models.Account{Name: "token-only", Token: "t"}, Token: "t"}
			err := c.DeleteTransient(context.Background(), auth, []string{"a"})
			if !errors.Is(err, shared.ErrCredential) {
				t.Errorf("expected ErrCredential, got %v", err)
			}
		})
	})

	t.Run("Session", func(t *testing.T) {
		t.Run("Returns Token And User", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Cookie") != "sid=abc" {
					t.Errorf("expected cookie header, got %q", r.Header.Get("Cookie"))
				}
				w.Write([]byte(`{"access_token":"ya29","expires":"2026-01-01","user":{"name":"N","email":"n@example.com"}}`))
			}))
			defer srv.Close()

			c := newTestClient(srv)
			info, err := c.Session(context.Background(), testAuth().Account)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if info.Token != "ya29" || info.Email != "n@example.com" {
				t.Errorf("unexpected session %+v", info)
			}

			token, err := c.FetchToken(context.Background(), testAuth().Account)
			if err != nil || token != "ya29" {
				t.Errorf("expected token ya29, got %q (%v)", token, err)
			}
		})

		t.Run("Non JSON Yields Empty Token", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>login</html>"))
			}))
			defer srv.Close()

			token, err := newTestClient(srv).FetchToken(context.Background(), testAuth().Account)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token != "" {
				t.Errorf("expected empty token, got %q", token)
			}
		})

		t.Run("Expired Cookie Is Credential Error", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			}))
			defer srv.Close()

			_, err := newTestClient(srv).FetchToken(context.Background(), testAuth().Account)
			if !errors.Is(err, shared.ErrCredential) {
				t.Errorf("expected ErrCredential, got %v", err)
			}
		})
	})

	t.Run("Rate Limit Paces Requests", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			io.Copy(io.Discard, r.Body)
			w.Write([]byte(`{"operations":[{"status":"MEDIA_GENERATION_STATUS_PENDING"}]}`))
		}))
		defer srv.Close()

		c := NewLabsClient(LabsOpts{BaseURL: srv.URL, RequestsPerSecond: 20})
		start := time.Now()
		for range 3 {
			if _, err := c.Poll(context.Background(), testAuth(), models.OperationHandle{Name: "op"}); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		}
		if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
			t.Errorf("expected pacing of about 100ms, got %v", elapsed)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 calls, got %d", calls.Load())
		}
	})
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.png", "image/png"},
		{"a.PNG", "image/png"},
		{"a.gif", "image/gif"},
		{"a.webp", "image/webp"},
		{"a.jpg", "image/jpeg"},
		{"a", "image/jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := MimeType(tt.path); got != tt.want {
				t.Errorf("MimeType(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}
