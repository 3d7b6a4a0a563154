// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/services"
)

// FakeRemote is a scripted test double for [services.RemoteClient].
//
// Primary operations are named "op-N" and upscale operations "up-N". Each operation walks its
// status script one poll at a time and repeats the last entry once the script runs out.
type FakeRemote struct {
	Statuses        []models.Status // Poll script for primary operations, default SUCCESSFUL
	UpscaleStatuses []models.Status // Poll script for upscale operations, default SUCCESSFUL

	UploadErr  error
	SubmitErrs []error // Returned by successive submit calls before submits succeed
	PollErr    error
	UpscaleErr error
	FetchErr   error
	DeleteErr  error
	NoMediaID  bool // Successful polls carry no media id

	Delay    time.Duration                            // Time each submit takes
	OnSubmit func(ctx context.Context, prompt string) // Called at the start of each submit

	mu       sync.Mutex
	seq      int
	calls    map[string]int
	polls    map[string]int
	prompts  []string
	tokens   []string
	deleted  []string
	fetched  []string
	upscaled []string
	active   int
	peak     int
}

var _ services.RemoteClient = (*FakeRemote)(nil)

// NewFakeRemote creates a fake whose primary operations follow statuses.
func NewFakeRemote(statuses ...models.Status) *FakeRemote {
	return &FakeRemote{Statuses: statuses}
}

func (f *FakeRemote) record(method string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
		f.polls = make(map[string]int)
	}
	f.calls[method]++
}

func (f *FakeRemote) Submit(ctx context.Context, auth services.Auth, prompt string, params models.Params) (models.OperationHandle, error) {
	return f.submit(ctx, auth, "Submit", prompt)
}

func (f *FakeRemote) SubmitFromAsset(ctx context.Context, auth services.Auth, prompt, mediaID string, params models.Params) (models.OperationHandle, error) {
	return f.submit(ctx, auth, "SubmitFromAsset", prompt)
}

func (f *FakeRemote) submit(ctx context.Context, auth services.Auth, method, prompt string) (models.OperationHandle, error) {
	if f.OnSubmit != nil {
		f.OnSubmit(ctx, prompt)
	}

	f.mu.Lock()
	f.record(method)
	f.prompts = append(f.prompts, prompt)
	f.tokens = append(f.tokens, auth.Token)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	var err error
	if len(f.SubmitErrs) > 0 {
		err, f.SubmitErrs = f.SubmitErrs[0], f.SubmitErrs[1:]
	}
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--

	if err != nil {
		return models.OperationHandle{}, err
	}
	f.seq++
	return models.OperationHandle{Name: fmt.Sprintf("op-%d", f.seq), SceneID: fmt.Sprintf("scene-%d", f.seq)}, nil
}

func (f *FakeRemote) UploadAsset(ctx context.Context, auth services.Auth, data []byte, mime string, aspect models.AspectRatio) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UploadAsset")
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	return fmt.Sprintf("asset-%d", f.calls["UploadAsset"]), nil
}

func (f *FakeRemote) Poll(ctx context.Context, auth services.Auth, handle models.OperationHandle) (models.PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Poll")
	if f.PollErr != nil {
		return models.PollResult{}, f.PollErr
	}

	script := f.Statuses
	if strings.HasPrefix(handle.Name, "up-") {
		script = f.UpscaleStatuses
	}
	n := f.polls[handle.Name]
	f.polls[handle.Name]++

	status := models.StatusSuccessful
	if len(script) > 0 {
		status = script[min(n, len(script)-1)]
	}

	res := models.PollResult{Status: status, Raw: "MEDIA_GENERATION_STATUS_" + status.String()}
	if status == models.StatusSuccessful && !f.NoMediaID {
		res.Payload = models.Payload{MediaID: "media-" + handle.Name}
	}
	return res, nil
}

func (f *FakeRemote) RequestUpscale(ctx context.Context, auth services.Auth, mediaID string, quality models.UpscaleQuality, params models.Params) (models.OperationHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("RequestUpscale")
	if f.UpscaleErr != nil {
		return models.OperationHandle{}, f.UpscaleErr
	}
	f.upscaled = append(f.upscaled, mediaID)
	f.seq++
	return models.OperationHandle{Name: fmt.Sprintf("up-%d", f.seq), SceneID: fmt.Sprintf("scene-%d", f.seq)}, nil
}

// FetchArtifact writes the payload's media id to outputPath.
func (f *FakeRemote) FetchArtifact(ctx context.Context, auth services.Auth, payload models.Payload, outputPath string) error {
	f.mu.Lock()
	f.record("FetchArtifact")
	err := f.FetchErr
	f.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputPath, []byte(payload.MediaID), 0644); err != nil {
		return err
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, outputPath)
	f.mu.Unlock()
	return nil
}

func (f *FakeRemote) DeleteTransient(ctx context.Context, auth services.Auth, mediaIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteTransient")
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.deleted = append(f.deleted, mediaIDs...)
	return nil
}

// Calls returns how many times method was invoked.
func (f *FakeRemote) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Peak is the highest number of submits observed in flight at once.
func (f *FakeRemote) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

// Prompts returns submitted prompts in call order.
func (f *FakeRemote) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// Tokens returns the bearer tokens submits were made with.
func (f *FakeRemote) Tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// Deleted returns every media id passed to DeleteTransient.
func (f *FakeRemote) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// Fetched returns artifact paths written by FetchArtifact.
func (f *FakeRemote) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// Upscaled returns the media ids upscales were requested for.
func (f *FakeRemote) Upscaled() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.upscaled...)
}

// FakeTokens is a counting token fetcher. Tokens maps account names to tokens; unknown accounts get "token-<name>".
type FakeTokens struct {
	Tokens map[string]string
	Err    error
	Delay  time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (f *FakeTokens) FetchToken(ctx context.Context, acct *models.Account) (string, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[acct.Name]++
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Err != nil {
		return "", f.Err
	}
	if tok, ok := f.Tokens[acct.Name]; ok {
		return tok, nil
	}
	return "token-" + acct.Name, nil
}

// Calls returns how many fetches were made for the named account.
func (f *FakeTokens) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// FakeClock is a manual clock whose Sleep advances Now instead of blocking.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Slept is the total time passed to Sleep.
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.sleeps {
		total += d
	}
	return total
}

// Sleeps returns each duration passed to Sleep.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
