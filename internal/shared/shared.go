// package shared defines helpers used across the engine, the CLI, and the persistence layer
package shared

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// NewFileLogger creates a [log.Logger] that appends to the file at path, creating parent directories.
//
// Used while a full-screen UI owns the terminal.
func NewFileLogger(path string) (*log.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return NewLogger(f), nil
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// MarshalJSON encodes v, indented when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

var (
	reservedChars   = regexp.MustCompile(`[<>:"/\\|?*]`)
	controlChars    = regexp.MustCompile(`[\n\r\t]`)
	repeatedSpaces  = regexp.MustCompile(`\s+`)
	maxFilenameSize = 100
)

// SanitizeFilename replaces characters that are invalid in file names and caps the length.
func SanitizeFilename(name string) string {
	name = reservedChars.ReplaceAllString(name, "_")
	name = controlChars.ReplaceAllString(name, "_")
	name = repeatedSpaces.ReplaceAllString(name, " ")
	if r := []rune(name); len(r) > maxFilenameSize {
		name = string(r[:maxFilenameSize])
	}
	return strings.TrimSpace(name)
}

// ArtifactFilename builds the output file name for a job: "{id}_{first 50 chars of prompt}.mp4".
func ArtifactFilename(id int, prompt string) string {
	short := truncate(strings.TrimSpace(prompt), 50)
	short = SanitizeFilename(strings.TrimSpace(short))

	name := fmt.Sprintf("%d_%s.mp4", id, short)
	if len([]rune(name)) > maxFilenameSize {
		name = fmt.Sprintf("%d_%s.mp4", id, truncate(short, 30))
	}
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
