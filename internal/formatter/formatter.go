// package formatter writes batch reports (JSON, CSV, Markdown, plain text) and reads batch sources
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
)

// Format is a report output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat parses a --report value. "md" and "text" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidArgument, s)
}

// Ext is the file extension written for the format.
func (f Format) Ext() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	default:
		return ".json"
	}
}

// ReportToJSON renders the full batch result, records included.
func ReportToJSON(result *models.BatchResult) ([]byte, error) {
	return shared.MarshalJSON(result, true)
}

// ReportToCSV converts a batch result to CSV with columns: Job, Prompt, Asset, Account, Outcome, State, Detail, Mirror
func ReportToCSV(result *models.BatchResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Job", "Prompt", "Asset", "Account", "Outcome", "State", "Detail", "Mirror"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range result.Records {
		row := []string{
			strconv.Itoa(rec.JobID),
			rec.Prompt,
			rec.AssetPath,
			rec.Account,
			rec.Outcome(),
			rec.State.String(),
			rec.Detail,
			rec.MirrorURI,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown converts a batch result to a Markdown summary followed by a table of jobs.
func ReportToMarkdown(result *models.BatchResult) ([]byte, error) {
	var buf bytes.Buffer

	title := "Batch Report"
	if result.RunID != "" {
		title += " " + result.RunID
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Summary**: %s\n", result.Summary())
	if result.OutputDir != "" {
		fmt.Fprintf(&buf, "**Output**: %s\n", result.OutputDir)
	}
	if !result.Started.IsZero() && !result.Finished.IsZero() {
		fmt.Fprintf(&buf, "**Duration**: %s\n", result.Finished.Sub(result.Started).Round(time.Second))
	}

	buf.WriteString("\n## Jobs\n\n")
	buf.WriteString("| Job | Prompt | Account | Outcome | Detail |\n")
	buf.WriteString("|-----|--------|---------|---------|--------|\n")
	for _, rec := range result.Records {
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s |\n",
			rec.JobID, markdownCell(rec.Prompt), markdownCell(rec.Account), rec.Outcome(), markdownCell(rec.Detail))
	}

	return buf.Bytes(), nil
}

// ReportToText converts a batch result to plain text, one line per job.
func ReportToText(result *models.BatchResult) ([]byte, error) {
	var buf bytes.Buffer

	if result.RunID != "" {
		fmt.Fprintf(&buf, "Run: %s\n", result.RunID)
	}
	fmt.Fprintf(&buf, "Result: %s\n\n", result.Summary())

	for _, rec := range result.Records {
		fmt.Fprintf(&buf, "%d. [%s] %s -> %s\n", rec.JobID, rec.Outcome(), rec.Prompt, rec.Detail)
	}

	return buf.Bytes(), nil
}

// Render converts result to the given format.
func Render(result *models.BatchResult, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ReportToCSV(result)
	case FormatMarkdown:
		return ReportToMarkdown(result)
	case FormatText:
		return ReportToText(result)
	case FormatJSON, "":
		return ReportToJSON(result)
	}
	return nil, fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidArgument, format)
}

// WriteReport renders result and writes it to path.
//
// Defaults to {output dir}/report_{run id}{ext} when path is empty. Returns the written path.
func WriteReport(result *models.BatchResult, format Format, path string) (string, error) {
	if path == "" {
		name := "report"
		if result.RunID != "" {
			name += "_" + result.RunID
		}
		path = filepath.Join(result.OutputDir, name+format.Ext())
	}

	data, err := Render(result, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return path, nil
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
