package formatter

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/shared"
)

// ReadPrompts loads a batch from path.
//
// .csv files carry id,prompt[,asset_path] rows with an optional header; blank ids are numbered
// sequentially and relative asset paths resolve against the file's directory. Any other file is
// read as one prompt per line, skipping blank lines and lines starting with "#".
func ReadPrompts(path string) ([]models.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open prompt file: %w", err)
	}
	defer f.Close()

	var jobs []models.Job
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		jobs, err = parseCSVPrompts(f, filepath.Dir(path))
	} else {
		jobs, err = parseTextPrompts(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s has no prompts", shared.ErrEmptyBatch, path)
	}
	return jobs, nil
}

func parseTextPrompts(r io.Reader) ([]models.Job, error) {
	var jobs []models.Job
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		jobs = append(jobs, models.Job{ID: len(jobs) + 1, Prompt: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	return jobs, nil
}

func parseCSVPrompts(r io.Reader, baseDir string) ([]models.Job, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var jobs []models.Job
	seen := make(map[int]bool)
	next := 1

	for row := 1; ; row++ {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		if row == 1 && isHeader(fields) {
			continue
		}
		if len(fields) < 2 {
			if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
				continue
			}
			return nil, fmt.Errorf("%w: row %d: expected id,prompt[,asset_path]", shared.ErrInvalidInput, row)
		}

		prompt := strings.TrimSpace(fields[1])
		if prompt == "" {
			return nil, fmt.Errorf("%w: row %d: empty prompt", shared.ErrInvalidInput, row)
		}

		id := next
		if raw := strings.TrimSpace(fields[0]); raw != "" {
			if id, err = strconv.Atoi(raw); err != nil || id <= 0 {
				return nil, fmt.Errorf("%w: row %d: invalid job id %q", shared.ErrInvalidInput, row, raw)
			}
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: row %d: duplicate job id %d", shared.ErrInvalidInput, row, id)
		}
		seen[id] = true
		next = max(next, id) + 1

		job := models.Job{ID: id, Prompt: prompt}
		if len(fields) > 2 {
			if asset := strings.TrimSpace(fields[2]); asset != "" {
				if !filepath.IsAbs(asset) {
					asset = filepath.Join(baseDir, asset)
				}
				job.AssetPath = asset
			}
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "id")
}

// RepeatPrompt builds a batch of n jobs sharing one prompt and optional asset.
func RepeatPrompt(prompt string, n int, asset string) ([]models.Job, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt", shared.ErrMissingArgument)
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", shared.ErrInvalidArgument, n)
	}

	jobs := make([]models.Job, n)
	for i := range jobs {
		jobs[i] = models.Job{ID: i + 1, Prompt: prompt, AssetPath: asset}
	}
	return jobs, nil
}
