package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/vbx/internal/models"
)

var _ list.Item = jobItem{}

// jobItem wraps a [models.Job] and its latest reported state to implement [list.Item].
type jobItem struct {
	job     models.Job
	state   models.JobState
	message string
}

func (i jobItem) FilterValue() string { return i.job.Prompt }
func (i jobItem) Title() string       { return fmt.Sprintf("#%d %s", i.job.ID, i.job.Prompt) }
func (i jobItem) Description() string {
	desc := styles.State(i.state)
	if i.message != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.message)
	}
	return desc
}
