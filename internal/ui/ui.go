package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	RunningView ViewState = iota
	StoppingView
	ResultView
)

// maxFailures caps the failed jobs listed on the result view.
const maxFailures = 10

// BatchFunc runs a batch and reports to progress. It must not close progress.
type BatchFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.BatchResult, error)

// Controller stops a running batch, cooperatively or at once.
type Controller interface {
	Stop()
	Kill()
}

// Model represents the TUI application state.
type Model struct {
	ctx     context.Context
	title   string
	view    ViewState
	run     BatchFunc
	control Controller
	stopped bool
	killed  bool

	width  int
	height int

	jobs     list.Model
	index    map[int]int
	bar      progress.Model
	percent  float64
	status   string
	updates  <-chan tasks.ProgressUpdate
	done     chan batchOutcome
	result   *models.BatchResult
	err      error
	help     help.Model
	keys     keyMap
	quitting bool
}

// NewModel creates a batch view for jobs. run is started by Init; control receives stop and kill requests.
func NewModel(ctx context.Context, title string, jobs []models.Job, run BatchFunc, control Controller) *Model {
	items := make([]list.Item, len(jobs))
	index := make(map[int]int, len(jobs))
	for i, job := range jobs {
		items[i] = jobItem{job: job, state: models.StateCreated}
		index[job.ID] = i
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.KeyMap.CursorUp = key.NewBinding(key.WithKeys("up"))

	return &Model{
		ctx:     ctx,
		title:   title,
		view:    RunningView,
		run:     run,
		control: control,
		jobs:    l,
		index:   index,
		bar:     progress.New(progress.WithDefaultGradient()),
		status:  fmt.Sprintf("Starting %d jobs...", len(jobs)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the batch outcome once the batch has finished.
func (m *Model) Result() (*models.BatchResult, error) {
	return m.result, m.err
}

// Init starts the batch.
func (m *Model) Init() tea.Cmd {
	return m.startBatch()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobs.SetSize(msg.Width-4, max(msg.Height-10, 4))
		m.bar.Width = max(min(msg.Width-8, 80), 10)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.apply(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgBatchComplete:
			out := msg.data.(batchOutcome)
			m.result = out.result
			m.err = out.err
			m.view = ResultView
			m.percent = 1
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.jobs, cmd = m.jobs.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	switch m.view {
	case ResultView:
		return m.renderResult()
	default:
		return m.renderRunning()
	}
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.view == ResultView {
		if key.Matches(msg, m.keys.quit) {
			m.quitting = true
			return m, tea.Quit
		}
	} else {
		switch {
		case key.Matches(msg, m.keys.kill):
			m.kill()
			return m, nil
		case key.Matches(msg, m.keys.stop):
			if m.view == StoppingView {
				m.kill()
			} else {
				m.stop()
			}
			return m, nil
		case key.Matches(msg, m.keys.quit):
			m.status = "Batch still running: press s to stop or k to kill"
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.jobs, cmd = m.jobs.Update(msg)
	return m, cmd
}

func (m *Model) stop() {
	m.stopped = true
	m.view = StoppingView
	m.status = "Stopping: no new jobs start, running jobs finish their current step..."
	if m.control != nil {
		m.control.Stop()
	}
}

func (m *Model) kill() {
	if m.killed {
		return
	}
	m.killed = true
	m.view = StoppingView
	m.status = "Killing: cancelling in-flight requests..."
	if m.control != nil {
		m.control.Kill()
	}
}

// apply folds one progress update into the view.
func (m *Model) apply(u tasks.ProgressUpdate) {
	switch u.Phase {
	case tasks.BatchProgress, tasks.BatchDone:
		if u.Total > 0 && u.Step > 0 {
			m.percent = float64(u.Step) / float64(u.Total)
		}
		if (u.Message != "" && m.view == RunningView) || u.Phase == tasks.BatchDone {
			m.status = u.Message
		}
	case tasks.JobStatus:
		i, ok := m.index[u.JobID]
		if !ok {
			return
		}
		item := m.jobs.Items()[i].(jobItem)
		if state, ok := u.Data.(models.JobState); ok {
			item.state = state
			item.message = ""
		} else {
			item.message = strings.TrimPrefix(u.Message, fmt.Sprintf("Job %d: ", u.JobID))
		}
		m.jobs.SetItem(i, item)
	}
}

func (m *Model) startBatch() tea.Cmd {
	updates := make(chan tasks.ProgressUpdate, 100)
	done := make(chan batchOutcome, 1)
	m.updates = updates
	m.done = done

	// updates stays open: pipelines abandoned after a kill may still report.
	go func() {
		result, err := m.run(m.ctx, updates)
		done <- batchOutcome{result: result, err: err}
	}()

	return m.waitForProgress()
}

// waitForProgress delivers the next update, or the outcome once the batch returned and every
// buffered update was delivered.
func (m *Model) waitForProgress() tea.Cmd {
	updates, done := m.updates, m.done
	return func() tea.Msg {
		select {
		case update := <-updates:
			return progressUpdateMsg(update)
		case out := <-done:
			select {
			case update := <-updates:
				done <- out
				return progressUpdateMsg(update)
			default:
			}
			return batchCompleteMsg(out.result, out.err)
		}
	}
}

func (m *Model) renderRunning() string {
	title := styles.title.Render(m.title)
	bar := m.bar.ViewAs(m.percent)

	status := m.status
	if m.view == StoppingView {
		status = styles.warn.Render(status)
	}

	helpKeys := []key.Binding{m.keys.stop, m.keys.kill}
	if m.view == StoppingView {
		helpKeys = []key.Binding{m.keys.kill}
	}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s\n\n%s\n\n%s", title, bar, status, m.jobs.View(), helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Batch failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	var title string
	switch {
	case m.result.Succeeded == m.result.Total():
		title = styles.ok.Render("✓ Batch Complete!")
	case m.stopped || m.killed || m.result.Cancelled > 0:
		title = styles.warn.Render("Batch Stopped")
	default:
		title = styles.warn.Render("Batch Finished With Failures")
	}

	info := fmt.Sprintf("\n%s\nOutput: %s", m.result.Summary(), m.result.OutputDir)

	var failed string
	if n := m.result.Total() - m.result.Succeeded; n > 0 {
		failed = "\n\n" + styles.err.Render(fmt.Sprintf("%d jobs did not succeed:", n))
		shown := 0
		for _, rec := range m.result.Records {
			if rec.Success {
				continue
			}
			if shown == maxFailures {
				failed += fmt.Sprintf("\n  … and %d more", n-shown)
				break
			}
			failed += fmt.Sprintf("\n  • #%d %s: %s", rec.JobID, rec.Outcome(), rec.Detail)
			shown++
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
