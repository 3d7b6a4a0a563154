package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/vbx/internal/models"
	"github.com/desertthunder/vbx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgBatchComplete
)

// batchOutcome is the payload of [MsgBatchComplete]
type batchOutcome struct {
	result *models.BatchResult
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// batchCompleteMsg is the constructor for [MsgBatchComplete]
func batchCompleteMsg(result *models.BatchResult, err error) Msg {
	return Msg{kind: MsgBatchComplete, data: batchOutcome{result: result, err: err}}
}
