package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the batch view.
type keyMap struct {
	up   key.Binding
	down key.Binding
	stop key.Binding
	kill key.Binding
	quit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:   key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "up")),
		down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		stop: key.NewBinding(key.WithKeys("s", "ctrl+c"), key.WithHelp("s", "stop")),
		kill: key.NewBinding(key.WithKeys("k"), key.WithHelp("k", "kill")),
		quit: key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.stop, k.kill, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down},
		{k.stop, k.kill, k.quit},
	}
}
