package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the keybindings of the progress view
type keyMap struct {
	Quit key.Binding // Cancels a running engine, quits otherwise
	Logs key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "cancel"),
		),
		Logs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "toggle log"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Logs}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// setRunning relabels the quit key for the current run state
func (k *keyMap) setRunning(running bool) {
	if running {
		k.Quit.SetHelp("q", "cancel")
	} else {
		k.Quit.SetHelp("q", "quit")
	}
}
