package hud

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Forward  key.Binding
	Backward key.Binding
	Left     key.Binding
	Right    key.Binding
	Start    key.Binding
	Mode     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Forward:  key.NewBinding(key.WithKeys("up", "w"), key.WithHelp("↑/w", "accelerate")),
		Backward: key.NewBinding(key.WithKeys("down", "s"), key.WithHelp("↓/s", "brake")),
		Left:     key.NewBinding(key.WithKeys("left", "a"), key.WithHelp("←/a", "left")),
		Right:    key.NewBinding(key.WithKeys("right", "d"), key.WithHelp("→/d", "right")),
		Start:    key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "start")),
		Mode:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "day/night")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Forward, k.Left, k.Right, k.Start, k.Mode, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Forward, k.Backward, k.Left, k.Right},
		{k.Start, k.Mode, k.Quit},
	}
}
