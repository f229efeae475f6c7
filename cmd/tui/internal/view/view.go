package view

import (
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// View is the interface that all TUI screens implement.
type View interface {
	tea.Model
	Title() string
	ShortHelp() string
}

// CommonModel is embedded by all views.
type CommonModel struct{}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

// Actor names the operator in audit fields of changes made from the TUI.
func Actor() string {
	if u := os.Getenv("USER"); u != "" {
		return "tui:" + u
	}

	return "tui"
}
