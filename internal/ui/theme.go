// Package ui holds the terminal styles and the run history table.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#20BEFF")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#32CD32")).
			Bold(true)

	FailureStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4136")).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#828282"))

	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(accent).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().Padding(0, 1)
)
