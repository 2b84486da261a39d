package cmd

import "github.com/charmbracelet/lipgloss"

// Terminal colours
const (
	Amber = lipgloss.Color("#CC8B3F")
	Cyan  = lipgloss.Color("#3097C6")
	Green = lipgloss.Color("#A6A75D")
	Red   = lipgloss.Color("#AC3835")
	Muted = lipgloss.Color("#8A8A8A")
)

var titleStyle = lipgloss.NewStyle().
	Foreground(Cyan).
	Bold(true)

var labelStyle = lipgloss.NewStyle().
	Foreground(Amber)

var okStyle = lipgloss.NewStyle().
	Foreground(Green)

var warnStyle = lipgloss.NewStyle().
	Foreground(Amber).
	Bold(true)

var failStyle = lipgloss.NewStyle().
	Foreground(Red).
	Bold(true)

var dimStyle = lipgloss.NewStyle().
	Foreground(Muted)

// headerStyle is used for table headings in history output
var headerStyle = lipgloss.NewStyle().
	Foreground(Cyan).
	Underline(true)
