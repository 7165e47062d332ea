package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	healthyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

// Render draws a static, non-interactive table for `list` and
// `package list`'s default (non-JSON) output, in the register the
// pack's CLI tools use for tabular text (bottle/bureau/invowk all
// lean on lipgloss for styled terminal output rather than printing
// raw tab-separated text).
func Render(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	return t.Render()
}

// StateLabel colors an environment state for display in a table cell.
func StateLabel(state string) string {
	if state == "RUNNING" {
		return runningStyle.Render(state)
	}
	return healthyStyle.Render(state)
}
