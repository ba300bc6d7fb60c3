// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/models"
)

var (
	BaseStyle = lipgloss.NewStyle()

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Background(lipgloss.Color("235"))

	SelectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("63"))

	HelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	RunningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	QueuedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	SkippedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	RepoStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("117"))

	LogBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240"))
)

// StatusStyle maps a normalized status plus conclusion to its style.
func StatusStyle(status models.Status, conclusion models.Conclusion) lipgloss.Style {
	switch status {
	case models.StatusQueued:
		return QueuedStyle
	case models.StatusRunning:
		return RunningStyle
	case models.StatusCompleted:
		switch conclusion {
		case models.ConclusionSuccess:
			return SuccessStyle
		case models.ConclusionFailure:
			return ErrorStyle
		case models.ConclusionCancelled, models.ConclusionSkipped:
			return SkippedStyle
		default:
			return BaseStyle
		}
	default:
		return BaseStyle
	}
}

// StatusIcon mirrors StatusStyle for the glyph shown before a label.
func StatusIcon(status models.Status, conclusion models.Conclusion) string {
	switch status {
	case models.StatusQueued:
		return "⏳"
	case models.StatusRunning:
		return "⟳"
	case models.StatusCompleted:
		switch conclusion {
		case models.ConclusionSuccess:
			return "✓"
		case models.ConclusionFailure:
			return "✗"
		case models.ConclusionCancelled:
			return "⊘"
		case models.ConclusionSkipped:
			return "»"
		default:
			return "•"
		}
	default:
		return "•"
	}
}
