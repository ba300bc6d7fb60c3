// Copyright (C) 2025 Ariel Frischer
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tui renders the live workflow tree in the terminal. The tree
// rows come straight from the differ, so expansion state and minimal
// invalidation behave exactly as they do for editor hosts.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/config"
	"github.com/tarkilhk/gitea-actions-vscode-plugin-sub000/internal/refresh"
)

// Run blocks until the user quits the watcher.
func Run(orch *refresh.Orchestrator, cfg *config.Config) error {
	model := NewModel(orch, cfg)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
