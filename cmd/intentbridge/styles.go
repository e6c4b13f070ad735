// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import "github.com/charmbracelet/lipgloss"

// Terminal styles for the match and repl output.
var (
	styleIntent = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleScore  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleStep   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	styleMarker = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	styleAsk    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleErr    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	styleDim    = lipgloss.NewStyle().Faint(true)
)
