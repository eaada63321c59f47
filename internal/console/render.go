// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package console

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/holomush/plugbus/internal/plugin"
)

// Ticks shown next to plugin names in listings.
const (
	EnabledTick  = "✅"
	DisabledTick = "❌"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	nameStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RenderListing formats a listing as two sections: registered plugins with
// an enabled tick, then discoverable sources that are not registered.
func RenderListing(l plugin.Listing) string {
	var b strings.Builder

	b.WriteString(headingStyle.Render("Loaded"))
	b.WriteString("\n")
	if len(l.Loaded) == 0 {
		b.WriteString(mutedStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, e := range l.Loaded {
		tick := DisabledTick
		if e.Enabled {
			tick = EnabledTick
		}
		b.WriteString("  " + tick + " " + nameStyle.Render(e.Name) + "\n")
	}

	b.WriteString(headingStyle.Render("Unloaded"))
	b.WriteString("\n")
	if len(l.Unloaded) == 0 {
		b.WriteString(mutedStyle.Render("  (none)"))
		b.WriteString("\n")
	}
	for _, name := range l.Unloaded {
		b.WriteString("  " + nameStyle.Render(name) + "\n")
	}
	return b.String()
}

// RenderInfo formats a plugin info snapshot as indented JSON.
func RenderInfo(info plugin.Info) string {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(data) + "\n"
}
