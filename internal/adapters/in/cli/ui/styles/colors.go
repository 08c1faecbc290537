// Package styles provides the color palette and composed styles of the berth CLI.
package styles

import "github.com/charmbracelet/lipgloss"

// Palette tuned for dark terminals; AdaptiveColor keeps light themes readable.
var (
	Teal   = lipgloss.AdaptiveColor{Light: "#00796b", Dark: "#2dd4bf"}
	Sky    = lipgloss.AdaptiveColor{Light: "#0369a1", Dark: "#38bdf8"}
	Amber  = lipgloss.AdaptiveColor{Light: "#b45309", Dark: "#fbbf24"}
	Coral  = lipgloss.AdaptiveColor{Light: "#b91c1c", Dark: "#f87171"}
	Violet = lipgloss.AdaptiveColor{Light: "#6d28d9", Dark: "#a78bfa"}

	Neutral200 = lipgloss.Color("#e5e5e5")
	Neutral500 = lipgloss.Color("#737373")
	Neutral700 = lipgloss.Color("#404040")

	// Semantic colors
	ColorPrimary = Teal
	ColorSuccess = Teal
	ColorWarning = Amber
	ColorError   = Coral
	ColorInfo    = Sky
	ColorPaused  = Violet

	ColorText      = lipgloss.AdaptiveColor{Light: "#171717", Dark: "#e5e5e5"}
	ColorTextMuted = Neutral500
	ColorBorder    = Neutral700
)
