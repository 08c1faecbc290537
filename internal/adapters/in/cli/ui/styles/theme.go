package styles

import "github.com/charmbracelet/lipgloss"

// Theme contains the composed styles used by the CLI.
var Theme = struct {
	Title   lipgloss.Style
	Muted   lipgloss.Style
	Bold    lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Paused  lipgloss.Style

	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
	TableBorder lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorTextMuted),
	Bold:    lipgloss.NewStyle().Bold(true).Foreground(ColorText),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Info:    lipgloss.NewStyle().Foreground(ColorInfo),
	Paused:  lipgloss.NewStyle().Foreground(ColorPaused),

	TableHeader: lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1),
	TableCell:   lipgloss.NewStyle().Foreground(ColorText).Padding(0, 1),
	TableBorder: lipgloss.NewStyle().Foreground(ColorBorder),
}

// RenderError renders an error message with icon.
func RenderError(msg string) string {
	return Theme.Error.Render(IconError + " " + msg)
}

// RenderSuccess renders a success message with icon.
func RenderSuccess(msg string) string {
	return Theme.Success.Render(IconSuccess + " " + msg)
}

// RenderWarning renders a warning message with icon.
func RenderWarning(msg string) string {
	return Theme.Warning.Render(IconWarning + " " + msg)
}

// RenderInfo renders an info message with icon.
func RenderInfo(msg string) string {
	return Theme.Info.Render(IconInfo + " " + msg)
}
