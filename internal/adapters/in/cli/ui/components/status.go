package components

import (
	"strings"

	"github.com/bnema/berth/internal/adapters/in/cli/ui/styles"

	"github.com/charmbracelet/lipgloss"
)

// statusStyle pairs an icon with the style of one container status.
type statusStyle struct {
	Icon  string
	Style lipgloss.Style
}

// containerStatusStyles maps container statuses as reported by the API.
var containerStatusStyles = map[string]statusStyle{
	"created":  {Icon: styles.IconCreated, Style: styles.Theme.Info},
	"running":  {Icon: styles.IconRunning, Style: styles.Theme.Success},
	"paused":   {Icon: styles.IconPaused, Style: styles.Theme.Paused},
	"stopped":  {Icon: styles.IconStopped, Style: styles.Theme.Warning},
	"removing": {Icon: styles.IconPending, Style: styles.Theme.Muted},
	"removed":  {Icon: styles.IconRemoved, Style: styles.Theme.Muted},
}

// ContainerStatusIndicator renders a container status with icon and color.
// Unknown statuses render muted.
func ContainerStatusIndicator(status string) string {
	cfg, ok := containerStatusStyles[strings.ToLower(status)]
	if !ok {
		return styles.Theme.Muted.Render(status)
	}
	return cfg.Style.Render(cfg.Icon + " " + status)
}

// EventCauseIndicator renders the cause of an event; errors stand out.
func EventCauseIndicator(cause string) string {
	switch cause {
	case "reconcile-error":
		return styles.Theme.Error.Render(cause)
	case "drift-corrected", "adopted":
		return styles.Theme.Warning.Render(cause)
	case "purged":
		return styles.Theme.Muted.Render(cause)
	default:
		return styles.Theme.Info.Render(cause)
	}
}
