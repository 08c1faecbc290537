package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/go-units"

	"github.com/bnema/berth/internal/adapters/dto"
	"github.com/bnema/berth/internal/adapters/in/cli/ui/components"
	"github.com/bnema/berth/internal/adapters/in/cli/ui/styles"
)

var cliWriteLine = func(w io.Writer, msg string) error {
	_, err := fmt.Fprintln(w, msg)
	return err
}

var cliWritef = func(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// cliNow is swapped in tests for stable relative times.
var cliNow = time.Now

func cliRenderTitle(msg string) string {
	return styles.Theme.Title.Render(msg)
}

func cliRenderMuted(msg string) string {
	return styles.Theme.Muted.Render(msg)
}

func cliRenderMeta(label, value string) string {
	return styles.Theme.Bold.Render(label) + " " + value
}

func cliRenderSuccess(msg string) string {
	return styles.RenderSuccess(msg)
}

func cliRenderWarning(msg string) string {
	return styles.RenderWarning(msg)
}

func cliRenderError(msg string) string {
	return styles.RenderError(msg)
}

func cliRenderInfo(msg string) string {
	return styles.RenderInfo(msg)
}

// cliAgo renders t relative to now, docker-style.
func cliAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := cliNow().Sub(t)
	if d < time.Second {
		return "just now"
	}
	return units.HumanDuration(d) + " ago"
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func containerRows(containers []dto.Container) []components.ContainerRow {
	rows := make([]components.ContainerRow, 0, len(containers))
	for _, c := range containers {
		rows = append(rows, components.ContainerRow{
			ID:      shortID(c.ID),
			Name:    c.Name,
			Image:   c.Image,
			Status:  c.Status,
			Ports:   c.Ports,
			Changed: cliAgo(c.LastTransitionAt),
		})
	}
	return rows
}

func writeContainerDetail(w io.Writer, c dto.Container) error {
	lines := []string{
		cliRenderTitle(c.Name),
		cliRenderMeta("ID:     ", c.ID),
		cliRenderMeta("Image:  ", c.Image),
		cliRenderMeta("Status: ", components.ContainerStatusIndicator(c.Status)),
	}
	if len(c.Ports) > 0 {
		lines = append(lines, cliRenderMeta("Ports:  ", strings.Join(c.Ports, ", ")))
	}
	lines = append(lines,
		cliRenderMeta("Created:", c.CreatedAt.Format(time.RFC3339)+" "+cliRenderMuted("("+cliAgo(c.CreatedAt)+")")),
		cliRenderMeta("Changed:", c.LastTransitionAt.Format(time.RFC3339)+" "+cliRenderMuted("("+cliAgo(c.LastTransitionAt)+")")),
	)
	if c.RemovedAt != nil {
		lines = append(lines, cliRenderMeta("Removed:", c.RemovedAt.Format(time.RFC3339)))
	}
	for k, v := range c.Labels {
		lines = append(lines, cliRenderMeta("Label:  ", k+"="+v))
	}
	for _, line := range lines {
		if err := cliWriteLine(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatEvent(ev dto.Event) string {
	name := ev.Name
	if name == "" {
		name = shortID(ev.ContainerID)
	}
	line := fmt.Sprintf("%s  %-24s %s  %s -> %s",
		cliRenderMuted(ev.Timestamp.Format("15:04:05")),
		name,
		components.EventCauseIndicator(ev.Cause),
		ev.Previous,
		components.ContainerStatusIndicator(ev.Current),
	)
	if ev.Message != "" {
		line += "  " + cliRenderMuted(ev.Message)
	}
	return line
}
