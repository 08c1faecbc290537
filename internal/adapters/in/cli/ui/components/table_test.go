package components

import (
	"regexp"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/berth/internal/adapters/in/cli/ui/styles"
)

func rowContaining(rendered, needle string) string {
	for _, line := range strings.Split(rendered, "\n") {
		if strings.Contains(line, needle) {
			return line
		}
	}
	return ""
}

func TestTableRender_AppliesConfiguredColumnWidth(t *testing.T) {
	rendered := stripANSI(NewTable([]Column{{Title: "ID", Width: 5}}, Plain()).AddRow("abc").Render())

	rowLine := rowContaining(rendered, "abc")
	require.NotEmpty(t, rowLine)
	assert.Contains(t, rowLine, "abc  ")
}

func TestTableRender_TruncatesLongCellTextWithEllipsis(t *testing.T) {
	rendered := stripANSI(NewTable([]Column{{Title: "ID", Width: 5}}, Plain()).AddRow("abcdef").Render())

	assert.Contains(t, rendered, "ab...")
	assert.NotContains(t, rendered, "abcdef")
}

func TestTableRender_MissingCellsRenderEmpty(t *testing.T) {
	rendered := stripANSI(NewTable(Columns("NAME", "IMAGE"), Plain()).AddRow("db").Render())

	assert.Contains(t, rendered, "IMAGE")
	assert.NotEmpty(t, rowContaining(rendered, "db"))
}

func TestTableRender_NoColumns(t *testing.T) {
	assert.Empty(t, NewTable(nil).Render())
}

func TestFit_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		width    int
		middle   bool
		expected string
	}{
		{name: "short text unchanged", value: "abc", width: 5, expected: "abc"},
		{name: "zero width passthrough", value: "abcdef", width: 0, expected: "abcdef"},
		{name: "width three all dots", value: "abcdef", width: 3, expected: "..."},
		{name: "ascii truncates", value: "postgres:15-alpine", width: 10, expected: "postgre..."},
		{name: "wide runes truncate by display width", value: "你好世界", width: 5, expected: "你..."},
		{name: "middle keeps the tag", value: "registry.example.com/team/api:1.4.2", width: 16, middle: true, expected: "registr...:1.4.2"},
		{name: "middle short text unchanged", value: "redis:7", width: 16, middle: true, expected: "redis:7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fit(tt.value, tt.width, tt.middle)
			assert.Equal(t, tt.expected, got)
			if tt.width > 0 {
				assert.LessOrEqual(t, runewidth.StringWidth(got), tt.width)
			}
		})
	}
}

func TestFit_AnsiInputPassthrough(t *testing.T) {
	styled := "\x1b[32mrunning\x1b[0m"
	assert.Equal(t, styled, fit(styled, 3, false))
}

func TestContainerTable(t *testing.T) {
	rendered := stripANSI(ContainerTable([]ContainerRow{
		{ID: "c-1", Name: "db", Image: "postgres:15", Status: "running", Ports: []string{"5432:5432"}, Changed: "2s ago"},
		{ID: "c-2", Name: "cache", Image: "redis:alpine", Status: "paused", Changed: "1m ago"},
	}, Plain()))

	for _, want := range []string{"NAME", "STATUS", "db", "postgres:15", "running", "cache", "paused", "5432:5432"} {
		assert.Contains(t, rendered, want)
	}
}

func TestContainerTable_RemovedRowsSkipStatusIcon(t *testing.T) {
	rendered := stripANSI(ContainerTable([]ContainerRow{
		{ID: "c-1", Name: "web", Image: "nginx:latest", Status: "running", Changed: "now"},
		{ID: "c-2", Name: "old", Image: "nginx:1.25", Status: "removed", Changed: "1h ago"},
	}, Plain()))

	assert.Contains(t, rowContaining(rendered, "web"), styles.IconRunning)
	oldRow := rowContaining(rendered, "old")
	require.NotEmpty(t, oldRow)
	assert.Contains(t, oldRow, "removed")
	assert.NotContains(t, oldRow, styles.IconRemoved)
}

func TestContainerTable_LongImageKeepsTag(t *testing.T) {
	rendered := stripANSI(ContainerTable([]ContainerRow{
		{ID: "c-1", Name: "api", Image: "registry.example.com/platform/team/api-server:2.14.3", Status: "running"},
	}, Plain()))

	row := rowContaining(rendered, "api")
	assert.Contains(t, row, "...")
	assert.Contains(t, row, ":2.14.3")
}

func TestContainerStatusIndicator_Unknown(t *testing.T) {
	assert.Contains(t, stripANSI(ContainerStatusIndicator("weird")), "weird")
	assert.Contains(t, stripANSI(EventCauseIndicator("reconcile-error")), "reconcile-error")
}

func stripANSI(input string) string {
	ansiPattern := regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	return ansiPattern.ReplaceAllString(input, "")
}
