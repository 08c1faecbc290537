package components

import (
	"strings"

	"github.com/bnema/berth/internal/adapters/in/cli/ui/styles"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

const ellipsis = "..."

// Column is one table column. Width 0 sizes the column to its content.
type Column struct {
	Title string
	Width int
	// Middle shortens long values by dropping their middle, so image tags
	// and id suffixes stay visible.
	Middle bool
}

// Columns builds content-sized columns from titles.
func Columns(titles ...string) []Column {
	cols := make([]Column, len(titles))
	for i, title := range titles {
		cols[i] = Column{Title: title}
	}
	return cols
}

type tableRow struct {
	cells []string
	style *lipgloss.Style
}

// Table renders rows under a rounded border in the berth theme.
type Table struct {
	columns []Column
	rows    []tableRow
	header  lipgloss.Style
	cell    lipgloss.Style
	border  lipgloss.Style
}

// TableOption configures a Table.
type TableOption func(*Table)

// Plain drops colors and padding. Used where output is parsed.
func Plain() TableOption {
	return func(t *Table) {
		t.header = lipgloss.NewStyle()
		t.cell = lipgloss.NewStyle()
		t.border = lipgloss.NewStyle()
	}
}

// NewTable creates a table with the given columns.
func NewTable(columns []Column, opts ...TableOption) *Table {
	t := &Table{
		columns: columns,
		header:  styles.Theme.TableHeader,
		cell:    styles.Theme.TableCell,
		border:  styles.Theme.TableBorder,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddRow appends a row. Missing cells render empty, extra cells are ignored.
func (t *Table) AddRow(cells ...string) *Table {
	t.rows = append(t.rows, tableRow{cells: cells})
	return t
}

// AddStyledRow appends a row whose text is rendered with style.
func (t *Table) AddStyledRow(style lipgloss.Style, cells ...string) *Table {
	t.rows = append(t.rows, tableRow{cells: cells, style: &style})
	return t
}

// Render renders the table as a string.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	pad := t.cell.GetHorizontalPadding()
	headers := make([]string, len(t.columns))
	for i, col := range t.columns {
		headers[i] = fit(col.Title, contentWidth(col.Width, t.header.GetHorizontalPadding()), false)
	}

	rows := make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		cells := make([]string, len(t.columns))
		for i, col := range t.columns {
			if i >= len(row.cells) {
				continue
			}
			cell := fit(row.cells[i], contentWidth(col.Width, pad), col.Middle)
			if row.style != nil {
				cell = row.style.Render(cell)
			}
			cells[i] = cell
		}
		rows = append(rows, cells)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(t.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(t.style).
		String()
}

func (t *Table) style(row, col int) lipgloss.Style {
	s := t.cell
	if row == table.HeaderRow {
		s = t.header
	}
	if col >= 0 && col < len(t.columns) && t.columns[col].Width > 0 {
		w := t.columns[col].Width
		s = s.Width(w).MaxWidth(w)
	}
	return s
}

func contentWidth(width, padding int) int {
	if width <= 0 {
		return 0
	}
	return max(width-padding, 1)
}

// fit shortens value to width display cells. Styled values pass through
// untouched since their escape codes have no display width.
func fit(value string, width int, middle bool) string {
	if width <= 0 || strings.Contains(value, "\x1b[") || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= len(ellipsis) {
		return strings.Repeat(".", width)
	}

	clusters := graphemes(value)
	budget := width - len(ellipsis)
	if !middle {
		head := takeHead(clusters, budget)
		if head == "" {
			return strings.Repeat(".", width)
		}
		return head + ellipsis
	}

	head := takeHead(clusters, (budget+1)/2)
	tail := takeTail(clusters, budget-runewidth.StringWidth(head))
	return head + ellipsis + tail
}

func graphemes(s string) []string {
	var out []string
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		out = append(out, g.Str())
	}
	return out
}

func takeHead(clusters []string, budget int) string {
	var b strings.Builder
	used := 0
	for _, c := range clusters {
		w := runewidth.StringWidth(c)
		if used+w > budget {
			break
		}
		b.WriteString(c)
		used += w
	}
	return b.String()
}

func takeTail(clusters []string, budget int) string {
	used := 0
	i := len(clusters)
	for i > 0 {
		w := runewidth.StringWidth(clusters[i-1])
		if used+w > budget {
			break
		}
		used += w
		i--
	}
	return strings.Join(clusters[i:], "")
}

// ContainerRow is one line of the ps listing.
type ContainerRow struct {
	ID      string
	Name    string
	Image   string
	Status  string
	Ports   []string
	Changed string
}

var containerColumns = []Column{
	{Title: "ID", Width: 14},
	{Title: "NAME", Width: 24},
	{Title: "IMAGE", Width: 30, Middle: true},
	{Title: "STATUS"},
	{Title: "PORTS", Width: 24},
	{Title: "CHANGED"},
}

// ContainerTable renders the ps listing. Rows on their way out (removing,
// removed) are muted so live containers stand out.
func ContainerTable(rows []ContainerRow, opts ...TableOption) string {
	t := NewTable(containerColumns, opts...)
	for _, r := range rows {
		ports := strings.Join(r.Ports, ", ")
		switch strings.ToLower(r.Status) {
		case "removing", "removed":
			t.AddStyledRow(styles.Theme.Muted, r.ID, r.Name, r.Image, r.Status, ports, r.Changed)
		default:
			t.AddRow(r.ID, r.Name, r.Image, ContainerStatusIndicator(r.Status), ports, r.Changed)
		}
	}
	return t.Render()
}
