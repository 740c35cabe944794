package display

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders an aligned text table.
type Table struct {
	headers []string
	rows    [][]string
	// highlightRow is accented and dimRow faint; -1 disables either.
	highlightRow int
	dimRow       int
}

// NewTable creates a table with the given column headers.
func NewTable(headers []string) *Table {
	return &Table{
		headers:      headers,
		highlightRow: -1,
		dimRow:       -1,
	}
}

// AddRow appends a row. Missing cells render empty; extra cells are dropped.
func (t *Table) AddRow(values []string) {
	t.rows = append(t.rows, values)
}

// SetHighlightRow accents the row at idx (0-based).
func (t *Table) SetHighlightRow(idx int) {
	t.highlightRow = idx
}

// SetDimRow renders the row at idx faint.
func (t *Table) SetDimRow(idx int) {
	t.dimRow = idx
}

// Render produces the table, each line indented by two spaces.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("  " + Bold(formatRow(t.headers, widths)) + "\n")

	sep := make([]string, len(widths))
	for i, w := range widths {
		sep[i] = strings.Repeat("─", w)
	}
	sb.WriteString("  " + Muted(strings.Join(sep, "  ")) + "\n")

	for i, row := range t.rows {
		line := formatRow(row, widths)
		switch i {
		case t.highlightRow:
			line = Accent(line)
		case t.dimRow:
			line = Dim(line)
		}
		sb.WriteString("  " + line + "\n")
	}
	return sb.String()
}

// formatRow pads each cell to its column width by display width, so
// multi-byte names line up.
func formatRow(cells []string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = cell + strings.Repeat(" ", w-lipgloss.Width(cell))
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}
