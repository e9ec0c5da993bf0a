package stages

import (
	"strconv"
	"strings"

	"github.com/plumblinelabs/takeoffd/internal/ledger"
)

// contentText renders an evidence payload as one searchable string so
// keyword scans work uniformly across content shapes.
func contentText(ev *ledger.Evidence) string {
	var parts []string
	switch {
	case ev.Content.Text != nil:
		parts = append(parts, ev.Content.Text.Raw)
	case ev.Content.Table != nil:
		t := ev.Content.Table
		parts = append(parts, t.Caption, strings.Join(t.Headers, " "))
		for _, row := range t.Rows {
			parts = append(parts, strings.Join(row, " "))
		}
	case ev.Content.Symbol != nil:
		sym := ev.Content.Symbol
		parts = append(parts, sym.Symbol)
		for k, v := range sym.Properties {
			parts = append(parts, k+" "+v)
		}
	case ev.Content.Dimension != nil:
		d := ev.Content.Dimension
		parts = append(parts, d.Label, strconv.FormatFloat(d.Value, 'g', -1, 64), d.Unit)
	case ev.Content.Schedule != nil:
		sc := ev.Content.Schedule
		parts = append(parts, sc.Name, strings.Join(sc.Columns, " "))
		for _, row := range sc.Rows {
			for _, col := range sc.Columns {
				parts = append(parts, row[col])
			}
		}
	case ev.Content.Image != nil:
		parts = append(parts, ev.Content.Image.Description)
	}
	return strings.Join(parts, " ")
}

// scheduleColumn returns the schedule column whose name matches
// case-insensitively, or "" when absent. The returned string is the
// column's exact spelling, usable as a row map key.
func scheduleColumn(columns []string, name string) string {
	for _, c := range columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return c
		}
	}
	return ""
}
