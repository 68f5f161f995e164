package tablediff

import (
	"fmt"
	"html"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/roach88/refinery/internal/data"
)

const (
	thStyle = "text-transform: uppercase;padding:8px;border-bottom: 1px solid #e8e8e8;font-size: 0.8125rem;"
	tdStyle = "padding:8px;"

	// Shown when a field has no value in both the old and new table.
	noChangeCell = "-"
)

// HTML renders the diff as a standalone table with added text in green
// and removed text in red. Changed cells show character-level edits.
func HTML(d *Diff) string {
	var b strings.Builder
	b.WriteString("<table style='font-family: Arial;'>")
	b.WriteString("<tr>")
	headerCell(&b, "<!--change type-->")
	headerCell(&b, "Row number")
	for _, field := range d.Fields {
		headerCell(&b, html.EscapeString(field))
	}
	b.WriteString("</tr>")

	dmp := diffmatchpatch.New()
	for _, row := range d.Rows {
		b.WriteString("<tr>")
		bodyCell(&b, changeLabel(row.Kind))
		bodyCell(&b, rowLabel(row))
		for _, cell := range row.Cells {
			bodyCell(&b, htmlCell(dmp, row.Kind, cell))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return b.String()
}

func changeLabel(kind ChangeKind) string {
	switch kind {
	case KindAdded:
		return "Added"
	case KindRemoved:
		return "Deleted"
	case KindChanged:
		return "Changed"
	default:
		return "Same"
	}
}

func rowLabel(row RowDiff) string {
	if row.Key != "" {
		return html.EscapeString(row.Key)
	}
	return fmt.Sprintf("%d", row.Num)
}

func headerCell(b *strings.Builder, text string) {
	b.WriteString("<th style='" + thStyle + "'>" + text + "</th>")
}

func bodyCell(b *strings.Builder, text string) {
	b.WriteString("<td style='" + tdStyle + "'>" + text + "</td>")
}

func addedText(text string) string {
	return "<span style=\"color: green\">" + html.EscapeString(text) + "</span>"
}

func removedText(text string) string {
	return "<span style=\"color: red\">" + html.EscapeString(text) + "</span>"
}

// htmlCell renders one cell. Whole-row adds and removes color the full
// value; changed rows get per-cell treatment with intra-cell edits.
func htmlCell(dmp *diffmatchpatch.DiffMatchPatch, kind ChangeKind, cell CellDiff) string {
	switch kind {
	case KindAdded:
		if cell.New == nil {
			return ""
		}
		return addedText(data.Render(cell.New))
	case KindRemoved:
		if cell.Old == nil {
			return noChangeCell
		}
		return removedText(data.Render(cell.Old))
	case KindUnchanged:
		if cell.Old == nil {
			return noChangeCell
		}
		return html.EscapeString(data.Render(cell.Old))
	}

	oldText := ""
	if cell.Old != nil {
		oldText = data.Render(cell.Old)
	}
	newText := ""
	if cell.New != nil {
		newText = data.Render(cell.New)
	}
	switch {
	case oldText == "" && newText == "":
		return noChangeCell
	case newText == "":
		return removedText(oldText)
	case oldText == "":
		return addedText(newText)
	case !cell.Changed:
		return html.EscapeString(oldText)
	}

	var b strings.Builder
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldText, newText, false))
	for _, part := range diffs {
		switch part.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(html.EscapeString(part.Text))
		case diffmatchpatch.DiffInsert:
			b.WriteString(addedText(part.Text))
		case diffmatchpatch.DiffDelete:
			b.WriteString(removedText(part.Text))
		}
	}
	return b.String()
}
