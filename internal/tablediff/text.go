package tablediff

import (
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/roach88/refinery/internal/data"
)

// Text writes a terminal-friendly report: the count summary, structural
// column changes, then one line per added, removed, or changed row.
// Intra-cell edits use {+inserted+} and [-deleted-] markers. Unchanged
// rows are counted but not listed.
func Text(w io.Writer, d *Diff) error {
	if _, err := fmt.Fprintf(w, "added: %d  removed: %d  changed: %d  unchanged: %d\n",
		d.Summary.Added, d.Summary.Removed, d.Summary.Changed, d.Summary.Unchanged); err != nil {
		return err
	}

	for _, r := range d.Columns.Renamed {
		fmt.Fprintf(w, "column renamed: %s -> %s\n", r.Old, r.New)
	}
	for _, name := range d.Columns.Added {
		fmt.Fprintf(w, "column added: %s\n", name)
	}
	for _, name := range d.Columns.Removed {
		fmt.Fprintf(w, "column removed: %s\n", name)
	}

	dmp := diffmatchpatch.New()
	for _, row := range d.Rows {
		if row.Kind == KindUnchanged {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s: %s\n", changeLabel(row.Kind), rowRef(row), textCells(dmp, row)); err != nil {
			return err
		}
	}
	return nil
}

func rowRef(row RowDiff) string {
	if row.Key != "" {
		return row.Key
	}
	return fmt.Sprintf("row %d", row.Num)
}

func textCells(dmp *diffmatchpatch.DiffMatchPatch, row RowDiff) string {
	parts := make([]string, 0, len(row.Cells))
	for _, cell := range row.Cells {
		switch row.Kind {
		case KindAdded:
			if cell.New != nil {
				parts = append(parts, cell.Column+"="+data.Render(cell.New))
			}
		case KindRemoved:
			if cell.Old != nil {
				parts = append(parts, cell.Column+"="+data.Render(cell.Old))
			}
		case KindChanged:
			if !cell.Changed {
				continue
			}
			parts = append(parts, cell.Column+"="+textEdit(dmp, cell))
		}
	}
	return strings.Join(parts, ", ")
}

func textEdit(dmp *diffmatchpatch.DiffMatchPatch, cell CellDiff) string {
	oldText := ""
	if cell.Old != nil {
		oldText = data.Render(cell.Old)
	}
	newText := ""
	if cell.New != nil {
		newText = data.Render(cell.New)
	}
	switch {
	case oldText == "":
		return "{+" + newText + "+}"
	case newText == "":
		return "[-" + oldText + "-]"
	}

	var b strings.Builder
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(oldText, newText, false))
	for _, part := range diffs {
		switch part.Type {
		case diffmatchpatch.DiffEqual:
			b.WriteString(part.Text)
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + part.Text + "+}")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + part.Text + "-]")
		}
	}
	return b.String()
}
