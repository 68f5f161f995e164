// Package tableio reads and writes record-oriented batches as CSV or JSON
// files. It is the file-format boundary of the engine: everything inside
// the engine works on in-memory batches regardless of the format selected
// here.
package tableio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/roach88/refinery/internal/data"
)

// NullMarker is written for null cells so other tools do not read an
// empty string where a value was explicitly absent. Typed columns cast it
// back to null on load.
const NullMarker = "NULL"

// ReadCSV parses CSV records into a batch of string-valued rows. Behavior
// matches what hand-edited spreadsheet exports need:
//
//   - a UTF-8 byte-order mark is stripped
//   - lines starting with '#' are comments
//   - blank lines and comma-only lines are skipped
//   - duplicate header names are rejected; positional field alignment
//     cannot be trusted after converting rows to mappings
//   - ragged rows are rejected rather than silently realigned
func ReadCSV(r io.Reader) (data.Batch, []string, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	cr := csv.NewReader(decoded)
	cr.Comment = '#'
	cr.TrimLeadingSpace = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("csv input is empty")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for _, name := range header {
		if seen[name] {
			return nil, nil, fmt.Errorf("csv has duplicate column name %q and cannot reliably be parsed", name)
		}
		seen[name] = true
	}

	var batch data.Batch
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if allEmpty(record) {
			continue
		}
		row := data.NewRow(0)
		for i, name := range header {
			row.Set(name, data.String(record[i]))
		}
		batch = append(batch, row)
	}
	return batch, header, nil
}

// ReadCSVFile reads a CSV file from disk.
func ReadCSVFile(path string) (data.Batch, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

func allEmpty(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// WriteCSV renders a batch in column order. Cells absent from a row and
// null cells are written as the null marker.
func WriteCSV(w io.Writer, batch data.Batch, columns []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(columns))
	for _, row := range batch {
		for i, col := range columns {
			v, ok := row.Get(col)
			if !ok || data.IsNull(v) {
				record[i] = NullMarker
				continue
			}
			record[i] = data.Render(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", row.Num(), err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes a CSV file to disk.
func WriteCSVFile(path string, batch data.Batch, columns []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, batch, columns); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
