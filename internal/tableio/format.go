package tableio

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/refinery/internal/data"
)

// Format selects the checkpoint and output encoding. It does not affect the
// in-memory row representation.
type Format string

const (
	// FormatCSV writes columnar CSV checkpoints.
	FormatCSV Format = "csv"

	// FormatJSON writes record-array JSON checkpoints.
	FormatJSON Format = "json"
)

// ParseFormat validates a format name from configuration.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatCSV, FormatJSON:
		return Format(name), nil
	case "":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown save format %q (csv or json)", name)
	}
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// ReadFile loads a batch, selecting the format from the file extension.
// Anything that is not .json reads as CSV.
func ReadFile(path string) (data.Batch, []string, error) {
	if filepath.Ext(path) == ".json" {
		return ReadJSONFile(path)
	}
	return ReadCSVFile(path)
}

// ReadFile loads a batch from disk in this format.
func (f Format) ReadFile(path string) (data.Batch, []string, error) {
	switch f {
	case FormatJSON:
		return ReadJSONFile(path)
	default:
		return ReadCSVFile(path)
	}
}

// WriteFile persists a batch to disk in this format.
func (f Format) WriteFile(path string, batch data.Batch, columns []string) error {
	switch f {
	case FormatJSON:
		return WriteJSONFile(path, batch)
	default:
		return WriteCSVFile(path, batch, columns)
	}
}
