package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one pipeline conformance test: the input batch, and
// expectations about the run outcome, the output rows, and the error log.
// The pipeline under test is declared in Go and passed to Run; the
// scenario file carries only data and expectations.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Source is an optional CSV or JSON input file, resolved relative
	// to the test's working directory. Mutually exclusive with Rows.
	Source string `yaml:"source,omitempty"`

	// Columns fixes the input field order for inline rows. YAML maps
	// do not preserve key order, so inline scenarios declare it.
	Columns []string `yaml:"columns,omitempty"`

	// Rows is the inline input batch. Mutually exclusive with Source.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Expect holds the assertions checked after the run.
	Expect Expectation `yaml:"expect"`
}

// Expectation describes the required outcome of a scenario run.
type Expectation struct {
	// Status is "complete" or "failed".
	Status string `yaml:"status"`

	// Rows, when set, is the required output row count.
	Rows *int `yaml:"rows,omitempty"`

	// Output, when set, is matched against the output batch in order.
	// Each map is a subset match: only the listed fields are compared,
	// against the rendered cell values.
	Output []map[string]string `yaml:"output,omitempty"`

	// Log lists entries that must appear in the run's error log, in
	// the given order (other entries may be interleaved).
	Log []LogExpect `yaml:"log,omitempty"`
}

// LogExpect matches one error-log entry. Empty fields match anything.
type LogExpect struct {
	Severity string `yaml:"severity,omitempty"`
	Phase    string `yaml:"phase,omitempty"`
	Step     string `yaml:"step,omitempty"`
	Row      *int   `yaml:"row,omitempty"`
	Contains string `yaml:"contains,omitempty"`
}

// Scenario statuses.
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently weakening a test.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and coherent.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Source == "" && len(s.Rows) == 0 {
		return fmt.Errorf("either source or rows is required")
	}
	if s.Source != "" && len(s.Rows) > 0 {
		return fmt.Errorf("source and rows are mutually exclusive")
	}
	if len(s.Rows) > 0 && len(s.Columns) == 0 {
		return fmt.Errorf("columns is required with inline rows")
	}
	switch s.Expect.Status {
	case StatusComplete, StatusFailed:
	case "":
		return fmt.Errorf("expect.status is required")
	default:
		return fmt.Errorf("unknown expect.status %q", s.Expect.Status)
	}
	for i, col := range s.Columns {
		if col == "" {
			return fmt.Errorf("columns[%d] is empty", i)
		}
	}
	return nil
}
