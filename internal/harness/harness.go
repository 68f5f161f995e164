package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/engine"
	"github.com/roach88/refinery/internal/tableio"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates every expectation matched.
	Pass bool

	// Status is the observed run status, complete or failed.
	Status string

	// Output is the final batch, nil when the run failed.
	Output data.Batch

	// Log collects every phase's entries in run order.
	Log []engine.Entry

	// Errors contains one message per failed expectation.
	Errors []string

	// RunErr is the pipeline error for failed runs.
	RunErr error
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes the pipeline against the scenario's input and checks every
// expectation. The pipeline is built fresh by the caller per scenario;
// reusing one across runs would leak context variables between tests.
func Run(scenario *Scenario, pipeline *engine.Pipeline) (*Result, error) {
	batch, err := inputBatch(scenario)
	if err != nil {
		return nil, err
	}

	result := &Result{Pass: true}
	out, runErr := pipeline.RunBatch(context.Background(), batch)
	if runErr != nil {
		result.Status = StatusFailed
		result.RunErr = runErr
	} else {
		result.Status = StatusComplete
		result.Output = out
	}
	for _, log := range pipeline.Logs() {
		if log == nil {
			continue
		}
		result.Log = append(result.Log, log.Entries()...)
	}

	checkExpectations(scenario, result)
	return result, nil
}

func inputBatch(scenario *Scenario) (data.Batch, error) {
	if scenario.Source != "" {
		batch, _, err := tableio.ReadFile(scenario.Source)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
		}
		return batch, nil
	}
	batch, err := data.BatchFromMaps(1, scenario.Columns, scenario.Rows)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	return batch, nil
}

func checkExpectations(scenario *Scenario, result *Result) {
	expect := scenario.Expect
	if result.Status != expect.Status {
		msg := fmt.Sprintf("expected status %s, got %s", expect.Status, result.Status)
		if result.RunErr != nil {
			msg += fmt.Sprintf(" (%v)", result.RunErr)
		}
		result.addError("%s", msg)
		return
	}

	if expect.Rows != nil && len(result.Output) != *expect.Rows {
		result.addError("expected %d output rows, got %d", *expect.Rows, len(result.Output))
	}

	checkOutput(expect.Output, result)
	checkLog(expect.Log, result)
}

// checkOutput matches expected rows positionally, comparing only the
// listed fields against rendered cell values.
func checkOutput(expected []map[string]string, result *Result) {
	if len(expected) == 0 {
		return
	}
	if len(expected) != len(result.Output) {
		result.addError("expected %d output rows, got %d", len(expected), len(result.Output))
		return
	}
	for i, want := range expected {
		row := result.Output[i]
		for field, wantVal := range want {
			v, ok := row.Get(field)
			if !ok {
				result.addError("output row %d: missing field %q", row.Num(), field)
				continue
			}
			if got := data.Render(v); got != wantVal {
				result.addError("output row %d: %s = %q, want %q", row.Num(), field, got, wantVal)
			}
		}
	}
}

// checkLog verifies the expected entries appear in order; unlisted
// entries may be interleaved.
func checkLog(expected []LogExpect, result *Result) {
	next := 0
	for _, entry := range result.Log {
		if next >= len(expected) {
			break
		}
		if matchEntry(expected[next], entry) {
			next++
		}
	}
	if next < len(expected) {
		want := expected[next]
		result.addError("log entry %d not found: severity=%s phase=%s step=%s contains=%q",
			next, want.Severity, want.Phase, want.Step, want.Contains)
	}
}

func matchEntry(want LogExpect, entry engine.Entry) bool {
	if want.Severity != "" && string(entry.Severity) != want.Severity {
		return false
	}
	if want.Phase != "" && entry.Phase != want.Phase {
		return false
	}
	if want.Step != "" && entry.Step != want.Step {
		return false
	}
	if want.Row != nil && entry.RowNum != *want.Row {
		return false
	}
	if want.Contains != "" && !strings.Contains(entry.Message, want.Contains) {
		return false
	}
	return true
}
