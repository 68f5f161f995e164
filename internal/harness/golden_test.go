package harness

import (
	"testing"

	"github.com/roach88/refinery/internal/engine"
)

func TestGolden_CleanRun(t *testing.T) {
	pipeline := engine.NewPipeline("people", engine.WithPhases(
		engine.NewPhase("Validate", engine.Columns(
			engine.IntColumn("id"),
			engine.StringColumn("name", engine.FixWith("strip")),
		)),
	))
	scenario := &Scenario{
		Name:        "basic-clean",
		Description: "well-formed rows pass through with fixes applied",
		Columns:     []string{"id", "name"},
		Rows: []map[string]any{
			{"id": "1", "name": " bob "},
			{"id": "2", "name": "sue"},
		},
		Expect: Expectation{Status: StatusComplete, Rows: intp(2)},
	}
	RunWithGolden(t, scenario, pipeline)
}

func TestGolden_WarnPolicyKeepsRawValue(t *testing.T) {
	pipeline := engine.NewPipeline("ages", engine.WithPhases(
		engine.NewPhase("Validate", engine.Columns(
			engine.IntColumn("age", engine.OnError(engine.PolicyWarn)),
		)),
	))
	scenario := &Scenario{
		Name:        "warns-on-bad-age",
		Description: "an uncastable value under the warn policy is logged and kept",
		Columns:     []string{"age"},
		Rows:        []map[string]any{{"age": "x"}},
		Expect:      Expectation{Status: StatusComplete, Rows: intp(1)},
	}
	RunWithGolden(t, scenario, pipeline)
}
