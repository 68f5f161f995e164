package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/engine"
)

// Snapshot captures one scenario execution for golden comparison: the
// run status, the output rows in field order, and the full error log.
type Snapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Status       string         `json:"status"`
	Output       []snapshotRow  `json:"output,omitempty"`
	Log          []engine.Entry `json:"log,omitempty"`
}

type snapshotRow struct {
	Num    int      `json:"num"`
	Fields []string `json:"fields"`
	Values []string `json:"values"`
}

// RunWithGolden executes a scenario and compares the snapshot against
// testdata/golden/{scenario.Name}.golden. Regenerate with:
//
//	go test ./... -update
//
// Expectation failures inside the scenario fail the test before the
// golden comparison runs.
func RunWithGolden(t *testing.T, scenario *Scenario, pipeline *engine.Pipeline) {
	t.Helper()

	result, err := Run(scenario, pipeline)
	if err != nil {
		t.Fatalf("scenario %s: %v", scenario.Name, err)
	}
	if !result.Pass {
		for _, msg := range result.Errors {
			t.Errorf("scenario %s: %s", scenario.Name, msg)
		}
		return
	}

	snapshot := Snapshot{
		ScenarioName: scenario.Name,
		Status:       result.Status,
		Log:          result.Log,
	}
	for _, row := range result.Output {
		sr := snapshotRow{Num: row.Num(), Fields: row.Keys()}
		for _, key := range sr.Fields {
			v, _ := row.Get(key)
			sr.Values = append(sr.Values, data.Render(v))
		}
		snapshot.Output = append(snapshot.Output, sr)
	}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		t.Fatalf("scenario %s: marshal snapshot: %v", scenario.Name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, raw)
}
