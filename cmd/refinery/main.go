package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/roach88/refinery/internal/cli"
	"github.com/roach88/refinery/internal/data"
	"github.com/roach88/refinery/internal/engine"
)

func main() {
	registry := cli.NewRegistry()
	registry.Register("employees", employeesPipeline)

	root := cli.NewRootCommand(registry)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

// employeesPipeline cleans an employee roster export: drops terminated
// employees, validates pay data, and collects the manager list as a side
// output for inspection.
func employeesPipeline(opts ...engine.PipelineOption) *engine.Pipeline {
	validate := engine.NewPhase("Validate",
		engine.Columns(
			engine.IntColumn("Employee ID"),
			engine.StringColumn("Name", engine.FixWith("strip")),
			engine.StringColumn("Status", engine.AllowedValues("active", "terminated"), engine.FixWith("lower")),
			engine.FloatColumn("Pay rate", engine.MinValue(0.01), engine.OnError(engine.PolicyDropRow)),
		),
		engine.Steps(
			engine.CheckUnique("Employee ID"),
			engine.FilterRows("active_only", func(row *data.Row) bool {
				status, ok := row.Get("Status")
				return ok && data.Render(status) == "active"
			}),
		),
	)

	transform := engine.NewPhase("Transform",
		engine.Columns(
			engine.StringColumn("Name", engine.Rename("Full name")),
		),
		engine.Steps(
			engine.RowStep("collect_managers", collectManagers,
				engine.ExtraOutputs("manager_list")),
			engine.SortBy("Employee ID"),
		),
		engine.PhaseExtraOutputs("manager_list"),
	)

	pipelineOpts := append([]engine.PipelineOption{
		engine.WithPhases(validate, transform),
		engine.WarnUnknownFirstPhaseOnly(),
	}, opts...)
	return engine.NewPipeline("employees", pipelineOpts...)
}

func collectManagers(ctx *engine.Context, row *data.Row) (*data.Row, error) {
	title, ok := row.Get("Title")
	if !ok {
		return row, nil
	}
	if !strings.Contains(strings.ToLower(data.Render(title)), "manager") {
		return row, nil
	}
	managers, err := ctx.Extras().OutputMapping("manager_list")
	if err != nil {
		return nil, err
	}
	name, ok := row.Get("Full name")
	if !ok {
		return row, nil
	}
	managers.Set(fmt.Sprintf("%d", row.Num()), name)
	return row, nil
}
