// Package harness provides conformance testing for declared pipelines.
//
// The harness loads YAML scenarios, runs a Go-declared pipeline against
// the scenario's input batch, and validates the run status, the output
// rows, and the error log as executable expectations.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	columns: [id, name, pay_rate]
//	rows:
//	  - { id: 1, name: " bob ", pay_rate: "1.5" }
//	  - { id: 2, name: "sue", pay_rate: "0" }
//	expect:
//	  status: complete
//	  rows: 1
//	  output:
//	    - { name: "bob", pay_rate: "1.5" }
//	  log:
//	    - severity: DROPPED_ROW
//	      phase: Validate
//	      row: 2
//	      contains: "Pay rate"
//
// Input may instead come from a CSV or JSON file via source:. Log
// expectations match in order; unlisted entries may be interleaved.
//
// # Deterministic Testing
//
// Scenarios run entirely in memory through RunBatch, so no working
// directory or ledger is involved, and snapshots are stable across runs
// for golden comparison with goldie. Pipelines under test that need
// stable run tokens use engine.FixedGenerator.
package harness
