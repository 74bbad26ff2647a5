// Package harness runs rule packages against YAML scenarios.
//
// A scenario names a rule package, optional extra seed facts and a list
// of assertions over the finished run. Scenarios run the real engine:
// rules are compiled from CUE, seeds are materialized and fired, and the
// run is snapshotted into an in-memory store before assertions are
// evaluated.
//
// # Scenario Format
//
//	name: greeting
//	description: "Every person is greeted once"
//	rules:
//	  - ../rules
//	facts:
//	  - label: bob
//	    type: Person
//	    fields: { name: Bob, age: 41 }
//	assertions:
//	  - type: fact_count
//	    fact_type: Greeting
//	    count: 2
//	  - type: created_by
//	    fact_type: Greeting
//	    fields: { text: "Hello, Bob" }
//	    rule: Greet
//	    creator_type: Person
//
// Rule paths are resolved relative to the scenario file.
//
// # Assertion Types
//
//   - fact_count: exactly count facts of fact_type match fields
//   - fact_exists: at least one fact of fact_type matches fields
//   - created_by: a matching fact was inserted by rule (and its creator has creator_type)
//   - fired: rule fired count times, or at least once without count
//   - provenance: the origin rules along a matching fact's creator chain equal chain
//   - output: the run wrote path with content
//
// Field matching is a subset match: only the listed fields are compared.
//
// # Deterministic Testing
//
// Runs are named by testutil.FixedRunIDGenerator and fact ids start at 1
// in every scenario, so snapshots are byte-identical across runs and can
// be compared against golden files with RunWithGolden.
package harness
