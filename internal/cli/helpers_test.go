package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"

	"github.com/roach88/rulescript/internal/testutil"
)

// runawayRules never stops inserting Ticks.
const runawayRules = `package rules

record: Tick: fields: n: int

rule: Again: {
	when: [{type: "Tick", bind: "t"}]
	then: """
		insert("Tick", {n: t.n + 1});
		"""
}

facts: [{type: "Tick", fields: n: 0}]
`

// ghostRules matches a record nobody declared.
const ghostRules = `package rules

record: Person: fields: name: string

rule: Haunt: {
	when: [{type: "Ghost", bind: "g"}]
	then: "log(g);"
}
`

func greetingDir(t *testing.T) string {
	t.Helper()
	return testutil.WriteFiles(t, map[string]string{"rules.cue": testutil.GreetingRules})
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
