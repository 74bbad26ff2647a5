package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/greeting.yaml")
	require.NoError(t, err)

	assert.Equal(t, "greeting", s.Name)
	assert.Equal(t, []string{filepath.Join("testdata", "rules", "greeting")}, s.Rules)
	require.Len(t, s.Facts, 1)
	assert.Equal(t, "bob", s.Facts[0].Label)
	require.Len(t, s.Assertions, 5)
	assert.Equal(t, AssertFactCount, s.Assertions[0].Type)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 2, *s.Assertions[0].Count)
	assert.Equal(t, []string{"Publish", "Greet", ""}, s.Assertions[3].Chain)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	assert.Error(t, err)
}

func TestParseScenario_Invalid(t *testing.T) {
	rules, err := filepath.Abs("testdata/rules/greeting")
	require.NoError(t, err)

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\nassertion: []\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nrules: [" + rules + "]\nassertions: [{type: fired, rule: Greet}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing rules",
			yaml:    "name: x\ndescription: d\nassertions: [{type: fired, rule: Greet}]\n",
			wantErr: "rules list is required",
		},
		{
			name:    "rules dir not found",
			yaml:    "name: x\ndescription: d\nrules: [/no/such/dir]\nassertions: [{type: fired, rule: Greet}]\n",
			wantErr: "rules directory not found",
		},
		{
			name:    "no assertions",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\nassertions: [{type: trace_order}]\n",
			wantErr: `unknown assertion type "trace_order"`,
		},
		{
			name:    "fact_count without count",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\nassertions: [{type: fact_count, fact_type: Person}]\n",
			wantErr: "count is required",
		},
		{
			name:    "negative count",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\nassertions: [{type: fired, rule: Greet, count: -1}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "provenance without chain",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\nassertions: [{type: provenance, fact_type: File}]\n",
			wantErr: "chain are required",
		},
		{
			name:    "seed without type",
			yaml:    "name: x\ndescription: d\nrules: [" + rules + "]\nfacts: [{fields: {a: 1}}]\nassertions: [{type: fired, rule: Greet}]\n",
			wantErr: "facts[0]: type is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_ExpectErrorWithoutAssertions(t *testing.T) {
	rules, err := filepath.Abs("testdata/rules/runaway")
	require.NoError(t, err)

	s, err := ParseScenario([]byte("name: x\ndescription: d\nrules: ["+rules+"]\nexpect_error: depth\n"), "")
	require.NoError(t, err)
	assert.Equal(t, "depth", s.ExpectError)
}
