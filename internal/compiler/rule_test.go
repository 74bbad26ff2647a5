package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulescript/internal/ir"
)

func TestCompileRuleBasic(t *testing.T) {
	v := compileCUE(t, `
		rule: Bill: {
			when: [
				{type: "Order", bind: "o", match: {status: "open", priority: 2}},
				{type: "Customer", bind: "c", join: "o.customerId == c.id", test: "c.active"},
			]
			then: """
				insert("Invoice", {orderId: o.id, customer: c.name});
				"""
		}
	`, "rule.Bill")

	rule, err := CompileRule(v)
	require.NoError(t, err)

	assert.Equal(t, "Bill", rule.ID)
	require.Len(t, rule.When, 2)
	assert.Equal(t, ir.PatternSpec{
		Type:  "Order",
		Bind:  "o",
		Match: ir.IRObject{"status": ir.IRString("open"), "priority": ir.IRInt(2)},
	}, rule.When[0])
	assert.Equal(t, "o.customerId == c.id", rule.When[1].Join)
	assert.Equal(t, "c.active", rule.When[1].Test)
	assert.Contains(t, rule.Then, `insert("Invoice"`)
}

func TestCompileRuleQuotedID(t *testing.T) {
	v := compileCUE(t, `rule: "bill-orders": { when: [{type: "Order"}], then: "" }`, `rule."bill-orders"`)
	rule, err := CompileRule(v)
	require.NoError(t, err)
	assert.Equal(t, "bill-orders", rule.ID)
}

func TestCompileRuleErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing when", `rule: R: { then: "" }`, "when"},
		{"empty when", `rule: R: { when: [], then: "" }`, "when"},
		{"missing then", `rule: R: { when: [{type: "A"}] }`, "then"},
		{"then not a string", `rule: R: { when: [{type: "A"}], then: 1 }`, "then"},
		{"pattern without type", `rule: R: { when: [{bind: "a"}], then: "" }`, "when[0].type"},
		{"bad bind", `rule: R: { when: [{type: "A", bind: "a-b"}], then: "" }`, "when[0].bind"},
		{"float match", `rule: R: { when: [{type: "A", match: {x: 1.5}}], then: "" }`, "value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileRule(compileCUE(t, tt.src, "rule.R"))
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestValueFromCUE(t *testing.T) {
	v := compileCUE(t, `x: {a: null, b: [1, "two", true], c: {d: 4}}`, "x")
	got, err := valueFromCUE(v)
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{
		"a": ir.IRNull{},
		"b": ir.IRArray{ir.IRInt(1), ir.IRString("two"), ir.IRBool(true)},
		"c": ir.IRObject{"d": ir.IRInt(4)},
	}, got)

	_, err = valueFromCUE(compileCUE(t, `x: int`, "x"))
	assert.ErrorContains(t, err, "concrete")
}
