package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rulescript/internal/ir"
)

func TestQueryNodesAreSealed(t *testing.T) {
	queries := []Query{
		Select{Type: "Invoice"},
		&Select{Type: "Invoice"},
		Join{Left: Select{Type: "Order"}, Right: Select{Type: "Invoice"}},
	}
	for _, q := range queries {
		switch q.(type) {
		case Select, *Select, Join, *Join:
		default:
			t.Fatalf("unexpected query type %T", q)
		}
	}

	preds := []Predicate{
		Equals{Field: "tier", Value: ir.IRString("gold")},
		&BoundEquals{Field: "customer", BoundVar: "name"},
		And{},
	}
	for _, p := range preds {
		switch p.(type) {
		case Equals, *Equals, BoundEquals, *BoundEquals, And, *And:
		default:
			t.Fatalf("unexpected predicate type %T", p)
		}
	}
}

func TestWhere(t *testing.T) {
	assert.Nil(t, Where(nil))
	assert.Nil(t, Where(ir.IRObject{}))

	assert.Equal(t,
		Equals{Field: "tier", Value: ir.IRString("gold")},
		Where(ir.IRObject{"tier": ir.IRString("gold")}))

	assert.Equal(t,
		And{Predicates: []Predicate{
			Equals{Field: "amount", Value: ir.IRInt(110)},
			Equals{Field: "customer", Value: ir.IRString("Acme")},
			Equals{Field: "discounted", Value: ir.IRBool(true)},
		}},
		Where(ir.IRObject{
			"discounted": ir.IRBool(true),
			"customer":   ir.IRString("Acme"),
			"amount":     ir.IRInt(110),
		}))
}
