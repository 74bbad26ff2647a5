package engine

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rulescript/internal/env"
	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

var testTypes = []ir.RecordType{
	{Name: "Person", Fields: []ir.FieldDef{{Name: "name", Type: ir.TypeString}, {Name: "age", Type: ir.TypeInt}}},
	{Name: "Employee", Extends: "Person", Fields: []ir.FieldDef{
		{Name: "name", Type: ir.TypeString}, {Name: "age", Type: ir.TypeInt}, {Name: "company", Type: ir.TypeString},
	}},
	{Name: "Greeting", Fields: []ir.FieldDef{{Name: "text", Type: ir.TypeString}}},
	{Name: "Reply", Fields: []ir.FieldDef{{Name: "to", Type: "Greeting"}}},
	{Name: "Order", Fields: []ir.FieldDef{{Name: "id", Type: ir.TypeInt}, {Name: "customerId", Type: ir.TypeInt}}},
	{Name: "Customer", Fields: []ir.FieldDef{{Name: "id", Type: ir.TypeInt}, {Name: "name", Type: ir.TypeString}}},
	{Name: "Invoice", Fields: []ir.FieldDef{{Name: "orderId", Type: ir.TypeInt}, {Name: "customer", Type: ir.TypeString}}},
	{Name: "Badge", Fields: []ir.FieldDef{{Name: "owner", Type: "Person"}}},
	{Name: "Note", Fields: []ir.FieldDef{{Name: "text", Type: ir.TypeString}}},
	{Name: "Node", Fields: []ir.FieldDef{{Name: "next", Type: "Node"}}},
	{Name: "Trigger", Fields: nil},
	{Name: "Counter", Fields: []ir.FieldDef{{Name: "n", Type: ir.TypeInt}}},
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestDB creates a database with every test type defined.
func newTestDB(t *testing.T, opts ...Option) *Database {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithRunIDGenerator(seqRunIDs())}, opts...)
	db := New(opts...)
	for _, rt := range testTypes {
		require.NoError(t, db.DefineType(rt))
	}
	return db
}

type seqGen struct{ n int }

func (g *seqGen) Generate() string {
	g.n++
	return fmt.Sprintf("run-%d", g.n)
}

func seqRunIDs() *seqGen { return &seqGen{} }

// mustFact creates a fact and sets its fields.
func mustFact(t *testing.T, db *Database, typeName string, fields ir.IRObject) *fact.Fact {
	t.Helper()
	f, err := db.NewFact(typeName)
	require.NoError(t, err)
	require.NoError(t, f.SetAll(fields))
	return f
}

func intField(f *fact.Fact, name string) int64 {
	v, _ := f.Get(name)
	return int64(v.(ir.IRInt))
}

func strField(f *fact.Fact, name string) string {
	v, _ := f.Get(name)
	return string(v.(ir.IRString))
}

// boundInt reads an int field of the fact bound to name in e.
func boundInt(db *Database, e *env.Env, name, field string) int64 {
	v, _ := e.Lookup(name)
	f, _ := db.Fact(int64(v.(ir.IRRef)))
	return intField(f, field)
}

func ofType(db *Database, typeName string) []*fact.Fact {
	return db.Store().OfType(typeName)
}

// doubleRule is the Person → Greeting rule used across tests.
func doubleRule() Rule {
	return Rule{
		ID:       "Double",
		Patterns: []Pattern{{Type: "Person", Bind: "p"}},
		Action: func(a *Activation) error {
			p, err := a.Fact("p")
			if err != nil {
				return err
			}
			g, err := a.NewFact("Greeting")
			if err != nil {
				return err
			}
			if err := g.Set("text", ir.IRString(fmt.Sprintf("Age is %d", intField(p, "age")*2))); err != nil {
				return err
			}
			return a.Insert(g)
		},
	}
}

// invoiceRule joins Order and Customer on customerId == id.
func invoiceRule(db *Database) Rule {
	return Rule{
		ID: "Bill",
		Patterns: []Pattern{
			{Type: "Order", Bind: "o"},
			{Type: "Customer", Bind: "c", Join: func(l, r *Match) (bool, error) {
				return boundInt(db, l.Env, "o", "customerId") == boundInt(db, r.Env, "c", "id"), nil
			}},
		},
		Action: func(a *Activation) error {
			o, err := a.Fact("o")
			if err != nil {
				return err
			}
			c, err := a.Fact("c")
			if err != nil {
				return err
			}
			inv, err := a.NewFact("Invoice")
			if err != nil {
				return err
			}
			if err := inv.SetAll(ir.IRObject{
				"orderId":  ir.IRInt(intField(o, "id")),
				"customer": ir.IRString(strField(c, "name")),
			}); err != nil {
				return err
			}
			return a.Insert(inv)
		},
	}
}
