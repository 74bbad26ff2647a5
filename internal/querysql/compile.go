// Package querysql compiles queryir queries to parameterized SQLite SQL
// over the store's facts table.
package querysql

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/queryir"
)

// Column is one output column of a compiled query.
type Column struct {
	Var string // variable name, also the SQL column alias
}

// Compiled is a query ready to run. Every column yields JSON text (or
// NULL for a missing field).
type Compiled struct {
	SQL     string
	Params  []any
	Columns []Column
}

// SQLCompiler compiles queries for one run.
//
// All values and JSON paths are parameterized, never interpolated.
// Every query is ordered by the fact ids of its sources, left to right.
type SQLCompiler struct {
	RunID string

	aliases []*source
	vars    map[string]expr
}

// source is one Select bound to a table alias.
type source struct {
	alias  string
	conds  []string
	params []any
}

// expr is a SQL expression with its parameters.
type expr struct {
	sql    string
	params []any
}

// NewSQLCompiler creates a compiler for queries over runID.
func NewSQLCompiler(runID string) *SQLCompiler {
	return &SQLCompiler{RunID: runID}
}

// Compile validates q and converts it to SQL.
func (c *SQLCompiler) Compile(q queryir.Query) (*Compiled, error) {
	if result := queryir.Validate(q); !result.Valid {
		return nil, fmt.Errorf("invalid query: %s", strings.Join(result.Errors, "; "))
	}

	c.aliases = nil
	c.vars = make(map[string]expr)
	var columns []Column
	var colSQL []string
	var colParams []any

	err := c.walk(q, func(src *source, sel queryir.Select) {
		for _, field := range sortedKeys(sel.Bindings) {
			name := sel.Bindings[field]
			value := jsonExpr(src.alias, field)
			colSQL = append(colSQL, fmt.Sprintf(`%s AS "%s"`, value.sql, name))
			colParams = append(colParams, value.params...)
			columns = append(columns, Column{Var: name})
			c.vars[name] = scalarExpr(src.alias, field)
		}
	})
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	params := append([]any{}, colParams...)

	sb.WriteString("SELECT ")
	if len(colSQL) == 0 {
		// Rows still count even when nothing is bound.
		sb.WriteString("1")
	} else {
		sb.WriteString(strings.Join(colSQL, ", "))
	}

	first := c.aliases[0]
	fmt.Fprintf(&sb, " FROM facts %s", first.alias)
	for _, src := range c.aliases[1:] {
		fmt.Fprintf(&sb, " JOIN facts %s ON %s", src.alias, strings.Join(src.conds, " AND "))
		params = append(params, src.params...)
	}
	fmt.Fprintf(&sb, " WHERE %s", strings.Join(first.conds, " AND "))
	params = append(params, first.params...)

	order := make([]string, len(c.aliases))
	for i, src := range c.aliases {
		order[i] = src.alias + ".id ASC"
	}
	fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(order, ", "))

	return &Compiled{SQL: sb.String(), Params: params, Columns: columns}, nil
}

// walk assigns aliases left to right. bind runs for each Select after
// its conditions are compiled, so its variables are visible only to
// sources further right.
func (c *SQLCompiler) walk(q queryir.Query, bind func(*source, queryir.Select)) error {
	switch query := q.(type) {
	case queryir.Select:
		return c.addSource(query, nil, bind)
	case *queryir.Select:
		return c.addSource(*query, nil, bind)
	case queryir.Join:
		return c.walkJoin(query, bind)
	case *queryir.Join:
		return c.walkJoin(*query, bind)
	default:
		return fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) walkJoin(j queryir.Join, bind func(*source, queryir.Select)) error {
	if err := c.walk(j.Left, bind); err != nil {
		return err
	}
	switch right := j.Right.(type) {
	case queryir.Select:
		return c.addSource(right, j.On, bind)
	case *queryir.Select:
		return c.addSource(*right, j.On, bind)
	default:
		return fmt.Errorf("join right side must be a select, got %T", j.Right)
	}
}

func (c *SQLCompiler) addSource(sel queryir.Select, on queryir.Predicate, bind func(*source, queryir.Select)) error {
	src := &source{alias: fmt.Sprintf("f%d", len(c.aliases))}
	src.conds = []string{
		src.alias + ".run_id = ?",
		src.alias + ".type = ?",
		src.alias + ".in_memory = 1",
	}
	src.params = []any{c.RunID, sel.Type}

	for _, p := range []queryir.Predicate{sel.Filter, on} {
		if p == nil {
			continue
		}
		cond, err := c.compilePredicate(src.alias, p)
		if err != nil {
			return err
		}
		src.conds = append(src.conds, cond.sql)
		src.params = append(src.params, cond.params...)
	}

	c.aliases = append(c.aliases, src)
	bind(src, sel)
	return nil
}

// compilePredicate compiles a predicate against the fact at alias.
func (c *SQLCompiler) compilePredicate(alias string, p queryir.Predicate) (expr, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(alias, pred)
	case *queryir.Equals:
		return c.compileEquals(alias, *pred)
	case queryir.BoundEquals:
		return c.compileBoundEquals(alias, pred)
	case *queryir.BoundEquals:
		return c.compileBoundEquals(alias, *pred)
	case queryir.And:
		return c.compileAnd(alias, pred)
	case *queryir.And:
		return c.compileAnd(alias, *pred)
	default:
		return expr{}, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles "field = ?". References compare by fact id;
// arrays, objects and null compare as canonical JSON.
func (c *SQLCompiler) compileEquals(alias string, eq queryir.Equals) (expr, error) {
	field := eq.Field
	value := eq.Value
	if ref, ok := value.(ir.IRRef); ok && field != queryir.IDField {
		field += "." + ir.RefKey
		value = ir.IRInt(ref)
	}

	switch v := value.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool, ir.IRRef:
		param, err := irValueToParam(v)
		if err != nil {
			return expr{}, err
		}
		lhs := scalarExpr(alias, field)
		return expr{sql: lhs.sql + " = ?", params: append(lhs.params, param)}, nil
	default:
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			return expr{}, fmt.Errorf("field %q: %w", eq.Field, err)
		}
		lhs := jsonExpr(alias, field)
		return expr{sql: lhs.sql + " = ?", params: append(lhs.params, string(data))}, nil
	}
}

// compileBoundEquals compiles "field = <variable expression>".
func (c *SQLCompiler) compileBoundEquals(alias string, beq queryir.BoundEquals) (expr, error) {
	rhs, ok := c.vars[beq.BoundVar]
	if !ok {
		return expr{}, fmt.Errorf("unbound variable %q", beq.BoundVar)
	}
	lhs := scalarExpr(alias, beq.Field)
	params := append(append([]any{}, lhs.params...), rhs.params...)
	return expr{sql: lhs.sql + " = " + rhs.sql, params: params}, nil
}

func (c *SQLCompiler) compileAnd(alias string, and queryir.And) (expr, error) {
	if len(and.Predicates) == 0 {
		return expr{sql: "1 = 1"}, nil
	}
	var parts []string
	var params []any
	for _, p := range and.Predicates {
		e, err := c.compilePredicate(alias, p)
		if err != nil {
			return expr{}, err
		}
		parts = append(parts, e.sql)
		params = append(params, e.params...)
	}
	return expr{sql: "(" + strings.Join(parts, " AND ") + ")", params: params}, nil
}

// scalarExpr yields a field as an SQL value: text, integer, or 1/0 for
// booleans. Objects and arrays come out as JSON text.
func scalarExpr(alias, field string) expr {
	if field == queryir.IDField {
		return expr{sql: alias + ".id"}
	}
	return expr{sql: alias + ".fields ->> ?", params: []any{JSONPath(field)}}
}

// jsonExpr yields a field as JSON text.
func jsonExpr(alias, field string) expr {
	if field == queryir.IDField {
		return expr{sql: "json_quote(" + alias + ".id)"}
	}
	return expr{sql: alias + ".fields -> ?", params: []any{JSONPath(field)}}
}

// JSONPath converts a dotted field path to an SQLite JSON path with
// every label quoted: "order.$ref" becomes `$."order"."$ref"`.
func JSONPath(field string) string {
	var sb strings.Builder
	sb.WriteString("$")
	for _, seg := range strings.Split(field, ".") {
		sb.WriteString(`."`)
		sb.WriteString(seg)
		sb.WriteString(`"`)
	}
	return sb.String()
}

// irValueToParam converts a scalar ir.IRValue to an SQL parameter.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		// JSON booleans extract as integers.
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRRef:
		return int64(val), nil
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
