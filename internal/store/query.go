package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rulescript/internal/ir"
	"github.com/roach88/rulescript/internal/queryir"
	"github.com/roach88/rulescript/internal/querysql"
)

// Query runs q against the working memory a run ended with. Each row maps
// the query's variables to the values they were bound to; a variable
// bound to a missing field is left out of its row.
//
// Rows are ordered by the fact ids of the query's sources, left to right.
// Returns an empty slice (not nil) if nothing matched, and ErrNotFound
// if the run does not exist.
func (s *Store) Query(ctx context.Context, runID string, q queryir.Query) ([]ir.IRObject, error) {
	if _, err := s.ReadRun(ctx, runID); err != nil {
		return nil, err
	}

	compiled, err := querysql.NewSQLCompiler(runID).Compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, compiled.SQL, compiled.Params...)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	results := []ir.IRObject{}
	for rows.Next() {
		row, err := scanQueryRow(rows, compiled.Columns)
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query rows: %w", err)
	}
	return results, nil
}

func scanQueryRow(rows *sql.Rows, columns []querysql.Column) (ir.IRObject, error) {
	if len(columns) == 0 {
		var one int
		if err := rows.Scan(&one); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		return ir.IRObject{}, nil
	}

	raw := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan query row: %w", err)
	}

	row := make(ir.IRObject, len(columns))
	for i, col := range columns {
		if !raw[i].Valid {
			continue
		}
		v, err := ir.UnmarshalIRValue([]byte(raw[i].String))
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Var, err)
		}
		row[col.Var] = v
	}
	return row, nil
}
