package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/jonwraymond/zerocache/cache"
	"github.com/jonwraymond/zerocache/dzero"
)

// ResultSet is the response to one statement. Results is never null on
// the wire.
type ResultSet struct {
	Results      []map[string]any `json:"results"`
	RowsAffected int64            `json:"rows_affected,omitempty"`
}

// Dump is the response to POST /dump.
type Dump struct {
	Tables map[string]TableDump `json:"tables"`
}

// TableDump holds one table's DDL and rows, as selected by DumpOptions.
type TableDump struct {
	Schema string           `json:"schema,omitempty"`
	Rows   []map[string]any `json:"rows,omitempty"`
}

// Executor runs wire statements against a gorm handle.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: ErrInvalidRequest for unusable input, ErrStatement for
//   statements SQLite rejects, ErrTooManyRows past the row limit.
type Executor struct {
	db      *gorm.DB
	maxRows int
}

// NewExecutor creates an Executor. maxRows of zero or less means no limit.
func NewExecutor(db *gorm.DB, maxRows int) *Executor {
	return &Executor{db: db, maxRows: maxRows}
}

// Query runs one statement. ModeAll returns its rows; ModeExec returns the
// number of affected rows.
func (e *Executor) Query(ctx context.Context, stmt string, params []any, mode dzero.Mode) (*ResultSet, error) {
	if strings.TrimSpace(stmt) == "" {
		return nil, fmt.Errorf("%w: sql is required", ErrInvalidRequest)
	}
	if mode == "" {
		mode = dzero.ModeAll
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown method %q", ErrInvalidRequest, mode)
	}
	args, err := convertParams(params)
	if err != nil {
		return nil, err
	}

	db := e.db.WithContext(ctx)
	if mode == dzero.ModeExec {
		res := db.Exec(stmt, args...)
		if res.Error != nil {
			return nil, statementError(res.Error)
		}
		return &ResultSet{Results: []map[string]any{}, RowsAffected: res.RowsAffected}, nil
	}
	return e.rows(db, stmt, args)
}

// Batch runs stmts in one transaction. Any failure rolls back every
// statement.
func (e *Executor) Batch(ctx context.Context, stmts []dzero.Statement) ([]ResultSet, error) {
	if len(stmts) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", ErrInvalidRequest)
	}
	args := make([][]any, len(stmts))
	for i, st := range stmts {
		if strings.TrimSpace(st.SQL) == "" {
			return nil, fmt.Errorf("%w: batch[%d]: sql is required", ErrInvalidRequest, i)
		}
		a, err := convertParams(st.Params)
		if err != nil {
			return nil, fmt.Errorf("batch[%d]: %w", i, err)
		}
		args[i] = a
	}

	out := make([]ResultSet, 0, len(stmts))
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, st := range stmts {
			rs, err := e.rows(tx, st.SQL, args[i])
			if err != nil {
				return fmt.Errorf("batch[%d]: %w", i, err)
			}
			out = append(out, *rs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Dump returns the schema and rows of the selected tables. No tables
// selects every user table; neither Schema nor Data selects both.
func (e *Executor) Dump(ctx context.Context, opts dzero.DumpOptions) (*Dump, error) {
	db := e.db.WithContext(ctx)
	tables := opts.Tables
	if len(tables) == 0 {
		all, err := db.Migrator().GetTables()
		if err != nil {
			return nil, statementError(err)
		}
		for _, t := range all {
			if !strings.HasPrefix(t, "sqlite_") {
				tables = append(tables, t)
			}
		}
		slices.Sort(tables)
	}
	schema, data := opts.Schema, opts.Data
	if !schema && !data {
		schema, data = true, true
	}

	dump := &Dump{Tables: make(map[string]TableDump, len(tables))}
	for _, t := range tables {
		if !cache.ValidTableName(t) || !db.Migrator().HasTable(t) {
			return nil, fmt.Errorf("%w: unknown table %q", ErrInvalidRequest, t)
		}
		var td TableDump
		if schema {
			err := db.Raw("SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", t).Scan(&td.Schema).Error
			if err != nil {
				return nil, statementError(err)
			}
		}
		if data {
			rs, err := e.rows(db, "SELECT * FROM "+t, nil)
			if err != nil {
				return nil, err
			}
			td.Rows = rs.Results
		}
		dump.Tables[t] = td
	}
	return dump, nil
}

func (e *Executor) rows(db *gorm.DB, stmt string, args []any) (*ResultSet, error) {
	rows, err := db.Raw(stmt, args...).Rows()
	if err != nil {
		return nil, statementError(err)
	}
	defer func() { _ = rows.Close() }()

	results, err := scanRows(rows, e.maxRows)
	if err != nil {
		return nil, err
	}
	return &ResultSet{Results: results}, nil
}

// scanRows reads every row into a column map. TEXT and BLOB columns come
// back as strings.
func scanRows(rows *sql.Rows, maxRows int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, statementError(err)
	}
	out := []map[string]any{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if maxRows > 0 && len(out) == maxRows {
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManyRows, maxRows)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, statementError(err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, statementError(err)
	}
	return out, nil
}

// convertParams turns decoded JSON parameters into driver values. Numbers
// arrive as json.Number and bind as int64 when integral.
func convertParams(params []any) ([]any, error) {
	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out[i] = n
			} else if f, err := v.Float64(); err == nil {
				out[i] = f
			} else {
				return nil, fmt.Errorf("%w: params[%d]: %q is not a number", ErrInvalidRequest, i, v)
			}
		case nil, string, bool, float64, int64:
			out[i] = v
		default:
			return nil, fmt.Errorf("%w: params[%d]: unsupported %T", ErrInvalidRequest, i, p)
		}
	}
	return out, nil
}

func statementError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStatement, err)
}
