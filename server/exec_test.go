package server

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jonwraymond/zerocache/dzero"
)

func TestExecutor_Query(t *testing.T) {
	db := newTestDB(t)
	seedRows(t, db,
		Row{Key: "a", Data: "da", Tags: "'x'", TTL: 100},
		Row{Key: "b", Data: "db", Tags: "'x','y'", TTL: 200},
	)
	e := NewExecutor(db, 0)
	ctx := context.Background()

	rs, err := e.Query(ctx, "SELECT * FROM cache WHERE key = ?", []any{"b"}, dzero.ModeAll)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rs.Results) != 1 {
		t.Fatalf("Results = %v", rs.Results)
	}
	row := rs.Results[0]
	if row["key"] != "b" || row["data"] != "db" || row["tags"] != "'x','y'" || row["ttl"] != int64(200) {
		t.Errorf("row = %#v", row)
	}

	rs, err = e.Query(ctx, "DELETE FROM cache WHERE instr(tags, ?) > 0", []any{"x"}, dzero.ModeExec)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if rs.RowsAffected != 2 || rs.Results == nil {
		t.Errorf("exec result = %+v", rs)
	}

	rs, _ = e.Query(ctx, "SELECT * FROM cache", nil, "")
	if rs.Results == nil || len(rs.Results) != 0 {
		t.Errorf("empty select = %#v, want non-nil empty", rs.Results)
	}
}

func TestExecutor_QueryErrors(t *testing.T) {
	e := NewExecutor(newTestDB(t), 0)
	tests := []struct {
		name   string
		sql    string
		params []any
		mode   dzero.Mode
		want   error
	}{
		{"empty sql", " ", nil, dzero.ModeAll, ErrInvalidRequest},
		{"bad mode", "SELECT 1", nil, "first", ErrInvalidRequest},
		{"nested param", "SELECT ?", []any{[]any{1}}, dzero.ModeAll, ErrInvalidRequest},
		{"bad number", "SELECT ?", []any{json.Number("1x")}, dzero.ModeAll, ErrInvalidRequest},
		{"syntax", "SELEC 1", nil, dzero.ModeAll, ErrStatement},
		{"missing table", "DELETE FROM nope", nil, dzero.ModeExec, ErrStatement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Query(context.Background(), tt.sql, tt.params, tt.mode); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExecutor_MaxRows(t *testing.T) {
	db := newTestDB(t)
	seedRows(t, db, Row{Key: "a", Data: "1"}, Row{Key: "b", Data: "2"}, Row{Key: "c", Data: "3"})

	if _, err := NewExecutor(db, 2).Query(context.Background(), "SELECT * FROM cache", nil, dzero.ModeAll); !errors.Is(err, ErrTooManyRows) {
		t.Errorf("error = %v, want ErrTooManyRows", err)
	}
	rs, err := NewExecutor(db, 3).Query(context.Background(), "SELECT * FROM cache", nil, dzero.ModeAll)
	if err != nil || len(rs.Results) != 3 {
		t.Errorf("limit 3: %v, %v", rs, err)
	}
}

func TestExecutor_BatchIsAtomic(t *testing.T) {
	db := newTestDB(t)
	seedRows(t, db, Row{Key: "k", Data: "old", TTL: 1})
	e := NewExecutor(db, 0)
	ctx := context.Background()

	_, err := e.Batch(ctx, []dzero.Statement{
		{SQL: "DELETE FROM cache WHERE key = ?", Params: []any{"k"}},
		{SQL: "INSERT INTO missing (key) VALUES (?)", Params: []any{"k"}},
	})
	if !errors.Is(err, ErrStatement) {
		t.Fatalf("Batch error = %v, want ErrStatement", err)
	}
	rs, _ := e.Query(ctx, "SELECT data FROM cache WHERE key = ?", []any{"k"}, dzero.ModeAll)
	if len(rs.Results) != 1 || rs.Results[0]["data"] != "old" {
		t.Errorf("delete was not rolled back: %v", rs.Results)
	}

	out, err := e.Batch(ctx, []dzero.Statement{
		{SQL: "DELETE FROM cache WHERE key = ?", Params: []any{"k"}},
		{SQL: "INSERT INTO cache (key, data, tags, ttl) VALUES (?, ?, ?, ?)",
			Params: []any{"k", "new", "'t'", json.Number("1700000000000")}},
		{SQL: "SELECT ttl FROM cache WHERE key = ?", Params: []any{"k"}},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(out) != 3 || len(out[2].Results) != 1 || out[2].Results[0]["ttl"] != int64(1700000000000) {
		t.Errorf("Batch results = %+v", out)
	}
}

func TestExecutor_BatchValidation(t *testing.T) {
	e := NewExecutor(newTestDB(t), 0)
	for name, stmts := range map[string][]dzero.Statement{
		"empty":      {},
		"blank sql":  {{SQL: "SELECT 1"}, {SQL: ""}},
		"bad params": {{SQL: "SELECT ?", Params: []any{map[string]any{}}}},
	} {
		if _, err := e.Batch(context.Background(), stmts); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: error = %v", name, err)
		}
	}
}

func TestExecutor_Dump(t *testing.T) {
	db := newTestDB(t)
	seedRows(t, db, Row{Key: "a", Data: "x", TTL: 5})
	e := NewExecutor(db, 0)
	ctx := context.Background()

	d, err := e.Dump(ctx, dzero.DumpOptions{})
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	td, ok := d.Tables["cache"]
	if !ok || td.Schema == "" || len(td.Rows) != 1 {
		t.Fatalf("Dump = %+v", d)
	}

	d, _ = e.Dump(ctx, dzero.DumpOptions{Tables: []string{"cache"}, Schema: true})
	if d.Tables["cache"].Rows != nil || d.Tables["cache"].Schema == "" {
		t.Errorf("schema-only dump = %+v", d.Tables["cache"])
	}

	for _, bad := range []string{"nope", "cache; DROP TABLE cache"} {
		if _, err := e.Dump(ctx, dzero.DumpOptions{Tables: []string{bad}}); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Dump(%q) error = %v", bad, err)
		}
	}
}

func TestConvertParams(t *testing.T) {
	got, err := convertParams([]any{json.Number("42"), json.Number("1.5"), "s", true, nil})
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(42), 1.5, "s", true, nil}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("param %d = %#v, want %#v", i, got[i], want[i])
		}
	}
}
