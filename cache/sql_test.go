package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jonwraymond/zerocache/dzero"
)

type fakeTransport struct {
	mu      sync.Mutex
	queries []dzero.QueryRequest
	batches [][]dzero.Statement
	rows    []json.RawMessage
	err     error
}

func (f *fakeTransport) Query(_ context.Context, sql string, params []any, mode dzero.Mode) (*dzero.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, dzero.QueryRequest{SQL: sql, Params: params, Method: mode})
	if f.err != nil {
		return nil, f.err
	}
	return &dzero.Result{Results: f.rows}, nil
}

func (f *fakeTransport) Batch(_ context.Context, stmts []dzero.Statement) ([]dzero.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, stmts)
	if f.err != nil {
		return nil, f.err
	}
	return make([]dzero.Result, len(stmts)), nil
}

func (f *fakeTransport) last() dzero.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func newFakeSQLStore(t *testing.T, opts ...SQLOption) (*SQLStore, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s, err := NewSQLStore(tr, opts...)
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	return s, tr
}

func TestSQLStore_Statements(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		run    func(s *SQLStore) error
		sql    string
		params []any
		mode   dzero.Mode
	}{
		{"get", func(s *SQLStore) error { _, err := s.Get(ctx, "k"); return err },
			"SELECT * FROM cache WHERE key = ?", []any{"k"}, dzero.ModeAll},
		{"delete", func(s *SQLStore) error { return s.Delete(ctx, "k") },
			"DELETE FROM cache WHERE key = ?", []any{"k"}, dzero.ModeExec},
		{"delete all", func(s *SQLStore) error { return s.DeleteAll(ctx) },
			"DELETE FROM cache", nil, dzero.ModeExec},
		{"delete expired", func(s *SQLStore) error { return s.DeleteExpired(ctx, 99) },
			"DELETE FROM cache WHERE ttl < ?", []any{int64(99)}, dzero.ModeExec},
		{"substring tags", func(s *SQLStore) error { return s.DeleteByTags(ctx, MustTagSet("a", "b"), MatchSubstring) },
			"DELETE FROM cache WHERE instr(tags, ?) > 0 AND instr(tags, ?) > 0", []any{"a", "b"}, dzero.ModeExec},
		{"exact tags", func(s *SQLStore) error { return s.DeleteByTags(ctx, MustTagSet("a"), MatchExact) },
			"DELETE FROM cache WHERE instr(tags, ?) > 0", []any{"'a'"}, dzero.ModeExec},
		{"ping", func(s *SQLStore) error { return s.Ping(ctx) },
			"SELECT 1", nil, dzero.ModeAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr := newFakeSQLStore(t)
			if err := tt.run(s); err != nil {
				t.Fatalf("error = %v", err)
			}
			got := tr.last()
			if got.SQL != tt.sql || got.Method != tt.mode {
				t.Errorf("sent %q (%s), want %q (%s)", got.SQL, got.Method, tt.sql, tt.mode)
			}
			if len(got.Params) != len(tt.params) {
				t.Fatalf("params = %v, want %v", got.Params, tt.params)
			}
			for i := range tt.params {
				if got.Params[i] != tt.params[i] {
					t.Errorf("param %d = %#v, want %#v", i, got.Params[i], tt.params[i])
				}
			}
		})
	}
}

func TestSQLStore_PutIsOneBatch(t *testing.T) {
	s, tr := newFakeSQLStore(t)
	e := Entry{Key: "k", Data: "d", Tags: "'a'", TTL: 5}
	if err := s.Put(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	if len(tr.batches) != 1 || len(tr.batches[0]) != 2 {
		t.Fatalf("batches = %v", tr.batches)
	}
	del, ins := tr.batches[0][0], tr.batches[0][1]
	if del.SQL != "DELETE FROM cache WHERE key = ?" {
		t.Errorf("first statement = %q", del.SQL)
	}
	if ins.SQL != "INSERT INTO cache (key, data, tags, ttl) VALUES (?, ?, ?, ?)" {
		t.Errorf("second statement = %q", ins.SQL)
	}
	if len(ins.Params) != 4 || ins.Params[0] != "k" || ins.Params[3] != int64(5) {
		t.Errorf("insert params = %v", ins.Params)
	}
}

func TestSQLStore_GetDecodesRows(t *testing.T) {
	tests := []struct {
		name    string
		rows    []string
		want    *Entry
		wantErr error
	}{
		{"absent", nil, nil, nil},
		{"row", []string{`{"key":"k","data":"d","tags":"'a'","ttl":1700000000000}`},
			&Entry{Key: "k", Data: "d", Tags: "'a'", TTL: 1700000000000}, nil},
		{"float ttl", []string{`{"key":"k","data":"d","tags":"","ttl":1.5e3}`},
			&Entry{Key: "k", Data: "d", TTL: 1500}, nil},
		{"first of many", []string{`{"key":"1","ttl":1}`, `{"key":"2","ttl":2}`},
			&Entry{Key: "1", TTL: 1}, nil},
		{"missing ttl", []string{`{"key":"k","data":"d"}`}, nil, ErrMalformedEntry},
		{"not an object", []string{`[1,2]`}, nil, ErrMalformedEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, tr := newFakeSQLStore(t)
			for _, r := range tt.rows {
				tr.rows = append(tr.rows, json.RawMessage(r))
			}
			got, err := s.Get(context.Background(), "k")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if (got == nil) != (tt.want == nil) || (got != nil && *got != *tt.want) {
				t.Errorf("Get() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSQLStore_TransportErrors(t *testing.T) {
	s, tr := newFakeSQLStore(t)
	upstream := &dzero.APIError{Status: 500, Message: "no such table: cache"}
	tr.err = upstream

	ctx := context.Background()
	checks := map[string]error{
		"get":     func() error { _, err := s.Get(ctx, "k"); return err }(),
		"put":     s.Put(ctx, Entry{Key: "k"}),
		"delete":  s.Delete(ctx, "k"),
		"clear":   s.DeleteAll(ctx),
		"migrate": s.Migrate(ctx),
	}
	for op, err := range checks {
		if !errors.Is(err, ErrStoreUnavailable) {
			t.Errorf("%s: error = %v, want ErrStoreUnavailable", op, err)
		}
		var apiErr *dzero.APIError
		if !errors.As(err, &apiErr) || apiErr.Message != "no such table: cache" {
			t.Errorf("%s: upstream message lost: %v", op, err)
		}
	}
}

func TestSQLStore_EmptyTagsRejected(t *testing.T) {
	s, tr := newFakeSQLStore(t)
	if err := s.DeleteByTags(context.Background(), TagSet{}, MatchSubstring); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
	if len(tr.queries) != 0 {
		t.Errorf("statement sent for empty tag set")
	}
}

func TestSQLStore_WithTable(t *testing.T) {
	s, tr := newFakeSQLStore(t, WithTable("results_v2"))
	_ = s.Delete(context.Background(), "k")
	if got := tr.last().SQL; got != "DELETE FROM results_v2 WHERE key = ?" {
		t.Errorf("sql = %q", got)
	}

	s, _ = newFakeSQLStore(t, WithTable("x; DROP TABLE cache"))
	if s.Table() != DefaultTable {
		t.Errorf("unsafe table name accepted: %q", s.Table())
	}
}

func TestSQLStore_Migrate(t *testing.T) {
	s, tr := newFakeSQLStore(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(tr.batches) != 1 || len(tr.batches[0]) != 2 {
		t.Fatalf("migrate batches = %v", tr.batches)
	}
}

func TestNewSQLStore_NilTransport(t *testing.T) {
	if _, err := NewSQLStore(nil); !errors.Is(err, ErrNilStore) {
		t.Fatalf("error = %v", err)
	}
}

// TestSQLStore_OverHTTP runs a cached call against a fake endpoint speaking
// the wire contract through a real dzero.Client.
func TestSQLStore_OverHTTP(t *testing.T) {
	var mu sync.Mutex
	rows := map[string]map[string]any{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != "tkn" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"message":"bad token"}`)
			return
		}
		var body struct {
			SQL    string            `json:"sql"`
			Params []any             `json:"params"`
			Batch  []dzero.Statement `json:"batch"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		defer mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if body.Batch != nil {
			ins := body.Batch[1].Params
			rows[ins[0].(string)] = map[string]any{"key": ins[0], "data": ins[1], "tags": ins[2], "ttl": ins[3]}
			_, _ = io.WriteString(w, `[{"results":[]},{"results":[]}]`)
			return
		}
		var out []any
		if row, ok := rows[body.Params[0].(string)]; ok {
			out = append(out, row)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": out})
	}))
	defer srv.Close()

	client, err := dzero.New(dzero.Config{BaseURL: srv.URL, Token: "tkn"})
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewSQLStore(client)
	if err != nil {
		t.Fatal(err)
	}
	c := newTestCache(t, store)

	fn, calls := counted(map[string]string{"name": "zoë"})
	for i := 0; i < 2; i++ {
		got, err := Do(context.Background(), c, "http", fn, []string{"t"}, nil)
		if err != nil || got["name"] != "zoë" {
			t.Fatalf("Do() = %v, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fn called %d times, want 1", calls.Load())
	}
}
