package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonwraymond/zerocache/dzero"
)

// DefaultTable is the table SQLStore reads and writes.
const DefaultTable = "cache"

// Transport executes SQL against the remote backend. *dzero.Client
// satisfies it.
type Transport interface {
	Query(ctx context.Context, sql string, params []any, mode dzero.Mode) (*dzero.Result, error)
	Batch(ctx context.Context, stmts []dzero.Statement) ([]dzero.Result, error)
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithTable overrides the table name. Names that are not plain SQL
// identifiers are ignored.
func WithTable(name string) SQLOption {
	return func(s *SQLStore) {
		if identPattern.MatchString(name) {
			s.table = name
		}
	}
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidTableName reports whether name can be used as a table name.
func ValidTableName(name string) bool {
	return identPattern.MatchString(name)
}

// SQLStore is the Store backed by a SQL transport.
//
// Rows have the columns key, data, tags and ttl. Tag matching uses
// instr(tags, ?) > 0, one clause per tag, so MatchSubstring and MatchExact
// differ only in the needles bound to the placeholders.
type SQLStore struct {
	tr    Transport
	table string
}

// NewSQLStore creates a store over tr.
func NewSQLStore(tr Transport, opts ...SQLOption) (*SQLStore, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: transport is nil", ErrNilStore)
	}
	s := &SQLStore{tr: tr, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Table returns the table name in use.
func (s *SQLStore) Table() string { return s.table }

// Migrate creates the table and its expiry index when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	stmts := []dzero.Statement{
		{SQL: "CREATE TABLE IF NOT EXISTS " + s.table +
			" (key TEXT PRIMARY KEY, data TEXT NOT NULL, tags TEXT NOT NULL DEFAULT '', ttl INTEGER NOT NULL)"},
		{SQL: "CREATE INDEX IF NOT EXISTS " + s.table + "_ttl_idx ON " + s.table + " (ttl)"},
	}
	if _, err := s.tr.Batch(ctx, stmts); err != nil {
		return unavailable("migrate", err)
	}
	return nil
}

// Get returns the first row for key, or (nil, nil) when there is none.
// A row without the expected shape is an ErrMalformedEntry.
func (s *SQLStore) Get(ctx context.Context, key string) (*Entry, error) {
	res, err := s.tr.Query(ctx, "SELECT * FROM "+s.table+" WHERE key = ?", []any{key}, dzero.ModeAll)
	if err != nil {
		return nil, unavailable("get", err)
	}
	if res.Len() == 0 {
		return nil, nil
	}
	return decodeRow(res.Results[0])
}

// Put replaces the row for e.Key. The delete and insert travel as one batch.
func (s *SQLStore) Put(ctx context.Context, e Entry) error {
	stmts := []dzero.Statement{
		{SQL: "DELETE FROM " + s.table + " WHERE key = ?", Params: []any{e.Key}},
		{SQL: "INSERT INTO " + s.table + " (key, data, tags, ttl) VALUES (?, ?, ?, ?)",
			Params: []any{e.Key, e.Data, e.Tags, e.TTL}},
	}
	if _, err := s.tr.Batch(ctx, stmts); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// Delete removes the row for key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.exec(ctx, "delete", "DELETE FROM "+s.table+" WHERE key = ?", key)
}

// DeleteByTags removes rows carrying every tag. An empty TagSet is an
// ErrInvalidArgument rather than a full clear.
func (s *SQLStore) DeleteByTags(ctx context.Context, tags TagSet, match TagMatch) error {
	if tags.Len() == 0 {
		return fmt.Errorf("%w: no tags to invalidate", ErrInvalidArgument)
	}
	needles := match.Needles(tags)
	clauses := make([]string, len(needles))
	params := make([]any, len(needles))
	for i, n := range needles {
		clauses[i] = "instr(tags, ?) > 0"
		params[i] = n
	}
	sql := "DELETE FROM " + s.table + " WHERE " + strings.Join(clauses, " AND ")
	return s.exec(ctx, "invalidate", sql, params...)
}

// DeleteAll removes every row.
func (s *SQLStore) DeleteAll(ctx context.Context) error {
	return s.exec(ctx, "clear", "DELETE FROM "+s.table)
}

// DeleteExpired removes rows whose ttl is before now.
func (s *SQLStore) DeleteExpired(ctx context.Context, now int64) error {
	return s.exec(ctx, "prune", "DELETE FROM "+s.table+" WHERE ttl < ?", now)
}

// Ping checks that the backend answers a trivial query.
func (s *SQLStore) Ping(ctx context.Context) error {
	if _, err := s.tr.Query(ctx, "SELECT 1", nil, dzero.ModeAll); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, op, sql string, params ...any) error {
	if _, err := s.tr.Query(ctx, sql, params, dzero.ModeExec); err != nil {
		return unavailable(op, err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// row mirrors a result row. Pointers tell a missing column from a zero one.
type row struct {
	Key  *string      `json:"key"`
	Data *string      `json:"data"`
	Tags *string      `json:"tags"`
	TTL  *json.Number `json:"ttl"`
}

func decodeRow(raw json.RawMessage) (*Entry, error) {
	var r row
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEntry, err)
	}
	if r.Key == nil || r.TTL == nil {
		return nil, fmt.Errorf("%w: missing key or ttl", ErrMalformedEntry)
	}
	ttl, err := r.TTL.Int64()
	if err != nil {
		f, ferr := r.TTL.Float64()
		if ferr != nil {
			return nil, fmt.Errorf("%w: ttl %q", ErrMalformedEntry, r.TTL.String())
		}
		ttl = int64(f)
	}

	e := &Entry{Key: *r.Key, TTL: ttl}
	if r.Data != nil {
		e.Data = *r.Data
	}
	if r.Tags != nil {
		e.Tags = *r.Tags
	}
	return e, nil
}

var (
	_ Store     = (*SQLStore)(nil)
	_ Pinger    = (*SQLStore)(nil)
	_ Transport = (*dzero.Client)(nil)
)
