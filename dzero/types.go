package dzero

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mode selects how a single statement is executed.
type Mode string

const (
	// ModeAll returns every result row.
	ModeAll Mode = "all"
	// ModeExec runs the statement for its side effects.
	ModeExec Mode = "exec"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeAll || m == ModeExec
}

// Statement is one SQL statement with positional parameters.
type Statement struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

// QueryRequest is the body of a single-statement call.
type QueryRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
	Method Mode   `json:"method"`
}

// BatchRequest is the body of a batch call.
type BatchRequest struct {
	Batch []Statement `json:"batch"`
}

// AskRequest is the body of an /ask call.
type AskRequest struct {
	Q string `json:"q"`
}

// DumpOptions selects what /dump returns.
type DumpOptions struct {
	Tables []string `json:"tables,omitempty"`
	Schema bool     `json:"schema,omitempty"`
	Data   bool     `json:"data,omitempty"`
}

// Result is the response to one statement.
type Result struct {
	Results []json.RawMessage `json:"results"`
}

// UnmarshalJSON accepts either {"results": [...]} or a bare row array.
func (r *Result) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		r.Results = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		return json.Unmarshal(trimmed, &r.Results)
	case '{':
		var wire struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(trimmed, &wire); err != nil {
			return err
		}
		r.Results = wire.Results
		return nil
	default:
		return fmt.Errorf("unexpected result shape %q", trimmed[0])
	}
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Results)
}

// Decode unmarshals the rows into dst, which must be a pointer to a slice.
func (r *Result) Decode(dst any) error {
	if r == nil || len(r.Results) == 0 {
		return json.Unmarshal([]byte("[]"), dst)
	}
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Results {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(row)
	}
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), dst)
}
