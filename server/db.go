package main

import (
	"database/sql"
	"encoding/json"
)

// nullStringJSON marshals as string or null (for API contract: "file": "x" or "file": null).
type nullStringJSON struct{ sql.NullString }

func (n nullStringJSON) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *nullStringJSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.String, n.Valid = s, true
	return nil
}

// nullInt64JSON marshals as number or null.
type nullInt64JSON struct{ sql.NullInt64 }

func (n nullInt64JSON) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Int64)
}

func (n *nullInt64JSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	n.Int64, n.Valid = i, true
	return nil
}

// DB wraps *sql.DB and provides ifdsdb query helpers.
type DB struct {
	*sql.DB
}

// NewDB returns a DB wrapper.
func NewDB(db *sql.DB) *DB {
	return &DB{DB: db}
}

// Vulnerability is one finding for API responses.
type Vulnerability struct {
	ID         int64          `json:"id"`
	Rule       string         `json:"rule"`
	Message    string         `json:"message"`
	SinkMethod string         `json:"sink_method"`
	SinkFile   nullStringJSON `json:"sink_file"`
	SinkLine   nullInt64JSON  `json:"sink_line"`
	SinkText   nullStringJSON `json:"sink_text"`
}

// TraceStep is one hop of a witness trace for API responses.
type TraceStep struct {
	Method string         `json:"method"`
	File   nullStringJSON `json:"file"`
	Line   nullInt64JSON  `json:"line"`
	Text   nullStringJSON `json:"text"`
}

// IncompleteMethod is a method the analysis could not fully expand.
type IncompleteMethod struct {
	Method string `json:"method"`
	Reason string `json:"reason"`
}

// RuleCount is one row of the rule-frequency summary.
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// Stats is the top-level run summary.
type Stats struct {
	TotalVulnerabilities int         `json:"total_vulnerabilities"`
	ByRule               []RuleCount `json:"by_rule"`
	IncompleteMethods    int         `json:"incomplete_methods"`
}
