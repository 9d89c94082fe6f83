package main

import (
	"database/sql"
)

// Vulnerabilities lists findings, optionally filtered by rule name.
func (db *DB) Vulnerabilities(rule string, limit int) ([]Vulnerability, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	rows, err := db.Query(queryVulnerabilities, rule, rule, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanVulnerabilities(rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Vulnerability{}
	}
	return out, nil
}

// VulnerabilityByID fetches a single finding, or (nil, nil) if not found.
func (db *DB) VulnerabilityByID(id int64) (*Vulnerability, error) {
	rows, err := db.Query(queryVulnerabilityByID, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	vs, err := scanVulnerabilities(rows)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, nil
	}
	return &vs[0], nil
}

func scanVulnerabilities(rows *sql.Rows) ([]Vulnerability, error) {
	var out []Vulnerability
	for rows.Next() {
		var v Vulnerability
		var file, text sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&v.ID, &v.Rule, &v.Message, &v.SinkMethod, &file, &line, &text); err != nil {
			return nil, err
		}
		v.SinkFile = nullStringJSON{file}
		v.SinkLine = nullInt64JSON{line}
		v.SinkText = nullStringJSON{text}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Traces returns every witness trace recorded for a vulnerability, one
// slice of steps per trace, ordered by trace_index then step_index.
func (db *DB) Traces(vulnID int64) ([][]TraceStep, error) {
	rows, err := db.Query(queryTraceSteps, vulnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traces [][]TraceStep
	var curIndex = -1
	for rows.Next() {
		var traceIndex, stepIndex int
		var step TraceStep
		var file, text sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&traceIndex, &stepIndex, &step.Method, &file, &line, &text); err != nil {
			return nil, err
		}
		step.File = nullStringJSON{file}
		step.Line = nullInt64JSON{line}
		step.Text = nullStringJSON{text}
		if traceIndex != curIndex {
			traces = append(traces, nil)
			curIndex = traceIndex
		}
		traces[len(traces)-1] = append(traces[len(traces)-1], step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if traces == nil {
		traces = [][]TraceStep{}
	}
	return traces, nil
}

// IncompleteMethods lists methods the run could not fully resolve.
func (db *DB) IncompleteMethods(limit int) ([]IncompleteMethod, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultListLimit
	}
	rows, err := db.Query(queryIncompleteMethods, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IncompleteMethod
	for rows.Next() {
		var m IncompleteMethod
		if err := rows.Scan(&m.Method, &m.Reason); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []IncompleteMethod{}
	}
	return out, nil
}

// Stats summarizes the run: total findings, a breakdown by rule, and
// the count of incomplete methods.
func (db *DB) Stats() (*Stats, error) {
	s := &Stats{}
	if err := db.QueryRow(queryStatsTotal).Scan(&s.TotalVulnerabilities); err != nil {
		return nil, err
	}
	if err := db.QueryRow(queryStatsIncompleteCount).Scan(&s.IncompleteMethods); err != nil {
		return nil, err
	}
	rows, err := db.Query(queryStatsByRule)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rc RuleCount
		if err := rows.Scan(&rc.Rule, &rc.Count); err != nil {
			return nil, err
		}
		s.ByRule = append(s.ByRule, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if s.ByRule == nil {
		s.ByRule = []RuleCount{}
	}
	return s, nil
}
