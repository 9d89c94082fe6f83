package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"
)

// setupTestDB creates an in-memory SQLite DB with the ifdsdb schema and
// a couple of fixture rows.
func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
	CREATE TABLE vulnerabilities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rule TEXT NOT NULL,
		message TEXT NOT NULL,
		sink_method TEXT NOT NULL,
		sink_file TEXT,
		sink_line INTEGER,
		sink_text TEXT
	);
	CREATE TABLE trace_steps (
		vulnerability_id INTEGER NOT NULL,
		trace_index INTEGER NOT NULL,
		step_index INTEGER NOT NULL,
		method TEXT NOT NULL,
		file TEXT,
		line INTEGER,
		text TEXT
	);
	CREATE TABLE incomplete_methods (
		method TEXT PRIMARY KEY,
		reason TEXT NOT NULL
	);
	`)
	if err != nil {
		t.Fatalf("create schema: %v", err)
	}

	_, err = db.Exec(`INSERT INTO vulnerabilities (rule, message, sink_method, sink_file, sink_line, sink_text)
		VALUES ('sql-injection', 'tainted value reaches db.Exec', 'pkg.Handler', 'handler.go', 42, 'db.Exec(q)')`)
	if err != nil {
		t.Fatalf("insert vulnerability: %v", err)
	}
	_, _ = db.Exec(`INSERT INTO trace_steps (vulnerability_id, trace_index, step_index, method, file, line, text)
		VALUES (1, 0, 0, 'pkg.ReadInput', 'handler.go', 10, 'r.FormValue("q")')`)
	_, _ = db.Exec(`INSERT INTO trace_steps (vulnerability_id, trace_index, step_index, method, file, line, text)
		VALUES (1, 0, 1, 'pkg.Handler', 'handler.go', 42, 'db.Exec(q)')`)
	_, _ = db.Exec(`INSERT INTO incomplete_methods (method, reason) VALUES ('pkg.Dynamic', 'unresolved virtual call')`)

	return db
}

func TestAPI_Vulnerabilities_Success(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/vulnerabilities", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/vulnerabilities: want 200, got %d", rec.Code)
	}
	var vs []Vulnerability
	if err := json.NewDecoder(rec.Body).Decode(&vs); err != nil {
		t.Fatalf("decode vulnerabilities response: %v", err)
	}
	if len(vs) != 1 {
		t.Fatalf("expected 1 vulnerability, got %d", len(vs))
	}
	if vs[0].Rule != "sql-injection" || vs[0].SinkMethod != "pkg.Handler" {
		t.Errorf("unexpected vulnerability: %+v", vs[0])
	}
	if !vs[0].SinkLine.Valid || vs[0].SinkLine.Int64 != 42 {
		t.Errorf("unexpected sink line: %+v", vs[0].SinkLine)
	}
}

func TestAPI_Vulnerabilities_FilterByRule(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/vulnerabilities?rule=other", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/vulnerabilities?rule=other: want 200, got %d", rec.Code)
	}
	var vs []Vulnerability
	if err := json.NewDecoder(rec.Body).Decode(&vs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vs) != 0 {
		t.Errorf("expected no vulnerabilities for unmatched rule, got %d", len(vs))
	}
}

func TestAPI_VulnerabilityByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/vulnerabilities/999", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /api/vulnerabilities/999: want 404, got %d", rec.Code)
	}
}

func TestAPI_VulnerabilityByID_BadID(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/vulnerabilities/not-a-number", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("GET /api/vulnerabilities/not-a-number: want 400, got %d", rec.Code)
	}
}

func TestAPI_Traces_Success(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/vulnerabilities/1/traces", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/vulnerabilities/1/traces: want 200, got %d", rec.Code)
	}
	var traces [][]TraceStep
	if err := json.NewDecoder(rec.Body).Decode(&traces); err != nil {
		t.Fatalf("decode traces: %v", err)
	}
	if len(traces) != 1 || len(traces[0]) != 2 {
		t.Fatalf("expected 1 trace of 2 steps, got %+v", traces)
	}
	if traces[0][0].Method != "pkg.ReadInput" || traces[0][1].Method != "pkg.Handler" {
		t.Errorf("unexpected trace steps: %+v", traces[0])
	}
}

func TestAPI_Incomplete_Success(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/incomplete", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/incomplete: want 200, got %d", rec.Code)
	}
	var ms []IncompleteMethod
	if err := json.NewDecoder(rec.Body).Decode(&ms); err != nil {
		t.Fatalf("decode incomplete: %v", err)
	}
	if len(ms) != 1 || ms[0].Method != "pkg.Dynamic" {
		t.Errorf("unexpected incomplete methods: %+v", ms)
	}
}

func TestAPI_Stats_Success(t *testing.T) {
	db := setupTestDB(t)
	app := NewApp(db, "")
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/stats: want 200, got %d", rec.Code)
	}
	var s Stats
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if s.TotalVulnerabilities != 1 || s.IncompleteMethods != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if len(s.ByRule) != 1 || s.ByRule[0].Rule != "sql-injection" || s.ByRule[0].Count != 1 {
		t.Errorf("unexpected rule breakdown: %+v", s.ByRule)
	}
}
