// Package ifdsdb writes a completed analysis run to a SQLite database:
// every vulnerability, its witness traces, and the list of incomplete
// methods. Grounded on the teacher's db.go bulk-writer idiom
// (pragma tuning, a single ImmediateTransaction, prepared-statement
// batches) via zombiezen.com/go/sqlite and zombiezen.com/go/sqlite/sqlitex.
package ifdsdb

import (
	"fmt"
	"os"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cpg-gen/ifds-solve/ifds"
)

const batchSize = 50000

// Renderer is the minimal rendering contract a caller supplies for its
// method/statement types, since ifds itself never assumes file/line
// information exists (spec.md Non-goals).
type Renderer[S comparable, M comparable] interface {
	MethodName(M) string
	MethodOf(S) M
	StmtText(S) (file string, line int, text string)
}

// Write persists findings to a fresh SQLite database at path.
func Write[S comparable, F comparable, M comparable](path string, findings []ifds.Finding[S, F, M], incomplete []ifds.Incomplete[M], render Renderer[S, M]) error {
	_ = os.Remove(path)

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return fmt.Errorf("ifdsdb: open: %w", err)
	}
	defer func() { _ = conn.Close() }()

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA cache_size = -64000",
		"PRAGMA journal_mode = WAL",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("ifdsdb: %s: %w", pragma, err)
		}
	}

	if err := createTables(conn); err != nil {
		return err
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("ifdsdb: begin tx: %w", err)
	}

	if err := insertFindings(conn, findings, render); err != nil {
		endFn(&err)
		return err
	}
	if err := insertIncomplete(conn, incomplete, render); err != nil {
		endFn(&err)
		return err
	}

	endFn(&err)
	if err != nil {
		return fmt.Errorf("ifdsdb: commit: %w", err)
	}
	if err := createIndexes(conn); err != nil {
		return err
	}
	return nil
}

func createTables(conn *sqlite.Conn) error {
	ddl := `
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
`
	return sqlitex.ExecuteScript(conn, ddl, nil)
}

func createIndexes(conn *sqlite.Conn) error {
	return sqlitex.ExecuteScript(conn, `
CREATE INDEX idx_trace_steps_vuln ON trace_steps(vulnerability_id, trace_index, step_index);
CREATE INDEX idx_vulnerabilities_rule ON vulnerabilities(rule);
`, nil)
}

func insertFindings[S comparable, F comparable, M comparable](conn *sqlite.Conn, findings []ifds.Finding[S, F, M], render Renderer[S, M]) error {
	vulnStmt, err := conn.Prepare(`INSERT INTO vulnerabilities (rule, message, sink_method, sink_file, sink_line, sink_text) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ifdsdb: prepare vulnerability insert: %w", err)
	}
	defer func() { _ = vulnStmt.Finalize() }()

	stepStmt, err := conn.Prepare(`INSERT INTO trace_steps (vulnerability_id, trace_index, step_index, method, file, line, text) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("ifdsdb: prepare trace step insert: %w", err)
	}
	defer func() { _ = stepStmt.Finalize() }()

	for i, f := range findings {
		sinkMethod := render.MethodName(render.MethodOf(f.Sink.Stmt))
		file, line, text := render.StmtText(f.Sink.Stmt)

		vulnStmt.BindText(1, f.Rule)
		vulnStmt.BindText(2, f.Message)
		vulnStmt.BindText(3, sinkMethod)
		bindTextOrNull(vulnStmt, 4, file)
		bindIntOrNull(vulnStmt, 5, line)
		bindTextOrNull(vulnStmt, 6, text)
		if _, err := vulnStmt.Step(); err != nil {
			return fmt.Errorf("ifdsdb: insert vulnerability %d: %w", i, err)
		}
		vulnID := conn.LastInsertRowID()
		_ = vulnStmt.Reset()

		for ti, trace := range f.Traces {
			for si, step := range trace {
				sfile, sline, stext := render.StmtText(step.Stmt)
				stepStmt.BindInt64(1, vulnID)
				stepStmt.BindInt64(2, int64(ti))
				stepStmt.BindInt64(3, int64(si))
				stepStmt.BindText(4, render.MethodName(step.Method))
				bindTextOrNull(stepStmt, 5, sfile)
				bindIntOrNull(stepStmt, 6, sline)
				bindTextOrNull(stepStmt, 7, stext)
				if _, err := stepStmt.Step(); err != nil {
					return fmt.Errorf("ifdsdb: insert trace step: %w", err)
				}
				_ = stepStmt.Reset()
			}
		}
		if (i+1)%batchSize == 0 {
			// large runs: nothing to report through here without a
			// progress logger; caller-level progress covers this.
			_ = i
		}
	}
	return nil
}

func insertIncomplete[M comparable](conn *sqlite.Conn, incomplete []ifds.Incomplete[M], render interface{ MethodName(M) string }) error {
	stmt, err := conn.Prepare(`INSERT OR IGNORE INTO incomplete_methods (method, reason) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("ifdsdb: prepare incomplete insert: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()
	for _, inc := range incomplete {
		stmt.BindText(1, render.MethodName(inc.Method))
		stmt.BindText(2, inc.Reason)
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("ifdsdb: insert incomplete method: %w", err)
		}
		_ = stmt.Reset()
	}
	return nil
}

func bindTextOrNull(stmt *sqlite.Stmt, col int, v string) {
	if v == "" {
		stmt.BindNull(col)
		return
	}
	stmt.BindText(col, v)
}

func bindIntOrNull(stmt *sqlite.Stmt, col int, v int) {
	if v == 0 {
		stmt.BindNull(col)
		return
	}
	stmt.BindInt64(col, int64(v))
}
