// Package cpgload adapts an existing code-property-graph SQLite database
// (the output of a teacher-style nodes/edges extraction pipeline) into an
// ifds.Graph, as an alternative to building one live from source via
// graph/ssagraph. Grounded on the teacher's server/db.go reader (plain
// database/sql over modernc.org/sqlite, a single connection) and
// model.go's Node/Edge shapes.
//
// The cpg schema records calls at function granularity (a "call" edge
// between two function nodes), not at individual call sites, so this
// Graph collapses each function to two statements, call-phase and
// exit-phase, rather than walking a real intraprocedural CFG: there is
// no per-statement sequence to recover from a function-granularity call
// edge. This is enough to run a call-graph-reachability style analysis
// (can a tainted function reach another along the call graph) over a
// database someone already has, without re-running SSA construction; it
// cannot express intraprocedural flow-sensitive facts the way
// graph/ssagraph can. See DESIGN.md for why this tradeoff was accepted
// rather than extending the schema.
package cpgload

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/cpg-gen/ifds-solve/ifds"
)

// FuncID is a function node's id in the cpg database.
type FuncID string

// phase distinguishes a function's two collapsed statements.
type phase int

const (
	phaseCall phase = iota // entry; also the call site, if the function calls anything
	phaseExit
)

// StmtID is one of a function's two statements.
type StmtID struct {
	Func  FuncID
	Phase phase
}

// Graph is an ifds.Graph[StmtID, FuncID] backed by a cpg-gen SQLite
// database's function and call-edge rows, loaded once into memory.
type Graph struct {
	names   map[FuncID]bool
	callees map[FuncID][]FuncID
}

var _ ifds.Graph[StmtID, FuncID] = (*Graph)(nil)

// Open reads every function node and call edge from the database at
// path into memory.
func Open(path string) (*Graph, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cpgload: open %s: %w", path, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("cpgload: ping: %w", err)
	}

	g := &Graph{names: map[FuncID]bool{}, callees: map[FuncID][]FuncID{}}

	rows, err := db.Query(`SELECT id FROM nodes WHERE kind = 'function'`)
	if err != nil {
		return nil, fmt.Errorf("cpgload: query functions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("cpgload: scan function: %w", err)
		}
		g.names[FuncID(id)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cpgload: iterate functions: %w", err)
	}

	callRows, err := db.Query(`SELECT source, target FROM edges WHERE kind = 'call'`)
	if err != nil {
		return nil, fmt.Errorf("cpgload: query call edges: %w", err)
	}
	defer callRows.Close()
	for callRows.Next() {
		var src, dst string
		if err := callRows.Scan(&src, &dst); err != nil {
			return nil, fmt.Errorf("cpgload: scan call edge: %w", err)
		}
		g.callees[FuncID(src)] = append(g.callees[FuncID(src)], FuncID(dst))
	}
	if err := callRows.Err(); err != nil {
		return nil, fmt.Errorf("cpgload: iterate call edges: %w", err)
	}

	return g, nil
}

// Methods returns every function node, a natural Manager seed set.
func (g *Graph) Methods() []FuncID {
	out := make([]FuncID, 0, len(g.names))
	for id := range g.names {
		out = append(out, id)
	}
	return out
}

func (g *Graph) EntryPoints(m FuncID) []StmtID {
	if !g.names[m] {
		return nil
	}
	return []StmtID{{Func: m, Phase: phaseCall}}
}

func (g *Graph) ExitPoints(m FuncID) []StmtID {
	if !g.names[m] {
		return nil
	}
	return []StmtID{{Func: m, Phase: phaseExit}}
}

// Successors always flows call-phase into exit-phase; there is no
// intraprocedural statement sequence below function granularity.
func (g *Graph) Successors(s StmtID) []StmtID {
	if s.Phase == phaseCall {
		return []StmtID{{Func: s.Func, Phase: phaseExit}}
	}
	return nil
}

func (g *Graph) MethodOf(s StmtID) FuncID { return s.Func }

func (g *Graph) Callees(s StmtID) []FuncID {
	if s.Phase != phaseCall {
		return nil
	}
	return g.callees[s.Func]
}

// IsCallSite reports whether s is a function's call-phase statement and
// that function calls anything.
func (g *Graph) IsCallSite(s StmtID) bool {
	return s.Phase == phaseCall && len(g.callees[s.Func]) > 0
}
