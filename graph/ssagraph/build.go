// Package ssagraph adapts a real Go module's SSA form and VTA call graph
// (golang.org/x/tools/go/ssa, .../callgraph/vta) into an
// ifds.Graph[graph.StmtID, graph.MethodID], so the solver can analyse
// compiled Go source directly instead of a synthetic test graph. Grounded
// on the teacher's loader.go/ssa_cfg.go/callgraph.go, which build the same
// packages->SSA->callgraph pipeline for its property-graph extraction.
package ssagraph

import (
	"fmt"
	"go/token"
	"go/types"
	"os"

	"golang.org/x/tools/go/callgraph"
	"golang.org/x/tools/go/callgraph/vta"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"github.com/cpg-gen/ifds-solve/graph"
	"github.com/cpg-gen/ifds-solve/internal/progress"
)

// Graph is an ifds.Graph[graph.StmtID, graph.MethodID] backed by one
// loaded program's SSA and a precomputed VTA call graph. Safe for
// concurrent read-only use once Load returns (ifds.Graph's contract) —
// nothing past Load ever mutates it.
type Graph struct {
	prog  *ssa.Program
	fset  *token.FileSet
	funcs map[graph.MethodID]*ssa.Function
	ids   map[*ssa.Function]graph.MethodID
	cg    *callgraph.Graph
}

// Load resolves patterns under dir into packages, builds their SSA form,
// and computes a whole-program VTA call graph over every reachable
// function.
func Load(dir string, patterns []string, log *progress.Logger) (*Graph, error) {
	log.Log("loading packages: %v", patterns)
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedCompiledGoFiles |
			packages.NeedImports | packages.NeedDeps | packages.NeedTypes |
			packages.NeedSyntax | packages.NeedTypesInfo | packages.NeedTypesSizes,
		Dir:  dir,
		Fset: fset,
		Env:  os.Environ(),
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("ssagraph: packages.Load: %w", err)
	}
	var errCount int
	for _, p := range pkgs {
		errCount += len(p.Errors)
	}
	if errCount > 0 {
		log.Warn("%d package(s) had type-check errors (continuing)", errCount)
	}

	log.Log("building SSA")
	ssaProg, _ := ssautil.AllPackages(pkgs, ssa.InstantiateGenerics)
	ssaProg.Build()
	allFuncs := ssautil.AllFunctions(ssaProg)

	g := &Graph{
		prog:  ssaProg,
		fset:  fset,
		funcs: map[graph.MethodID]*ssa.Function{},
		ids:   map[*ssa.Function]graph.MethodID{},
	}
	for fn := range allFuncs {
		if fn.Synthetic != "" || fn.Pkg == nil {
			continue
		}
		id := methodID(fn, fset)
		g.funcs[id] = fn
		g.ids[fn] = id
	}

	log.Log("building VTA call graph over %d functions", len(allFuncs))
	cg := vta.CallGraph(allFuncs, nil)
	cg.DeleteSyntheticNodes()
	g.cg = cg

	log.Log("graph ready: %d methods", len(g.funcs))
	return g, nil
}

func methodID(fn *ssa.Function, fset *token.FileSet) graph.MethodID {
	var recv string
	if fn.Signature.Recv() != nil {
		recv = recvName(fn.Signature.Recv().Type())
	}
	pos := fset.Position(fn.Pos())
	return graph.MethodID{
		Pkg:  fn.Pkg.Pkg.Path(),
		Recv: recv,
		Name: fn.Name(),
		File: pos.Filename,
		Line: pos.Line,
		Col:  pos.Column,
	}
}

func recvName(t types.Type) string {
	if p, ok := t.(*types.Pointer); ok {
		return "*" + recvName(p.Elem())
	}
	if n, ok := t.(*types.Named); ok {
		return n.Obj().Name()
	}
	return t.String()
}

// Methods returns every method discovered, a natural seed set for
// whole-program analyses.
func (g *Graph) Methods() []graph.MethodID {
	out := make([]graph.MethodID, 0, len(g.funcs))
	for id := range g.funcs {
		out = append(out, id)
	}
	return out
}

// Func returns the underlying *ssa.Function for a MethodID.
func (g *Graph) Func(id graph.MethodID) (*ssa.Function, bool) {
	fn, ok := g.funcs[id]
	return fn, ok
}

// Fset exposes the file set backing every position recorded in this
// Graph's MethodIDs and StmtIDs.
func (g *Graph) Fset() *token.FileSet { return g.fset }
