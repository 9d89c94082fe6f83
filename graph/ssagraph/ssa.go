package ssagraph

import (
	"golang.org/x/tools/go/ssa"

	"github.com/cpg-gen/ifds-solve/graph"
	"github.com/cpg-gen/ifds-solve/ifds"
)

var _ ifds.Graph[graph.StmtID, graph.MethodID] = (*Graph)(nil)

// EntryPoints returns the first instruction of m's entry block. A
// declared-but-undefined function (no blocks, e.g. an external stub VTA
// resolved to) has no entry point.
func (g *Graph) EntryPoints(m graph.MethodID) []graph.StmtID {
	fn, ok := g.funcs[m]
	if !ok || len(fn.Blocks) == 0 || len(fn.Blocks[0].Instrs) == 0 {
		return nil
	}
	return []graph.StmtID{{Func: m, Block: 0, Index: 0}}
}

// ExitPoints returns the last instruction of every block with no CFG
// successors (return/panic blocks).
func (g *Graph) ExitPoints(m graph.MethodID) []graph.StmtID {
	fn, ok := g.funcs[m]
	if !ok {
		return nil
	}
	var out []graph.StmtID
	for bi, b := range fn.Blocks {
		if len(b.Instrs) == 0 || len(b.Succs) != 0 {
			continue
		}
		out = append(out, graph.StmtID{Func: m, Block: bi, Index: len(b.Instrs) - 1})
	}
	return out
}

// Successors returns the next instruction in the same block, or the
// first instruction of each CFG-successor block at a terminator. Empty
// successor blocks (no Instrs) are skipped in favour of their own
// successors.
func (g *Graph) Successors(s graph.StmtID) []graph.StmtID {
	fn, ok := g.funcs[s.Func]
	if !ok || s.Block >= len(fn.Blocks) {
		return nil
	}
	b := fn.Blocks[s.Block]
	if s.Index+1 < len(b.Instrs) {
		return []graph.StmtID{{Func: s.Func, Block: s.Block, Index: s.Index + 1}}
	}
	var out []graph.StmtID
	seen := map[int]bool{}
	var walk func(bi int)
	walk = func(bi int) {
		if seen[bi] || bi >= len(fn.Blocks) {
			return
		}
		seen[bi] = true
		nb := fn.Blocks[bi]
		if len(nb.Instrs) > 0 {
			out = append(out, graph.StmtID{Func: s.Func, Block: bi, Index: 0})
			return
		}
		for _, succ := range nb.Succs {
			walk(succ.Index)
		}
	}
	for _, succ := range b.Succs {
		walk(succ.Index)
	}
	return out
}

func (g *Graph) MethodOf(s graph.StmtID) graph.MethodID { return s.Func }

// IsCallSite reports whether the instruction at s is a call, go, or
// defer — the three ssa.CallInstruction forms.
func (g *Graph) IsCallSite(s graph.StmtID) bool {
	instr, ok := g.instrAt(s)
	if !ok {
		return false
	}
	call, ok := instr.(ssa.CallInstruction)
	return ok && call.Common() != nil
}

// Callees resolves s's call targets via the precomputed VTA call graph,
// falling back to the statically-known callee when VTA recorded no node
// for the caller (common for functions VTA treats as unreachable roots).
func (g *Graph) Callees(s graph.StmtID) []graph.MethodID {
	instr, ok := g.instrAt(s)
	if !ok {
		return nil
	}
	call, ok := instr.(ssa.CallInstruction)
	if !ok {
		return nil
	}
	fn := g.funcs[s.Func]
	node := g.cg.Nodes[fn]
	if node == nil {
		if callee := call.Common().StaticCallee(); callee != nil {
			if id, ok := g.ids[callee]; ok {
				return []graph.MethodID{id}
			}
		}
		return nil
	}
	var out []graph.MethodID
	for _, edge := range node.Out {
		if edge.Site != call {
			continue
		}
		if id, ok := g.ids[edge.Callee.Func]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Instr exposes the SSA instruction at s, for FlowFunctions
// implementations (e.g. analysis/taint) that need to inspect operands,
// call arguments, or return values beyond what ifds.Graph exposes.
func (g *Graph) Instr(s graph.StmtID) (ssa.Instruction, bool) { return g.instrAt(s) }

func (g *Graph) instrAt(s graph.StmtID) (ssa.Instruction, bool) {
	fn, ok := g.funcs[s.Func]
	if !ok || s.Block >= len(fn.Blocks) {
		return nil, false
	}
	b := fn.Blocks[s.Block]
	if s.Index >= len(b.Instrs) {
		return nil, false
	}
	return b.Instrs[s.Index], true
}
