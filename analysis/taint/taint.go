// Package taint is a reference ifds.FlowFunctions/ifds.SinkChecker
// implementation: glob-matched source/sink/sanitizer functions over a
// real Go program's SSA form, grounded on the matcher style of
// picatz-taint's callgraphutil and gorisk's capability-evidence taint
// analysis (other_examples/449bccfd_picatz-taint..., .../ccb3e692_1homsi-
// gorisk...). Facts are SSA values: a tainted ssa.Value, or the Zero fact
// (no value) marking mere reachability.
package taint

import (
	"go/types"
	"path"

	"golang.org/x/tools/go/ssa"

	"github.com/cpg-gen/ifds-solve/graph"
	"github.com/cpg-gen/ifds-solve/graph/ssagraph"
	"github.com/cpg-gen/ifds-solve/ifds"
)

// Fact is a tainted SSA value, or the zero value for "no taint, merely
// reachable."
type Fact struct {
	Value ssa.Value
}

// Zero is the distinguished empty fact every method entry is seeded with.
var Zero = Fact{}

// Config names the source/sink/sanitizer functions by glob pattern
// against a callee's qualified name ("pkg/path.Func" or
// "pkg/path.Type.Method"). Patterns use path.Match syntax — the same
// glob dialect the teacher's module filters use (shouldSkipFile-style
// suffix/prefix checks are a plain-string special case of it), so no
// third-party glob library earns its keep here; see DESIGN.md.
type Config struct {
	Sources    []string
	Sinks      []string
	Sanitizers []string
}

func (c Config) matchesAny(patterns []string, name string) bool {
	return c.Matches(patterns, name)
}

// Matches reports whether name matches any of patterns under path.Match
// syntax. Exported so other ifds.FlowFunctions implementations sharing
// this Config (e.g. the cpgload-backed reachability analysis in main.go)
// can reuse the same source/sink/sanitizer matching without duplicating
// it.
func (c Config) Matches(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Taint implements ifds.FlowFunctions[graph.StmtID, graph.MethodID, Fact]
// and ifds.SinkChecker[graph.StmtID, Fact] over one loaded program.
type Taint struct {
	Graph  *ssagraph.Graph
	Config Config
}

var (
	_ ifds.FlowFunctions[graph.StmtID, graph.MethodID, Fact] = (*Taint)(nil)
	_ ifds.SinkChecker[graph.StmtID, Fact]                   = (*Taint)(nil)
)

func (t *Taint) Initial(graph.MethodID) []Fact { return []Fact{Zero} }

// Sequent propagates fact across an intra-procedural instruction: the
// Zero fact always propagates (it marks reachability, not taint); a
// tainted value propagates unchanged, and additionally taints the
// instruction's own result when the instruction consumes it as an
// operand (ssa.Instruction.Operands enumerates every operand uniformly,
// regardless of instruction kind).
func (t *Taint) Sequent(current, _ graph.StmtID, fact Fact) []Fact {
	if fact.Value == nil {
		return []Fact{fact}
	}
	out := []Fact{fact}
	instr, ok := t.Graph.Instr(current)
	if !ok {
		return out
	}
	if usesOperand(instr, fact.Value) {
		if v, ok := instr.(ssa.Value); ok {
			out = append(out, Fact{Value: v})
		}
	}
	return out
}

// CallToReturn runs at every call site regardless of whether the callee
// resolved (spec.md §4.2 step 1 always applies it): this is where a
// source or sanitizer call, which typically has no SSA body to descend
// into, takes effect.
func (t *Taint) CallToReturn(call, _ graph.StmtID, fact Fact) []Fact {
	instr, ok := t.Graph.Instr(call)
	if !ok {
		return []Fact{fact}
	}
	ci, ok := instr.(ssa.CallInstruction)
	if !ok {
		return []Fact{fact}
	}
	name := calleeName(ci)

	if fact.Value != nil && usesOperand(instr, fact.Value) && t.Config.matchesAny(t.Config.Sanitizers, name) {
		return nil // sanitized: this specific taint does not survive the call
	}

	out := []Fact{fact}
	if fact.Value == nil && t.Config.matchesAny(t.Config.Sources, name) {
		if v, ok := instr.(ssa.Value); ok {
			out = append(out, Fact{Value: v})
		}
	}
	return out
}

// CallToStart maps a tainted argument into the callee's matching
// parameter.
func (t *Taint) CallToStart(call, calleeEntry graph.StmtID, fact Fact) []Fact {
	if fact.Value == nil {
		return []Fact{fact}
	}
	instr, ok := t.Graph.Instr(call)
	if !ok {
		return nil
	}
	ci, ok := instr.(ssa.CallInstruction)
	if !ok {
		return nil
	}
	fn, ok := t.Graph.Func(calleeEntry.Func)
	if !ok {
		return nil
	}
	args := ci.Common().Args
	for i, arg := range args {
		if arg == fact.Value && i < len(fn.Params) {
			return []Fact{{Value: fn.Params[i]}}
		}
	}
	return nil
}

// ExitToReturnSite maps a fact that survived to the callee's exit back
// into the caller: a tainted parameter (aliasing through a pointer
// argument) maps back to the matching call argument; a tainted return
// value maps to the call instruction itself, which stands for the
// result in the caller's SSA.
func (t *Taint) ExitToReturnSite(call, _, exit graph.StmtID, fact Fact) []Fact {
	if fact.Value == nil {
		return []Fact{fact}
	}
	callInstr, ok := t.Graph.Instr(call)
	if !ok {
		return nil
	}
	ci, ok := callInstr.(ssa.CallInstruction)
	if !ok {
		return nil
	}
	fn, ok := t.Graph.Func(exit.Func)
	if ok {
		for i, p := range fn.Params {
			if p == fact.Value && i < len(ci.Common().Args) {
				return []Fact{{Value: ci.Common().Args[i]}}
			}
		}
	}
	if ret, ok := t.Graph.Instr(exit); ok {
		if r, ok := ret.(*ssa.Return); ok {
			for _, res := range r.Results {
				if res == fact.Value {
					if v, ok := callInstr.(ssa.Value); ok {
						return []Fact{{Value: v}}
					}
				}
			}
		}
	}
	return nil
}

// IsSink reports a vulnerability when a tainted value reaches a call
// whose callee name matches a configured sink pattern.
func (t *Taint) IsSink(v ifds.Vertex[graph.StmtID, Fact]) (bool, string, string) {
	if v.Fact.Value == nil {
		return false, "", ""
	}
	instr, ok := t.Graph.Instr(v.Stmt)
	if !ok {
		return false, "", ""
	}
	ci, ok := instr.(ssa.CallInstruction)
	if !ok {
		return false, "", ""
	}
	if !usesOperand(instr, v.Fact.Value) {
		return false, "", ""
	}
	name := calleeName(ci)
	if !t.Config.matchesAny(t.Config.Sinks, name) {
		return false, "", ""
	}
	return true, "tainted value reaches " + name, name
}

func usesOperand(instr ssa.Instruction, v ssa.Value) bool {
	for _, op := range instr.Operands(nil) {
		if op != nil && *op == v {
			return true
		}
	}
	return false
}

func calleeName(ci ssa.CallInstruction) string {
	if callee := ci.Common().StaticCallee(); callee != nil {
		name := callee.Name()
		if recv := callee.Signature.Recv(); recv != nil {
			t := recv.Type()
			if p, ok := t.(*types.Pointer); ok {
				t = p.Elem()
			}
			if n, ok := t.(*types.Named); ok {
				name = n.Obj().Name() + "." + name
			}
		}
		if callee.Pkg != nil {
			return callee.Pkg.Pkg.Path() + "." + name
		}
		return name
	}
	return ci.Common().Value.String()
}
