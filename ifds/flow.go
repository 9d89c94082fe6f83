package ifds

// FlowFunctions is the per-analysis contract of spec.md §4.1: five pure,
// deterministic functions, each returning a finite set of facts. They must
// not observe mutable global state; they may be expensive, since the
// engine memoises their use implicitly through edge deduplication. A
// flow function that panics aborts only the edge being processed (spec.md
// §7) — the Runner recovers around every call.
type FlowFunctions[S comparable, M comparable, F comparable] interface {
	// Initial seeds facts at method entry; typically {Zero}.
	Initial(method M) []F

	// Sequent is the intra-procedural transfer over a non-call, non-exit
	// edge from current to next.
	Sequent(current, next S, fact F) []F

	// CallToReturn approximates a call's effect without descending into
	// callees (library stubs, sanitisation, taint through unresolved
	// calls).
	CallToReturn(call, returnSite S, fact F) []F

	// CallToStart seeds the callee's entry when opening an
	// interprocedural edge.
	CallToStart(call S, calleeEntry S, fact F) []F

	// ExitToReturnSite maps a summary from callee exit back into the
	// caller's scope at the return site.
	ExitToReturnSite(call, returnSite, exit S, fact F) []F
}

// SinkChecker decides, for a vertex newly reached by the solver, whether
// it is a declared sink, and if so what message/rule to report. It is the
// "analysis-specific handler" of spec.md §4.2's vulnerability emission
// step. The ok result alone distinguishes "not a sink" (ok=false) from "a
// sink with no extra message" (ok=true, message empty).
type SinkChecker[S comparable, F comparable] interface {
	// IsSink reports whether vertex v (just reached) is a sink, and if so
	// returns a human-readable message and the rule name that declared it.
	IsSink(v Vertex[S, F]) (ok bool, message string, rule string)
}

// SinkCheckerFunc adapts a plain function to SinkChecker.
type SinkCheckerFunc[S comparable, F comparable] func(v Vertex[S, F]) (bool, string, string)

func (f SinkCheckerFunc[S, F]) IsSink(v Vertex[S, F]) (bool, string, string) { return f(v) }
