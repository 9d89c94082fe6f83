package ifds

// globalIndex is a read-only, cross-unit view over every Runner's edge
// arena and predecessor index, assembled once a Run has reached
// quiescence (or been cancelled). It exists solely to let the Trace-Graph
// Builder walk predecessor chains that cross unit boundaries without
// reaching back into a live Runner.
type globalIndex[S comparable, F comparable] struct {
	edges map[UnitID][]Edge[S, F]
	preds map[UnitID]map[EdgeID][]Reason
	toVtx map[Vertex[S, F]][]globalEdge
}

func buildGlobalIndex[S comparable, M comparable, F comparable](runners map[UnitID]*runner[S, M, F]) *globalIndex[S, F] {
	idx := &globalIndex[S, F]{
		edges: map[UnitID][]Edge[S, F]{},
		preds: map[UnitID]map[EdgeID][]Reason{},
		toVtx: map[Vertex[S, F]][]globalEdge{},
	}
	for unit, r := range runners {
		idx.edges[unit] = r.edges
		ps := make(map[EdgeID][]Reason, len(r.preds))
		for id, set := range r.preds {
			list := make([]Reason, 0, len(set))
			for reason := range set {
				list = append(list, reason)
			}
			ps[id] = list
		}
		idx.preds[unit] = ps
		for id, e := range r.edges {
			ge := globalEdge{Unit: unit, ID: EdgeID(id)}
			idx.toVtx[e.To] = append(idx.toVtx[e.To], ge)
		}
	}
	return idx
}

func (idx *globalIndex[S, F]) edge(ge globalEdge) Edge[S, F] { return idx.edges[ge.Unit][ge.ID] }
func (idx *globalIndex[S, F]) predsOf(ge globalEdge) []Reason {
	return idx.preds[ge.Unit][ge.ID]
}
func (idx *globalIndex[S, F]) edgesTo(v Vertex[S, F]) []globalEdge { return idx.toVtx[v] }

// TraceStep is one hop of a witness trace: the method a statement belongs
// to, paired with the statement itself. Rendering a step to (file, line,
// source text) is left to the caller, since S alone may or may not carry
// that information (spec.md Non-goals: no mandated on-disk format).
type TraceStep[S comparable, M comparable] struct {
	Method M
	Stmt   S
}

// TraceGraph is the Trace-Graph Builder's output for one sink vertex
// (spec.md §4.4): every Zero-fact or otherwise-unexplained vertex that can
// reach the sink, and the adjacency between them, in source-to-sink
// order.
type TraceGraph[S comparable, F comparable, M comparable] struct {
	Sink    Vertex[S, F]
	Sources map[Vertex[S, F]]struct{}

	adj   map[Vertex[S, F]]map[Vertex[S, F]]struct{}
	graph Graph[S, M]
}

func (tg *TraceGraph[S, F, M]) addSource(v Vertex[S, F]) {
	if tg.Sources == nil {
		tg.Sources = map[Vertex[S, F]]struct{}{}
	}
	tg.Sources[v] = struct{}{}
}

func (tg *TraceGraph[S, F, M]) link(from, to Vertex[S, F]) {
	if from == to {
		return
	}
	if tg.adj == nil {
		tg.adj = map[Vertex[S, F]]map[Vertex[S, F]]struct{}{}
	}
	if tg.adj[from] == nil {
		tg.adj[from] = map[Vertex[S, F]]struct{}{}
	}
	tg.adj[from][to] = struct{}{}
}

// TraceGraph reconstructs the witness-trace graph for a sink vertex
// (spec.md §4.4): a reverse-edge DFS over predecessor records, stopping
// at a method's entry while expanding through a summary so recursion
// through the summary's own interior cannot cross back out and cycle.
func (r *Result[S, M, F]) TraceGraph(sink Vertex[S, F]) *TraceGraph[S, F, M] {
	tg := &TraceGraph[S, F, M]{Sink: sink, graph: r.graph}
	visited := map[globalEdge]bool{}

	var walk func(ge globalEdge, lastVertex Vertex[S, F], stopAtMethodStart bool)
	walk = func(ge globalEdge, lastVertex Vertex[S, F], stopAtMethodStart bool) {
		if visited[ge] {
			return
		}
		visited[ge] = true
		e := r.idx.edge(ge)

		if e.To.Fact == r.zero {
			tg.addSource(e.To)
			tg.link(e.To, lastVertex)
		}

		reasons := r.idx.predsOf(ge)
		if len(reasons) == 0 {
			tg.addSource(e.To)
			tg.link(e.To, lastVertex)
			return
		}

		for _, rsn := range reasons {
			switch rsn.Kind {
			case ReasonInitial:
				tg.addSource(e.To)
				tg.link(e.To, lastVertex)
			case ReasonSequent, ReasonCallToReturn:
				pe := r.idx.edge(rsn.Pred)
				if pe.To.Fact == e.To.Fact {
					walk(rsn.Pred, lastVertex, stopAtMethodStart)
				} else {
					tg.link(pe.To, lastVertex)
					walk(rsn.Pred, pe.To, stopAtMethodStart)
				}
			case ReasonCallToStart:
				if stopAtMethodStart {
					continue
				}
				walk(rsn.Pred, lastVertex, stopAtMethodStart)
			case ReasonExitToReturnSite, ReasonThroughSummary, ReasonCrossUnitCall:
				sumTo := r.idx.edge(rsn.Summary).To
				tg.link(sumTo, lastVertex)
				predTo := r.idx.edge(rsn.Pred).To
				tg.link(predTo, sumTo)
				walk(rsn.Summary, sumTo, true)
				walk(rsn.Pred, predTo, stopAtMethodStart)
			case ReasonExternal:
				tg.addSource(e.To)
				tg.link(e.To, lastVertex)
			}
		}
	}

	for _, ge := range r.idx.edgesTo(sink) {
		walk(ge, sink, false)
	}
	return tg
}

// Traces enumerates up to maxTraces simple source-to-sink paths through
// the graph, each expressed as a sequence of TraceSteps in source-to-sink
// order (spec.md §6 result schema: "trace — an ordered list of (method,
// statement) pairs"). Enumeration is a bounded DFS; if more paths exist
// than maxTraces, the excess are silently not enumerated (spec.md §6:
// "at most N witness traces per vulnerability... selection among
// multiple satisfying traces is unspecified").
func (tg *TraceGraph[S, F, M]) Traces(maxTraces int) [][]TraceStep[S, M] {
	if maxTraces <= 0 {
		maxTraces = 3
	}
	var out [][]TraceStep[S, M]
	visiting := map[Vertex[S, F]]bool{}

	var path []Vertex[S, F]
	var dfs func(v Vertex[S, F])
	dfs = func(v Vertex[S, F]) {
		if len(out) >= maxTraces || visiting[v] {
			return
		}
		visiting[v] = true
		path = append(path, v)
		if v == tg.Sink {
			out = append(out, tg.renderPath(path))
		} else {
			for next := range tg.adj[v] {
				if len(out) >= maxTraces {
					break
				}
				dfs(next)
			}
		}
		path = path[:len(path)-1]
		visiting[v] = false
	}

	for src := range tg.Sources {
		if len(out) >= maxTraces {
			break
		}
		dfs(src)
	}
	return out
}

func (tg *TraceGraph[S, F, M]) renderPath(path []Vertex[S, F]) []TraceStep[S, M] {
	steps := make([]TraceStep[S, M], len(path))
	for i, v := range path {
		steps[i] = TraceStep[S, M]{Method: tg.graph.MethodOf(v.Stmt), Stmt: v.Stmt}
	}
	return steps
}

// Finding is the self-contained, renderable form of one Vulnerability:
// the sink, its message/rule, and up to MaxTraces witness traces (spec.md
// §6 result schema). Building it is the caller's final assembly step, not
// part of Manager.Run, so persistence/rendering stays decoupled from the
// solver (spec.md Non-goals: no mandated on-disk format).
type Finding[S comparable, F comparable, M comparable] struct {
	Vulnerability[S, F]
	Traces [][]TraceStep[S, M]
}

// Findings assembles one Finding per reported vulnerability, each with up
// to maxTraces witness traces.
func (r *Result[S, M, F]) Findings(maxTraces int) []Finding[S, F, M] {
	out := make([]Finding[S, F, M], 0, len(r.Vulnerabilities))
	for _, v := range r.Vulnerabilities {
		tg := r.TraceGraph(v.Sink)
		out = append(out, Finding[S, F, M]{Vulnerability: v, Traces: tg.Traces(maxTraces)})
	}
	return out
}
