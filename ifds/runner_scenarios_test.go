package ifds

import (
	"context"
	"testing"
	"time"
)

// testGraph is a hand-built Application Graph over plain strings: S and M
// are both string, so a statement id doubles as a label in test failure
// output. Every scenario below builds one of these rather than loading a
// real Go program, mirroring how analysis/taint's own logic is exercised
// indirectly through ssagraph in production but is cheap to fake here.
type testGraph struct {
	entries   map[string][]string
	exits     map[string][]string
	succ      map[string][]string
	methodOf  map[string]string
	callees   map[string][]string
	callSites map[string]bool
}

func (g *testGraph) EntryPoints(m string) []string { return g.entries[m] }
func (g *testGraph) ExitPoints(m string) []string   { return g.exits[m] }
func (g *testGraph) Successors(s string) []string   { return g.succ[s] }
func (g *testGraph) MethodOf(s string) string       { return g.methodOf[s] }
func (g *testGraph) Callees(s string) []string      { return g.callees[s] }
func (g *testGraph) IsCallSite(s string) bool       { return g.callSites[s] }

var _ Graph[string, string] = (*testGraph)(nil)

const (
	zeroFact    = ""
	taintedFact = "tainted"
)

// taintCfg names source/sink/sanitizer statements by plain equality
// (testGraph's statements are already unique labels, so no glob matching
// is needed the way analysis/taint.Config needs it against qualified
// names). blocksAt marks a callee entry that never forwards an incoming
// tainted fact — used to model one override of a virtual call behaving
// differently from another (scenario 4).
type taintCfg struct {
	sources    map[string]bool
	sinks      map[string]bool
	sanitizers map[string]bool
	blocksAt   map[string]bool
}

// testFlow is a reference FlowFunctions/SinkChecker implementation over
// testGraph. Unlike analysis/taint.Taint, whose CallToReturn carries every
// fact across a call, CallToReturn here only bypasses a call when nothing
// resolves it (no callees) or a source introduces taint there; a call with resolvable callees kills the fact
// on its call-to-return edge; the real effect must return via
// CallToStart → callee → ExitToReturnSite. Without this, scenarios that
// exercise the interprocedural/cross-unit path would also pass facts
// through the wrong channel and never actually exercise it.
type testFlow struct {
	graph *testGraph
	cfg   taintCfg
}

var (
	_ FlowFunctions[string, string, string] = (*testFlow)(nil)
	_ SinkChecker[string, string]           = (*testFlow)(nil)
)

func (f *testFlow) Initial(string) []string { return []string{zeroFact} }

func (f *testFlow) Sequent(_, _ string, fact string) []string { return []string{fact} }

func (f *testFlow) CallToReturn(call, _ string, fact string) []string {
	if fact == taintedFact && f.cfg.sanitizers[call] {
		return nil
	}
	if len(f.graph.callees[call]) > 0 {
		if fact == zeroFact && f.cfg.sources[call] {
			return []string{zeroFact, taintedFact}
		}
		return nil
	}
	out := []string{fact}
	if fact == zeroFact && f.cfg.sources[call] {
		out = append(out, taintedFact)
	}
	return out
}

func (f *testFlow) CallToStart(_, entry string, fact string) []string {
	if fact == taintedFact && f.cfg.blocksAt[entry] {
		return nil
	}
	return []string{fact}
}

func (f *testFlow) ExitToReturnSite(_, _, _ string, fact string) []string {
	return []string{fact}
}

func (f *testFlow) IsSink(v Vertex[string, string]) (bool, string, string) {
	if v.Fact != taintedFact || !f.cfg.sinks[v.Stmt] {
		return false, "", ""
	}
	return true, "tainted value reaches " + v.Stmt, v.Stmt
}

func runScenario(t *testing.T, g *testGraph, flow *testFlow, resolver Resolver[string], seeds []string) *Result[string, string, string] {
	t.Helper()
	cfg := &Config[string, string, string]{
		Graph:     g,
		Flow:      flow,
		Sink:      flow,
		Resolver:  resolver,
		Zero:      zeroFact,
		MaxTraces: 3,
	}
	mgr, err := NewManager(cfg, seeds)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cancelled {
		t.Fatal("scenario did not reach quiescence before the test timeout")
	}
	return result
}

func methodByName() Resolver[string] { return MethodResolver(func(m string) string { return m }) }

// --- Scenario 1: straight-line taint (spec.md §8.1) -----------------------

func newStraightLineGraph() *testGraph {
	return &testGraph{
		entries:   map[string][]string{"main": {"m1"}},
		exits:     map[string][]string{"main": {"m3"}},
		succ:      map[string][]string{"m1": {"m2"}, "m2": {"m3"}, "m3": {}},
		methodOf:  map[string]string{"m1": "main", "m2": "main", "m3": "main"},
		callees:   map[string][]string{"m1": {}, "m2": {}, "m3": {}},
		callSites: map[string]bool{"m1": true, "m2": false, "m3": true},
	}
}

func TestScenario_StraightLineTaint(t *testing.T) {
	g := newStraightLineGraph()
	flow := &testFlow{graph: g, cfg: taintCfg{
		sources: map[string]bool{"m1": true},
		sinks:   map[string]bool{"m3": true},
	}}
	result := runScenario(t, g, flow, methodByName(), []string{"main"})

	if len(result.Vulnerabilities) != 1 {
		t.Fatalf("expected 1 vulnerability, got %d: %+v", len(result.Vulnerabilities), result.Vulnerabilities)
	}
	v := result.Vulnerabilities[0]
	if v.Sink.Stmt != "m3" {
		t.Errorf("expected sink at m3, got %v", v.Sink.Stmt)
	}

	tg := result.TraceGraph(v.Sink)
	traces := tg.Traces(3)
	if len(traces) == 0 {
		t.Fatal("expected at least one witness trace")
	}
	last := traces[0][len(traces[0])-1]
	if last.Stmt != "m3" {
		t.Errorf("expected trace to end at sink m3, got %v", last.Stmt)
	}
}

// --- Scenario 2: sanitizer blocks flow (spec.md §8.2) ---------------------

func newSanitizerGraph() *testGraph {
	return &testGraph{
		entries:   map[string][]string{"main": {"m1"}},
		exits:     map[string][]string{"main": {"m3"}},
		succ:      map[string][]string{"m1": {"m2"}, "m2": {"m3"}, "m3": {}},
		methodOf:  map[string]string{"m1": "main", "m2": "main", "m3": "main"},
		callees:   map[string][]string{"m1": {}, "m2": {}, "m3": {}},
		callSites: map[string]bool{"m1": true, "m2": true, "m3": true},
	}
}

func TestScenario_SanitizerBlocksFlow(t *testing.T) {
	g := newSanitizerGraph()
	flow := &testFlow{graph: g, cfg: taintCfg{
		sources:    map[string]bool{"m1": true},
		sinks:      map[string]bool{"m3": true},
		sanitizers: map[string]bool{"m2": true},
	}}
	result := runScenario(t, g, flow, methodByName(), []string{"main"})

	if len(result.Vulnerabilities) != 0 {
		t.Fatalf("expected 0 vulnerabilities, got %d: %+v", len(result.Vulnerabilities), result.Vulnerabilities)
	}
}

// --- Scenario 3: interprocedural through summary (spec.md §8.3) ----------
//
// main and f share a unit, exercising the same-unit ExitToReturnSite /
// ThroughSummary replay path. Scenario 5 below puts them in separate units
// to exercise the cross-unit protocol instead.

func newInterproceduralGraph() *testGraph {
	return &testGraph{
		entries:   map[string][]string{"main": {"m1"}, "f": {"f1"}},
		exits:     map[string][]string{"main": {"m3"}, "f": {"f1"}},
		succ:      map[string][]string{"m1": {"m2"}, "m2": {"m3"}, "m3": {}, "f1": {}},
		methodOf:  map[string]string{"m1": "main", "m2": "main", "m3": "main", "f1": "f"},
		callees:   map[string][]string{"m1": {}, "m2": {"f"}, "m3": {}, "f1": {}},
		callSites: map[string]bool{"m1": true, "m2": true, "m3": true, "f1": false},
	}
}

func TestScenario_InterproceduralThroughSummary(t *testing.T) {
	g := newInterproceduralGraph()
	flow := &testFlow{graph: g, cfg: taintCfg{
		sources: map[string]bool{"m1": true},
		sinks:   map[string]bool{"m3": true},
	}}
	sameUnit := ClassResolver(func(string) string { return "prog" })
	result := runScenario(t, g, flow, sameUnit, []string{"main"})

	if len(result.Vulnerabilities) != 1 {
		t.Fatalf("expected 1 vulnerability, got %d: %+v", len(result.Vulnerabilities), result.Vulnerabilities)
	}
	tg := result.TraceGraph(result.Vulnerabilities[0].Sink)
	traces := tg.Traces(3)
	if len(traces) == 0 {
		t.Fatal("expected at least one witness trace crossing into f")
	}
}

// --- Scenario 4: virtual call over-approximation (spec.md §8.4) ----------

func newVirtualCallGraph() *testGraph {
	return &testGraph{
		entries: map[string][]string{"main": {"m1"}, "A.m": {"a1"}, "B.m": {"b1"}},
		exits:   map[string][]string{"main": {"m3"}, "A.m": {"a1"}, "B.m": {"b1"}},
		succ: map[string][]string{
			"m1": {"m2"}, "m2": {"m3"}, "m3": {},
			"a1": {}, "b1": {},
		},
		methodOf: map[string]string{
			"m1": "main", "m2": "main", "m3": "main",
			"a1": "A.m", "b1": "B.m",
		},
		callees: map[string][]string{
			"m1": {}, "m2": {"A.m", "B.m"}, "m3": {}, "a1": {}, "b1": {},
		},
		callSites: map[string]bool{"m1": true, "m2": true, "m3": true},
	}
}

func TestScenario_VirtualCallOverApproximation(t *testing.T) {
	g := newVirtualCallGraph()
	flow := &testFlow{graph: g, cfg: taintCfg{
		sources:  map[string]bool{"m1": true},
		sinks:    map[string]bool{"m3": true},
		blocksAt: map[string]bool{"b1": true}, // B.m never forwards taint
	}}
	result := runScenario(t, g, flow, methodByName(), []string{"main"})

	if len(result.Vulnerabilities) != 1 {
		t.Fatalf("expected 1 vulnerability (union of both overrides), got %d: %+v", len(result.Vulnerabilities), result.Vulnerabilities)
	}
	if len(result.Incomplete) != 0 {
		t.Errorf("expected no incomplete methods, got %+v", result.Incomplete)
	}
}

// --- Scenario 5: cross-unit (spec.md §8.5) --------------------------------
//
// f is deliberately NOT in the seed set: the only way its unit ever gets
// created and its own entry vertex explored is via the cross-unit
// SubscriptionOnStart → openEntry path. This is the direct regression test
// for the fix recorded in DESIGN.md ("cross-unit calls never opened the
// callee's own entry vertex").

func TestScenario_CrossUnit(t *testing.T) {
	g := newInterproceduralGraph()
	flow := &testFlow{graph: g, cfg: taintCfg{
		sources: map[string]bool{"m1": true},
		sinks:   map[string]bool{"m3": true},
	}}
	cfg := &Config[string, string, string]{
		Graph: g, Flow: flow, Sink: flow, Resolver: methodByName(), Zero: zeroFact, MaxTraces: 3,
	}
	mgr, err := NewManager(cfg, []string{"main"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := mgr.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Cancelled {
		t.Fatal("run did not reach quiescence before the test timeout")
	}
	if len(result.Vulnerabilities) != 1 {
		t.Fatalf("expected 1 vulnerability via the cross-unit summary, got %d: %+v", len(result.Vulnerabilities), result.Vulnerabilities)
	}

	fUnit := UnitID{Kind: MethodUnit, Key: "f"}
	var fStats *Stats
	for i := range result.Stats {
		if result.Stats[i].Unit == fUnit {
			fStats = &result.Stats[i]
		}
	}
	if fStats == nil {
		t.Fatal("f's own unit was never created; the cross-unit call should have seeded it")
	}
	if fStats.Edges == 0 {
		t.Error("f's own unit produced no edges; its summary must have been computed in the wrong unit, or not at all")
	}
}

// --- Scenario 6: cycle / recursion (spec.md §8.6) -------------------------

func newRecursionGraph() *testGraph {
	return &testGraph{
		entries:   map[string][]string{"f": {"f1"}},
		exits:     map[string][]string{"f": {"f2", "f4"}},
		succ:      map[string][]string{"f1": {"f2", "f3"}, "f2": {}, "f3": {"f4"}, "f4": {}},
		methodOf:  map[string]string{"f1": "f", "f2": "f", "f3": "f", "f4": "f"},
		callees:   map[string][]string{"f3": {"f"}},
		callSites: map[string]bool{"f3": true},
	}
}

func TestScenario_Recursion(t *testing.T) {
	g := newRecursionGraph()
	flow := &testFlow{graph: g, cfg: taintCfg{}}
	result := runScenario(t, g, flow, methodByName(), []string{"f"})

	if len(result.Vulnerabilities) != 0 {
		t.Errorf("expected no vulnerabilities in a plain recursive reachability run, got %+v", result.Vulnerabilities)
	}
	if len(result.Incomplete) != 0 {
		t.Errorf("expected no incomplete methods, got %+v", result.Incomplete)
	}
}

// --- Round-trip property: resolver choice (spec.md §8) --------------------

func TestProperty_ResolverSwitchPreservesVulnerabilities(t *testing.T) {
	build := func() (*testGraph, *testFlow) {
		g := newInterproceduralGraph()
		flow := &testFlow{graph: g, cfg: taintCfg{
			sources: map[string]bool{"m1": true},
			sinks:   map[string]bool{"m3": true},
		}}
		return g, flow
	}

	g1, flow1 := build()
	byMethod := runScenario(t, g1, flow1, methodByName(), []string{"main", "f"})

	g2, flow2 := build()
	singleton := runScenario(t, g2, flow2, SingletonResolver[string](), []string{"main", "f"})

	if len(byMethod.Vulnerabilities) != len(singleton.Vulnerabilities) {
		t.Fatalf("resolver switch changed vulnerability count: method=%d singleton=%d",
			len(byMethod.Vulnerabilities), len(singleton.Vulnerabilities))
	}
	for i, v := range byMethod.Vulnerabilities {
		if v.Sink != singleton.Vulnerabilities[i].Sink {
			t.Errorf("vulnerability %d sink differs across resolvers: %v vs %v", i, v.Sink, singleton.Vulnerabilities[i].Sink)
		}
	}
}

// --- Boundary property: no-calls method produces one summary per exit ----

func TestProperty_NoCallsProducesOneSelfLoopSummaryPerExit(t *testing.T) {
	g := &testGraph{
		entries:  map[string][]string{"g": {"g1"}},
		exits:    map[string][]string{"g": {"g2", "g3"}},
		succ:     map[string][]string{"g1": {"g2", "g3"}, "g2": {}, "g3": {}},
		methodOf: map[string]string{"g1": "g", "g2": "g", "g3": "g"},
	}
	flow := &testFlow{graph: g, cfg: taintCfg{}}
	cfg := &Config[string, string, string]{
		Graph: g, Flow: flow, Sink: flow, Resolver: methodByName(), Zero: zeroFact, MaxTraces: 3,
	}
	mgr, err := NewManager(cfg, []string{"g"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := mgr.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r := mgr.runners[UnitID{Kind: MethodUnit, Key: "g"}]
	if r == nil {
		t.Fatal("runner for g was not created")
	}
	entry := Vertex[string, string]{Stmt: "g1", Fact: zeroFact}
	sids := r.summariesByFrom[entry]
	if len(sids) != 2 {
		t.Fatalf("expected exactly one summary per exit point (2 exits), got %d: %v", len(sids), sids)
	}
	seenExits := map[string]bool{}
	for _, sid := range sids {
		seenExits[r.edges[sid].To.Stmt] = true
	}
	if !seenExits["g2"] || !seenExits["g3"] {
		t.Errorf("expected summaries reaching both g2 and g3, got %v", seenExits)
	}
}
