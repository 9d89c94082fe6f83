package main

import (
	"context"
	"flag"
	"fmt"
	"go/token"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cpg-gen/ifds-solve/analysis/taint"
	"github.com/cpg-gen/ifds-solve/graph"
	"github.com/cpg-gen/ifds-solve/graph/ssagraph"
	"github.com/cpg-gen/ifds-solve/ifds"
	"github.com/cpg-gen/ifds-solve/internal/progress"
	"github.com/cpg-gen/ifds-solve/store/cpgload"
	"github.com/cpg-gen/ifds-solve/store/ifdsdb"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Using a separate function ensures all defers
// execute even on error paths, unlike os.Exit which skips deferred calls.
func run() error {
	mode := flag.String("mode", "ssa", `Graph source: "ssa" (build live from Go source) or "cpg" (read an existing code-property-graph database)`)
	dir := flag.String("dir", ".", "Module directory to analyze (mode=ssa)")
	patterns := flag.String("patterns", "./...", "Comma-separated go/packages load patterns (mode=ssa)")
	cpgDB := flag.String("cpgdb", "", "Path to an existing code-property-graph SQLite database (mode=cpg)")
	unit := flag.String("unit", "method", `Scheduling-unit granularity: "method", "class", or "package" (mode=ssa only; mode=cpg always uses "method")`)
	sources := flag.String("sources", "", "Comma-separated glob patterns naming taint source functions")
	sinks := flag.String("sinks", "", "Comma-separated glob patterns naming taint sink functions")
	sanitizers := flag.String("sanitizers", "", "Comma-separated glob patterns naming taint sanitizer functions")
	maxTraces := flag.Int("max-traces", 3, "Maximum witness traces to enumerate per vulnerability")
	out := flag.String("out", "", "Output SQLite database path for findings (required)")
	verbose := flag.Bool("verbose", false, "Print detailed progress")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ifds-solve [flags] -out <findings.db>\n\n")
		fmt.Fprintf(os.Stderr, "Runs an interprocedural taint analysis over a Go program and writes the findings to a SQLite database.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("-out is required")
	}

	taintCfg := taint.Config{
		Sources:    splitCSV(*sources),
		Sinks:      splitCSV(*sinks),
		Sanitizers: splitCSV(*sanitizers),
	}
	if len(taintCfg.Sources) == 0 || len(taintCfg.Sinks) == 0 {
		return fmt.Errorf("at least one -sources and one -sinks pattern is required")
	}

	log := progress.New(*verbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Log("received interrupt, cancelling run")
		cancel()
	}()

	switch *mode {
	case "ssa":
		return runSSA(ctx, *dir, strings.Split(*patterns, ","), *unit, taintCfg, *maxTraces, *out, log)
	case "cpg":
		if *cpgDB == "" {
			return fmt.Errorf("-cpgdb is required when -mode=cpg")
		}
		return runCPG(ctx, *cpgDB, taintCfg, *maxTraces, *out, log)
	default:
		return fmt.Errorf("unknown -mode %q, want \"ssa\" or \"cpg\"", *mode)
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// runSSA builds an ifds.Graph live from Go source and runs the taint
// analysis over it.
func runSSA(ctx context.Context, dir string, patterns []string, unit string, taintCfg taint.Config, maxTraces int, out string, log *progress.Logger) error {
	g, err := ssagraph.Load(dir, patterns, log)
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}

	resolver, err := ssaUnitResolver(unit)
	if err != nil {
		return err
	}

	t := &taint.Taint{Graph: g, Config: taintCfg}
	cfg := &ifds.Config[graph.StmtID, graph.MethodID, taint.Fact]{
		Graph:     g,
		Flow:      t,
		Sink:      t,
		Resolver:  resolver,
		Zero:      taint.Zero,
		MaxTraces: maxTraces,
		Progress:  log,
	}

	mgr, err := ifds.NewManager(cfg, g.Methods())
	if err != nil {
		return fmt.Errorf("configuring solver: %w", err)
	}

	log.Log("running solver over %d methods", len(g.Methods()))
	result, err := mgr.Run(ctx)
	if err != nil {
		return fmt.Errorf("running solver: %w", err)
	}
	if result.Cancelled {
		log.Log("run was cancelled; writing partial results")
	}

	findings := result.Findings(maxTraces)
	log.Log("found %d vulnerabilities, %d incomplete methods", len(findings), len(result.Incomplete))

	render := ssaRenderer{graph: g}
	if err := ifdsdb.Write(out, findings, result.Incomplete, render); err != nil {
		return fmt.Errorf("writing findings: %w", err)
	}
	log.Log("wrote findings to %s", out)
	return nil
}

func ssaUnitResolver(name string) (ifds.Resolver[graph.MethodID], error) {
	switch name {
	case "method":
		return ssagraph.MethodUnitResolver(), nil
	case "class":
		return ssagraph.ClassUnitResolver(), nil
	case "package":
		return ssagraph.PackageUnitResolver(), nil
	default:
		return nil, fmt.Errorf("%w: unknown unit resolver %q", ifds.ErrConfiguration, name)
	}
}

// ssaRenderer implements store/ifdsdb.Renderer against a live ssagraph.Graph.
type ssaRenderer struct {
	graph *ssagraph.Graph
}

func (r ssaRenderer) MethodName(m graph.MethodID) string    { return m.String() }
func (r ssaRenderer) MethodOf(s graph.StmtID) graph.MethodID { return s.Func }

func (r ssaRenderer) StmtText(s graph.StmtID) (file string, line int, text string) {
	instr, ok := r.graph.Instr(s)
	if !ok {
		return "", 0, ""
	}
	pos := r.graph.Fset().Position(instr.Pos())
	if pos == (token.Position{}) {
		return "", 0, instr.String()
	}
	return pos.Filename, pos.Line, instr.String()
}

// runCPG adapts an existing code-property-graph database into an
// ifds.Graph and runs the taint analysis over it. Function granularity
// only (see store/cpgload's package doc): trace steps carry method names
// but no file/line/text.
func runCPG(ctx context.Context, path string, taintCfg taint.Config, maxTraces int, out string, log *progress.Logger) error {
	g, err := cpgload.Open(path)
	if err != nil {
		return fmt.Errorf("loading cpg database: %w", err)
	}

	resolver := ifds.MethodResolver(func(m cpgload.FuncID) string { return string(m) })
	return runCPGReachability(ctx, g, resolver, taintCfg, maxTraces, out, log)
}

// cpgload has no SSA values to seed taint.Fact with, so the reachability
// variant over it tracks mere call-graph reachability: a boolean fact
// (tainted/not) rather than a tainted ssa.Value. reachFact and
// cpgReachFlow below are exactly that, grounded on the same source/sink/
// sanitizer matching taint.Config already expresses, collapsed to the
// function granularity cpgload.Graph exposes (see store/cpgload's
// package doc).
func runCPGReachability(ctx context.Context, g *cpgload.Graph, resolver ifds.Resolver[cpgload.FuncID], taintCfg taint.Config, maxTraces int, out string, log *progress.Logger) error {
	flow := &cpgReachFlow{graph: g, cfg: taintCfg}
	cfg := &ifds.Config[cpgload.StmtID, cpgload.FuncID, reachFact]{
		Graph:     g,
		Flow:      flow,
		Sink:      flow,
		Resolver:  resolver,
		Zero:      reachZero,
		MaxTraces: maxTraces,
		Progress:  log,
	}

	mgr, err := ifds.NewManager(cfg, g.Methods())
	if err != nil {
		return fmt.Errorf("configuring solver: %w", err)
	}

	log.Log("running solver over %d functions", len(g.Methods()))
	result, err := mgr.Run(ctx)
	if err != nil {
		return fmt.Errorf("running solver: %w", err)
	}
	if result.Cancelled {
		log.Log("run was cancelled; writing partial results")
	}

	findings := result.Findings(maxTraces)
	log.Log("found %d vulnerabilities, %d incomplete methods", len(findings), len(result.Incomplete))

	render := cpgRenderer{}
	if err := ifdsdb.Write(out, findings, result.Incomplete, render); err != nil {
		return fmt.Errorf("writing findings: %w", err)
	}
	log.Log("wrote findings to %s", out)
	return nil
}

type cpgRenderer struct{}

func (cpgRenderer) MethodName(m cpgload.FuncID) string        { return string(m) }
func (cpgRenderer) MethodOf(s cpgload.StmtID) cpgload.FuncID  { return s.Func }
func (cpgRenderer) StmtText(cpgload.StmtID) (file string, line int, text string) {
	return "", 0, ""
}

// reachFact is the fact domain of the cpgload-backed reachability
// analysis: whether the path reaching this vertex has crossed a
// source-matching call, collapsed to a single bool since cpgload has no
// SSA values to track individually.
type reachFact bool

const reachZero reachFact = false

// cpgReachFlow implements ifds.FlowFunctions/ifds.SinkChecker over
// cpgload's two-statement-per-function collapse: a function's entry is
// tainted if its own name matches a configured source pattern, taint
// rides every call edge (CallToStart/ExitToReturnSite pass the fact
// through unchanged), and a call through a sanitizer-matching callee
// kills it at the CallToReturn approximation.
type cpgReachFlow struct {
	graph *cpgload.Graph
	cfg   taint.Config
}

var (
	_ ifds.FlowFunctions[cpgload.StmtID, cpgload.FuncID, reachFact] = (*cpgReachFlow)(nil)
	_ ifds.SinkChecker[cpgload.StmtID, reachFact]                   = (*cpgReachFlow)(nil)
)

func (f *cpgReachFlow) Initial(m cpgload.FuncID) []reachFact {
	out := []reachFact{reachZero}
	if f.cfg.Matches(f.cfg.Sources, string(m)) {
		out = append(out, reachFact(true))
	}
	return out
}

func (f *cpgReachFlow) Sequent(_, _ cpgload.StmtID, fact reachFact) []reachFact {
	return []reachFact{fact}
}

// CallToReturn bypasses every callee (the Manager resolves them
// separately via ResolvedCall): a tainted fact that reaches a call whose
// callees include a sanitizer does not survive the call-to-return
// approximation.
func (f *cpgReachFlow) CallToReturn(call, _ cpgload.StmtID, fact reachFact) []reachFact {
	if fact {
		for _, callee := range f.graph.Callees(call) {
			if f.cfg.Matches(f.cfg.Sanitizers, string(callee)) {
				return nil
			}
		}
	}
	return []reachFact{fact}
}

func (f *cpgReachFlow) CallToStart(_, _ cpgload.StmtID, fact reachFact) []reachFact {
	return []reachFact{fact}
}

func (f *cpgReachFlow) ExitToReturnSite(_, _, _ cpgload.StmtID, fact reachFact) []reachFact {
	return []reachFact{fact}
}

// IsSink reports a vulnerability when a tainted path reaches a function
// whose own name matches a configured sink pattern.
func (f *cpgReachFlow) IsSink(v ifds.Vertex[cpgload.StmtID, reachFact]) (bool, string, string) {
	if !v.Fact {
		return false, "", ""
	}
	name := string(v.Stmt.Func)
	if !f.cfg.Matches(f.cfg.Sinks, name) {
		return false, "", ""
	}
	return true, "tainted call reaches " + name, name
}
