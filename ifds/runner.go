package ifds

import (
	"fmt"
	"sync/atomic"

	"github.com/cpg-gen/ifds-solve/internal/progress"
)

// Vulnerability is a sink hit: a vertex the SinkChecker flagged, plus the
// message and rule name it supplied (spec.md §3 data model).
type Vulnerability[S comparable, F comparable] struct {
	Sink    Vertex[S, F]
	Message string
	Rule    string
}

// mailbox is an unbounded, concurrency-safe inbound queue with edge-
// triggered wakeup. A fixed-size channel would let a slow Runner's inbox
// backpressure a fast one; this keeps every Runner's own worklist and
// arena (§5: "unbounded") the only things that grow without bound, while
// inbound delivery itself never blocks the sender.
type mailbox struct {
	mu          chan struct{} // 1-buffered, used as a mutex
	queue       []any
	sig         chan struct{} // 1-buffered, "new message(s) waiting"
	outstanding *int64        // shared with the owning Manager
}

func newMailbox(outstanding *int64) *mailbox {
	m := &mailbox{mu: make(chan struct{}, 1), sig: make(chan struct{}, 1), outstanding: outstanding}
	m.mu <- struct{}{}
	return m
}

func (b *mailbox) push(msg any) {
	<-b.mu
	b.queue = append(b.queue, msg)
	b.mu <- struct{}{}
	atomic.AddInt64(b.outstanding, 1)
	select {
	case b.sig <- struct{}{}:
	default:
	}
}

func (b *mailbox) drain() []any {
	<-b.mu
	q := b.queue
	b.queue = nil
	b.mu <- struct{}{}
	if len(q) > 0 {
		atomic.AddInt64(b.outstanding, -int64(len(q)))
	}
	return q
}

// runner is the per-unit worker of spec.md §4: it owns its worklist, edge
// arena, predecessor index, summary table, and pending-caller table
// exclusively — no other goroutine ever touches them. All cross-unit
// communication happens by value, through messages routed by the Manager.
type runner[S comparable, M comparable, F comparable] struct {
	unit UnitID
	cfg  *Config[S, M, F]
	out  chan any // shared inbound channel of the Manager
	in   *mailbox

	edges      []Edge[S, F]
	edgeIndex  map[Edge[S, F]]EdgeID
	preds      map[EdgeID]map[Reason]struct{}
	worklist   []EdgeID
	worklisted map[EdgeID]bool

	// callers[v] holds the ids of caller edges awaiting a summary at
	// entry vertex v (v is always a self-loop entry, v.Stmt a method
	// entry point).
	callers map[Vertex[S, F]][]EdgeID

	// summariesByFrom[v] holds the ids of summary edges already
	// discovered with From == v, so a caller registered after the
	// summary was published can still be replayed against it.
	summariesByFrom map[Vertex[S, F]][]EdgeID
	summariesByM    map[M][]globalEdge

	incomplete map[M]string

	subscribed map[SubscriptionID]bool

	// log tags every message with this Runner's own unit, so call sites
	// below never repeat r.unit in their own format strings.
	log *progress.Logger
}

func newRunner[S comparable, M comparable, F comparable](unit UnitID, cfg *Config[S, M, F], out chan any, outstanding *int64) *runner[S, M, F] {
	return &runner[S, M, F]{
		unit:            unit,
		cfg:             cfg,
		out:             out,
		in:              newMailbox(outstanding),
		log:             cfg.Progress.WithUnit(unit.Kind.String() + " " + unit.Key),
		edgeIndex:       map[Edge[S, F]]EdgeID{},
		preds:           map[EdgeID]map[Reason]struct{}{},
		worklisted:      map[EdgeID]bool{},
		callers:         map[Vertex[S, F]][]EdgeID{},
		summariesByFrom: map[Vertex[S, F]][]EdgeID{},
		summariesByM:    map[M][]globalEdge{},
		incomplete:      map[M]string{},
		subscribed:      map[SubscriptionID]bool{},
	}
}

func (r *runner[S, M, F]) send(msg any) { r.out <- msg }

// seedInitial pre-populates the worklist for one seed method. Called only
// before any goroutine for this runner has started (see Manager.Run).
func (r *runner[S, M, F]) seedInitial(m M) {
	for _, entry := range r.safeEntryPoints(m) {
		for _, f := range r.safeInitial(m) {
			v := Vertex[S, F]{Stmt: entry, Fact: f}
			r.addEdge(Edge[S, F]{From: v, To: v}, reasonInitial())
		}
	}
}

// loop is the Runner's goroutine body (spec.md §4.2's main loop, plus the
// mailbox drain and idle/busy reporting of §5).
func (r *runner[S, M, F]) loop(done <-chan struct{}) {
	for {
		for _, msg := range r.in.drain() {
			r.handle(msg)
		}
		if len(r.worklist) == 0 {
			r.send(idleReport{unit: r.unit})
			select {
			case <-r.in.sig:
				r.send(busyReport{unit: r.unit})
				continue
			case <-done:
				return
			}
		}
		id := r.worklist[0]
		r.worklist = r.worklist[1:]
		delete(r.worklisted, id)
		r.process(id)
	}
}

func (r *runner[S, M, F]) handle(msg any) {
	switch m := msg.(type) {
	case resolvedCall[M]:
		r.handleResolvedCall(m)
	case openEntry[S, F]:
		r.addEdge(Edge[S, F]{From: m.entry, To: m.entry}, reasonCallToStart(m.pred))
	case notificationOnStart[S, F]:
		r.handleNotification(m)
	default:
		panic(fmt.Sprintf("ifds: runner %v received unroutable message %T", r.unit, msg))
	}
}

// addEdge inserts e if new, recording reason as (one of) its
// justification(s), and enqueues it for processing. Idempotent: replaying
// an already-known (edge, reason) pair changes nothing (spec.md §8).
func (r *runner[S, M, F]) addEdge(e Edge[S, F], reason Reason) (EdgeID, bool) {
	if id, ok := r.edgeIndex[e]; ok {
		if r.preds[id] == nil {
			r.preds[id] = map[Reason]struct{}{}
		}
		r.preds[id][reason] = struct{}{}
		return id, false
	}
	id := EdgeID(len(r.edges))
	r.edges = append(r.edges, e)
	r.edgeIndex[e] = id
	r.preds[id] = map[Reason]struct{}{reason: {}}
	if !r.worklisted[id] {
		r.worklist = append(r.worklist, id)
		r.worklisted[id] = true
	}
	return id, true
}

func (r *runner[S, M, F]) process(id EdgeID) {
	e := r.edges[id]
	stmt := e.To.Stmt
	m := r.safeMethodOf(stmt)
	switch {
	case r.safeIsCallSite(stmt):
		r.handleCallSite(id, e)
	case isExitSafe(r, m, stmt):
		r.handleExit(id, e, m)
	default:
		r.handleSequent(id, e, stmt)
	}
	r.checkSink(e.To)
}

func isExitSafe[S comparable, M comparable, F comparable](r *runner[S, M, F], m M, stmt S) bool {
	for _, ep := range r.safeExitPoints(m) {
		if ep == stmt {
			return true
		}
	}
	return false
}

func (r *runner[S, M, F]) handleSequent(id EdgeID, e Edge[S, F], stmt S) {
	for _, next := range r.safeSuccessors(stmt) {
		for _, f := range r.safeSequent(stmt, next, e.To.Fact) {
			to := Vertex[S, F]{Stmt: next, Fact: f}
			r.addEdge(Edge[S, F]{From: e.From, To: to}, reasonSequent(globalEdge{r.unit, id}))
		}
	}
}

func (r *runner[S, M, F]) handleCallSite(id EdgeID, e Edge[S, F]) {
	r.send(unresolvedCall[S]{unit: r.unit, edge: id, call: e.To.Stmt})
	for _, rs := range r.safeSuccessors(e.To.Stmt) {
		for _, f := range r.safeCallToReturn(e.To.Stmt, rs, e.To.Fact) {
			to := Vertex[S, F]{Stmt: rs, Fact: f}
			r.addEdge(Edge[S, F]{From: e.From, To: to}, reasonCallToReturn(globalEdge{r.unit, id}))
		}
	}
}

func (r *runner[S, M, F]) handleExit(id EdgeID, e Edge[S, F], m M) {
	r.summariesByFrom[e.From] = append(r.summariesByFrom[e.From], id)
	r.summariesByM[m] = append(r.summariesByM[m], globalEdge{r.unit, id})
	r.send(newSummaryEdge[S, F]{unit: r.unit, id: id, edge: e})
	r.replayExit(e.From, globalEdge{r.unit, id}, e.To)
}

// replayExit applies exitToReturnSite for every local caller pending on
// entry, given that a local summary just became available. exit is the
// summary's own (exit-statement, exit-fact) vertex — exitToReturnSite
// needs the exit fact itself (e.g. to recognise which callee parameter or
// return value it names), not merely the caller's call-time fact.
func (r *runner[S, M, F]) replayExit(entry Vertex[S, F], summary globalEdge, exit Vertex[S, F]) {
	for _, callerID := range r.callers[entry] {
		r.replayOneCaller(callerID, summary, exit, reasonExitToReturnSite)
	}
}

func (r *runner[S, M, F]) replayOneCaller(callerID EdgeID, summary globalEdge, exit Vertex[S, F], mk func(caller, summary globalEdge) Reason) {
	caller := r.edges[callerID]
	callSite := caller.To.Stmt
	for _, rsite := range r.safeSuccessors(callSite) {
		for _, f := range r.safeExitToReturnSite(callSite, rsite, exit.Stmt, exit.Fact) {
			to := Vertex[S, F]{Stmt: rsite, Fact: f}
			r.addEdge(Edge[S, F]{From: caller.From, To: to}, mk(globalEdge{r.unit, callerID}, summary))
		}
	}
}

func (r *runner[S, M, F]) handleResolvedCall(msg resolvedCall[M]) {
	callerID := msg.edge
	if int(callerID) >= len(r.edges) {
		return
	}
	caller := r.edges[callerID]
	callee := msg.callee
	calleeUnit := r.cfg.Resolver(callee)
	for _, entry := range r.safeEntryPoints(callee) {
		for _, f := range r.safeCallToStart(caller.To.Stmt, entry, caller.To.Fact) {
			v := Vertex[S, F]{Stmt: entry, Fact: f}
			if calleeUnit == r.unit {
				r.callers[v] = append(r.callers[v], callerID)
				r.addEdge(Edge[S, F]{From: v, To: v}, reasonCallToStart(globalEdge{r.unit, callerID}))
				// Catch up a newly-registered local caller against any
				// summary already published at v (ReasonThroughSummary:
				// replaying an already-known local summary, as opposed to
				// replayExit's live first-time production).
				for _, sid := range r.summariesByFrom[v] {
					sum := r.edges[sid]
					r.replayOneCaller(callerID, globalEdge{r.unit, sid}, sum.To, reasonThroughSummary)
				}
			} else {
				// The self-edge itself belongs in the callee's own arena,
				// not here — the Manager opens it there via openEntry once
				// it routes this subscription (spec.md §4.2 step 4; see
				// Manager.handleSubscription).
				id := newSubscriptionID()
				r.subscribed[id] = true
				r.send(subscriptionOnStart[S, F]{from: r.unit, target: calleeUnit, entry: v, callerEdge: callerID, id: id})
			}
		}
	}
}

func (r *runner[S, M, F]) handleNotification(msg notificationOnStart[S, F]) {
	if int(msg.subscriberEdge) >= len(r.edges) {
		r.log.Warn("notification for unknown subscriber edge %d, dropping", msg.subscriberEdge)
		return
	}
	// Delivered across a unit boundary via the Manager's subscription
	// routing — ReasonCrossUnitCall, not the local-replay ReasonThroughSummary.
	r.replayOneCaller(msg.subscriberEdge, msg.summary.ref(), msg.summary.Edge.To, reasonCrossUnitCall)
}

func (r *runner[S, M, F]) checkSink(v Vertex[S, F]) {
	ok, message, rule := r.cfg.Sink.IsSink(v)
	if !ok {
		return
	}
	r.send(newVulnerability[S, F]{v: Vulnerability[S, F]{Sink: v, Message: message, Rule: rule}})
}

// --- guarded collaborator calls -------------------------------------------
//
// spec.md §7: an inconsistent Application Graph (e.g. Successors of a
// statement the graph cannot place) is fatal only to the enclosing
// method, never to the run. Every Graph/FlowFunctions call a Runner makes
// is therefore wrapped with recover; a panic marks the method incomplete
// (or, for flow functions, is simply treated as "no facts produced") and
// processing continues.

func (r *runner[S, M, F]) markIncomplete(m M, reason string) {
	if _, ok := r.incomplete[m]; ok {
		return
	}
	r.incomplete[m] = reason
	r.log.Warn("method marked incomplete: %s", reason)
}

func (r *runner[S, M, F]) safeEntryPoints(m M) (out []S) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markIncomplete(m, fmt.Sprintf("EntryPoints panicked: %v", rec))
			out = nil
		}
	}()
	return r.cfg.Graph.EntryPoints(m)
}

func (r *runner[S, M, F]) safeExitPoints(m M) (out []S) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markIncomplete(m, fmt.Sprintf("ExitPoints panicked: %v", rec))
			out = nil
		}
	}()
	return r.cfg.Graph.ExitPoints(m)
}

func (r *runner[S, M, F]) safeSuccessors(s S) (out []S) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markIncomplete(r.safeMethodOfRaw(s), fmt.Sprintf("Successors panicked: %v", rec))
			out = nil
		}
	}()
	return r.cfg.Graph.Successors(s)
}

func (r *runner[S, M, F]) safeMethodOf(s S) (m M) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("MethodOf panicked: %v", rec)
		}
	}()
	return r.cfg.Graph.MethodOf(s)
}

// safeMethodOfRaw is used from within another guarded call (safeSuccessors
// etc.) where a second panic must not escape the already-active recover.
func (r *runner[S, M, F]) safeMethodOfRaw(s S) (m M) {
	defer func() { recover() }()
	return r.cfg.Graph.MethodOf(s)
}

func (r *runner[S, M, F]) safeIsCallSite(s S) (out bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.markIncomplete(r.safeMethodOfRaw(s), fmt.Sprintf("IsCallSite panicked: %v", rec))
			out = false
		}
	}()
	return r.cfg.Graph.IsCallSite(s)
}

func (r *runner[S, M, F]) safeInitial(m M) (out []F) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("Initial panicked for method: %v", rec)
			out = nil
		}
	}()
	return r.cfg.Flow.Initial(m)
}

func (r *runner[S, M, F]) safeSequent(cur, next S, f F) (out []F) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("Sequent panicked: %v", rec)
			out = nil
		}
	}()
	return r.cfg.Flow.Sequent(cur, next, f)
}

func (r *runner[S, M, F]) safeCallToReturn(call, ret S, f F) (out []F) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("CallToReturn panicked: %v", rec)
			out = nil
		}
	}()
	return r.cfg.Flow.CallToReturn(call, ret, f)
}

func (r *runner[S, M, F]) safeCallToStart(call, entry S, f F) (out []F) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("CallToStart panicked: %v", rec)
			out = nil
		}
	}()
	return r.cfg.Flow.CallToStart(call, entry, f)
}

func (r *runner[S, M, F]) safeExitToReturnSite(call, ret, exit S, f F) (out []F) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warn("ExitToReturnSite panicked: %v", rec)
			out = nil
		}
	}()
	return r.cfg.Flow.ExitToReturnSite(call, ret, exit, f)
}

// Stats is a read-only snapshot of a unit's progress, useful for
// diagnostics (SPEC_FULL.md addition).
type Stats struct {
	Unit       UnitID
	Edges      int
	Worklist   int
	Incomplete int
}

func (r *runner[S, M, F]) stats() Stats {
	return Stats{Unit: r.unit, Edges: len(r.edges), Worklist: len(r.worklist), Incomplete: len(r.incomplete)}
}
