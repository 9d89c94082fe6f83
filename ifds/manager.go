package ifds

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// entryKey names a (unit, entry-vertex) pair: the address a subscription
// or a published summary is filed under.
type entryKey[S comparable, F comparable] struct {
	Unit  UnitID
	Entry Vertex[S, F]
}

type subscriberRecord struct {
	subscriber UnitID
	callerEdge EdgeID
	id         SubscriptionID
}

// Manager is the single serialized coordinator of spec.md §4.3: it spawns
// one Runner per unit, resolves calls through the Application Graph,
// brokers cross-unit subscriptions, and detects global quiescence. It is
// the only component that ever touches more than one unit's state, and it
// does so exclusively through its own single goroutine — never by
// reaching into a Runner's arena directly.
type Manager[S comparable, M comparable, F comparable] struct {
	cfg   *Config[S, M, F]
	seeds []M

	in          chan any
	outstanding int64

	runners map[UnitID]*runner[S, M, F]
	idle    map[UnitID]bool
	started bool

	subscriptions   map[entryKey[S, F]][]subscriberRecord
	summariesByUnit map[entryKey[S, F]][]summaryRef[S, F]

	vulnerabilities []Vulnerability[S, F]

	terminated bool
	cancelFn   context.CancelFunc
	group      *errgroup.Group
	runCtx     context.Context
}

// NewManager validates cfg and constructs a Manager ready to analyse the
// given seed methods (spec.md §6: "a set of entry points").
func NewManager[S comparable, M comparable, F comparable](cfg *Config[S, M, F], seeds []M) (*Manager[S, M, F], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager[S, M, F]{
		cfg:             cfg,
		seeds:           seeds,
		in:              make(chan any, 1024),
		runners:         map[UnitID]*runner[S, M, F]{},
		idle:            map[UnitID]bool{},
		subscriptions:   map[entryKey[S, F]][]subscriberRecord{},
		summariesByUnit: map[entryKey[S, F]][]summaryRef[S, F]{},
	}, nil
}

// Result is the outcome of one completed (or cancelled) Run.
type Result[S comparable, M comparable, F comparable] struct {
	Vulnerabilities []Vulnerability[S, F]
	Incomplete      []Incomplete[M]
	Cancelled       bool
	Stats           []Stats

	graph Graph[S, M]
	zero  F
	idx   *globalIndex[S, F]
}

// getOrCreateRunner returns the runner for unit, creating it if needed.
// Called only from the Manager's own goroutine (or, during seeding,
// before any goroutine has started) — never concurrently.
func (mgr *Manager[S, M, F]) getOrCreateRunner(unit UnitID) *runner[S, M, F] {
	if r, ok := mgr.runners[unit]; ok {
		return r
	}
	r := newRunner(unit, mgr.cfg, mgr.in, &mgr.outstanding)
	mgr.runners[unit] = r
	mgr.idle[unit] = false
	if mgr.started {
		mgr.group.Go(func() error {
			r.loop(mgr.runCtx.Done())
			return nil
		})
	}
	return r
}

// Run analyses the seed methods to quiescence, or until ctx is cancelled.
func (mgr *Manager[S, M, F]) Run(ctx context.Context) (*Result[S, M, F], error) {
	runCtx, cancel := context.WithCancel(ctx)
	mgr.cancelFn = cancel
	defer cancel()

	for _, m := range mgr.seeds {
		unit := mgr.cfg.Resolver(m)
		mgr.getOrCreateRunner(unit).seedInitial(m)
	}

	g, gctx := errgroup.WithContext(runCtx)
	mgr.group = g
	mgr.runCtx = gctx
	mgr.started = true
	for _, r := range mgr.runners {
		r := r
		g.Go(func() error {
			r.loop(gctx.Done())
			return nil
		})
	}
	g.Go(func() error { return mgr.loop(gctx) })

	_ = g.Wait()

	cancelled := !mgr.terminated
	result := &Result[S, M, F]{
		Vulnerabilities: mgr.vulnerabilities,
		Cancelled:       cancelled,
		graph:           mgr.cfg.Graph,
		zero:            mgr.cfg.Zero,
	}
	for unit, r := range mgr.runners {
		result.Stats = append(result.Stats, r.stats())
		for m, reason := range r.incomplete {
			_ = unit
			result.Incomplete = append(result.Incomplete, Incomplete[M]{Method: m, Reason: reason})
		}
	}
	result.idx = buildGlobalIndex(mgr.runners)
	return result, nil
}

// Cancel stops the run early; Run then returns a partial Result with
// Cancelled set (spec.md §7: "not an error").
func (mgr *Manager[S, M, F]) Cancel() {
	if mgr.cancelFn != nil {
		mgr.cancelFn()
	}
}

func (mgr *Manager[S, M, F]) loop(ctx context.Context) error {
	mgr.checkQuiescence()
	for {
		select {
		case msg := <-mgr.in:
			mgr.handle(msg)
			if mgr.terminated {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (mgr *Manager[S, M, F]) handle(msg any) {
	switch m := msg.(type) {
	case idleReport:
		mgr.idle[m.unit] = true
		mgr.checkQuiescence()
	case busyReport:
		mgr.idle[m.unit] = false
	case unresolvedCall[S]:
		mgr.handleUnresolvedCall(m)
	case subscriptionOnStart[S, F]:
		mgr.handleSubscription(m)
	case newSummaryEdge[S, F]:
		mgr.handleNewSummary(m)
	case newVulnerability[S, F]:
		mgr.vulnerabilities = append(mgr.vulnerabilities, m.v)
	}
}

func (mgr *Manager[S, M, F]) dispatch(unit UnitID, msg any) {
	mgr.idle[unit] = false
	mgr.getOrCreateRunner(unit).in.push(msg)
}

func (mgr *Manager[S, M, F]) handleUnresolvedCall(m unresolvedCall[S]) {
	src := mgr.runners[m.unit]
	if src == nil {
		return
	}
	callees := mgr.safeCallees(src, m.call)
	for _, callee := range callees {
		mgr.dispatch(m.unit, resolvedCall[M]{edge: m.edge, callee: callee})
	}
}

func (mgr *Manager[S, M, F]) safeCallees(src *runner[S, M, F], call S) (out []M) {
	defer func() {
		if rec := recover(); rec != nil {
			src.markIncomplete(src.safeMethodOfRaw(call), "Callees panicked")
			out = nil
		}
	}()
	return mgr.cfg.Graph.Callees(call)
}

func (mgr *Manager[S, M, F]) handleSubscription(m subscriptionOnStart[S, F]) {
	key := entryKey[S, F]{Unit: m.target, Entry: m.entry}
	mgr.subscriptions[key] = append(mgr.subscriptions[key], subscriberRecord{subscriber: m.from, callerEdge: m.callerEdge, id: m.id})
	// Open the entry vertex in the callee's own arena (spec.md §4.2 step
	// 4): addEdge there is idempotent, so this is safe even if the
	// callee's own seeding already reached v by another route.
	mgr.dispatch(m.target, openEntry[S, F]{entry: m.entry, pred: globalEdge{Unit: m.from, ID: m.callerEdge}})
	for _, sr := range mgr.summariesByUnit[key] {
		mgr.dispatch(m.from, notificationOnStart[S, F]{subscriberEdge: m.callerEdge, summary: sr, id: m.id})
	}
}

func (mgr *Manager[S, M, F]) handleNewSummary(m newSummaryEdge[S, F]) {
	key := entryKey[S, F]{Unit: m.unit, Entry: m.edge.From}
	sr := summaryRef[S, F]{Unit: m.unit, ID: m.id, Edge: m.edge}
	mgr.summariesByUnit[key] = append(mgr.summariesByUnit[key], sr)
	for _, sub := range mgr.subscriptions[key] {
		mgr.dispatch(sub.subscriber, notificationOnStart[S, F]{subscriberEdge: sub.callerEdge, summary: sr, id: sub.id})
	}
}

func (mgr *Manager[S, M, F]) checkQuiescence() {
	if mgr.terminated {
		return
	}
	for _, busy := range mgr.idle {
		if !busy {
			return
		}
	}
	if atomic.LoadInt64(&mgr.outstanding) != 0 {
		return
	}
	mgr.terminated = true
	mgr.cancelFn()
}
