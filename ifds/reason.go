package ifds

// ReasonKind tags why an edge (or a predecessor record of an edge) exists.
// Every non-Initial reason references previously existing edges, never
// owning them directly — reasons carry globalEdge references (unit + local
// arena index) so a Runner's edge arena never holds pointers into another
// Runner's arena, and the structure cannot form a reference cycle.
type ReasonKind uint8

const (
	// ReasonInitial seeds a method's entry with initial() facts.
	ReasonInitial ReasonKind = iota
	// ReasonSequent: produced by sequent() over a non-call, non-exit edge.
	ReasonSequent
	// ReasonCallToReturn: produced by callToReturn() bypassing a call.
	ReasonCallToReturn
	// ReasonCallToStart: the self-loop opening a callee's entry vertex.
	ReasonCallToStart
	// ReasonExitToReturnSite: produced by exitToReturnSite() when a local
	// summary resolves a pending caller.
	ReasonExitToReturnSite
	// ReasonThroughSummary: a trace-graph-only annotation recording that a
	// path crosses a local summary edge (from ExitToReturnSite replay).
	ReasonThroughSummary
	// ReasonCrossUnitCall: like ReasonExitToReturnSite/ReasonThroughSummary,
	// but the summary that resolved the caller was published by another
	// unit's Runner and delivered via NotificationOnStart.
	ReasonCrossUnitCall
	// ReasonExternal: the predecessor could not be resolved to a concrete
	// edge (e.g. a cross-unit protocol violation, spec.md §7). Treated as
	// a source by the Trace-Graph Builder, never a silent dead end.
	ReasonExternal
)

// Reason is the primary justification for an edge, or one entry in the
// predecessor index for an edge (spec.md §3: "Reason... every edge carries
// exactly one primary reason; alternative derivations are recorded in a
// predecessors(edge) index"). Which fields are meaningful depends on Kind;
// unused fields hold the noEdge sentinel.
type Reason struct {
	Kind ReasonKind

	// Pred is the edge whose `to` vertex fed sequent/callToReturn/
	// callToStart, or (for ThroughSummary/CrossUnitCall) the caller edge
	// whose call site produced the subscription.
	Pred globalEdge

	// Summary is the summary edge this reason replays through
	// (ExitToReturnSite, ThroughSummary, CrossUnitCall).
	Summary globalEdge
}

func noReasonEdge() globalEdge { return globalEdge{ID: noEdge} }

func reasonInitial() Reason {
	return Reason{Kind: ReasonInitial, Pred: noReasonEdge(), Summary: noReasonEdge()}
}

func reasonSequent(pred globalEdge) Reason {
	return Reason{Kind: ReasonSequent, Pred: pred, Summary: noReasonEdge()}
}

func reasonCallToReturn(pred globalEdge) Reason {
	return Reason{Kind: ReasonCallToReturn, Pred: pred, Summary: noReasonEdge()}
}

func reasonCallToStart(pred globalEdge) Reason {
	return Reason{Kind: ReasonCallToStart, Pred: pred, Summary: noReasonEdge()}
}

func reasonExitToReturnSite(caller, summary globalEdge) Reason {
	return Reason{Kind: ReasonExitToReturnSite, Pred: caller, Summary: summary}
}

func reasonThroughSummary(caller, summary globalEdge) Reason {
	return Reason{Kind: ReasonThroughSummary, Pred: caller, Summary: summary}
}

func reasonCrossUnitCall(caller, summary globalEdge) Reason {
	return Reason{Kind: ReasonCrossUnitCall, Pred: caller, Summary: summary}
}

func reasonExternal() Reason {
	return Reason{Kind: ReasonExternal, Pred: noReasonEdge(), Summary: noReasonEdge()}
}
