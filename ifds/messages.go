package ifds

import "github.com/google/uuid"

func newSubscriptionID() SubscriptionID { return SubscriptionID(uuid.NewString()) }

// Messages exchanged between a Runner and the Manager (spec.md §5):
// UnresolvedCall, ResolvedCall, SubscriptionOnStart, NotificationOnStart,
// NewSummaryEdge, NewVulnerability. idleReport/busyReport are an
// implementation necessity for the two-phase quiescence protocol of
// spec.md §5 and are not externally visible.
//
// Each is a concrete struct rather than one tagged-union message type —
// Manager.handle and Runner.handle dispatch on them with a type switch,
// the idiomatic Go stand-in for exhaustive pattern matching over a sealed
// hierarchy (DESIGN NOTES §9).

// unresolvedCall asks the Manager to enumerate callees of a call site via
// the Application Graph.
type unresolvedCall[S comparable] struct {
	unit UnitID
	edge EdgeID
	call S
}

// resolvedCall answers an unresolvedCall with one resolved callee. The
// Manager sends one resolvedCall per callee found (zero if Callees was
// empty, per spec.md §4.3's call-with-no-callees degenerate case).
type resolvedCall[M any] struct {
	edge   EdgeID
	callee M
}

// subscriptionOnStart is emitted when a Runner opens an interprocedural
// edge into a callee owned by another unit.
type subscriptionOnStart[S comparable, F comparable] struct {
	from       UnitID // subscriber
	target     UnitID // unit owning the callee
	entry      Vertex[S, F]
	callerEdge EdgeID // in subscriber's own arena
	id         SubscriptionID
}

// openEntry asks a unit's own Runner to seed entry vertex v directly: the
// delivery vehicle for spec.md §4.2 step 4's "add the self-edge (v, v)
// with reason CallToStart(e)" when e's callee is owned by another unit.
// SubscriptionOnStart alone cannot do this — it is addressed to the
// Manager, not routed onward into the callee's own arena, and a Runner
// never reaches into another Runner's state directly. Like idleReport/
// busyReport, this is an implementation-internal routing detail, not
// one of spec.md §5's six externally-visible message kinds.
type openEntry[S comparable, F comparable] struct {
	entry Vertex[S, F]
	pred  globalEdge // the cross-unit caller edge that opened this entry
}

// notificationOnStart delivers a cross-unit summary back to the
// subscriber that requested it.
type notificationOnStart[S comparable, F comparable] struct {
	subscriberEdge EdgeID // the caller edge in the subscriber's arena
	summary        summaryRef[S, F]
	id             SubscriptionID
}

// summaryRef names a summary edge wherever it may live: the publishing
// unit, its local arena id, and a copy of the edge value itself (so a
// remote Runner never needs to read another Runner's arena directly).
type summaryRef[S comparable, F comparable] struct {
	Unit UnitID
	ID   EdgeID
	Edge Edge[S, F]
}

func (s summaryRef[S, F]) ref() globalEdge { return globalEdge{Unit: s.Unit, ID: s.ID} }

// newSummaryEdge announces a freshly published summary to the Manager so
// it can resolve any pending or future subscription for that entry vertex.
type newSummaryEdge[S comparable, F comparable] struct {
	unit UnitID
	id   EdgeID
	edge Edge[S, F]
}

// newVulnerability reports a sink hit.
type newVulnerability[S comparable, F comparable] struct {
	v Vulnerability[S, F]
}

type idleReport struct{ unit UnitID }
type busyReport struct{ unit UnitID }
