package ifds

import "errors"

// ErrConfiguration is wrapped by errors returned from NewManager when the
// supplied configuration is unusable (spec.md §7: "fail fast at startup").
var ErrConfiguration = errors.New("ifds: configuration error")

// ErrCancelled marks a Run that was stopped via context cancellation
// rather than running to quiescence. Not a failure — spec.md §7: "not an
// error; yields a partial result." Run itself never returns it: a
// cancelled Run returns a nil error and a Result with Cancelled set.
var ErrCancelled = errors.New("ifds: run cancelled")

// Incomplete records an application-graph inconsistency for one method
// (spec.md §7): a Graph call for that method panicked, and the Runner
// recorded the method here. The Runner does not stop expanding the method:
// its remaining edges are still processed, as are every other method's.
type Incomplete[M any] struct {
	Method M
	Reason string
}
