package ifds

import (
	"fmt"

	"github.com/cpg-gen/ifds-solve/internal/progress"
)

// AnalysisOptions is the `{ analysis-name → { option → string } }` mapping
// of spec.md §6.
type AnalysisOptions map[string]map[string]string

// Get returns the value of option for analysis, and whether it was set.
func (o AnalysisOptions) Get(analysis, option string) (string, bool) {
	v, ok := o[analysis][option]
	return v, ok
}

// MaxPathLength returns the analysis's maxPathLength option, or def if
// unset or unparsable. Nothing in this package calls it: edge production
// ignores the option, and TraceGraph.Traces does not bound trace length.
func (o AnalysisOptions) MaxPathLength(analysis string, def int) int {
	v, ok := o.Get(analysis, "maxPathLength")
	if !ok {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil || n <= 0 {
		return def
	}
	return n
}

// Config is the explicit configuration struct passed down to Manager and
// Runner construction (DESIGN NOTES §9: "pass an explicit configuration
// struct down" instead of a global). Every field is resolved and
// validated once, at NewManager time.
type Config[S comparable, M comparable, F comparable] struct {
	Graph    Graph[S, M]
	Flow     FlowFunctions[S, M, F]
	Sink     SinkChecker[S, F]
	Resolver Resolver[M]
	Zero     F

	// MaxTraces is the per-vulnerability witness-trace count (spec.md §6
	// default: 3). Validate checks and defaults it; TraceGraph.Traces and
	// Result.Findings take their own bound as an argument and do not read
	// this field.
	MaxTraces int

	Options  AnalysisOptions
	Progress *progress.Logger
}

// Validate fails fast on configuration errors (spec.md §7): missing
// collaborators or a nonsensical MaxTraces. Returns an error wrapping
// ErrConfiguration.
func (c *Config[S, M, F]) Validate() error {
	if c.Graph == nil {
		return fmt.Errorf("%w: no ApplicationGraph supplied", ErrConfiguration)
	}
	if c.Flow == nil {
		return fmt.Errorf("%w: no FlowFunctions supplied", ErrConfiguration)
	}
	if c.Resolver == nil {
		return fmt.Errorf("%w: no unit Resolver supplied", ErrConfiguration)
	}
	if c.Sink == nil {
		return fmt.Errorf("%w: no SinkChecker supplied", ErrConfiguration)
	}
	if c.MaxTraces < 0 {
		return fmt.Errorf("%w: MaxTraces must be >= 0, got %d", ErrConfiguration, c.MaxTraces)
	}
	if c.MaxTraces == 0 {
		c.MaxTraces = 3
	}
	if c.Progress == nil {
		c.Progress = progress.New(false)
	}
	if c.Options == nil {
		c.Options = AnalysisOptions{}
	}
	return nil
}

// ResolverByName maps the §6 unit-resolver selection string to a built-in
// Resolver. methodID/classID/pkgID extract the respective identity string
// from a method; classID/pkgID may be nil if the corresponding name is
// never requested. Returns an error wrapping ErrConfiguration for an
// unknown name.
func ResolverByName[M comparable](name string, methodID, classID, pkgID func(M) string) (Resolver[M], error) {
	switch name {
	case "method":
		if methodID == nil {
			return nil, fmt.Errorf("%w: method unit resolver unavailable", ErrConfiguration)
		}
		return MethodResolver(methodID), nil
	case "class":
		if classID == nil {
			return nil, fmt.Errorf("%w: class unit resolver unavailable", ErrConfiguration)
		}
		return ClassResolver(classID), nil
	case "package":
		if pkgID == nil {
			return nil, fmt.Errorf("%w: package unit resolver unavailable", ErrConfiguration)
		}
		return PackageResolver(pkgID), nil
	case "singleton":
		return SingletonResolver[M](), nil
	default:
		return nil, fmt.Errorf("%w: unknown unit resolver %q", ErrConfiguration, name)
	}
}
