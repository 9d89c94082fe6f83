package taint

import (
	"strings"

	"github.com/cpg-gen/ifds-solve/ifds"
)

// FromOptions builds a Config from the `{ option → string }` map of
// spec.md §6's AnalysisOptions, under the "taint" analysis name. Each of
// sources/sinks/sanitizers is a comma-separated list of path.Match
// glob patterns.
func FromOptions(opts ifds.AnalysisOptions) Config {
	return Config{
		Sources:    splitList(opts["taint"]["sources"]),
		Sinks:      splitList(opts["taint"]["sinks"]),
		Sanitizers: splitList(opts["taint"]["sanitizers"]),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
