package ssagraph

import (
	"github.com/cpg-gen/ifds-solve/graph"
	"github.com/cpg-gen/ifds-solve/ifds"
)

// MethodUnitResolver puts every method in its own scheduling unit —
// maximal parallelism, minimal summary sharing.
func MethodUnitResolver() ifds.Resolver[graph.MethodID] {
	return ifds.MethodResolver(func(m graph.MethodID) string { return m.String() })
}

// ClassUnitResolver groups methods by receiver type (or, for plain
// functions, by package+name so every function still gets a unit).
func ClassUnitResolver() ifds.Resolver[graph.MethodID] {
	return ifds.ClassResolver(func(m graph.MethodID) string {
		if m.Recv == "" {
			return m.Pkg + "::" + m.Name
		}
		return m.Pkg + "::" + m.Recv
	})
}

// PackageUnitResolver groups methods by package path.
func PackageUnitResolver() ifds.Resolver[graph.MethodID] {
	return ifds.PackageResolver(func(m graph.MethodID) string { return m.Pkg })
}
