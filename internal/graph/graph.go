// Package graph classifies call targets across the whole program and derives
// the internal call graph.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/mayflower/rpg-explainer/internal/model"
)

// CallKind is the classification of a call target.
type CallKind int

const (
	External CallKind = iota
	Internal
)

func (k CallKind) String() string {
	if k == Internal {
		return "internal"
	}
	return "external"
}

// Resolver classifies call targets against the procedures and prototypes of
// a complete index. It is read-only once built.
type Resolver struct {
	defined    map[string]struct{}
	prototypes map[string]struct{}
}

// NewResolver collects the lower-cased procedure and prototype names of idx.
func NewResolver(idx *model.ProgramIndex) *Resolver {
	r := &Resolver{
		defined:    make(map[string]struct{}),
		prototypes: make(map[string]struct{}),
	}
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			r.defined[strings.ToLower(f.Procedures[j].Name)] = struct{}{}
		}
		for _, p := range f.Prototypes {
			r.prototypes[strings.ToLower(p)] = struct{}{}
		}
	}
	return r
}

// Resolve classifies one call target. A prototype wins over a same-named
// definition; names matching neither are external.
func (r *Resolver) Resolve(name string) CallKind {
	lower := strings.ToLower(name)
	if _, ok := r.prototypes[lower]; ok {
		return External
	}
	if _, ok := r.defined[lower]; ok {
		return Internal
	}
	return External
}

// Split partitions raw call targets, keeping detection order in both lists.
func (r *Resolver) Split(calls []string) (internal, external []string) {
	internal, external = []string{}, []string{}
	for _, c := range calls {
		if r.Resolve(c) == Internal {
			internal = append(internal, c)
		} else {
			external = append(external, c)
		}
	}
	return internal, external
}

// Classify runs the whole-program pass over an index whose procedures and
// subroutines still hold their raw call targets in CallsInternal. Both call
// lists are replaced. It must run once, after every record is in idx.
func Classify(idx *model.ProgramIndex) {
	r := NewResolver(idx)
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			p := &f.Procedures[j]
			p.CallsInternal, p.CallsExternal = r.Split(p.CallsInternal)
		}
		for j := range f.Subroutines {
			s := &f.Subroutines[j]
			s.CallsInternal, s.CallsExternal = r.Split(s.CallsInternal)
		}
	}
}

// CallEdges returns the internal calls of a classified index as
// deduplicated edges sorted by caller, callee and file.
func CallEdges(idx *model.ProgramIndex) []model.CallEdge {
	seen := make(map[model.CallEdge]struct{})
	edges := []model.CallEdge{}
	add := func(caller, file string, calls []string) {
		for _, callee := range calls {
			e := model.CallEdge{Caller: caller, Callee: callee, File: file}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			add(f.Procedures[j].Name, f.Path, f.Procedures[j].CallsInternal)
		}
		for j := range f.Subroutines {
			add(f.Subroutines[j].Name, f.Path, f.Subroutines[j].CallsInternal)
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		if edges[i].Callee != edges[j].Callee {
			return edges[i].Callee < edges[j].Callee
		}
		return edges[i].File < edges[j].File
	})
	return edges
}

// ProcedureRank is the centrality of one procedure in the call graph.
type ProcedureRank struct {
	Name string
	File string
	Rank float64
}

// Rank applies PageRank to the procedures of a classified index, with one
// edge per internal call from a procedure. Procedures are matched by
// lower-cased name. The result is sorted by rank descending, then by name
// and file.
func Rank(idx *model.ProgramIndex) []ProcedureRank {
	var ranked []ProcedureRank
	node := make(map[string]int)
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			key := strings.ToLower(f.Procedures[j].Name)
			if _, ok := node[key]; !ok {
				node[key] = len(node)
			}
			ranked = append(ranked, ProcedureRank{Name: f.Procedures[j].Name, File: f.Path})
		}
	}
	if len(ranked) == 0 {
		return ranked
	}

	out := make([][]int, len(node))
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			src := node[strings.ToLower(f.Procedures[j].Name)]
			for _, callee := range f.Procedures[j].CallsInternal {
				if tgt, ok := node[strings.ToLower(callee)]; ok {
					out[src] = append(out[src], tgt)
				}
			}
		}
	}

	ranks := pageRank(out, 0.85, 100, 1e-6)
	for i := range ranked {
		ranked[i].Rank = ranks[node[strings.ToLower(ranked[i].Name)]]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rank != ranked[j].Rank {
			return ranked[i].Rank > ranked[j].Rank
		}
		if ranked[i].Name != ranked[j].Name {
			return ranked[i].Name < ranked[j].Name
		}
		return ranked[i].File < ranked[j].File
	})
	return ranked
}

// pageRank runs power iteration over an adjacency list in which repeated
// targets count as parallel edges.
func pageRank(out [][]int, alpha float64, maxIter int, tol float64) []float64 {
	n := len(out)
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	teleport := (1.0 - alpha) / float64(n)

	for range maxIter {
		// Rank held by nodes without out-edges is spread evenly.
		var dangling float64
		for i := range out {
			if len(out[i]) == 0 {
				dangling += rank[i]
			}
		}
		base := teleport + alpha*dangling/float64(n)

		next := make([]float64, n)
		for i := range next {
			next[i] = base
		}
		for src, targets := range out {
			if len(targets) == 0 {
				continue
			}
			contrib := alpha * rank[src] / float64(len(targets))
			for _, tgt := range targets {
				next[tgt] += contrib
			}
		}

		var diff float64
		for i := range next {
			diff += math.Abs(next[i] - rank[i])
		}
		rank = next
		if diff < tol {
			break
		}
	}
	return rank
}
