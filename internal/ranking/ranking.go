// Package ranking narrows a program index to its most central procedures or
// to the neighbourhood of a named procedure.
package ranking

import (
	"strings"

	"github.com/mayflower/rpg-explainer/internal/graph"
	"github.com/mayflower/rpg-explainer/internal/model"
)

// Match is a procedure found by name.
type Match struct {
	File      string
	Procedure model.Procedure
}

// FindProcedures returns procedures whose name contains substr,
// case-insensitively, in index order. When some names equal substr exactly
// only those are returned.
func FindProcedures(idx *model.ProgramIndex, substr string) []Match {
	lower := strings.ToLower(substr)
	var exact, partial []Match
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			p := f.Procedures[j]
			name := strings.ToLower(p.Name)
			switch {
			case name == lower:
				exact = append(exact, Match{File: f.Path, Procedure: p})
			case strings.Contains(name, lower):
				partial = append(partial, Match{File: f.Path, Procedure: p})
			}
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return partial
}

// SelectProcedures returns a copy of idx keeping only the maxProcs
// highest-ranked procedures. Files keep their declarations even when none of
// their procedures survive. If maxProcs is <= 0 or covers every procedure,
// idx is returned unchanged.
func SelectProcedures(idx *model.ProgramIndex, maxProcs int) *model.ProgramIndex {
	ranked := graph.Rank(idx)
	if maxProcs <= 0 || maxProcs >= len(ranked) {
		return idx
	}

	keep := make(map[procKey]struct{}, maxProcs)
	for _, r := range ranked[:maxProcs] {
		keep[procKey{r.File, strings.ToLower(r.Name)}] = struct{}{}
	}
	return trim(idx, func(file, name string) bool {
		_, ok := keep[procKey{file, strings.ToLower(name)}]
		return ok
	}, nil)
}

// FilterByProcedure returns a copy of idx containing the procedures matched
// by FindProcedures together with their direct internal callers and
// callees. Subroutines survive only when they call a matched procedure.
// Files left without procedures or subroutines are dropped.
func FilterByProcedure(idx *model.ProgramIndex, substr string) *model.ProgramIndex {
	matched := make(map[string]struct{})
	for _, m := range FindProcedures(idx, substr) {
		matched[strings.ToLower(m.Procedure.Name)] = struct{}{}
	}

	related := make(map[string]struct{})
	for _, e := range graph.CallEdges(idx) {
		caller, callee := strings.ToLower(e.Caller), strings.ToLower(e.Callee)
		if _, ok := matched[caller]; ok {
			related[callee] = struct{}{}
		}
		if _, ok := matched[callee]; ok {
			related[caller] = struct{}{}
		}
	}

	procOK := func(_, name string) bool {
		name = strings.ToLower(name)
		_, isMatched := matched[name]
		_, isRelated := related[name]
		return isMatched || isRelated
	}
	subOK := func(s *model.Subroutine) bool {
		for _, c := range s.CallsInternal {
			if _, ok := matched[strings.ToLower(c)]; ok {
				return true
			}
		}
		return false
	}

	out := trim(idx, procOK, subOK)
	files := out.Files[:0]
	for _, f := range out.Files {
		if len(f.Procedures) > 0 || len(f.Subroutines) > 0 {
			files = append(files, f)
		}
	}
	out.Files = files
	return out
}

type procKey struct {
	file string
	name string
}

// trim copies idx keeping procedures accepted by keepProc and, when keepSub
// is non-nil, subroutines accepted by keepSub.
func trim(idx *model.ProgramIndex, keepProc func(file, name string) bool, keepSub func(*model.Subroutine) bool) *model.ProgramIndex {
	out := model.NewProgramIndex()
	for i := range idx.Files {
		f := idx.Files[i]
		procs := []model.Procedure{}
		for j := range f.Procedures {
			if keepProc(f.Path, f.Procedures[j].Name) {
				procs = append(procs, f.Procedures[j])
			}
		}
		f.Procedures = procs
		if keepSub != nil {
			subs := []model.Subroutine{}
			for j := range f.Subroutines {
				if keepSub(&f.Subroutines[j]) {
					subs = append(subs, f.Subroutines[j])
				}
			}
			f.Subroutines = subs
		}
		out.Files = append(out.Files, f)
	}
	return out
}
