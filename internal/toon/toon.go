// Package toon implements TOON (Token-Oriented Object Notation) encoding of
// a program index.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mayflower/rpg-explainer/internal/graph"
	"github.com/mayflower/rpg-explainer/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a classified ProgramIndex into TOON format. Procedures are
// listed by call-graph rank, most central first.
func Encode(idx *model.ProgramIndex, program string) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("program: %s", encodeValue(program)))

	var fileRows [][]string
	for i := range idx.Files {
		f := &idx.Files[i]
		fileRows = append(fileRows, []string{
			f.Path,
			strconv.Itoa(len(f.Procedures)),
			strconv.Itoa(len(f.Subroutines)),
			strings.Join(f.FileNames(), " "),
			yesNo(f.HasErrors),
		})
	}
	parts = append(parts, formatTabular("units", []string{"path", "procedures", "subroutines", "files", "errors"}, fileRows))

	procs := make(map[string]*model.Procedure)
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			procs[f.Path+"\x00"+f.Procedures[j].Name] = &f.Procedures[j]
		}
	}
	var procRows [][]string
	for _, r := range graph.Rank(idx) {
		p := procs[r.File+"\x00"+r.Name]
		returns := ""
		if p.Returns != nil {
			returns = *p.Returns
		}
		procRows = append(procRows, []string{
			r.File,
			r.Name,
			fmt.Sprintf("%.4f", r.Rank),
			signature(p.Params),
			returns,
			strings.Join(p.UsesFiles, " "),
		})
	}
	parts = append(parts, formatTabular("procedures", []string{"file", "name", "rank", "params", "returns", "uses"}, procRows))

	var subRows [][]string
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Subroutines {
			s := &f.Subroutines[j]
			subRows = append(subRows, []string{f.Path, s.Name, strings.Join(s.UsesFiles, " ")})
		}
	}
	if len(subRows) > 0 {
		parts = append(parts, formatTabular("subroutines", []string{"file", "name", "uses"}, subRows))
	}

	var callRows [][]string
	for _, e := range graph.CallEdges(idx) {
		callRows = append(callRows, []string{e.Caller, e.Callee, e.File})
	}
	parts = append(parts, formatTabular("calls", []string{"caller", "callee", "file"}, callRows))

	var extRows [][]string
	for i := range idx.Files {
		f := &idx.Files[i]
		for j := range f.Procedures {
			p := &f.Procedures[j]
			for _, callee := range dedup(p.CallsExternal) {
				extRows = append(extRows, []string{p.Name, callee, f.Path})
			}
		}
	}
	parts = append(parts, formatTabular("external", []string{"caller", "callee", "file"}, extRows))

	return strings.Join(parts, "\n")
}

// signature renders parameters as "name type" pairs separated by semicolons.
func signature(params []model.Parameter) string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		if p.Type != nil {
			out = append(out, p.Name+" "+*p.Type)
		} else {
			out = append(out, p.Name)
		}
	}
	return strings.Join(out, "; ")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dedup(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	var out []string
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) || strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) || strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(value) + `"`
}
