// Package fixedform extracts records from legacy column-positional RPG
// specification lines.
package fixedform

import (
	"strings"
	"unicode"

	"github.com/mayflower/rpg-explainer/internal/model"
)

// Field is a 1-based, inclusive column range.
type Field struct {
	Start, End int
}

// Layout describes the columns of one specification kind.
type Layout struct {
	Comment int    // column holding the comment sigil
	Name    *Field // nil when the kind carries no name
	Fields  map[string]Field
}

// MinLength is the shortest line that can hold a specification type and the
// comment column.
const MinLength = 7

// CommentSigil marks a fixed-form comment line when found in Layout.Comment.
const CommentSigil = '*'

// Layouts maps each specification kind to its column layout.
var Layouts = map[model.SpecKind]Layout{
	model.HeaderSpec: {
		Comment: 7,
		Fields: map[string]Field{
			"keywords": {7, 80},
		},
	},
	model.FileSpec: {
		Comment: 7,
		Name:    &Field{7, 16},
		Fields: map[string]Field{
			"type":     {17, 17},
			"device":   {36, 42},
			"keywords": {44, 80},
		},
	},
	model.DefinitionSpec: {
		Comment: 7,
		Name:    &Field{7, 21},
		Fields: map[string]Field{
			"deftype":  {24, 25},
			"keywords": {44, 80},
		},
	},
	model.CalculationSpec: {
		Comment: 7,
		Fields: map[string]Field{
			"factor1": {12, 25},
			"opcode":  {26, 35},
			"factor2": {36, 49},
		},
	},
	model.ProcedureSpec: {
		Comment: 7,
		Name:    &Field{7, 21},
		Fields: map[string]Field{
			"begin_end": {24, 24},
			"keywords":  {44, 80},
		},
	},
}

// Extract reads a specification line of the given kind. It returns false when
// the kind is unknown or the line is too short to be a specification.
// Comment lines and lines with blank name columns yield a record with a nil
// name.
func Extract(kind model.SpecKind, line string) (model.FixedSpec, bool) {
	layout, ok := Layouts[kind]
	if !ok {
		return model.FixedSpec{}, false
	}
	line = strings.TrimRight(line, "\r\n")
	cols := []rune(line)
	if len(cols) < MinLength {
		return model.FixedSpec{}, false
	}

	spec := model.FixedSpec{
		Kind:     kind,
		RawLine:  line,
		Keywords: map[string]string{},
	}
	if isComment(cols, layout) {
		return spec, true
	}

	if kind == model.CalculationSpec {
		if op := opcode(cols, layout); op != "" {
			spec.Name = &op
			spec.Keywords["opcode"] = op
		}
		return spec, true
	}

	if layout.Name != nil {
		if name, ok := column(cols, *layout.Name); ok && name != "" {
			spec.Name = &name
		}
	}
	return spec, true
}

func isComment(cols []rune, layout Layout) bool {
	return layout.Comment > 0 && len(cols) >= layout.Comment && cols[layout.Comment-1] == CommentSigil
}

// opcode returns the upper-cased operation code of a calculation line. When
// the opcode columns are blank, an alphabetic factor 1 is taken instead.
func opcode(cols []rune, layout Layout) string {
	if op, _ := column(cols, layout.Fields["opcode"]); op != "" {
		return strings.ToUpper(op)
	}
	if f1, _ := column(cols, layout.Fields["factor1"]); isAlpha(f1) {
		return strings.ToUpper(f1)
	}
	return ""
}

// column returns the trimmed text of f. It reports false when the line ends
// before the field starts; a field cut short by the end of the line is
// returned as far as it goes.
func column(cols []rune, f Field) (string, bool) {
	if f.Start < 1 || len(cols) < f.Start {
		return "", false
	}
	end := min(f.End, len(cols))
	return strings.TrimSpace(string(cols[f.Start-1 : end])), true
}

// Column returns the trimmed text of a named field of spec's layout.
func Column(spec model.FixedSpec, field string) string {
	f, ok := Layouts[spec.Kind].Fields[field]
	if !ok {
		return ""
	}
	text, _ := column([]rune(spec.RawLine), f)
	return text
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
