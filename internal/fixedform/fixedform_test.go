package fixedform

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mayflower/rpg-explainer/internal/model"
)

// at lays out text fragments at 1-based columns.
func at(parts ...any) string {
	var b []rune
	for i := 0; i+1 < len(parts); i += 2 {
		col := parts[i].(int)
		text := parts[i+1].(string)
		for len(b) < col-1 {
			b = append(b, ' ')
		}
		b = append(b[:col-1], []rune(text)...)
	}
	return string(b)
}

func name(s *model.FixedSpec) string {
	if s.Name == nil {
		return "<nil>"
	}
	return *s.Name
}

func TestExtract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		kind     model.SpecKind
		line     string
		wantName string
		wantOp   string
	}{
		{"definition", model.DefinitionSpec, "     D myVar          s             10a", "myVar", ""},
		{"eval", model.CalculationSpec, "     C                   eval      *inlr = *on", "EVAL", "EVAL"},
		{"dsply", model.CalculationSpec, "     C     'Hello'       dsply", "DSPLY", "DSPLY"},
		{"definition comment", model.DefinitionSpec, "     D* comment", "<nil>", ""},
		{"calculation comment", model.CalculationSpec, "     C* comment", "<nil>", ""},
		{"header", model.HeaderSpec, "     H dftactgrp(*no)", "<nil>", ""},
		{"file", model.FileSpec, at(6, "F", 7, "CUSTFILE", 17, "I", 36, "DISK"), "CUSTFILE", ""},
		{"procedure", model.ProcedureSpec, at(6, "P", 7, "GetTotal", 24, "B"), "GetTotal", ""},
		{"blank name", model.DefinitionSpec, at(6, "D", 24, "DS"), "<nil>", ""},
		{"truncated name", model.DefinitionSpec, "     D ab", "ab", ""},
		{"factor1 fallback", model.CalculationSpec, at(6, "C", 12, "begsr"), "BEGSR", "BEGSR"},
		{"factor1 not alphabetic", model.CalculationSpec, at(6, "C", 12, "x1"), "<nil>", ""},
		{"crlf", model.DefinitionSpec, "     D myVar\r\n", "myVar", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec, ok := Extract(tt.kind, tt.line)
			if !ok {
				t.Fatalf("Extract(%q) returned no record", tt.line)
			}
			if spec.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", spec.Kind, tt.kind)
			}
			if got := name(&spec); got != tt.wantName {
				t.Errorf("Name = %q, want %q", got, tt.wantName)
			}
			if got := spec.Keywords["opcode"]; got != tt.wantOp {
				t.Errorf("opcode = %q, want %q", got, tt.wantOp)
			}
			if spec.RawLine != strings.TrimRight(tt.line, "\r\n") {
				t.Errorf("RawLine = %q", spec.RawLine)
			}
		})
	}
}

func TestExtractShortLine(t *testing.T) {
	t.Parallel()
	for _, line := range []string{"", "     D", "   C"} {
		if _, ok := Extract(model.DefinitionSpec, line); ok {
			t.Errorf("Extract(%q) returned a record", line)
		}
	}
}

func TestExtractUnknownKind(t *testing.T) {
	t.Parallel()
	if _, ok := Extract(model.SpecKind("X"), "     X something"); ok {
		t.Error("unknown kind returned a record")
	}
}

func TestExtractCountsRunes(t *testing.T) {
	t.Parallel()
	spec, ok := Extract(model.DefinitionSpec, "     D ÄÖÜname")
	if !ok || name(&spec) != "ÄÖÜname" {
		t.Errorf("Name = %q, want ÄÖÜname", name(&spec))
	}
}

func TestParseKeywords(t *testing.T) {
	t.Parallel()
	got := ParseKeywords("usage(*input:*output) extfile('LIB/F') keyed  rename(REC : NEWREC)")
	want := map[string][]string{
		"usage":   {"*input", "*output"},
		"extfile": {"'LIB/F'"},
		"keyed":   {},
		"rename":  {"REC", "NEWREC"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseKeywords mismatch (-want +got):\n%s", diff)
	}
}

func TestFileDeclaration(t *testing.T) {
	t.Parallel()
	line := at(6, "F", 7, "CUSTFILE", 17, "U", 36, "DISK", 44, "keyed extfile('QGPL/CUST')")
	spec, ok := Extract(model.FileSpec, line)
	if !ok {
		t.Fatal("Extract returned no record")
	}
	decl, ok := FileDeclaration(spec)
	if !ok {
		t.Fatal("FileDeclaration returned false")
	}
	want := model.FileDeclaration{
		Name: "CUSTFILE",
		Keywords: map[string][]string{
			"keyed":   {},
			"extfile": {"'QGPL/CUST'"},
			"disk":    {},
			"usage":   {"*UPDATE"},
		},
	}
	if diff := cmp.Diff(want, decl); diff != "" {
		t.Errorf("FileDeclaration mismatch (-want +got):\n%s", diff)
	}
}

func TestFileDeclarationExplicitUsage(t *testing.T) {
	t.Parallel()
	line := at(6, "F", 7, "PRTF", 17, "O", 36, "PRINTER", 44, "usage(*output)")
	spec, _ := Extract(model.FileSpec, line)
	decl, ok := FileDeclaration(spec)
	if !ok {
		t.Fatal("FileDeclaration returned false")
	}
	if diff := cmp.Diff([]string{"*output"}, decl.Keywords["usage"]); diff != "" {
		t.Errorf("usage mismatch (-want +got):\n%s", diff)
	}
	if _, ok := decl.Keywords["printer"]; !ok {
		t.Error("device keyword missing")
	}
}

func TestFileDeclarationSkipsComments(t *testing.T) {
	t.Parallel()
	spec, _ := Extract(model.FileSpec, "     F* old file")
	if _, ok := FileDeclaration(spec); ok {
		t.Error("comment produced a file declaration")
	}
	d, _ := Extract(model.DefinitionSpec, "     D myVar")
	if _, ok := FileDeclaration(d); ok {
		t.Error("D spec produced a file declaration")
	}
}
