package model

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr(s string) *string { return &s }

func TestNewFileRecordEmptyLists(t *testing.T) {
	t.Parallel()

	idx := NewProgramIndex()
	idx.Files = append(idx.Files, NewFileRecord("a.rpgle"))

	data, err := idx.JSON(0)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	got := string(data)
	for _, key := range []string{
		`"procedures":[]`, `"subroutines":[]`, `"file_defs":[]`, `"constants":[]`,
		`"data_structures":[]`, `"prototypes":[]`, `"fixed_h_specs":[]`,
		`"fixed_f_specs":[]`, `"fixed_d_specs":[]`, `"fixed_c_specs":[]`, `"fixed_p_specs":[]`,
	} {
		if !strings.Contains(got, key) {
			t.Errorf("missing %s in %s", key, got)
		}
	}
	if !strings.HasPrefix(got, `{"files":[{"path":"a.rpgle","procedures"`) {
		t.Errorf("unexpected field order: %s", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()

	rec := NewFileRecord("orders.rpgle")
	rec.Procedures = append(rec.Procedures, Procedure{
		Name: "ProcessOrder",
		Params: []Parameter{
			{Name: "orderNum", Type: ptr("char(10)"), Attributes: map[string][]string{"const": {}}},
		},
		Returns:       ptr("ind"),
		CallsInternal: []string{},
		CallsExternal: []string{"UpdateInventory"},
		UsesFiles:     []string{"ORDRFILE"},
	})
	rec.AddFixedSpec(FixedSpec{Kind: DefinitionSpec, RawLine: "     D* note", Keywords: map[string]string{}})
	idx := &ProgramIndex{Files: []FileRecord{rec}}

	first, err := idx.JSON(2)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, err := decoded.JSON(2)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
	if decoded.Files[0].FixedDSpecs[0].Name != nil {
		t.Error("comment spec name should stay null")
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 80)
	if got := Preview(long); len(got) != MaxPreview {
		t.Errorf("len = %d, want %d", len(got), MaxPreview)
	}
	if got := Preview("100"); got != "100" {
		t.Errorf("Preview(100) = %q", got)
	}
}

func TestSpecKindString(t *testing.T) {
	t.Parallel()

	tests := map[SpecKind]string{
		HeaderSpec:      "header",
		FileSpec:        "file",
		DefinitionSpec:  "definition",
		CalculationSpec: "calculation",
		ProcedureSpec:   "procedure",
	}
	for k, want := range tests {
		if k.String() != want {
			t.Errorf("%s.String() = %q, want %q", string(k), k.String(), want)
		}
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	a := NewFileRecord("a")
	a.Procedures = []Procedure{{Name: "x"}, {Name: "y"}}
	a.FileDefs = []FileDeclaration{{Name: "F1"}}
	b := NewFileRecord("b")
	b.Procedures = []Procedure{{Name: "z"}}
	idx := &ProgramIndex{Files: []FileRecord{a, b}}

	got := idx.Stats()
	want := Stats{Files: 2, Procedures: 3, FileDefs: 1}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
}
