// Package model defines the program index produced by the analysis.
package model

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Parameter is a parameter of a procedure interface.
type Parameter struct {
	Name       string              `json:"name"`
	Type       *string             `json:"type"`
	Attributes map[string][]string `json:"attributes"`
}

// FileDeclaration is a DCL-F definition or a fixed-form F spec.
type FileDeclaration struct {
	Name     string              `json:"name"`
	Keywords map[string][]string `json:"keywords"`
}

// Constant is a DCL-C definition.
type Constant struct {
	Name         string `json:"name"`
	ValuePreview string `json:"value_preview"`
}

// MaxPreview is the maximum number of characters kept in a constant's
// value preview.
const MaxPreview = 50

// Preview truncates a constant value to MaxPreview characters.
func Preview(value string) string {
	r := []rune(value)
	if len(r) > MaxPreview {
		return string(r[:MaxPreview])
	}
	return value
}

// DataStructure is a DCL-DS definition with its subfields in declaration order.
type DataStructure struct {
	Name      string   `json:"name"`
	Subfields []string `json:"subfields"`
}

// Procedure is a DCL-PROC procedure. CallsInternal holds every detected call
// target until the whole-program classification splits them.
type Procedure struct {
	Name          string      `json:"name"`
	Params        []Parameter `json:"params"`
	Returns       *string     `json:"returns"`
	CallsInternal []string    `json:"calls_internal"`
	CallsExternal []string    `json:"calls_external"`
	UsesFiles     []string    `json:"uses_files"`
}

// Subroutine is a BEGSR/ENDSR subroutine.
type Subroutine struct {
	Name          string   `json:"name"`
	CallsInternal []string `json:"calls_internal"`
	CallsExternal []string `json:"calls_external"`
	UsesFiles     []string `json:"uses_files"`
}

// SpecKind identifies a fixed-form specification line.
type SpecKind string

const (
	HeaderSpec      SpecKind = "H"
	FileSpec        SpecKind = "F"
	DefinitionSpec  SpecKind = "D"
	CalculationSpec SpecKind = "C"
	ProcedureSpec   SpecKind = "P"
)

// String returns the long name of the spec kind.
func (k SpecKind) String() string {
	switch k {
	case HeaderSpec:
		return "header"
	case FileSpec:
		return "file"
	case DefinitionSpec:
		return "definition"
	case CalculationSpec:
		return "calculation"
	case ProcedureSpec:
		return "procedure"
	}
	return string(k)
}

// FixedSpec is one fixed-form specification line. Name is nil for comment
// lines and for lines whose name columns are blank.
type FixedSpec struct {
	Kind     SpecKind          `json:"spec_type"`
	RawLine  string            `json:"raw_line"`
	Name     *string           `json:"name"`
	Keywords map[string]string `json:"keywords"`
}

// FileRecord holds everything extracted from one source unit.
type FileRecord struct {
	Path           string            `json:"path"`
	Procedures     []Procedure       `json:"procedures"`
	Subroutines    []Subroutine      `json:"subroutines"`
	FileDefs       []FileDeclaration `json:"file_defs"`
	Constants      []Constant        `json:"constants"`
	DataStructures []DataStructure   `json:"data_structures"`
	Prototypes     []string          `json:"prototypes"`
	FixedHSpecs    []FixedSpec       `json:"fixed_h_specs"`
	FixedFSpecs    []FixedSpec       `json:"fixed_f_specs"`
	FixedDSpecs    []FixedSpec       `json:"fixed_d_specs"`
	FixedCSpecs    []FixedSpec       `json:"fixed_c_specs"`
	FixedPSpecs    []FixedSpec       `json:"fixed_p_specs"`
	HasErrors      bool              `json:"has_errors"`
}

// NewFileRecord returns an empty record whose lists are all non-nil.
func NewFileRecord(path string) FileRecord {
	return FileRecord{
		Path:           path,
		Procedures:     []Procedure{},
		Subroutines:    []Subroutine{},
		FileDefs:       []FileDeclaration{},
		Constants:      []Constant{},
		DataStructures: []DataStructure{},
		Prototypes:     []string{},
		FixedHSpecs:    []FixedSpec{},
		FixedFSpecs:    []FixedSpec{},
		FixedDSpecs:    []FixedSpec{},
		FixedCSpecs:    []FixedSpec{},
		FixedPSpecs:    []FixedSpec{},
	}
}

// AddFixedSpec appends spec to the list for its kind.
func (r *FileRecord) AddFixedSpec(spec FixedSpec) {
	switch spec.Kind {
	case HeaderSpec:
		r.FixedHSpecs = append(r.FixedHSpecs, spec)
	case FileSpec:
		r.FixedFSpecs = append(r.FixedFSpecs, spec)
	case DefinitionSpec:
		r.FixedDSpecs = append(r.FixedDSpecs, spec)
	case CalculationSpec:
		r.FixedCSpecs = append(r.FixedCSpecs, spec)
	case ProcedureSpec:
		r.FixedPSpecs = append(r.FixedPSpecs, spec)
	}
}

// FileNames returns the set of declared file names.
func (r *FileRecord) FileNames() []string {
	names := make([]string, 0, len(r.FileDefs))
	for i := range r.FileDefs {
		names = append(names, r.FileDefs[i].Name)
	}
	return names
}

// CallEdge is an internal call from one procedure to another.
type CallEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	File   string `json:"file"`
}

// ProgramIndex is the complete analysis result across all source units,
// one FileRecord per unit in input order.
type ProgramIndex struct {
	Files []FileRecord `json:"files"`
}

// NewProgramIndex returns an empty index.
func NewProgramIndex() *ProgramIndex {
	return &ProgramIndex{Files: []FileRecord{}}
}

// JSON serializes the index. indent <= 0 produces compact output.
func (p *ProgramIndex) JSON(indent int) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", indent))
	}
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a document produced by JSON.
func Decode(data []byte) (*ProgramIndex, error) {
	var p ProgramIndex
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Files == nil {
		p.Files = []FileRecord{}
	}
	return &p, nil
}

// Stats summarizes an index.
type Stats struct {
	Files      int
	Procedures int
	FileDefs   int
}

// Stats counts source units, procedures and file definitions.
func (p *ProgramIndex) Stats() Stats {
	s := Stats{Files: len(p.Files)}
	for i := range p.Files {
		s.Procedures += len(p.Files[i].Procedures)
		s.FileDefs += len(p.Files[i].FileDefs)
	}
	return s
}
