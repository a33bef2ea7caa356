package extract

import (
	"github.com/mayflower/rpg-explainer/internal/fixedform"
	"github.com/mayflower/rpg-explainer/internal/lang"
	"github.com/mayflower/rpg-explainer/internal/model"
	"github.com/mayflower/rpg-explainer/internal/syntax"
)

// fileState accumulates one unit's record during the traversal.
type fileState struct {
	x           *Extractor
	rec         *model.FileRecord
	procedures  []syntax.Node
	subroutines []syntax.Node
}

type handler func(s *fileState, n syntax.Node)

// handlers is the set of node kinds the analysis understands. Kinds without
// an entry are walked through but produce nothing.
var handlers = map[string]handler{
	lang.FileDefinition:          (*fileState).fileDefinition,
	lang.ConstantDefinition:      (*fileState).constant,
	lang.DataStructureDefinition: (*fileState).dataStructure,
	lang.ProcedurePrototype:      (*fileState).prototype,
	lang.ProcedureDefinition:     func(s *fileState, n syntax.Node) { s.procedures = append(s.procedures, n) },
	lang.SubroutineDefinition:    func(s *fileState, n syntax.Node) { s.subroutines = append(s.subroutines, n) },
	lang.FixedHSpec:              fixedSpec(model.HeaderSpec),
	lang.FixedFSpec:              fixedSpec(model.FileSpec),
	lang.FixedDSpec:              fixedSpec(model.DefinitionSpec),
	lang.FixedCSpec:              fixedSpec(model.CalculationSpec),
	lang.FixedPSpec:              fixedSpec(model.ProcedureSpec),
}

// File extracts the record of one parsed unit. Procedures and subroutines are
// resolved after the walk so that file declarations anywhere in the unit take
// part in their file-reference lookups. Call targets are left unclassified in
// CallsInternal.
func File(path string, root syntax.Node, source []byte) (model.FileRecord, error) {
	rec := model.NewFileRecord(path)
	if root == nil {
		return rec, nil
	}
	s := &fileState{x: New(source), rec: &rec}
	rec.HasErrors = root.HasError()

	for node := range syntax.Traverse(root) {
		if h, ok := handlers[node.Kind()]; ok {
			h(s, node)
		}
	}

	fileNames := rec.FileNames()
	for _, n := range s.procedures {
		if p, ok := s.procedure(n, fileNames); ok {
			rec.Procedures = append(rec.Procedures, p)
		}
	}
	for _, n := range s.subroutines {
		if sr, ok := s.subroutine(n, fileNames); ok {
			rec.Subroutines = append(rec.Subroutines, sr)
		}
	}

	if err := s.x.Err(); err != nil {
		return model.FileRecord{}, err
	}
	return rec, nil
}

func (s *fileState) fileDefinition(n syntax.Node) {
	name, ok := s.x.Name(n)
	if !ok {
		return
	}
	s.rec.FileDefs = append(s.rec.FileDefs, model.FileDeclaration{
		Name:     name,
		Keywords: s.x.Attributes(n),
	})
}

func (s *fileState) constant(n syntax.Node) {
	name, ok := s.x.Name(n)
	if !ok {
		return
	}
	c := model.Constant{Name: name}
	if v := n.ChildByFieldName("value"); v != nil {
		c.ValuePreview = model.Preview(s.x.text(v))
	}
	s.rec.Constants = append(s.rec.Constants, c)
}

func (s *fileState) dataStructure(n syntax.Node) {
	name, ok := s.x.Name(n)
	if !ok {
		return
	}
	ds := model.DataStructure{Name: name, Subfields: []string{}}
	for sf := range syntax.FindByKind(n, lang.SubfieldDefinition) {
		if sub, ok := s.x.Name(sf); ok {
			ds.Subfields = append(ds.Subfields, sub)
		}
	}
	s.rec.DataStructures = append(s.rec.DataStructures, ds)
}

func (s *fileState) prototype(n syntax.Node) {
	if name, ok := s.x.Name(n); ok {
		s.rec.Prototypes = append(s.rec.Prototypes, name)
	}
}

func fixedSpec(kind model.SpecKind) handler {
	return func(s *fileState, n syntax.Node) {
		spec, ok := fixedform.Extract(kind, s.x.text(n))
		if !ok {
			return
		}
		s.rec.AddFixedSpec(spec)
		if decl, ok := fixedform.FileDeclaration(spec); ok {
			s.rec.FileDefs = append(s.rec.FileDefs, decl)
		}
	}
}

func (s *fileState) procedure(n syntax.Node, fileNames []string) (model.Procedure, bool) {
	name, ok := s.x.Name(n)
	if !ok {
		return model.Procedure{}, false
	}
	return model.Procedure{
		Name:          name,
		Params:        s.x.Parameters(n),
		Returns:       s.x.ReturnType(n),
		CallsInternal: collect(s.x.CallTargets(n)),
		CallsExternal: []string{},
		UsesFiles:     s.x.FileReferences(n, fileNames),
	}, true
}

func (s *fileState) subroutine(n syntax.Node, fileNames []string) (model.Subroutine, bool) {
	name, ok := s.x.Name(n)
	if !ok {
		return model.Subroutine{}, false
	}
	return model.Subroutine{
		Name:          name,
		CallsInternal: collect(s.x.CallTargets(n)),
		CallsExternal: []string{},
		UsesFiles:     s.x.FileReferences(n, fileNames),
	}, true
}
