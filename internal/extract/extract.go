// Package extract converts matched syntax subtrees into model records.
//
// Extractors report structurally absent names, types and return types as
// absent values. The only hard failure is a node whose text cannot be decoded,
// which is recorded on the Extractor and surfaced through Err.
package extract

import (
	"iter"
	"strings"

	"github.com/mayflower/rpg-explainer/internal/lang"
	"github.com/mayflower/rpg-explainer/internal/model"
	"github.com/mayflower/rpg-explainer/internal/syntax"
)

// Extractor reads node text from one source buffer. After the first decode
// failure every read returns "" and Err reports the failure.
type Extractor struct {
	source []byte
	err    error
}

// New returns an Extractor over source.
func New(source []byte) *Extractor {
	return &Extractor{source: source}
}

// Err returns the first decode error encountered, if any.
func (x *Extractor) Err() error { return x.err }

func (x *Extractor) text(n syntax.Node) string {
	if x.err != nil {
		return ""
	}
	s, err := syntax.Text(n, x.source)
	if err != nil {
		x.err = err
		return ""
	}
	return s
}

// Name resolves the defining name of n: the node's own text for identifiers,
// then its "name" field, then its first identifier child, looking one level
// into identifier_or_star wrappers.
func (x *Extractor) Name(n syntax.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	if lang.IsIdentifier(n.Kind()) {
		return x.nonEmpty(x.text(n))
	}
	if field := n.ChildByFieldName("name"); field != nil {
		return x.nonEmpty(x.text(field))
	}
	for _, child := range syntax.Children(n) {
		switch {
		case child.Kind() == lang.IdentifierOrStar:
			return x.Name(child)
		case lang.IsIdentifier(child.Kind()):
			return x.nonEmpty(x.text(child))
		}
	}
	return "", false
}

func (x *Extractor) nonEmpty(s string) (string, bool) {
	return s, s != ""
}

// TypeSpec returns the text of the first type_spec in n's subtree.
func (x *Extractor) TypeSpec(n syntax.Node) *string {
	for ts := range syntax.FindByKind(n, lang.TypeSpec) {
		s := x.text(ts)
		return &s
	}
	return nil
}

// Attributes collects the keyword attributes that are direct children of n.
// A repeated keyword replaces the earlier one.
func (x *Extractor) Attributes(n syntax.Node) map[string][]string {
	attrs := make(map[string][]string)
	for _, child := range syntax.Children(n) {
		if child.Kind() != lang.Attribute {
			continue
		}
		key := ""
		args := []string{}
		for _, part := range syntax.Children(child) {
			kind := part.Kind()
			if key == "" && lang.IsIdentifier(kind) {
				key = strings.ToLower(x.text(part))
				continue
			}
			if lang.IsDelimiter(kind) {
				continue
			}
			if s := x.text(part); s != "" {
				args = append(args, s)
			}
		}
		if key != "" {
			attrs[key] = args
		}
	}
	return attrs
}

// Parameters returns the parameters of every procedure interface below n.
func (x *Extractor) Parameters(n syntax.Node) []model.Parameter {
	params := []model.Parameter{}
	for pi := range syntax.FindByKind(n, lang.ProcedureInterface) {
		for pd := range syntax.FindByKind(pi, lang.ParameterDefinition) {
			name, ok := x.Name(pd)
			if !ok {
				continue
			}
			params = append(params, model.Parameter{
				Name:       name,
				Type:       x.TypeSpec(pd),
				Attributes: x.Attributes(pd),
			})
		}
	}
	return params
}

// ReturnType returns the type_spec declared directly on a procedure
// interface below n.
func (x *Extractor) ReturnType(n syntax.Node) *string {
	for pi := range syntax.FindByKind(n, lang.ProcedureInterface) {
		for _, child := range syntax.Children(pi) {
			if child.Kind() == lang.TypeSpec {
				s := x.text(child)
				return &s
			}
		}
	}
	return nil
}

// CallTargets yields the identifiers immediately followed by a parenthesized
// group in pre-order, skipping built-in functions. Any identifier before a
// paren_group matches, so array subscripts are reported as calls too.
func (x *Extractor) CallTargets(n syntax.Node) iter.Seq[string] {
	return func(yield func(string) bool) {
		var prev syntax.Node
		for node := range syntax.Traverse(n) {
			if node.Kind() == lang.ParenGroup && prev != nil && prev.Kind() == lang.Identifier {
				name := x.text(prev)
				if name != "" && !strings.HasPrefix(name, lang.BuiltinSigil) {
					if !yield(name) {
						return
					}
				}
			}
			prev = node
		}
	}
}

// FileReferences returns the identifiers below n that name one of the
// declared files, compared case-insensitively. Each distinct spelling is
// reported once, in order of first occurrence.
func (x *Extractor) FileReferences(n syntax.Node, fileNames []string) []string {
	refs := []string{}
	if len(fileNames) == 0 {
		return refs
	}
	known := make(map[string]bool, len(fileNames))
	for _, f := range fileNames {
		known[strings.ToLower(f)] = true
	}
	seen := make(map[string]bool)
	for node := range syntax.FindByKind(n, lang.Identifier) {
		name := x.text(node)
		if !known[strings.ToLower(name)] || seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, name)
	}
	return refs
}

func collect(seq iter.Seq[string]) []string {
	out := []string{}
	for s := range seq {
		out = append(out, s)
	}
	return out
}

// ProcedureSource returns the source text of the first procedure in root
// whose name equals name, ignoring case.
func ProcedureSource(root syntax.Node, source []byte, name string) (string, bool, error) {
	if root == nil {
		return "", false, nil
	}
	x := New(source)
	for n := range syntax.FindByKind(root, lang.ProcedureDefinition) {
		got, ok := x.Name(n)
		if x.err != nil {
			return "", false, x.err
		}
		if !ok || !strings.EqualFold(got, name) {
			continue
		}
		text := x.text(n)
		return text, x.err == nil, x.err
	}
	return "", false, nil
}
