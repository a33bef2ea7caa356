// Package parse turns RPG source into syntax trees, either with a
// tree-sitter grammar or with the built-in scanner.
package parse

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mayflower/rpg-explainer/internal/syntax"
)

// Unit is one parsed source unit. Root is nil for empty source.
type Unit struct {
	Path      string
	Source    []byte
	Root      syntax.Node
	HasErrors bool

	tree *sitter.Tree
}

// Close releases the tree-sitter tree backing the unit, if any.
func (u *Unit) Close() {
	if u.tree != nil {
		u.tree.Close()
		u.tree = nil
	}
}

// Parser parses source units. The zero value and New(nil) use the built-in
// scanner.
type Parser struct {
	grammar *sitter.Language
}

// New returns a parser for grammar. A nil grammar selects the built-in
// scanner.
func New(grammar *sitter.Language) *Parser {
	return &Parser{grammar: grammar}
}

// Parse parses source held in memory. path only labels the unit.
func (p *Parser) Parse(ctx context.Context, path string, source []byte) (*Unit, error) {
	u := &Unit{Path: path, Source: source}
	if len(source) == 0 {
		return u, nil
	}

	if p.grammar == nil {
		root := scan(source)
		u.Root = root
		u.HasErrors = root.HasError()
		return u, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(p.grammar)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	u.tree = tree
	u.Root = syntax.FromSitter(tree.RootNode())
	u.HasErrors = u.Root != nil && u.Root.HasError()
	return u, nil
}

// ParseString parses an in-memory string.
func (p *Parser) ParseString(path, source string) (*Unit, error) {
	return p.Parse(context.Background(), path, []byte(source))
}

// ParseFile reads and parses the file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Unit, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.Parse(ctx, path, source)
}
