package syntax

import sitter "github.com/smacker/go-tree-sitter"

type sitterNode struct {
	n *sitter.Node
}

// FromSitter adapts a go-tree-sitter node. It returns nil for a nil node.
func FromSitter(n *sitter.Node) Node {
	if n == nil || n.IsNull() {
		return nil
	}
	return sitterNode{n: n}
}

func (s sitterNode) Kind() string      { return s.n.Type() }
func (s sitterNode) StartByte() uint32 { return s.n.StartByte() }
func (s sitterNode) EndByte() uint32   { return s.n.EndByte() }
func (s sitterNode) ChildCount() int   { return int(s.n.ChildCount()) }
func (s sitterNode) HasError() bool    { return s.n.HasError() }

func (s sitterNode) Child(i int) Node {
	return FromSitter(s.n.Child(i))
}

func (s sitterNode) ChildByFieldName(name string) Node {
	return FromSitter(s.n.ChildByFieldName(name))
}
