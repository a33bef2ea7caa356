// Package syntax provides generic access to parsed syntax trees: pre-order
// traversal, search by node kind and source-text extraction.
package syntax

import (
	"fmt"
	"iter"
	"unicode/utf8"
)

// Node is a node of a syntax tree produced by an external parser.
// Implementations must return a nil Node (not a typed nil) for absent children.
type Node interface {
	Kind() string
	StartByte() uint32
	EndByte() uint32
	ChildCount() int
	Child(i int) Node
	ChildByFieldName(name string) Node
	HasError() bool
}

// DecodeError reports a node whose byte range cannot be read as UTF-8 text.
type DecodeError struct {
	Kind       string
	Start, End uint32
	Reason     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s [%d:%d]: %s", e.Kind, e.Start, e.End, e.Reason)
}

// Traverse yields every node of the subtree rooted at n together with its
// parent, in pre-order. The parent of n itself is nil.
func Traverse(n Node) iter.Seq2[Node, Node] {
	return func(yield func(Node, Node) bool) {
		if n == nil {
			return
		}
		walk(n, nil, yield)
	}
}

func walk(n, parent Node, yield func(Node, Node) bool) bool {
	if !yield(n, parent) {
		return false
	}
	for i := 0; i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if !walk(child, n, yield) {
			return false
		}
	}
	return true
}

// FindByKind yields the nodes of the subtree rooted at n whose kind is kind.
func FindByKind(n Node, kind string) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for node := range Traverse(n) {
			if node.Kind() == kind && !yield(node) {
				return
			}
		}
	}
}

// Children returns the direct children of n.
func Children(n Node) []Node {
	children := make([]Node, 0, n.ChildCount())
	for i := 0; i < n.ChildCount(); i++ {
		if child := n.Child(i); child != nil {
			children = append(children, child)
		}
	}
	return children
}

// Text returns the source text spanned by n.
func Text(n Node, source []byte) (string, error) {
	start, end := n.StartByte(), n.EndByte()
	if start > end || int(end) > len(source) {
		return "", &DecodeError{Kind: n.Kind(), Start: start, End: end, Reason: "byte range out of bounds"}
	}
	b := source[start:end]
	if !utf8.Valid(b) {
		return "", &DecodeError{Kind: n.Kind(), Start: start, End: end, Reason: "invalid UTF-8"}
	}
	return string(b), nil
}
