package syntax

// Elem is an in-memory Node. It backs trees built without a tree-sitter
// grammar and hand-built trees in tests.
type Elem struct {
	kind     string
	start    uint32
	end      uint32
	children []*Elem
	fields   map[string]*Elem
	err      bool
}

// NewElem returns a node of the given kind spanning source[start:end].
func NewElem(kind string, start, end uint32, children ...*Elem) *Elem {
	return &Elem{kind: kind, start: start, end: end, children: children}
}

// Append adds children to e and returns e.
func (e *Elem) Append(children ...*Elem) *Elem {
	e.children = append(e.children, children...)
	return e
}

// SetField registers child under a field name. The child should also be one
// of e's children.
func (e *Elem) SetField(name string, child *Elem) *Elem {
	if e.fields == nil {
		e.fields = make(map[string]*Elem)
	}
	e.fields[name] = child
	return e
}

// SetEnd moves the end offset of e.
func (e *Elem) SetEnd(end uint32) { e.end = end }

// MarkError flags e as containing a syntax error.
func (e *Elem) MarkError() { e.err = true }

func (e *Elem) Kind() string      { return e.kind }
func (e *Elem) StartByte() uint32 { return e.start }
func (e *Elem) EndByte() uint32   { return e.end }
func (e *Elem) ChildCount() int   { return len(e.children) }

func (e *Elem) Child(i int) Node {
	if i < 0 || i >= len(e.children) || e.children[i] == nil {
		return nil
	}
	return e.children[i]
}

func (e *Elem) ChildByFieldName(name string) Node {
	if c, ok := e.fields[name]; ok && c != nil {
		return c
	}
	return nil
}

// HasError reports whether e or any descendant is flagged as an error.
func (e *Elem) HasError() bool {
	if e.err {
		return true
	}
	for _, c := range e.children {
		if c != nil && c.HasError() {
			return true
		}
	}
	return false
}
