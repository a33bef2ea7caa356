package parse

import (
	"bytes"
	"strings"

	"github.com/mayflower/rpg-explainer/internal/lang"
	"github.com/mayflower/rpg-explainer/internal/syntax"
)

// hyphenWords are the hyphenated keywords of free-form RPG. They are
// keyword tokens wherever they appear.
var hyphenWords = set(
	"dcl-f", "dcl-c", "dcl-s", "dcl-ds", "end-ds", "dcl-subf", "dcl-pr",
	"end-pr", "dcl-pi", "end-pi", "dcl-parm", "dcl-proc", "end-proc",
	"ctl-opt", "dcl-enum", "end-enum", "on-error", "on-exit", "on-excp",
	"eval-corr", "xml-into", "xml-sax", "data-into", "data-gen", "snd-msg",
	"for-each",
)

// operatorWords are never call targets.
var operatorWords = set("and", "or", "not", "to", "by", "downto")

// opcodes are keyword tokens when they start a statement.
var opcodes = set(
	"acq", "begsr", "callp", "chain", "clear", "close", "commit", "dealloc",
	"delete", "dou", "dow", "dsply", "dump", "else", "elseif", "enddo",
	"endfor", "endif", "endmon", "endsl", "endsr", "eval", "evalr", "except",
	"exec", "exfmt", "exsr", "feod", "for", "force", "if", "in", "iter",
	"leave", "leavesr", "monitor", "next", "occur", "open", "other", "out",
	"post", "read", "readc", "reade", "readp", "readpe", "rel", "reset",
	"return", "rolbk", "select", "setgt", "setll", "sorta", "test", "unlock",
	"update", "when", "write",
)

// typeWords start a type_spec in a declaration.
var typeWords = set(
	"char", "varchar", "graph", "vargraph", "ucs2", "varucs2", "ind",
	"packed", "zoned", "bindec", "int", "uns", "float", "date", "time",
	"timestamp", "pointer", "object", "like", "likeds", "likerec", "likefile",
)

var assignOps = set("=", "+=", "-=", "*=", "/=", "**=", ".")

// literalPrefixes mark typed literals such as x'FF' and d'2024-01-01'.
var literalPrefixes = set("x", "g", "c", "d", "t", "z", "u", "ux")

type block struct {
	kind string
	end  string
}

var blocks = map[string]block{
	"dcl-proc": {lang.ProcedureDefinition, "end-proc"},
	"dcl-pi":   {lang.ProcedureInterface, "end-pi"},
	"dcl-pr":   {lang.ProcedurePrototype, "end-pr"},
	"dcl-ds":   {lang.DataStructureDefinition, "end-ds"},
	"begsr":    {lang.SubroutineDefinition, "endsr"},
}

var blockEnds = set("end-proc", "end-pi", "end-pr", "end-ds", "endsr")

var fixedKinds = map[byte]string{
	'H': lang.FixedHSpec,
	'F': lang.FixedFSpec,
	'D': lang.FixedDSpec,
	'C': lang.FixedCSpec,
	'P': lang.FixedPSpec,
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

type token struct {
	kind       string
	word       string // lower-cased text of words
	start, end uint32
	bad        bool
}

func (t token) elem() *syntax.Elem {
	e := syntax.NewElem(t.kind, t.start, t.end)
	if t.bad {
		e.MarkError()
	}
	return e
}

func (t token) isName() bool {
	return lang.IsIdentifier(t.kind) && !strings.HasPrefix(t.word, lang.BuiltinSigil)
}

type frame struct {
	node *syntax.Elem
	end  string
}

// scanner builds a tree in the grammar's kind vocabulary from RPG source.
// Fixed-form lines become opaque fixed_?_spec leaves; free-form code is
// tokenized and grouped into statements and declaration blocks.
type scanner struct {
	src     []byte
	root    *syntax.Elem
	stack   []frame
	pending []token
	lastEnd uint32
}

// scan builds the tree of source without a tree-sitter grammar.
func scan(source []byte) *syntax.Elem {
	s := &scanner{
		src:  source,
		root: syntax.NewElem(lang.SourceFile, 0, uint32(len(source))),
	}
	free := false
	for off := 0; off < len(source); {
		end, next := len(source), len(source)
		if nl := bytes.IndexByte(source[off:], '\n'); nl >= 0 {
			end, next = off+nl, off+nl+1
		}
		lineEnd := end
		if lineEnd > off && source[lineEnd-1] == '\r' {
			lineEnd--
		}
		if !s.line(source[off:lineEnd], off, &free) {
			break
		}
		off = next
	}
	s.finish()
	return s.root
}

// line dispatches one source line. It returns false at the start of
// compile-time data.
func (s *scanner) line(line []byte, off int, free *bool) bool {
	if bytes.HasPrefix(line, []byte("**")) {
		if len(line) >= 6 && strings.EqualFold(string(line[:6]), "**free") {
			s.flush()
			s.add(syntax.NewElem(lang.FreeDirective, uint32(off), uint32(off+6)))
			*free = true
			return true
		}
		return false
	}
	if *free {
		s.code(line, off)
		return true
	}

	if !sequenceArea(line) {
		s.code(line, off)
		return true
	}
	if len(line) < 6 {
		return true
	}
	spec := line[5]
	if spec >= 'a' && spec <= 'z' {
		spec -= 'a' - 'A'
	}
	if kind, ok := fixedKinds[spec]; ok {
		s.flush()
		s.add(syntax.NewElem(kind, uint32(off), uint32(off+len(line))))
		return true
	}
	if spec != ' ' {
		// Input, output and other legacy specs carry nothing of interest.
		return true
	}
	if len(line) >= 7 && line[6] == '*' {
		return true
	}
	s.code(line[6:], off+6)
	return true
}

// sequenceArea reports whether columns 1-5 hold only blanks or digits.
func sequenceArea(line []byte) bool {
	for i := 0; i < 5 && i < len(line); i++ {
		if c := line[i]; c != ' ' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// code tokenizes a run of free-form text starting at source offset base.
func (s *scanner) code(text []byte, base int) {
	trimmed := bytes.TrimLeft(text, " \t")
	if len(trimmed) >= 2 && trimmed[0] == '/' && isLetter(trimmed[1]) {
		start := base + len(text) - len(trimmed)
		end := base + len(bytes.TrimRight(text, " \t"))
		s.flush()
		s.add(syntax.NewElem(lang.Directive, uint32(start), uint32(end)))
		return
	}

	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\f':
			i++
			continue
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			return
		}

		start := i
		var t token
		switch {
		case c == '\'':
			i, t.bad = stringEnd(text, i)
			t.kind = lang.StringLiteral
		case isDigit(c) || c == '.' && i+1 < len(text) && isDigit(text[i+1]):
			for i < len(text) && (isDigit(text[i]) || text[i] == '.') {
				i++
			}
			t.kind = lang.NumberLiteral
		case c == '%' && i+1 < len(text) && isLetter(text[i+1]):
			i = wordEnd(text, i+1)
			t.kind = lang.Identifier
			t.word = strings.ToLower(string(text[start:i]))
		case c == '*' && i+1 < len(text) && isLetter(text[i+1]) && !s.afterOperand():
			i = wordEnd(text, i+1)
			t.kind = lang.SpecialIdentifier
			t.word = strings.ToLower(string(text[start:i]))
		case isWordStart(c):
			i = wordEnd(text, i)
			w := strings.ToLower(string(text[start:i]))
			if j, ok := hyphenated(text, i, w); ok {
				i = j
				w = strings.ToLower(string(text[start:i]))
			}
			switch {
			case i < len(text) && text[i] == '\'' && literalPrefixes[w]:
				i, t.bad = stringEnd(text, i)
				t.kind = lang.StringLiteral
			case hyphenWords[w] || operatorWords[w]:
				t.kind, t.word = w, w
			default:
				t.kind, t.word = lang.Identifier, w
			}
		default:
			i = operatorEnd(text, i)
			t.kind = string(text[start:i])
		}
		t.start, t.end = uint32(base+start), uint32(base+i)
		s.feed(t)
	}
}

func (s *scanner) afterOperand() bool {
	if len(s.pending) == 0 {
		return false
	}
	switch s.pending[len(s.pending)-1].kind {
	case lang.Identifier, lang.SpecialIdentifier, lang.NumberLiteral, lang.StringLiteral, ")":
		return true
	}
	return false
}

func (s *scanner) feed(t token) {
	s.pending = append(s.pending, t)
	if t.kind == ";" {
		toks := s.pending
		s.pending = nil
		s.statement(toks, false)
	}
}

// flush closes an unterminated statement before a line-level node.
func (s *scanner) flush() {
	if len(s.pending) == 0 {
		return
	}
	toks := s.pending
	s.pending = nil
	s.statement(toks, true)
}

func (s *scanner) finish() {
	s.flush()
	for i := len(s.stack) - 1; i >= 0; i-- {
		s.stack[i].node.MarkError()
		s.stack[i].node.SetEnd(s.lastEnd)
	}
	s.stack = nil
}

func (s *scanner) parent() *syntax.Elem {
	if len(s.stack) == 0 {
		return s.root
	}
	return s.stack[len(s.stack)-1].node
}

func (s *scanner) add(n *syntax.Elem) {
	s.parent().Append(n)
	s.lastEnd = n.EndByte()
}

func (s *scanner) statement(toks []token, unterminated bool) {
	head := toks[0]
	var node *syntax.Elem

	if b, ok := blocks[head.word]; ok {
		node = syntax.NewElem(b.kind, head.start, toks[len(toks)-1].end)
		toks[0].kind = head.word
		s.declaration(node, toks)
		if unterminated {
			node.MarkError()
		}
		s.add(node)
		if !selfClosing(head.word, toks) {
			s.stack = append(s.stack, frame{node: node, end: b.end})
		}
		return
	}
	if blockEnds[head.word] {
		toks[0].kind = head.word
		s.close(toks, unterminated)
		return
	}

	switch head.word {
	case "dcl-f":
		node = s.decl(lang.FileDefinition, toks)
	case "dcl-s":
		node = s.decl(lang.VariableDefinition, toks)
	case "dcl-subf":
		node = s.decl(lang.SubfieldDefinition, toks)
	case "dcl-parm":
		node = s.decl(lang.ParameterDefinition, toks)
	case "dcl-c":
		node = s.constant(toks)
	case "ctl-opt":
		node = s.decl(lang.ControlOption, toks)
	default:
		if len(s.stack) > 0 && head.kind == lang.Identifier {
			switch s.stack[len(s.stack)-1].node.Kind() {
			case lang.DataStructureDefinition:
				node = s.decl(lang.SubfieldDefinition, toks)
			case lang.ProcedureInterface, lang.ProcedurePrototype:
				node = s.decl(lang.ParameterDefinition, toks)
			}
		}
		if node == nil {
			node = s.simple(toks)
		}
	}
	if unterminated {
		node.MarkError()
	}
	s.add(node)
}

// selfClosing reports whether a block opener has no body: a declaration that
// ends in the same statement or a data structure defined by LIKEDS/LIKEREC.
func selfClosing(head string, toks []token) bool {
	end := blocks[head].end
	for _, t := range toks[1:] {
		if t.word == end {
			return true
		}
		if head == "dcl-ds" && (t.word == "likeds" || t.word == "likerec") {
			return true
		}
	}
	return false
}

// close ends the innermost open block matching the end keyword in toks.
// Blocks left open inside it are flagged as errors.
func (s *scanner) close(toks []token, unterminated bool) {
	end := toks[0].word
	for i := len(s.stack) - 1; i >= 0; i-- {
		if s.stack[i].end != end {
			continue
		}
		for j := len(s.stack) - 1; j > i; j-- {
			s.stack[j].node.MarkError()
			s.stack[j].node.SetEnd(s.lastEnd)
		}
		node := s.stack[i].node
		for _, t := range toks {
			node.Append(t.elem())
		}
		node.SetEnd(toks[len(toks)-1].end)
		if unterminated {
			node.MarkError()
		}
		s.stack = s.stack[:i]
		s.lastEnd = node.EndByte()
		return
	}

	stray := s.simple(toks)
	stray.MarkError()
	s.add(stray)
}

func (s *scanner) decl(kind string, toks []token) *syntax.Elem {
	node := syntax.NewElem(kind, toks[0].start, toks[len(toks)-1].end)
	s.declaration(node, toks)
	return node
}

// declaration appends the parts of a declaration statement to node: the
// leading keyword, the name (also registered as the "name" field), the first
// type keyword as a type_spec and every other keyword as an attribute.
func (s *scanner) declaration(node *syntax.Elem, toks []token) {
	i := 0
	if !lang.IsIdentifier(toks[0].kind) {
		node.Append(toks[0].elem())
		i = 1
	}
	if node.Kind() != lang.ControlOption && i < len(toks) && toks[i].isName() {
		name := toks[i].elem()
		node.Append(name)
		node.SetField("name", name)
		i++
	}

	typed := false
	for i < len(toks) {
		t := toks[i]
		if t.kind != lang.Identifier {
			node.Append(t.elem())
			i++
			continue
		}
		j := i + 1
		closed := true
		if j < len(toks) && toks[j].kind == "(" {
			j, closed = matchParen(toks, j)
		}
		args := toks[i+1 : j]
		end := toks[j-1].end

		var part *syntax.Elem
		if !typed && typeWords[t.word] {
			typed = true
			kw := t
			kw.kind = t.word
			part = syntax.NewElem(lang.TypeSpec, t.start, end, kw.elem())
		} else {
			part = syntax.NewElem(lang.Attribute, t.start, end, t.elem())
		}
		for _, a := range args {
			part.Append(a.elem())
		}
		if !closed {
			part.MarkError()
		}
		node.Append(part)
		i = j
	}
}

// constant builds a constant_definition whose "value" field spans the value
// expression, or the argument of CONST(...).
func (s *scanner) constant(toks []token) *syntax.Elem {
	node := syntax.NewElem(lang.ConstantDefinition, toks[0].start, toks[len(toks)-1].end)
	node.Append(toks[0].elem())
	i := 1
	if i < len(toks) && toks[i].isName() {
		name := toks[i].elem()
		node.Append(name)
		node.SetField("name", name)
		i++
	}

	rest := toks[i:]
	var tail []token
	if n := len(rest); n > 0 && rest[n-1].kind == ";" {
		rest, tail = rest[:n-1], rest[n-1:]
	}
	if len(rest) >= 2 && rest[0].word == "const" && rest[1].kind == "(" {
		k, closed := matchParen(rest, 1)
		kw := rest[0]
		kw.kind = "const"
		node.Append(kw.elem(), rest[1].elem())
		inner := rest[2:k]
		if closed {
			inner = rest[2 : k-1]
		} else {
			node.MarkError()
		}
		if len(inner) > 0 {
			expr := expression(inner)
			node.Append(expr)
			node.SetField("value", expr)
		}
		if closed {
			node.Append(rest[k-1].elem())
		}
		rest = rest[k:]
	} else if len(rest) > 0 {
		expr := expression(rest)
		node.Append(expr)
		node.SetField("value", expr)
		rest = nil
	}
	for _, t := range rest {
		node.Append(t.elem())
	}
	for _, t := range tail {
		node.Append(t.elem())
	}
	return node
}

func expression(toks []token) *syntax.Elem {
	e := syntax.NewElem(lang.Expression, toks[0].start, toks[len(toks)-1].end)
	for _, t := range toks {
		e.Append(t.elem())
	}
	return e
}

// simple builds a statement with nested paren_group nodes. A leading opcode
// becomes a keyword token unless the statement assigns to a variable of the
// same name.
func (s *scanner) simple(toks []token) *syntax.Elem {
	node := syntax.NewElem(lang.SimpleStatement, toks[0].start, toks[len(toks)-1].end)
	head := toks[0]
	if head.kind == lang.Identifier && opcodes[head.word] && (len(toks) < 2 || !assignOps[toks[1].kind]) {
		toks[0].kind = head.word
		if head.word == "exec" {
			// Embedded SQL is kept flat.
			for _, t := range toks {
				node.Append(t.elem())
			}
			return node
		}
	}

	groups := []*syntax.Elem{node}
	for _, t := range toks {
		cur := groups[len(groups)-1]
		switch t.kind {
		case "(":
			g := syntax.NewElem(lang.ParenGroup, t.start, t.end, t.elem())
			cur.Append(g)
			groups = append(groups, g)
		case ")":
			e := t.elem()
			cur.Append(e)
			if len(groups) == 1 {
				e.MarkError()
				continue
			}
			cur.SetEnd(t.end)
			groups = groups[:len(groups)-1]
		default:
			cur.Append(t.elem())
		}
	}
	for _, g := range groups[1:] {
		g.MarkError()
		g.SetEnd(toks[len(toks)-1].end)
	}
	return node
}

// matchParen returns the index after the parenthesis matching toks[open],
// or len(toks) and false when it is never closed.
func matchParen(toks []token, open int) (int, bool) {
	depth := 0
	for i := open; i < len(toks); i++ {
		switch toks[i].kind {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return len(toks), false
}

// stringEnd returns the index after the quoted literal whose opening quote
// is at or after i, and whether the literal is unterminated.
func stringEnd(text []byte, i int) (int, bool) {
	for i < len(text) && text[i] != '\'' {
		i++
	}
	i++
	for i < len(text) {
		if text[i] == '\'' {
			if i+1 < len(text) && text[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1, false
		}
		i++
	}
	return len(text), true
}

func hyphenated(text []byte, i int, word string) (int, bool) {
	if i+1 >= len(text) || text[i] != '-' || !isLetter(text[i+1]) {
		return i, false
	}
	j := wordEnd(text, i+1)
	if hyphenWords[word+"-"+strings.ToLower(string(text[i+1:j]))] {
		return j, true
	}
	return i, false
}

func operatorEnd(text []byte, i int) int {
	for _, op := range []string{"**=", "<=", ">=", "<>", "+=", "-=", "*=", "/=", "**"} {
		if bytes.HasPrefix(text[i:], []byte(op)) {
			return i + len(op)
		}
	}
	return i + 1
}

func wordEnd(text []byte, i int) int {
	for i < len(text) && isWordChar(text[i]) {
		i++
	}
	return i
}

func isLetter(c byte) bool { return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func isWordStart(c byte) bool {
	return isLetter(c) || c == '_' || c == '#' || c == '@' || c == '$' || c >= 0x80
}

func isWordChar(c byte) bool { return isWordStart(c) || isDigit(c) }
