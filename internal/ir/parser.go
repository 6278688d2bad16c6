package ir

import (
	"fmt"
	"io"
	"iter"
	"strconv"
)

type tokStream struct {
	toks []token
	pos  int
}

func (s *tokStream) peek() token { return s.toks[s.pos] }

func (s *tokStream) peekAt(n int) token {
	i := s.pos + n
	if i >= len(s.toks) {
		return s.toks[len(s.toks)-1]
	}
	return s.toks[i]
}

func (s *tokStream) next() token {
	t := s.toks[s.pos]
	if s.pos < len(s.toks)-1 {
		s.pos++
	}
	return t
}

func tokenize(src string) ([]token, error) {
	lx := newLexer(src)
	var out []token
	for {
		t, err := lx.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tokEOF {
			break
		}
	}
	return out, nil
}

// Parse reads the full IR text from r and returns its top-level items as a
// lazy sequence, in source order. The input must be read in full before
// parsing starts (a metadata reference can point at an id defined later in
// the file), but the caller still consumes items one at a time through the
// returned iterator.
func Parse(r io.Reader) (iter.Seq[Item], error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	toks, err := tokenize(string(data))
	if err != nil {
		return nil, err
	}
	p := &parser{s: &tokStream{toks: toks}}
	items, err := p.parseItems()
	if err != nil {
		return nil, err
	}
	return func(yield func(Item) bool) {
		for _, it := range items {
			if !yield(it) {
				return
			}
		}
	}, nil
}

type parser struct {
	s *tokStream
}

func (p *parser) errorf(pos Position, format string, args ...interface{}) *ParseError {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseItems() ([]Item, error) {
	var items []Item
	for p.s.peek().kind != tokEOF {
		item, err := p.parseItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *parser) parseItem() (Item, error) {
	t := p.s.peek()
	switch {
	case t.kind == tokIdent && t.text == "define":
		return p.parseDefine()
	case t.kind == tokIdent && t.text == "declare":
		return p.parseDeclare()
	case t.kind == tokMeta && isAllDigits(t.text):
		return p.parseMetadataItem()
	default:
		return nil, p.errorf(t.pos, "expected 'define', 'declare' or a numbered metadata node, got %q", t.text)
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (p *parser) expectPunct(text string) (Position, error) {
	t := p.s.next()
	if t.kind != tokPunct || t.text != text {
		return t.pos, p.errorf(t.pos, "expected %q, got %q", text, t.text)
	}
	return t.pos, nil
}

func (p *parser) expectGlobal() (string, Position, error) {
	t := p.s.next()
	if t.kind != tokGlobal {
		return "", t.pos, p.errorf(t.pos, "expected a global symbol name, got %q", t.text)
	}
	return t.text, t.pos, nil
}

// parseType parses a single signature type: an integer/float primitive,
// "*" elem, "fn(...) -> ret", "_" (the erased sentinel), or a bare
// identifier treated as an opaque alias name. "void" is not special here;
// parseRetType handles it.
func (p *parser) parseType() (Type, error) {
	t := p.s.next()
	switch {
	case t.kind == tokPunct && t.text == "*":
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return PointerType{Elem: elem}, nil
	case t.kind == tokIdent && t.text == "fn":
		return p.parseFnType()
	case t.kind == tokIdent && t.text == "_":
		return Erased, nil
	case t.kind == tokIdent:
		if bits, ok := intBits(t.text); ok {
			return IntType{Bits: bits}, nil
		}
		if t.text == "f32" {
			return FloatType{Bits: 32}, nil
		}
		if t.text == "f64" {
			return FloatType{Bits: 64}, nil
		}
		return AliasType{Name: t.text}, nil
	default:
		return nil, p.errorf(t.pos, "expected a type, got %q", t.text)
	}
}

func intBits(name string) (int, bool) {
	switch name {
	case "i1":
		return 1, true
	case "i8":
		return 8, true
	case "i16":
		return 16, true
	case "i32":
		return 32, true
	case "i64":
		return 64, true
	}
	return 0, false
}

func (p *parser) parseFnType() (Type, error) {
	sig, err := p.parseSigTail(nil)
	if err != nil {
		return nil, err
	}
	return FuncType{Sig: sig}, nil
}

// parseSigTail parses "(" typelist ")" ["->" type], given a return type
// already consumed by the caller (retType == nil means "void so far,
// determine from the optional arrow").
func (p *parser) parseSigTail(retType Type) (Sig, error) {
	if _, err := p.expectPunct("("); err != nil {
		return Sig{}, err
	}
	var inputs []Type
	for {
		if t := p.s.peek(); t.kind == tokPunct && t.text == ")" {
			p.s.next()
			break
		}
		ty, err := p.parseType()
		if err != nil {
			return Sig{}, err
		}
		inputs = append(inputs, ty)
		if t := p.s.peek(); t.kind == tokPunct && t.text == "," {
			p.s.next()
			continue
		}
	}
	output := retType
	if t := p.s.peek(); t.kind == tokArrow {
		p.s.next()
		ty, err := p.parseType()
		if err != nil {
			return Sig{}, err
		}
		output = ty
	}
	return Sig{Inputs: inputs, Output: output}, nil
}

// parseRetType parses the leading "<rettype>" or "void" that starts a
// define/declare, returning nil for "void". The caller reads the "@name".
func (p *parser) parseRetType() (Type, error) {
	if t := p.s.peek(); t.kind == tokIdent && t.text == "void" {
		p.s.next()
		return nil, nil
	}
	return p.parseType()
}

func (p *parser) parseMetaRefs() ([]MetaRef, error) {
	var refs []MetaRef
	for {
		kindTok := p.s.peek()
		if kindTok.kind != tokMeta || isAllDigits(kindTok.text) {
			return refs, nil
		}
		idTok := p.s.peekAt(1)
		if idTok.kind != tokMeta || !isAllDigits(idTok.text) {
			return refs, nil
		}
		p.s.next()
		p.s.next()
		id, err := strconv.Atoi(idTok.text)
		if err != nil {
			return nil, p.errorf(idTok.pos, "malformed metadata id %q", idTok.text)
		}
		refs = append(refs, MetaRef{Kind: kindTok.text, ID: id})
	}
}

func (p *parser) parseDefine() (Item, error) {
	p.s.next() // "define"
	ret, err := p.parseRetType()
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectGlobal()
	if err != nil {
		return nil, err
	}
	sig, err := p.parseSigTail(ret)
	if err != nil {
		return nil, err
	}
	meta, err := p.parseMetaRefs()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for {
		if t := p.s.peek(); t.kind == tokPunct && t.text == "}" {
			p.s.next()
			break
		}
		if p.s.peek().kind == tokEOF {
			return nil, p.errorf(p.s.peek().pos, "unexpected end of input inside function body %q", name)
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return &Define{Name: name, Sig: sig, Stmts: stmts, Meta: meta}, nil
}

func (p *parser) parseDeclare() (Item, error) {
	p.s.next() // "declare"
	if t := p.s.peek(); t.kind == tokGlobal {
		name, _, err := p.expectGlobal()
		if err != nil {
			return nil, err
		}
		return &Declare{Name: name, Sig: nil}, nil
	}
	ret, err := p.parseRetType()
	if err != nil {
		return nil, err
	}
	name, _, err := p.expectGlobal()
	if err != nil {
		return nil, err
	}
	sig, err := p.parseSigTail(ret)
	if err != nil {
		return nil, err
	}
	return &Declare{Name: name, Sig: &sig}, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	t := p.s.next()
	if t.kind != tokIdent {
		return nil, p.errorf(t.pos, "expected a statement keyword, got %q", t.text)
	}
	switch t.text {
	case "asm":
		body := p.s.next()
		if body.kind != tokString {
			return nil, p.errorf(body.pos, "expected a string literal after 'asm'")
		}
		return AsmStmt{Body: body.text}, nil

	case "call":
		callee, _, err := p.expectGlobal()
		if err != nil {
			return nil, err
		}
		return DirectCall{Callee: callee}, nil

	case "bitcastcall":
		if t := p.s.peek(); t.kind == tokGlobal {
			p.s.next()
			name := t.text
			return BitcastCall{Callee: &name}, nil
		}
		if t := p.s.peek(); t.kind == tokIdent && t.text == "_" {
			p.s.next()
			return BitcastCall{Callee: nil}, nil
		}
		got := p.s.next()
		return nil, p.errorf(got.pos, "expected a global symbol or '_' after 'bitcastcall', got %q", got.text)

	case "icall":
		fnTok := p.s.next()
		if fnTok.kind != tokIdent || fnTok.text != "fn" {
			return nil, p.errorf(fnTok.pos, "expected 'fn' after 'icall', got %q", fnTok.text)
		}
		sig, err := p.parseSigTail(nil)
		if err != nil {
			return nil, err
		}
		meta, err := p.parseMetaRefs()
		if err != nil {
			return nil, err
		}
		return IndirectCall{Sig: sig, Meta: meta}, nil

	case "other":
		return OtherStmt{}, nil

	default:
		return nil, p.errorf(t.pos, "unknown statement keyword %q", t.text)
	}
}

func (p *parser) parseMetadataItem() (Item, error) {
	idTok := p.s.next()
	id, err := strconv.Atoi(idTok.text)
	if err != nil {
		return nil, p.errorf(idTok.pos, "malformed metadata id %q", idTok.text)
	}
	if _, err := p.expectPunct("="); err != nil {
		return nil, err
	}
	kindTok := p.s.next()
	if kindTok.kind != tokMeta {
		return nil, p.errorf(kindTok.pos, "expected a metadata kind (e.g. !Fn), got %q", kindTok.text)
	}
	md, err := p.parseMetadataBody(kindTok)
	if err != nil {
		return nil, err
	}
	return &MetadataItem{ID: id, Kind: md}, nil
}

func (p *parser) parseMetadataBody(kindTok token) (Metadata, error) {
	switch kindTok.text {
	case "Fn":
		fields, err := p.parseFields()
		if err != nil {
			return nil, err
		}
		return FnMeta{SigName: fields["sig"]}, nil

	case "Dyn":
		fields, err := p.parseFields()
		if err != nil {
			return nil, err
		}
		return DynMeta{Trait: fields["trait"], Method: fields["method"]}, nil

	case "Drop":
		fields, err := p.parseFields()
		if err != nil {
			return nil, err
		}
		return DropMeta{Trait: fields["trait"]}, nil

	case "Set":
		if _, err := p.expectPunct("{"); err != nil {
			return nil, err
		}
		var ids []int
		for {
			if t := p.s.peek(); t.kind == tokPunct && t.text == "}" {
				p.s.next()
				break
			}
			t := p.s.next()
			if (t.kind != tokMeta && t.kind != tokNumber) || !isAllDigits(t.text) {
				return nil, p.errorf(t.pos, "expected a metadata id inside !Set{...}, got %q", t.text)
			}
			id, err := strconv.Atoi(t.text)
			if err != nil {
				return nil, p.errorf(t.pos, "malformed metadata id %q", t.text)
			}
			ids = append(ids, id)
			if t := p.s.peek(); t.kind == tokPunct && t.text == "," {
				p.s.next()
			}
		}
		return SetMeta{IDs: ids}, nil

	default:
		raw := p.s.next()
		if raw.kind != tokString {
			return nil, p.errorf(raw.pos, "expected a string literal for opaque metadata kind %q", kindTok.text)
		}
		return OpaqueMeta{Kind: kindTok.text, Raw: raw.text}, nil
	}
}

// parseFields parses "{" name ":" string ("," name ":" string)* "}" into a
// map keyed by field name.
func (p *parser) parseFields() (map[string]string, error) {
	if _, err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	for {
		if t := p.s.peek(); t.kind == tokPunct && t.text == "}" {
			p.s.next()
			break
		}
		name := p.s.next()
		if name.kind != tokIdent {
			return nil, p.errorf(name.pos, "expected a field name, got %q", name.text)
		}
		fieldName := name.text
		if n := len(fieldName); n > 1 && fieldName[n-1] == ':' {
			// The lexer keeps ':' inside identifiers, so "name:" arrives as
			// one token.
			fieldName = fieldName[:n-1]
		} else if _, err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val := p.s.next()
		if val.kind != tokString {
			return nil, p.errorf(val.pos, "expected a string literal for field %q, got %q", fieldName, val.text)
		}
		fields[fieldName] = val.text
		if t := p.s.peek(); t.kind == tokPunct && t.text == "," {
			p.s.next()
		}
	}
	return fields, nil
}
