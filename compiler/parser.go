package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// parser consumes one module's token stream (spec 3, Token) and produces a
// ModuleAST (spec 4.3). Block structure (Define / style / element /
// Properties / pseudo-state / edge-inset) is tracked with an explicit
// recursive-descent stack, generalizing the teacher's BlockStackEntry state
// machine (waozixyz/kryc parser.go) from raw lines to tokens.
type parser struct {
	toks    []Token
	pos     int
	file    string
	scripts []scriptBlock
}

// scriptBlock is a `@script` block pulled out of the raw source before
// tokenization, since its body is foreign-language text that the KRY Lexer
// cannot (and must not) tokenize.
type scriptBlock struct {
	Language   string
	Name       string
	ExternPath string
	Body       string
	Line       int
}

// Parse tokenizes and parses one module's post-include source into a
// ModuleAST.
func Parse(mod *Module) (*ModuleAST, error) {
	stripped, scripts, err := extractScriptBlocks(mod.RawText)
	if err != nil {
		return nil, &ParseError{Pos: Pos{File: mod.Path}, Expected: "well-formed @script block", Found: err.Error()}
	}
	toks, err := NewLexer(stripped, mod.Path).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, file: mod.Path, scripts: scripts}
	return p.parseModule()
}

func (p *parser) parseModule() (*ModuleAST, error) {
	ast := &ModuleAST{}
	for {
		t := p.peek()
		switch {
		case t.Kind == TokEOF:
			return ast, nil
		case t.Kind == TokPunct && t.Text == "@":
			if err := p.parseDirective(ast); err != nil {
				return nil, err
			}
		case t.Kind == TokKeyword && t.Text == "style":
			s, err := p.parseStyle()
			if err != nil {
				return nil, err
			}
			ast.Styles = append(ast.Styles, *s)
		case t.Kind == TokKeyword && t.Text == "Define":
			c, err := p.parseComponent()
			if err != nil {
				return nil, err
			}
			ast.Components = append(ast.Components, *c)
		case t.Kind == TokIdentifier:
			el, err := p.parseElement()
			if err != nil {
				return nil, err
			}
			if ast.Root != nil {
				return nil, &ParseError{Pos: p.pos0(), Expected: "a single top-level element", Found: fmt.Sprintf("second root %q", el.TypeName)}
			}
			ast.Root = el
		default:
			return nil, &ParseError{Pos: p.pos0(), Expected: "a directive, style, Define, or element", Found: p.describe(t)}
		}
	}
}

func (p *parser) parseDirective(ast *ModuleAST) error {
	p.advance() // '@'
	t := p.peek()
	switch {
	case t.Kind == TokKeyword && t.Text == "variables":
		p.advance()
		vars, err := p.parseVariablesBlock()
		if err != nil {
			return err
		}
		ast.Variables = append(ast.Variables, vars...)
		return nil
	case t.Kind == TokIdentifier && t.Text == "script_ref":
		p.advance()
		idxTok := p.peek()
		if idxTok.Kind != TokNumber {
			return &ParseError{Pos: p.pos0(), Expected: "internal script index", Found: p.describe(idxTok)}
		}
		p.advance()
		if err := p.expectPunct(";"); err != nil {
			return err
		}
		idx, _ := strconv.Atoi(idxTok.Text)
		if idx < 0 || idx >= len(p.scripts) {
			return &ParseError{Pos: p.pos0(), Expected: "valid script index", Found: idxTok.Text}
		}
		sb := p.scripts[idx]
		ast.Scripts = append(ast.Scripts, ScriptNode{
			Language:    sb.Language,
			Name:        sb.Name,
			ExternPath:  sb.ExternPath,
			Body:        sb.Body,
			EntryPoints: extractEntryPoints(sb.Language, sb.Body),
			Line:        sb.Line,
		})
		return nil
	default:
		return &ParseError{Pos: p.pos0(), Expected: "'variables' or 'script'", Found: p.describe(t)}
	}
}

func (p *parser) parseVariablesBlock() ([]VariableNode, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var vars []VariableNode
	for {
		t := p.peek()
		if t.Kind == TokPunct && t.Text == "}" {
			p.advance()
			return vars, nil
		}
		if t.Kind == TokEOF {
			return nil, &ParseError{Pos: p.pos0(), Expected: "'}'", Found: "end of input"}
		}
		name, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		line := t.Line
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseValueText()
		if err != nil {
			return nil, err
		}
		vars = append(vars, VariableNode{Name: name, RawValue: val, Line: line})
	}
}

func (p *parser) parseStyle() (*StyleNode, error) {
	line := p.peek().Line
	p.advance() // 'style'
	nameTok := p.peek()
	if nameTok.Kind != TokString {
		return nil, &ParseError{Pos: p.pos0(), Expected: "quoted style name", Found: p.describe(nameTok)}
	}
	p.advance()
	s := &StyleNode{Name: nameTok.Text, Line: line}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind == TokPunct && t.Text == "}" {
			p.advance()
			return s, nil
		}
		if t.Kind == TokEOF {
			return nil, &ParseError{Pos: p.pos0(), Expected: "'}'", Found: "end of input"}
		}
		if t.Kind == TokPseudo {
			pb, err := p.parsePseudoBlock()
			if err != nil {
				return nil, err
			}
			s.Pseudo = append(s.Pseudo, *pb)
			continue
		}
		key, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		keyLine := t.Line
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		if key == "extends" {
			ext, err := p.parseExtendsValue()
			if err != nil {
				return nil, err
			}
			s.Extends = append(s.Extends, ext...)
			continue
		}
		if p.peek().Kind == TokPunct && p.peek().Text == "{" {
			edge, err := p.parseEdgeInsetBlock(key, keyLine)
			if err != nil {
				return nil, err
			}
			s.Properties = append(s.Properties, edge...)
			continue
		}
		val, err := p.parseValueText()
		if err != nil {
			return nil, err
		}
		s.Properties = append(s.Properties, PropertyNode{Key: key, ValueStr: val, Line: keyLine})
	}
}

func (p *parser) parseExtendsValue() ([]string, error) {
	t := p.peek()
	if t.Kind == TokString {
		p.advance()
		return []string{t.Text}, nil
	}
	if t.Kind == TokPunct && t.Text == "[" {
		p.advance()
		var names []string
		for {
			nt := p.peek()
			if nt.Kind == TokPunct && nt.Text == "]" {
				p.advance()
				break
			}
			if nt.Kind != TokString {
				return nil, &ParseError{Pos: p.pos0(), Expected: "style name", Found: p.describe(nt)}
			}
			p.advance()
			names = append(names, nt.Text)
			if p.peek().Kind == TokPunct && p.peek().Text == "," {
				p.advance()
			}
		}
		return names, nil
	}
	return nil, &ParseError{Pos: p.pos0(), Expected: "style name or list of names", Found: p.describe(t)}
}

func (p *parser) parsePseudoBlock() (*PseudoBlockNode, error) {
	t := p.peek()
	pb := &PseudoBlockNode{State: t.Text, Line: t.Line}
	p.advance()
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for {
		nt := p.peek()
		if nt.Kind == TokPunct && nt.Text == "}" {
			p.advance()
			return pb, nil
		}
		if nt.Kind == TokEOF {
			return nil, &ParseError{Pos: p.pos0(), Expected: "'}'", Found: "end of input"}
		}
		key, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		keyLine := nt.Line
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		if p.peek().Kind == TokPunct && p.peek().Text == "{" {
			edge, err := p.parseEdgeInsetBlock(key, keyLine)
			if err != nil {
				return nil, err
			}
			pb.Properties = append(pb.Properties, edge...)
			continue
		}
		val, err := p.parseValueText()
		if err != nil {
			return nil, err
		}
		pb.Properties = append(pb.Properties, PropertyNode{Key: key, ValueStr: val, Line: keyLine})
	}
}

// parseComponent parses `Define Name { [Properties {...}] <template> }`
// (spec 4.6).
func (p *parser) parseComponent() (*ComponentNode, error) {
	line := p.peek().Line
	p.advance() // 'Define'
	nameTok := p.peek()
	if nameTok.Kind != TokIdentifier {
		return nil, &ParseError{Pos: p.pos0(), Expected: "component name", Found: p.describe(nameTok)}
	}
	p.advance()
	c := &ComponentNode{Name: nameTok.Text, Line: line}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}

	if t := p.peek(); t.Kind == TokKeyword && t.Text == "Properties" {
		p.advance()
		props, err := p.parsePropertiesDecl()
		if err != nil {
			return nil, err
		}
		c.Properties = props
	}

	root, err := p.parseElement()
	if err != nil {
		return nil, err
	}
	c.Template = root

	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return c, nil
}

// parsePropertiesDecl parses `Properties { name: Type [= default] ... }`.
func (p *parser) parsePropertiesDecl() ([]ComponentPropertyNode, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	var props []ComponentPropertyNode
	for {
		t := p.peek()
		if t.Kind == TokPunct && t.Text == "}" {
			p.advance()
			return props, nil
		}
		if t.Kind == TokEOF {
			return nil, &ParseError{Pos: p.pos0(), Expected: "'}'", Found: "end of input"}
		}
		name, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		line := t.Line
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		typeTag, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		cp := ComponentPropertyNode{Name: name, TypeTag: typeTag, Line: line, Required: true}
		if p.peek().Kind == TokPunct && p.peek().Text == "=" {
			p.advance()
			def, err := p.parseValueText()
			if err != nil {
				return nil, err
			}
			cp.Default = def
			cp.HasDefault = true
			cp.Required = false
		}
		props = append(props, cp)
	}
}

// parseElement parses `TypeName [id] { (property | pseudo | child)* }`.
func (p *parser) parseElement() (*ElementNode, error) {
	t := p.peek()
	if t.Kind != TokIdentifier {
		return nil, &ParseError{Pos: p.pos0(), Expected: "element type name", Found: p.describe(t)}
	}
	el := &ElementNode{TypeName: t.Text, Line: t.Line}
	p.advance()

	if p.peek().Kind == TokIdentifier && p.peekAt(1).Kind == TokPunct && p.peekAt(1).Text == "{" {
		el.ID = p.peek().Text
		p.advance()
	}

	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for {
		ct := p.peek()
		if ct.Kind == TokPunct && ct.Text == "}" {
			p.advance()
			return el, nil
		}
		if ct.Kind == TokEOF {
			return nil, &ParseError{Pos: p.pos0(), Expected: "'}'", Found: "end of input"}
		}
		if ct.Kind == TokPseudo {
			pb, err := p.parsePseudoBlock()
			if err != nil {
				return nil, err
			}
			el.Pseudo = append(el.Pseudo, *pb)
			continue
		}
		if ct.Kind == TokIdentifier && p.startsElement() {
			child, err := p.parseElement()
			if err != nil {
				return nil, err
			}
			el.Children = append(el.Children, child)
			continue
		}
		key, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		keyLine := ct.Line
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		if p.peek().Kind == TokPunct && p.peek().Text == "{" {
			edge, err := p.parseEdgeInsetBlock(key, keyLine)
			if err != nil {
				return nil, err
			}
			el.Properties = append(el.Properties, edge...)
			continue
		}
		val, err := p.parseValueText()
		if err != nil {
			return nil, err
		}
		el.Properties = append(el.Properties, PropertyNode{Key: key, ValueStr: val, Line: keyLine})
	}
}

// startsElement reports whether the token at the current position begins a
// nested element (`Type {` or `Type id {`) rather than a `key: value`
// property; it must only be called when the current token is TokIdentifier.
func (p *parser) startsElement() bool {
	n1 := p.peekAt(1)
	if n1.Kind == TokPunct && n1.Text == "{" {
		return true
	}
	if n1.Kind == TokIdentifier {
		n2 := p.peekAt(2)
		return n2.Kind == TokPunct && n2.Text == "{"
	}
	return false
}

// parseEdgeInsetBlock generalizes the teacher's EdgeInsetParseState: a
// property whose value is a `{ top: v right: v bottom: v left: v }` block
// of per-side overrides, expanded into up to four `<key>_<side>` properties
// (spec glossary, edge inset sugar for padding/margin).
func (p *parser) parseEdgeInsetBlock(baseKey string, line int) ([]PropertyNode, error) {
	p.advance() // '{'
	var top, right, bottom, left *string
	for {
		t := p.peek()
		if t.Kind == TokPunct && t.Text == "}" {
			p.advance()
			break
		}
		if t.Kind == TokEOF {
			return nil, &ParseError{Pos: p.pos0(), Expected: "'}'", Found: "end of input"}
		}
		key, err := p.expectIdentLike()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val, err := p.parseValueText()
		if err != nil {
			return nil, err
		}
		v := val
		switch key {
		case "top":
			top = &v
		case "right":
			right = &v
		case "bottom":
			bottom = &v
		case "left":
			left = &v
		default:
			return nil, &ParseError{Pos: p.pos0(), Expected: "top, right, bottom, or left", Found: key}
		}
	}
	var out []PropertyNode
	add := func(suffix string, v *string) {
		if v != nil {
			out = append(out, PropertyNode{Key: baseKey + suffix, ValueStr: *v, Line: line})
		}
	}
	add("_top", top)
	add("_right", right)
	add("_bottom", bottom)
	add("_left", left)
	return out, nil
}

// parseValueText parses a single property value (spec 4.3): a literal
// string/number/color/identifier, a `$name` reference, a bracketed string
// list (used by `extends`), or a balanced parenthesized expression.
func (p *parser) parseValueText() (string, error) {
	t := p.peek()
	switch {
	case t.Kind == TokString, t.Kind == TokNumber, t.Kind == TokPixelSize, t.Kind == TokPercentage, t.Kind == TokColor, t.Kind == TokIdentifier:
		p.advance()
		return t.Text, nil
	case t.Kind == TokPunct && t.Text == "$":
		p.advance()
		name, err := p.expectIdentLike()
		if err != nil {
			return "", err
		}
		return "$" + name, nil
	case t.Kind == TokPunct && t.Text == "[":
		return p.parseStringListValue()
	case t.Kind == TokPunct && t.Text == "(":
		return p.parseBalancedExpr()
	}
	return "", &ParseError{Pos: p.pos0(), Expected: "a property value", Found: p.describe(t)}
}

func (p *parser) parseStringListValue() (string, error) {
	p.advance() // '['
	var items []string
	for {
		t := p.peek()
		if t.Kind == TokPunct && t.Text == "]" {
			p.advance()
			break
		}
		if t.Kind != TokString {
			return "", &ParseError{Pos: p.pos0(), Expected: "string in list", Found: p.describe(t)}
		}
		p.advance()
		items = append(items, t.Text)
		if p.peek().Kind == TokPunct && p.peek().Text == "," {
			p.advance()
		}
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(it)
		b.WriteByte('"')
	}
	b.WriteByte(']')
	return b.String(), nil
}

// parseBalancedExpr captures `( ... )` verbatim (re-tokenized text) so the
// Variable Resolver's expression evaluator can recognize the wrapper and
// decide to evaluate rather than substitute textually (spec 5, "Expression
// evaluation").
func (p *parser) parseBalancedExpr() (string, error) {
	depth := 0
	var b strings.Builder
	for {
		t := p.peek()
		if t.Kind == TokEOF {
			return "", &ParseError{Pos: p.pos0(), Expected: "')'", Found: "end of input"}
		}
		if t.Kind == TokPunct && t.Text == "(" {
			depth++
		}
		if t.Kind == TokPunct && t.Text == ")" {
			depth--
			if depth == 0 {
				b.WriteString(p.tokenText(t))
				p.advance()
				break
			}
		}
		b.WriteString(p.tokenText(t))
		b.WriteByte(' ')
		p.advance()
	}
	return b.String(), nil
}

func (p *parser) tokenText(t Token) string {
	if t.Kind == TokString {
		return "\"" + t.Text + "\""
	}
	return t.Text
}

func (p *parser) peek() Token {
	if p.pos >= len(p.toks) {
		return Token{Kind: TokEOF}
	}
	return p.toks[p.pos]
}

func (p *parser) peekAt(off int) Token {
	idx := p.pos + off
	if idx >= len(p.toks) {
		return Token{Kind: TokEOF}
	}
	return p.toks[idx]
}

func (p *parser) advance() Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *parser) pos0() Pos {
	t := p.peek()
	return Pos{File: p.file, Line: t.Line, Column: t.Column}
}

func (p *parser) describe(t Token) string {
	if t.Kind == TokEOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

func (p *parser) expectPunct(s string) error {
	t := p.peek()
	if t.Kind != TokPunct || t.Text != s {
		return &ParseError{Pos: p.pos0(), Expected: fmt.Sprintf("%q", s), Found: p.describe(t)}
	}
	p.advance()
	return nil
}

// expectIdentLike accepts a plain identifier or a reserved keyword used as a
// property key (e.g. "extends" inside a style block), matching how loosely
// the teacher's line-based scanner treated property keys.
func (p *parser) expectIdentLike() (string, error) {
	t := p.peek()
	if t.Kind != TokIdentifier && t.Kind != TokKeyword {
		return "", &ParseError{Pos: p.pos0(), Expected: "identifier", Found: p.describe(t)}
	}
	p.advance()
	return t.Text, nil
}

// extractScriptBlocks pulls `@script <lang> [name=<ident>] [from "path"] {
// <body> }` blocks out of raw module text before lexing, since a script
// body is opaque foreign-language source the KRY Lexer must not tokenize.
// Each block is replaced by an internal `@script_ref N;` sentinel that the
// Parser resolves back against the returned slice. Brace matching inside
// the body is naive depth counting, same limitation the teacher accepts
// for its own block-stack scanner: a script body containing an unbalanced
// `{`/`}` inside a string literal will confuse the extraction.
func extractScriptBlocks(raw string) (string, []scriptBlock, error) {
	src := []rune(raw)
	var out strings.Builder
	var blocks []scriptBlock
	i := 0
	line := 1
	inStr := false
	for i < len(src) {
		c := src[i]
		if inStr {
			out.WriteRune(c)
			if c == '\\' && i+1 < len(src) {
				out.WriteRune(src[i+1])
				i += 2
				continue
			}
			if c == '"' {
				inStr = false
			}
			if c == '\n' {
				line++
			}
			i++
			continue
		}
		if c == '"' {
			inStr = true
			out.WriteRune(c)
			i++
			continue
		}
		if c == '@' && matchesWord(src, i+1, "script") {
			startLine := line
			j := i + 1 + len("script")
			headerStart := j
			for j < len(src) && src[j] != '{' {
				if src[j] == '\n' {
					line++
				}
				j++
			}
			if j >= len(src) {
				return "", nil, fmt.Errorf("L%d: unterminated @script header", startLine)
			}
			header := strings.TrimSpace(string(src[headerStart:j]))
			bodyStart := j + 1
			depth := 1
			k := bodyStart
			for k < len(src) && depth > 0 {
				if src[k] == '{' {
					depth++
				} else if src[k] == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				if src[k] == '\n' {
					line++
				}
				k++
			}
			if depth != 0 {
				return "", nil, fmt.Errorf("L%d: unterminated @script body", startLine)
			}
			body := string(src[bodyStart:k])
			lang, name, extern, err := parseScriptHeader(header)
			if err != nil {
				return "", nil, fmt.Errorf("L%d: %v", startLine, err)
			}
			idx := len(blocks)
			blocks = append(blocks, scriptBlock{Language: lang, Name: name, ExternPath: extern, Body: body, Line: startLine})
			fmt.Fprintf(&out, "@script_ref %d ;\n", idx)
			i = k + 1
			continue
		}
		if c == '\n' {
			line++
		}
		out.WriteRune(c)
		i++
	}
	return out.String(), blocks, nil
}

// parseScriptHeader parses the text between `@script` and its opening `{`:
// `<lang> [name=<ident>] [from "path"]` (spec 4.7, 6.2).
func parseScriptHeader(header string) (lang, name, extern string, err error) {
	toks, err := NewLexer(header, "").Tokenize()
	if err != nil {
		return "", "", "", err
	}
	if len(toks) == 0 || toks[0].Kind != TokIdentifier {
		return "", "", "", fmt.Errorf("expected script language identifier")
	}
	lang = toks[0].Text
	i := 1
	for i < len(toks) && toks[i].Kind != TokEOF {
		switch {
		case toks[i].Kind == TokIdentifier && toks[i].Text == "name" &&
			i+2 < len(toks) && toks[i+1].Kind == TokPunct && toks[i+1].Text == "=" &&
			(toks[i+2].Kind == TokIdentifier || toks[i+2].Kind == TokString):
			name = toks[i+2].Text
			i += 3
		case toks[i].Kind == TokIdentifier && toks[i].Text == "from" &&
			i+1 < len(toks) && toks[i+1].Kind == TokString:
			extern = toks[i+1].Text
			i += 2
		default:
			return "", "", "", fmt.Errorf("unexpected token %q in @script header", toks[i].Text)
		}
	}
	return lang, name, extern, nil
}

var entryPointPatterns = map[string]*regexp.Regexp{
	"lua":        regexp.MustCompile(`function\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`),
	"javascript": regexp.MustCompile(`function\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`),
	"python":     regexp.MustCompile(`def\s+([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`),
	"wren":       regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*\([^)]*\)\s*\{`),
}

// extractEntryPoints finds exported handler names in a script body, per
// language (grounded on original_source's ScriptProcessor.function_regex).
func extractEntryPoints(lang, body string) []string {
	re, ok := entryPointPatterns[lang]
	if !ok {
		return nil
	}
	matches := re.FindAllStringSubmatch(body, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

func matchesWord(src []rune, pos int, word string) bool {
	w := []rune(word)
	if pos+len(w) > len(src) {
		return false
	}
	for i, r := range w {
		if src[pos+i] != r {
			return false
		}
	}
	if pos+len(w) < len(src) && isIdentPart(src[pos+len(w)]) {
		return false
	}
	return true
}
