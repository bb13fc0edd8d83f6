package compiler

import (
	"fmt"
	"strings"
)

// TokenKind classifies a lexed token (spec 3, Token).
type TokenKind int

const (
	TokIdentifier TokenKind = iota
	TokKeyword
	TokString
	TokNumber      // plain integer/float, unit-less
	TokPixelSize   // number with px/em unit
	TokPercentage  // number with % unit
	TokColor       // #RRGGBB / #RRGGBBAA
	TokPunct       // single-char punctuation: { } : ; , [ ] ( ) & $ @ =
	TokPseudo      // &:hover style pseudo-selector
	TokEOF
)

func (k TokenKind) String() string {
	switch k {
	case TokIdentifier:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokString:
		return "string"
	case TokNumber:
		return "number"
	case TokPixelSize:
		return "pixel-size"
	case TokPercentage:
		return "percentage"
	case TokColor:
		return "color"
	case TokPunct:
		return "punctuation"
	case TokPseudo:
		return "pseudo-selector"
	case TokEOF:
		return "eof"
	}
	return "unknown"
}

// Token is produced by the Lexer and consumed by the Parser, then
// discarded (spec 3).
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Column int
}

var keywords = map[string]bool{
	"variables": true, "include": true, "script": true,
	"style": true, "Define": true, "Properties": true, "extends": true,
}

// Lexer scans KRY source left to right, tracking a line/column cursor.
type Lexer struct {
	src    []rune
	pos    int
	line   int
	column int
	file   string
}

func NewLexer(src, file string) *Lexer {
	return &Lexer{src: []rune(src), pos: 0, line: 1, column: 1, file: file}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	return r
}

func (l *Lexer) atEnd() bool { return l.pos >= len(l.src) }

func (l *Lexer) pos0() Pos { return Pos{File: l.file, Line: l.line, Column: l.column} }

// Tokenize scans the entire source and returns the full token stream,
// terminated by a TokEOF sentinel.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == TokEOF {
			break
		}
	}
	return tokens, nil
}

func (l *Lexer) next() (Token, error) {
	l.skipWhitespaceAndComments()
	if l.atEnd() {
		return Token{Kind: TokEOF, Line: l.line, Column: l.column}, nil
	}

	startLine, startCol := l.line, l.column
	c := l.peek()

	switch {
	case c == '"':
		return l.readString(startLine, startCol)
	case c == '#':
		return l.readColor(startLine, startCol)
	case c == '&' && l.peekAt(1) == ':':
		return l.readPseudo(startLine, startCol)
	case isDigit(c) || (c == '-' && isDigit(l.peekAt(1))):
		return l.readNumber(startLine, startCol)
	case isIdentStart(c):
		return l.readIdentifier(startLine, startCol)
	case strings.ContainsRune("{}:;,[]()&$@=", c):
		l.advance()
		return Token{Kind: TokPunct, Text: string(c), Line: startLine, Column: startCol}, nil
	default:
		return Token{}, &LexError{Pos: Pos{l.file, startLine, startCol}, Reason: fmt.Sprintf("unrecognized character %q", c)}
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.atEnd() {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#':
			// '#' also begins a color literal; only treat as a comment when
			// not immediately followed by hex digits forming a valid color.
			if !looksLikeColorStart(l.src, l.pos) {
				for !l.atEnd() && l.peek() != '\n' {
					l.advance()
				}
			} else {
				return
			}
		case c == '/' && l.peekAt(1) == '/':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func looksLikeColorStart(src []rune, pos int) bool {
	n := 0
	for i := pos + 1; i < len(src) && n < 8; i++ {
		if isHexDigit(src[i]) {
			n++
			continue
		}
		break
	}
	return n == 3 || n == 4 || n == 6 || n == 8
}

func (l *Lexer) readString(line, col int) (Token, error) {
	l.advance() // opening quote
	var b strings.Builder
	for {
		if l.atEnd() {
			return Token{}, &LexError{Pos: Pos{l.file, line, col}, Reason: "unterminated string literal"}
		}
		c := l.advance()
		if c == '"' {
			return Token{Kind: TokString, Text: b.String(), Line: line, Column: col}, nil
		}
		if c == '\\' {
			if l.atEnd() {
				return Token{}, &LexError{Pos: Pos{l.file, line, col}, Reason: "unterminated string literal"}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '"':
				b.WriteRune('"')
			case '\\':
				b.WriteRune('\\')
			default:
				b.WriteRune(esc)
			}
			continue
		}
		b.WriteRune(c)
	}
}

func (l *Lexer) readColor(line, col int) (Token, error) {
	var b strings.Builder
	b.WriteRune(l.advance()) // '#'
	for !l.atEnd() && isHexDigit(l.peek()) {
		b.WriteRune(l.advance())
	}
	n := b.Len() - 1
	if n != 3 && n != 4 && n != 6 && n != 8 {
		return Token{}, &LexError{Pos: Pos{l.file, line, col}, Reason: fmt.Sprintf("invalid color literal %q", b.String())}
	}
	return Token{Kind: TokColor, Text: b.String(), Line: line, Column: col}, nil
}

func (l *Lexer) readPseudo(line, col int) (Token, error) {
	l.advance() // &
	l.advance() // :
	var b strings.Builder
	for !l.atEnd() && isIdentPart(l.peek()) {
		b.WriteRune(l.advance())
	}
	name := b.String()
	valid := false
	for _, s := range PseudoStates {
		if s == name {
			valid = true
			break
		}
	}
	if !valid {
		return Token{}, &LexError{Pos: Pos{l.file, line, col}, Reason: fmt.Sprintf("unknown pseudo-state %q", name)}
	}
	return Token{Kind: TokPseudo, Text: name, Line: line, Column: col}, nil
}

func (l *Lexer) readNumber(line, col int) (Token, error) {
	var b strings.Builder
	if l.peek() == '-' {
		b.WriteRune(l.advance())
	}
	for !l.atEnd() && isDigit(l.peek()) {
		b.WriteRune(l.advance())
	}
	if !l.atEnd() && l.peek() == '.' && isDigit(l.peekAt(1)) {
		b.WriteRune(l.advance())
		for !l.atEnd() && isDigit(l.peek()) {
			b.WriteRune(l.advance())
		}
	}
	// Optional unit suffix.
	if !l.atEnd() && l.peek() == '%' {
		l.advance()
		return Token{Kind: TokPercentage, Text: b.String() + "%", Line: line, Column: col}, nil
	}
	if matchesUnit(l.src, l.pos, "px") {
		l.pos += 2
		l.column += 2
		return Token{Kind: TokPixelSize, Text: b.String() + "px", Line: line, Column: col}, nil
	}
	if matchesUnit(l.src, l.pos, "em") {
		l.pos += 2
		l.column += 2
		return Token{Kind: TokPixelSize, Text: b.String() + "em", Line: line, Column: col}, nil
	}
	return Token{Kind: TokNumber, Text: b.String(), Line: line, Column: col}, nil
}

func matchesUnit(src []rune, pos int, unit string) bool {
	ur := []rune(unit)
	if pos+len(ur) > len(src) {
		return false
	}
	for i, r := range ur {
		if src[pos+i] != r {
			return false
		}
	}
	if pos+len(ur) < len(src) && isIdentPart(src[pos+len(ur)]) {
		return false // e.g. "pxx" is not a unit suffix
	}
	return true
}

func (l *Lexer) readIdentifier(line, col int) (Token, error) {
	var b strings.Builder
	for !l.atEnd() && isIdentPart(l.peek()) {
		b.WriteRune(l.advance())
	}
	name := b.String()
	if name == "true" || name == "false" {
		return Token{Kind: TokIdentifier, Text: name, Line: line, Column: col}, nil
	}
	if keywords[name] {
		return Token{Kind: TokKeyword, Text: name, Line: line, Column: col}, nil
	}
	return Token{Kind: TokIdentifier, Text: name, Line: line, Column: col}, nil
}

func isDigit(r rune) bool      { return r >= '0' && r <= '9' }
func isHexDigit(r rune) bool   { return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') }
func isIdentStart(r rune) bool { return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }
func isIdentPart(r rune) bool  { return isIdentStart(r) || isDigit(r) }
