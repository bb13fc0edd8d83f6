package compiler

import "testing"

func TestLexerTokenizesBasicElement(t *testing.T) {
	src := `Container {
    width: 100px
    opacity: 50%
    background_color: #FF0000
}`
	toks, err := NewLexer(src, "test.kry").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() failed: %v", err)
	}

	var kinds []TokenKind
	for _, tok := range toks {
		if tok.Kind == TokEOF {
			break
		}
		kinds = append(kinds, tok.Kind)
	}

	want := []TokenKind{
		TokIdentifier, TokPunct,
		TokIdentifier, TokPunct, TokPixelSize,
		TokIdentifier, TokPunct, TokPercentage,
		TokIdentifier, TokPunct, TokColor,
		TokPunct,
	}
	if len(kinds) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(kinds), kinds, len(want))
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestLexerPseudoSelector(t *testing.T) {
	toks, err := NewLexer(`&:hover { }`, "test.kry").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() failed: %v", err)
	}
	if toks[0].Kind != TokPseudo {
		t.Fatalf("got kind %s, want pseudo-selector", toks[0].Kind)
	}
	if toks[0].Text != "hover" {
		t.Errorf("got pseudo text %q, want %q", toks[0].Text, "hover")
	}
}

func TestLexerUnterminatedStringErrors(t *testing.T) {
	_, err := NewLexer(`text: "unterminated`, "test.kry").Tokenize()
	if err == nil {
		t.Fatal("expected an error for an unterminated string, got nil")
	}
}

func TestLexerTracksLineAndColumn(t *testing.T) {
	toks, err := NewLexer("a\nb", "test.kry").Tokenize()
	if err != nil {
		t.Fatalf("Tokenize() failed: %v", err)
	}
	if toks[0].Line != 1 {
		t.Errorf("first token line = %d, want 1", toks[0].Line)
	}
	if toks[1].Line != 2 {
		t.Errorf("second token line = %d, want 2", toks[1].Line)
	}
}
