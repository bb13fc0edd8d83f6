package compiler

import (
	"strings"
	"testing"
)

func TestStringTableDedupes(t *testing.T) {
	st := NewStringTable()
	a, err := st.Add("hello")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b, err := st.Add("world")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	c, err := st.Add("hello")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if a != c {
		t.Errorf("Add(%q) twice gave different indices %d and %d", "hello", a, c)
	}
	if a == b {
		t.Errorf("distinct strings got the same index %d", a)
	}
	if st.Entries()[0] != "" {
		t.Errorf("index 0 must be the reserved empty slot, got %q", st.Entries()[0])
	}
	if st.Len() != 3 {
		t.Errorf("Len() = %d, want 3", st.Len())
	}
}

func TestCompileScalarPropertyPixelSize(t *testing.T) {
	st := NewStringTable()
	props := []PropertyNode{{Key: "width", ValueStr: "100px", Line: 1}}
	compiled, _, _, err := CompileProperties(props, st, nil, "test.kry")
	if err != nil {
		t.Fatalf("CompileProperties failed: %v", err)
	}
	if len(compiled) != 1 {
		t.Fatalf("got %d properties, want 1", len(compiled))
	}
	if compiled[0].PropertyID != PropIDMaxWidth {
		t.Errorf("PropertyID = %#x, want PropIDMaxWidth", compiled[0].PropertyID)
	}
}

func TestCompilePropertiesLaterDuplicateWins(t *testing.T) {
	st := NewStringTable()
	props := []PropertyNode{
		{Key: "width", ValueStr: "100px", Line: 1},
		{Key: "width", ValueStr: "200px", Line: 2},
	}
	compiled, order, _, err := CompileProperties(props, st, nil, "test.kry")
	if err != nil {
		t.Fatalf("CompileProperties failed: %v", err)
	}
	if len(compiled) != 1 {
		t.Fatalf("got %d properties for duplicate keys, want 1", len(compiled))
	}
	if len(order) != 1 {
		t.Fatalf("got %d order entries, want 1", len(order))
	}
}

func TestCompilePropertiesWarnsOnUnknownKey(t *testing.T) {
	st := NewStringTable()
	props := []PropertyNode{
		{Key: "background_color", ValueStr: "#FF0000", Line: 1},
		{Key: "backgroud_color", ValueStr: "#00FF00", Line: 2},
	}
	compiled, _, warnings, err := CompileProperties(props, st, nil, "typo.kry")
	if err != nil {
		t.Fatalf("CompileProperties failed: %v", err)
	}
	if len(compiled) != 1 {
		t.Fatalf("got %d properties, want 1 (the typo'd key should not compile to anything)", len(compiled))
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1", len(warnings))
	}
	if warnings[0].Pos.Line != 2 || warnings[0].Pos.File != "typo.kry" {
		t.Errorf("warning position = %+v, want L2 in typo.kry", warnings[0].Pos)
	}
	if !strings.Contains(warnings[0].Message, "backgroud_color") {
		t.Errorf("warning message %q does not name the unknown key", warnings[0].Message)
	}
}
