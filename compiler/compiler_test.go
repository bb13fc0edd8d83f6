package compiler

import (
	"os"
	"path/filepath"
	"testing"
)

func writeKRY(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestCompileMinimal(t *testing.T) {
	dir := t.TempDir()
	in := writeKRY(t, dir, "minimal.kry", `App { window_title: "Hi" Text { text: "Hello" } }`)
	out := filepath.Join(dir, "minimal.krb")

	stats, err := Compile(in, out, Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if stats.ElementCount != 2 {
		t.Errorf("ElementCount = %d, want 2", stats.ElementCount)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != KRBMagic {
		t.Fatalf("output does not start with magic %q", KRBMagic)
	}

	info, err := AnalyzeArtifact(out)
	if err != nil {
		t.Fatalf("AnalyzeArtifact failed: %v", err)
	}
	if info.VersionMajor != KRBVersionMajor {
		t.Errorf("VersionMajor = %d, want %d", info.VersionMajor, KRBVersionMajor)
	}
}

func TestCompileVariableSubstitutionCountsVariables(t *testing.T) {
	dir := t.TempDir()
	in := writeKRY(t, dir, "vars.kry", `@variables { c: "#FF0000" } App { background_color: $c }`)
	out := filepath.Join(dir, "vars.krb")

	stats, err := Compile(in, out, Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if stats.VariableCount != 1 {
		t.Errorf("VariableCount = %d, want 1", stats.VariableCount)
	}
}

func TestCompileComponentWithDefaultExpandsBoth(t *testing.T) {
	dir := t.TempDir()
	src := `Define Card { Properties { title: String = "Untitled" } Container { Text { text: $title } } } ` +
		`App { Card { } Card { title: "Named" } }`
	in := writeKRY(t, dir, "card.kry", src)
	out := filepath.Join(dir, "card.krb")

	stats, err := Compile(in, out, Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	// App + two expanded (Container, Text) subtrees.
	if stats.ElementCount != 5 {
		t.Errorf("ElementCount = %d, want 5", stats.ElementCount)
	}
	if stats.ComponentCount != 1 {
		t.Errorf("ComponentCount = %d, want 1", stats.ComponentCount)
	}
}

func TestCompileMissingAppRootErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeKRY(t, dir, "noapp.kry", `Container { Text { text: "Hello" } }`)
	out := filepath.Join(dir, "noapp.krb")

	if _, err := Compile(in, out, Options{}); err == nil {
		t.Fatal("expected an error for a missing App root, got nil")
	}
}

func TestCheckDoesNotLeaveAnArtifact(t *testing.T) {
	dir := t.TempDir()
	in := writeKRY(t, dir, "check.kry", `App { Text { text: "Hello" } }`)

	stats, err := Check(in, Options{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if stats.ElementCount != 2 {
		t.Errorf("ElementCount = %d, want 2", stats.ElementCount)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Check left %d files behind in the input directory, want 1 (just the input)", len(entries))
	}
}

func TestCompileRejectsOversizedOutput(t *testing.T) {
	dir := t.TempDir()
	in := writeKRY(t, dir, "big.kry", `App { window_title: "Hi" Text { text: "Hello" } }`)
	out := filepath.Join(dir, "big.krb")

	_, err := Compile(in, out, Options{MaxFileSize: 1})
	if err == nil {
		t.Fatal("expected an error when output exceeds MaxFileSize, got nil")
	}
}
