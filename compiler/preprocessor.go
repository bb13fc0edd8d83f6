package compiler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Module represents one KRY source file after include expansion (spec 3,
// Module). Unlike the teacher (which textually inlines includes into one
// buffer), each Module keeps its own raw text and namespace so the
// Preprocessor can enforce per-module isolation (spec 4.2).
type Module struct {
	Path       string // canonical path
	RawText    string // source text with @include lines replaced by sentinels
	Deps       []string // canonical paths this module depends on, in include order
	ImportRank int      // assigned during topological compilation-order assembly

	AST *ModuleAST // filled in by the Parser

	Variables  map[string]*VariableDef
	Styles     map[string]*StyleDef
	Components map[string]*ComponentDef
	Scripts    map[string]*ScriptNode
	Private    map[string]bool // names starting with '_'

	imports []moduleImport
}

type moduleImport struct {
	path       string
	importRank int
}

// ModuleGraph is a DAG of Modules plus a topological compilation order
// (spec 3, Module Graph).
type ModuleGraph struct {
	Modules         map[string]*Module
	CompilationOrder []string // dependency-first
	Root            string
}

type visitColor int

const (
	colorWhite visitColor = iota
	colorGray
	colorBlack
)

// Preprocess turns a root file path into a Module Graph: it resolves
// @include directives, builds the dependency graph, detects cycles with
// three-color DFS, and returns modules in dependency-first compilation
// order (spec 4.2).
func Preprocess(rootPath string, includeDirs []string) (*ModuleGraph, error) {
	g := &ModuleGraph{Modules: make(map[string]*Module)}
	canonicalRoot, err := canonicalizePath(rootPath)
	if err != nil {
		return nil, &IoError{Path: rootPath, Err: err}
	}
	g.Root = canonicalRoot

	colors := make(map[string]visitColor)
	var order []string
	var path []string

	var visit func(p string) error
	visit = func(p string) error {
		colors[p] = colorGray
		path = append(path, p)

		mod, exists := g.Modules[p]
		if !exists {
			mod, err = loadModule(p, includeDirs)
			if err != nil {
				return err
			}
			g.Modules[p] = mod
		}

		for _, dep := range mod.Deps {
			switch colors[dep] {
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			case colorGray:
				cyclePath := append(append([]string{}, path...), dep)
				return &PreprocessorError{Cycle: cyclePath}
			case colorBlack:
				// already fully processed, fine
			}
		}

		path = path[:len(path)-1]
		colors[p] = colorBlack
		order = append(order, p)
		return nil
	}

	if err := visit(canonicalRoot); err != nil {
		return nil, err
	}

	// Assign import rank by position in dependency-first order: later
	// compiled (higher index) modules have higher rank, matching "higher
	// rank = stronger" (spec glossary, Import rank).
	for i, p := range order {
		g.Modules[p].ImportRank = i
	}
	g.CompilationOrder = order
	return g, nil
}

func loadModule(p string, includeDirs []string) (*Module, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &IoError{Path: p, Err: err}
	}

	mod := &Module{
		Path:       p,
		Variables:  make(map[string]*VariableDef),
		Styles:     make(map[string]*StyleDef),
		Components: make(map[string]*ComponentDef),
		Scripts:    make(map[string]*ScriptNode),
		Private:    make(map[string]bool),
	}

	baseDir := filepath.Dir(p)
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, MaxLineLength*4), MaxLineLength*4)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		trimmed := strings.TrimLeftFunc(line, isSpaceRune)

		if strings.HasPrefix(trimmed, "@include") {
			rest := strings.TrimSpace(trimmed[len("@include"):])
			incPath, ok := parseQuotedHead(rest)
			if !ok {
				return nil, &PreprocessorError{Reason: fmt.Sprintf("%s:L%d: invalid @include syntax: %q", p, lineNum, trimmed)}
			}
			resolved, err := resolveInclude(incPath, baseDir, includeDirs)
			if err != nil {
				return nil, &PreprocessorError{Reason: fmt.Sprintf("%s:L%d: %v", p, lineNum, err)}
			}
			mod.Deps = append(mod.Deps, resolved)
			mod.imports = append(mod.imports, moduleImport{path: resolved})
			// Sentinel comment preserves the line (and thus line numbers for
			// later error messages) while being inert to the Lexer.
			out.WriteString(fmt.Sprintf("# include processed:%s\n", resolved))
			continue
		}

		if len(line) > MaxLineLength {
			return nil, &PreprocessorError{Reason: fmt.Sprintf("%s:L%d: line exceeds maximum length (%d)", p, lineNum, MaxLineLength)}
		}
		out.WriteString(line)
		out.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, &IoError{Path: p, Err: err}
	}

	mod.RawText = out.String()
	return mod, nil
}

// parseQuotedHead extracts the quoted path from the remainder of an
// @include directive, requiring nothing but whitespace/comment after the
// closing quote.
func parseQuotedHead(rest string) (string, bool) {
	if len(rest) < 2 || rest[0] != '"' {
		return "", false
	}
	end := strings.Index(rest[1:], "\"")
	if end == -1 {
		return "", false
	}
	path := rest[1 : 1+end]
	tail := strings.TrimSpace(rest[1+end+1:])
	if tail != "" && !strings.HasPrefix(tail, "#") && !strings.HasPrefix(tail, "//") {
		return "", false
	}
	return path, true
}

func resolveInclude(raw, baseDir string, includeDirs []string) (string, error) {
	candidates := []string{}
	if filepath.IsAbs(raw) {
		candidates = append(candidates, raw)
	} else {
		candidates = append(candidates, filepath.Join(baseDir, raw))
		for _, d := range includeDirs {
			candidates = append(candidates, filepath.Join(d, raw))
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return canonicalizePath(c)
		}
	}
	return "", fmt.Errorf("include file not found: %q (searched %v)", raw, candidates)
}

func canonicalizePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func isSpaceRune(r rune) bool { return r == ' ' || r == '\t' || r == '\r' }
