package compiler

// AST node types produced by the Parser (spec 4.3) and consumed by the
// Variable/Style/Component resolvers and the Semantic Analyzer.

// PropertyNode is a single `key: value` pair as written in source, before
// variable substitution or type resolution.
type PropertyNode struct {
	Key      string
	ValueStr string // raw textual value; may still contain $var references
	Line     int
}

// PseudoBlockNode is a `&:state { ... }` block nested in a style or element.
type PseudoBlockNode struct {
	State      string
	Properties []PropertyNode
	Line       int
}

// StyleNode is a parsed `style "name" { ... }` block.
type StyleNode struct {
	Name       string
	Extends    []string // possibly multiple, spec 4.5
	Properties []PropertyNode
	Pseudo     []PseudoBlockNode
	Line       int
}

// ComponentPropertyNode is one declared property in a component's
// `Properties { }` block.
type ComponentPropertyNode struct {
	Name         string
	TypeTag      string // String, Int, Float, Bool, Color, Size
	Default      string
	HasDefault   bool
	Required     bool
	Line         int
}

// ComponentNode is a parsed `Define Name { Properties { ... } <root> }`.
type ComponentNode struct {
	Name       string
	Properties []ComponentPropertyNode
	Template   *ElementNode
	Line       int
}

// ElementNode is a node in the element tree: a standard element, or (until
// the Component Resolver expands it) a component-instance placeholder.
type ElementNode struct {
	TypeName   string // "App", "Container", ..., or a component name
	ID         string
	Properties []PropertyNode
	Pseudo     []PseudoBlockNode
	Children   []*ElementNode
	Line       int

	IsComponentInstance bool
}

// ScriptNode is a parsed `@script lang [name=ident] [from "path"] { body }`.
type ScriptNode struct {
	Language   string
	Name       string
	ExternPath string
	Body       string
	EntryPoints []string
	Line       int
}

// VariableNode is one `name: value` entry in an `@variables { }` block.
type VariableNode struct {
	Name     string
	RawValue string
	Line     int
}

// ModuleAST is the full set of top-level items parsed from one module's
// (post-include) source, prior to cross-module resolution.
type ModuleAST struct {
	Variables  []VariableNode
	Styles     []StyleNode
	Components []ComponentNode
	Scripts    []ScriptNode
	Root       *ElementNode // the App / bare element root, nil if absent
}
