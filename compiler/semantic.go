package compiler

import (
	"sort"
	"strings"
)

// EventBinding is one `onClick`/`onChange` handler reference on an
// element, resolved against a script's declared entry points (spec
// testable property, "Verify every script onClick/onChange handler
// reference names an exported entry point").
type EventBinding struct {
	Type    uint8
	Handler string
	Line    int
}

var eventPropertyTypes = map[string]uint8{
	"onClick": EventTypeClick, "on_click": EventTypeClick,
	"onChange": EventTypeChange, "on_change": EventTypeChange,
}

// ResolvedElement is one fully-analyzed element: type tag, resolved style
// id, compiled own properties, computed layout flag byte, event bindings,
// and children — the Semantic Analyzer's output, consumed by the Size
// Calculator and Code Generator (spec 4.7/4.8/4.9).
type ResolvedElement struct {
	Type        uint8
	CustomName  string // set when Type is ElemTypeCustomBase, for the string table
	ID          string
	StyleName   string
	StyleID     uint8
	Properties  []KrbProperty
	PropOrder   []uint8
	LayoutFlags uint8
	Pseudo      map[string][]KrbProperty
	Events      []EventBinding
	Children    []*ResolvedElement
	Line        int
}

type semanticAnalyzer struct {
	graph         *ModuleGraph
	strings       *StringTable
	resources     *ResourceTable
	ids           map[string]bool
	hasStateProps bool
}

// AnalyzeSemantics is the Semantic Analyzer entry point (spec 4.7): it
// locates the single App root across the compilation, walks it verifying
// id uniqueness and style/script reference resolution, compiles each
// element's own properties, and computes every element's layout flag
// byte (own `layout` property wins over the applied style's). Returns the
// resolved tree plus whether any pseudo-state block was used anywhere
// (spec 6.1's FlagHasStateProperties header bit).
func AnalyzeSemantics(mg *ModuleGraph, st *StringTable, res *ResourceTable) (*ResolvedElement, bool, []Warning, error) {
	collectScripts(mg)

	var rootMod *Module
	rootCount := 0
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		if mod.AST.Root != nil {
			rootCount++
			rootMod = mod
		}
	}
	if rootCount == 0 {
		return nil, false, nil, &SemanticError{Kind: SemErrMissingApp, Reason: "no element tree found in this compilation"}
	}
	if rootCount > 1 {
		return nil, false, nil, &SemanticError{Kind: SemErrMissingApp, Reason: "more than one module declares a root element tree"}
	}
	if rootMod.AST.Root.TypeName != "App" {
		return nil, false, nil, &SemanticError{Kind: SemErrMissingApp, Pos: Pos{File: rootMod.Path, Line: rootMod.AST.Root.Line}, Reason: "root element must be 'App'"}
	}

	a := &semanticAnalyzer{graph: mg, strings: st, resources: res, ids: map[string]bool{}}
	var warnings []Warning
	resolved, err := a.analyzeElement(rootMod.AST.Root, rootMod, true, &warnings)
	if err != nil {
		return nil, false, warnings, err
	}
	return resolved, a.hasStateProps, warnings, nil
}

func collectScripts(mg *ModuleGraph) {
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		for i := range mod.AST.Scripts {
			s := &mod.AST.Scripts[i]
			if s.Name != "" {
				mod.Scripts[s.Name] = s
			}
		}
	}
}

func (a *semanticAnalyzer) analyzeElement(el *ElementNode, mod *Module, isRoot bool, warnings *[]Warning) (*ResolvedElement, error) {
	typeTag, custom, err := resolveElementType(el.TypeName, isRoot, mod.Path, el.Line)
	if err != nil {
		return nil, err
	}

	if el.ID != "" {
		if a.ids[el.ID] {
			return nil, &SemanticError{Kind: SemErrDuplicateID, Pos: Pos{File: mod.Path, Line: el.Line}, Name: el.ID}
		}
		a.ids[el.ID] = true
	}

	var styleName string
	var plain []PropertyNode
	var events []EventBinding
	for _, p := range el.Properties {
		switch {
		case p.Key == "style":
			styleName = strings.Trim(strings.TrimSpace(p.ValueStr), "\"")
		case eventPropertyTypes[p.Key] != 0:
			events = append(events, EventBinding{Type: eventPropertyTypes[p.Key], Handler: strings.Trim(strings.TrimSpace(p.ValueStr), "\""), Line: p.Line})
		default:
			plain = append(plain, p)
		}
	}

	own, ownOrder, propWarnings, err := CompileProperties(plain, a.strings, a.resources, mod.Path)
	if err != nil {
		return nil, err
	}
	*warnings = append(*warnings, propWarnings...)

	var styleID uint8
	var styleLayout uint8
	if styleName != "" {
		def, ok := lookupStyleFromGraph(a.graph, mod, styleName)
		if !ok {
			return nil, &SemanticError{Kind: SemErrUnknownReference, Pos: Pos{File: mod.Path, Line: el.Line}, Name: styleName, Reason: "referenced style not found"}
		}
		styleID = def.ID
		if len(def.Pseudo) > 0 {
			a.hasStateProps = true
		}
		for i, id := range def.PropOrder {
			if id == PropIDLayoutFlags {
				styleLayout = def.Properties[i].Data[0]
			}
		}
	}

	layout := styleLayout
	for i, id := range ownOrder {
		if id == PropIDLayoutFlags {
			layout = own[i].Data[0]
		}
	}

	for _, ev := range events {
		if !scriptHasEntryPoint(a.graph, mod, ev.Handler) {
			return nil, &SemanticError{Kind: SemErrUnknownReference, Pos: Pos{File: mod.Path, Line: ev.Line}, Name: ev.Handler, Reason: "no script entry point with this name is visible here"}
		}
	}

	if len(el.Pseudo) > 0 {
		a.hasStateProps = true
	}
	pseudo := map[string][]KrbProperty{}
	for _, pb := range el.Pseudo {
		if !isKnownPseudoState(pb.State) {
			return nil, &SemanticError{Kind: SemErrUnknownReference, Pos: Pos{File: mod.Path, Line: pb.Line}, Name: pb.State, Reason: "not a recognized pseudo-state"}
		}
		props, _, pseudoWarnings, err := CompileProperties(pb.Properties, a.strings, a.resources, mod.Path)
		if err != nil {
			return nil, err
		}
		*warnings = append(*warnings, pseudoWarnings...)
		pseudo[pb.State] = props
	}

	resolved := &ResolvedElement{
		Type:        typeTag,
		CustomName:  custom,
		ID:          el.ID,
		StyleName:   styleName,
		StyleID:     styleID,
		Properties:  own,
		PropOrder:   ownOrder,
		LayoutFlags: layout,
		Pseudo:      pseudo,
		Events:      events,
		Line:        el.Line,
	}

	for _, child := range el.Children {
		if child.TypeName == "App" {
			return nil, &SemanticError{Kind: SemErrMissingApp, Pos: Pos{File: mod.Path, Line: child.Line}, Reason: "'App' may only appear as the compilation root"}
		}
		rc, err := a.analyzeElement(child, mod, false, warnings)
		if err != nil {
			return nil, err
		}
		resolved.Children = append(resolved.Children, rc)
	}
	return resolved, nil
}

func resolveElementType(name string, isRoot bool, file string, line int) (uint8, string, error) {
	switch name {
	case "App":
		return ElemTypeApp, "", nil
	case "Container":
		return ElemTypeContainer, "", nil
	case "Text":
		return ElemTypeText, "", nil
	case "Button":
		return ElemTypeButton, "", nil
	case "Input":
		return ElemTypeInput, "", nil
	case "Image":
		return ElemTypeImage, "", nil
	}
	// Anything else should have been expanded away by the Component
	// Resolver; surviving to here means the name never resolved to a
	// component either.
	return ElemTypeUnknown, name, &SemanticError{Kind: SemErrUnknownReference, Pos: Pos{File: file, Line: line}, Name: name, Reason: "unknown element type (not a standard type or a declared component)"}
}

// lookupStyleFromGraph resolves a style name visible from mod the same
// way compiler/style_resolver.go's lookupStyle does, for use by the
// Semantic Analyzer's direct-element `style:` property.
func lookupStyleFromGraph(mg *ModuleGraph, mod *Module, name string) (*StyleDef, bool) {
	if def, ok := mod.Styles[name]; ok {
		return def, true
	}
	deps := make([]*Module, 0, len(mod.Deps))
	for _, p := range mod.Deps {
		if d, ok := mg.Modules[p]; ok {
			deps = append(deps, d)
		}
	}
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].ImportRank > deps[j].ImportRank })
	for _, dep := range deps {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if def, ok := dep.Styles[name]; ok {
			return def, true
		}
	}
	return nil, false
}

func scriptHasEntryPoint(mg *ModuleGraph, mod *Module, handler string) bool {
	scriptName, fn := handler, handler
	if i := strings.Index(handler, "."); i >= 0 {
		scriptName, fn = handler[:i], handler[i+1:]
	}
	check := func(m *Module) bool {
		if scriptName != handler {
			s, ok := m.Scripts[scriptName]
			if !ok {
				return false
			}
			return containsStr(s.EntryPoints, fn)
		}
		for _, s := range m.Scripts {
			if containsStr(s.EntryPoints, fn) {
				return true
			}
		}
		return false
	}
	if check(mod) {
		return true
	}
	for _, p := range mod.Deps {
		if d, ok := mg.Modules[p]; ok && check(d) {
			return true
		}
	}
	return false
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
