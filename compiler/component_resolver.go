package compiler

import (
	"sort"
	"strconv"
	"strings"
)

// ComponentDef is one resolved component definition (spec 3, "Component
// Definition"): its typed property declarations and template root, ready
// to be cloned and bound at every instance site.
type ComponentDef struct {
	Name       string
	Properties []ComponentPropertyNode
	Template   *ElementNode
	Line       int
}

var standardElementTypes = map[string]bool{
	"App": true, "Container": true, "Text": true,
	"Button": true, "Input": true, "Image": true,
}

// componentResolver carries state shared across one compilation's
// Component Resolver pass (spec 4.6).
type componentResolver struct {
	graph *ModuleGraph
}

// ResolveComponents is the Component Resolver entry point: for every
// module's element tree, in dependency-first order, it expands each
// component instance — binds usage-site arguments against the
// declaration's typed properties (checking required/default), clones the
// template, substitutes `$property` placeholders left untouched by the
// Variable Resolver, and appends the instance's own children onto the
// template root (spec 4.6's stated default slot policy; see DESIGN.md
// Open Question resolution #3). Replaces the teacher's hardcoded "TabBar"
// special-case (resolver.go's `def.Name == "TabBar"` branches) with a
// fully data-driven expansion keyed only off the component's own
// declared properties.
func ResolveComponents(mg *ModuleGraph) ([]Warning, error) {
	r := &componentResolver{graph: mg}
	var warnings []Warning

	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		for i := range mod.AST.Components {
			c := &mod.AST.Components[i]
			if _, exists := mod.Components[c.Name]; exists {
				warnings = append(warnings, Warning{
					Pos:     Pos{File: mod.Path, Line: c.Line},
					Message: "component '" + c.Name + "' redefined in the same module",
				})
			}
			mod.Components[c.Name] = &ComponentDef{Name: c.Name, Properties: c.Properties, Template: c.Template, Line: c.Line}
		}
	}

	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		if mod.AST.Root == nil {
			continue
		}
		expanded, err := r.expandTree(mod.AST.Root, mod, 0)
		if err != nil {
			return warnings, err
		}
		mod.AST.Root = expanded
	}
	return warnings, nil
}

// expandTree walks el and its children depth-first, expanding el itself
// first (a component instance may itself be a standard-type element whose
// children are instances) then recursing into the result's children.
func (r *componentResolver) expandTree(el *ElementNode, mod *Module, depth int) (*ElementNode, error) {
	if depth > MaxComponentDepth {
		return nil, &ComponentError{Pos: Pos{File: mod.Path, Line: el.Line}, Component: el.TypeName, Reason: "component expansion exceeded maximum recursion depth"}
	}

	current := el
	if !standardElementTypes[el.TypeName] {
		def, err := r.lookupComponent(el.TypeName, mod)
		if err != nil {
			return nil, &ComponentError{Pos: Pos{File: mod.Path, Line: el.Line}, Component: el.TypeName, Reason: err.Error()}
		}
		expanded, err := r.expandInstance(current, def, mod, depth)
		if err != nil {
			return nil, err
		}
		current = expanded
	}

	children := make([]*ElementNode, 0, len(current.Children))
	for _, child := range current.Children {
		c, err := r.expandTree(child, mod, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	current.Children = children
	return current, nil
}

// expandInstance binds one component instance against its declaration and
// returns a freshly-cloned, fully-substituted element in the instance's
// place (spec 4.6).
func (r *componentResolver) expandInstance(instance *ElementNode, def *ComponentDef, mod *Module, depth int) (*ElementNode, error) {
	if def.Template == nil {
		return nil, &ComponentError{Pos: Pos{File: mod.Path, Line: instance.Line}, Component: def.Name, Reason: "component has no template root"}
	}

	bindings := map[string]string{}
	usage := map[string]string{}
	for _, p := range instance.Properties {
		usage[p.Key] = p.ValueStr
	}

	for _, pd := range def.Properties {
		if v, ok := usage[pd.Name]; ok {
			if err := checkComponentPropertyType(pd, v, instance.Line, mod.Path); err != nil {
				return nil, err
			}
			bindings[pd.Name] = v
			continue
		}
		if pd.HasDefault {
			bindings[pd.Name] = pd.Default
			continue
		}
		if pd.Required {
			return nil, &ComponentError{Pos: Pos{File: mod.Path, Line: instance.Line}, Component: def.Name, Reason: "missing required property '" + pd.Name + "'"}
		}
	}

	clone := cloneElement(def.Template)
	substitutePlaceholders(clone, bindings)

	// Usage-site properties that aren't declared component properties pass
	// through directly onto the expanded root (e.g. a standard `style`
	// override applied at the call site), letting the Semantic Analyzer
	// see them like any other element property.
	declared := make(map[string]bool, len(def.Properties))
	for _, pd := range def.Properties {
		declared[pd.Name] = true
	}
	for _, p := range instance.Properties {
		if declared[p.Key] {
			continue
		}
		clone.Properties = append(clone.Properties, p)
	}

	if instance.ID != "" {
		clone.ID = instance.ID
	}
	clone.Pseudo = append(clone.Pseudo, instance.Pseudo...)
	clone.Line = instance.Line
	clone.IsComponentInstance = true

	// Slot policy (spec 4.6 default, DESIGN.md resolution #3): the
	// instance's own children are appended to the template root's.
	clone.Children = append(clone.Children, instance.Children...)

	return clone, nil
}

func cloneElement(el *ElementNode) *ElementNode {
	if el == nil {
		return nil
	}
	c := &ElementNode{
		TypeName:            el.TypeName,
		ID:                  el.ID,
		Line:                el.Line,
		IsComponentInstance: el.IsComponentInstance,
	}
	c.Properties = append([]PropertyNode(nil), el.Properties...)
	c.Pseudo = clonePseudo(el.Pseudo)
	c.Children = make([]*ElementNode, len(el.Children))
	for i, child := range el.Children {
		c.Children[i] = cloneElement(child)
	}
	return c
}

func clonePseudo(pb []PseudoBlockNode) []PseudoBlockNode {
	out := make([]PseudoBlockNode, len(pb))
	for i, p := range pb {
		out[i] = PseudoBlockNode{State: p.State, Line: p.Line, Properties: append([]PropertyNode(nil), p.Properties...)}
	}
	return out
}

// substitutePlaceholders replaces `$name` occurrences in el's property
// values (and its descendants') with bindings[name], the component-scope
// substitution the Variable Resolver deliberately deferred (spec 4.4,
// "component-property placeholders are left untouched").
func substitutePlaceholders(el *ElementNode, bindings map[string]string) {
	for i := range el.Properties {
		el.Properties[i].ValueStr = varRefRegex.ReplaceAllStringFunc(el.Properties[i].ValueStr, func(m string) string {
			if v, ok := bindings[m[1:]]; ok {
				return v
			}
			return m
		})
	}
	for pi := range el.Pseudo {
		for i := range el.Pseudo[pi].Properties {
			el.Pseudo[pi].Properties[i].ValueStr = varRefRegex.ReplaceAllStringFunc(el.Pseudo[pi].Properties[i].ValueStr, func(m string) string {
				if v, ok := bindings[m[1:]]; ok {
					return v
				}
				return m
			})
		}
	}
	if v, ok := bindings[strings.TrimPrefix(el.ID, "$")]; ok && strings.HasPrefix(el.ID, "$") {
		el.ID = v
	}
	for _, child := range el.Children {
		substitutePlaceholders(child, bindings)
	}
}

// checkComponentPropertyType validates a usage-site argument against its
// declared type tag (spec 3, "Component Definition": "checking types and
// defaults"). Values are still plain text at this stage — full numeric
// conversion happens later when compileScalarProperty runs — so this is a
// syntactic sanity check, not a full type system.
func checkComponentPropertyType(pd ComponentPropertyNode, value string, line int, file string) error {
	v := strings.TrimSpace(value)
	switch pd.TypeTag {
	case "Int":
		if _, err := strconv.ParseInt(stripUnit(v), 10, 64); err != nil {
			return &ComponentError{Pos: Pos{File: file, Line: line}, Component: pd.Name, Reason: "expected an Int, got " + v}
		}
	case "Float":
		if _, err := strconv.ParseFloat(stripUnit(v), 64); err != nil {
			return &ComponentError{Pos: Pos{File: file, Line: line}, Component: pd.Name, Reason: "expected a Float, got " + v}
		}
	case "Bool":
		lower := strings.ToLower(v)
		if lower != "true" && lower != "false" {
			return &ComponentError{Pos: Pos{File: file, Line: line}, Component: pd.Name, Reason: "expected a Bool, got " + v}
		}
	case "Color":
		if _, ok := parseColorLiteral(v); !ok {
			return &ComponentError{Pos: Pos{File: file, Line: line}, Component: pd.Name, Reason: "expected a Color literal, got " + v}
		}
	case "Size":
		if _, err := strconv.ParseFloat(stripUnit(v), 64); err != nil {
			return &ComponentError{Pos: Pos{File: file, Line: line}, Component: pd.Name, Reason: "expected a Size, got " + v}
		}
	case "String", "":
		// any text is a valid string
	}
	return nil
}

// lookupComponent resolves a component name visible from mod: declared in
// mod itself, else a directly-imported module's public component (not
// prefixed `_`), by descending import rank on conflict — the same
// module-isolation shape variables.go/style_resolver.go use (DESIGN.md
// Open Question resolution #6).
func (r *componentResolver) lookupComponent(name string, mod *Module) (*ComponentDef, error) {
	if def, ok := mod.Components[name]; ok {
		return def, nil
	}
	deps := make([]*Module, 0, len(mod.Deps))
	for _, p := range mod.Deps {
		if d, ok := r.graph.Modules[p]; ok {
			deps = append(deps, d)
		}
	}
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].ImportRank > deps[j].ImportRank })
	for _, dep := range deps {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if def, ok := dep.Components[name]; ok {
			return def, nil
		}
	}
	return nil, &ComponentError{Component: name, Reason: "unknown element or component type '" + name + "'"}
}
