package compiler

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// VariableDef is one `$name` binding (spec 3, Variable Definition).
// Resolution state mirrors the teacher's IsResolving/IsResolved pair
// (waozixyz/kryc's VariableDef), scoped per module instead of globally.
type VariableDef struct {
	Name       string
	RawValue   string
	Value      string
	Line       int
	Resolving  bool
	Resolved   bool
	ImportRank int // the owning module's rank, spec 3 "Variable Definition ... import rank"
}

var varRefRegex = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// varResolver carries the state shared across one compilation's Variable
// Resolver pass: the module graph and the driver-supplied overrides (spec
// 6.3, Options.custom_variables).
type varResolver struct {
	graph    *ModuleGraph
	custom   map[string]string
	warnings []Warning
}

// ResolveVariables is the Variable Resolver entry point (spec 4.4): for
// every module in dependency-first order it collects local `@variables`
// declarations, resolves them (applying the local > custom_variables >
// imports-by-descending-rank priority, spec 4.4 and glossary "Import
// rank"), then substitutes `$name` references and evaluates expressions
// throughout that module's AST — styles, component declarations and
// templates, and the element tree.
func ResolveVariables(mg *ModuleGraph, custom map[string]string) ([]Warning, error) {
	r := &varResolver{graph: mg, custom: custom}
	if r.custom == nil {
		r.custom = map[string]string{}
	}

	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		r.collect(mod)
	}
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		for name := range mod.Variables {
			if _, err := r.resolveLocal(name, mod, map[string]bool{}); err != nil {
				return r.warnings, err
			}
		}
	}
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		if err := r.substituteModule(mod); err != nil {
			return r.warnings, err
		}
	}
	return r.warnings, nil
}

// collect populates mod.Variables/mod.Private from the module's parsed
// `@variables` blocks (spec 4.4; teacher's collectRawVariables). A later
// declaration of the same name within one module wins, with a warning —
// the teacher's own behavior for redefinition.
func (r *varResolver) collect(mod *Module) {
	for _, v := range mod.AST.Variables {
		if existing, ok := mod.Variables[v.Name]; ok {
			r.warnings = append(r.warnings, Warning{
				Pos:     Pos{File: mod.Path, Line: v.Line},
				Message: "variable '" + v.Name + "' redefined, previous definition at L" + strconv.Itoa(existing.Line),
			})
		}
		mod.Variables[v.Name] = &VariableDef{
			Name:       v.Name,
			RawValue:   v.RawValue,
			Line:       v.Line,
			ImportRank: mod.ImportRank,
		}
		if strings.HasPrefix(v.Name, "_") {
			mod.Private[v.Name] = true
		}
	}
}

func (r *varResolver) resolveLocal(name string, mod *Module, visited map[string]bool) (string, error) {
	def := mod.Variables[name]
	if def.Resolved {
		return def.Value, nil
	}
	key := mod.Path + "::" + name
	if def.Resolving || visited[key] {
		return "", &VarError{Pos: Pos{File: mod.Path, Line: def.Line}, Kind: VarErrCycle, Name: name, Path: visitedPath(visited, key)}
	}
	def.Resolving = true
	visited[key] = true

	val, err := r.resolveValue(def.RawValue, mod, nil, visited)
	def.Resolving = false
	delete(visited, key)
	if err != nil {
		return "", err
	}
	def.Value = val
	def.Resolved = true
	return val, nil
}

// resolveValue substitutes every `$name` reference in raw (skipping names
// in skip, which are left as component-scope placeholders for the
// Component Resolver), then evaluates the result as an expression if raw
// is a parenthesized wrapper (spec 5, "Expression evaluation").
func (r *varResolver) resolveValue(raw string, mod *Module, skip map[string]bool, visited map[string]bool) (string, error) {
	substituted, err := r.substituteRefs(raw, mod, skip, visited)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "(") && strings.HasSuffix(trimmed, ")") {
		result, err := EvaluateExpression(substituted)
		if err != nil {
			return "", &VarError{Kind: VarErrEvalFailure, Expr: raw, Reason: err.Error()}
		}
		return result, nil
	}
	return substituted, nil
}

func (r *varResolver) substituteRefs(raw string, mod *Module, skip map[string]bool, visited map[string]bool) (string, error) {
	var firstErr error
	result := varRefRegex.ReplaceAllStringFunc(raw, func(match string) string {
		if firstErr != nil {
			return match
		}
		name := match[1:]
		if skip != nil && skip[name] {
			return match
		}
		val, err := r.lookup(name, mod, visited)
		if err != nil {
			firstErr = err
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// lookup resolves a `$name` reference per the priority chain local module
// > driver custom_variables > directly-imported modules by descending
// import rank (spec 4.4, glossary "Import rank").
func (r *varResolver) lookup(name string, mod *Module, visited map[string]bool) (string, error) {
	if _, ok := mod.Variables[name]; ok {
		return r.resolveLocal(name, mod, visited)
	}
	if v, ok := r.custom[name]; ok {
		return v, nil
	}
	deps := r.depsByDescendingRank(mod)
	for _, dep := range deps {
		if def, ok := dep.Variables[name]; ok && !dep.Private[name] {
			return def.Value, nil
		}
	}
	return "", &VarError{Kind: VarErrUndefined, Name: name}
}

func (r *varResolver) depsByDescendingRank(mod *Module) []*Module {
	deps := make([]*Module, 0, len(mod.Deps))
	for _, p := range mod.Deps {
		if d, ok := r.graph.Modules[p]; ok {
			deps = append(deps, d)
		}
	}
	sort.SliceStable(deps, func(i, j int) bool { return deps[i].ImportRank > deps[j].ImportRank })
	return deps
}

// substituteModule walks one module's AST, substituting `$name` references
// and evaluating expressions in every property value. Component templates
// keep their own declared property names as placeholders (spec 4.6:
// `$property` slots bound later by the Component Resolver).
func (r *varResolver) substituteModule(mod *Module) error {
	for i := range mod.AST.Styles {
		if err := r.substituteStyle(&mod.AST.Styles[i], mod); err != nil {
			return err
		}
	}
	for i := range mod.AST.Components {
		if err := r.substituteComponent(&mod.AST.Components[i], mod); err != nil {
			return err
		}
	}
	if mod.AST.Root != nil {
		if err := r.substituteElement(mod.AST.Root, mod, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *varResolver) substituteStyle(s *StyleNode, mod *Module) error {
	for i := range s.Properties {
		v, err := r.resolveValue(s.Properties[i].ValueStr, mod, nil, map[string]bool{})
		if err != nil {
			return err
		}
		s.Properties[i].ValueStr = v
	}
	for pi := range s.Pseudo {
		for i := range s.Pseudo[pi].Properties {
			v, err := r.resolveValue(s.Pseudo[pi].Properties[i].ValueStr, mod, nil, map[string]bool{})
			if err != nil {
				return err
			}
			s.Pseudo[pi].Properties[i].ValueStr = v
		}
	}
	return nil
}

func (r *varResolver) substituteComponent(c *ComponentNode, mod *Module) error {
	propNames := make(map[string]bool, len(c.Properties))
	for _, p := range c.Properties {
		propNames[p.Name] = true
	}
	for i := range c.Properties {
		if !c.Properties[i].HasDefault {
			continue
		}
		v, err := r.resolveValue(c.Properties[i].Default, mod, nil, map[string]bool{})
		if err != nil {
			return err
		}
		c.Properties[i].Default = v
	}
	if c.Template != nil {
		if err := r.substituteElement(c.Template, mod, propNames); err != nil {
			return err
		}
	}
	return nil
}

func (r *varResolver) substituteElement(el *ElementNode, mod *Module, skip map[string]bool) error {
	for i := range el.Properties {
		v, err := r.resolveValue(el.Properties[i].ValueStr, mod, skip, map[string]bool{})
		if err != nil {
			return err
		}
		el.Properties[i].ValueStr = v
	}
	for pi := range el.Pseudo {
		for i := range el.Pseudo[pi].Properties {
			v, err := r.resolveValue(el.Pseudo[pi].Properties[i].ValueStr, mod, skip, map[string]bool{})
			if err != nil {
				return err
			}
			el.Pseudo[pi].Properties[i].ValueStr = v
		}
	}
	for _, child := range el.Children {
		if err := r.substituteElement(child, mod, skip); err != nil {
			return err
		}
	}
	return nil
}

func visitedPath(visited map[string]bool, current string) []string {
	path := make([]string, 0, len(visited)+1)
	for v := range visited {
		path = append(path, v)
	}
	sort.Strings(path)
	return append(path, current+" (cycle)")
}
