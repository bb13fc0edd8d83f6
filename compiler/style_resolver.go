package compiler

import (
	"sort"
	"strings"
)

// StyleDef is one resolved style (spec 3, "Style"): a name, the merged
// property set after walking its `extends` chain, and a pseudo-state
// overlay keyed by state name (hover/active/focus/disabled/checked).
type StyleDef struct {
	Name       string
	Extends    []string
	Line       int
	ID         uint8 // 1-based, assigned in dependency-first resolution order
	Properties []KrbProperty
	PropOrder  []uint8
	Pseudo     map[string][]KrbProperty
}

// styleResolver carries the state shared across one compilation's Style
// Resolver pass, mirroring varResolver's module-scoped lookup shape.
type styleResolver struct {
	graph     *ModuleGraph
	strings   *StringTable
	resources *ResourceTable
	warnings  []Warning
	nextID    uint8
}

// ResolveStyles is the Style Resolver entry point (spec 4.5): for every
// module, in dependency-first order, it topologically orders that
// module's own styles by `extends` with Kahn's algorithm (falling through
// to directly-imported modules' public styles for parents not declared
// locally — module isolation, spec 4.2), merges parent properties, then
// overlays pseudo-state blocks the same way. Generalizes the teacher's
// single-parent resolveSingleStyle (style_resolver.go) to spec.md §4.5's
// `extends` list, using the Kahn's-algorithm shape
// original_source/src/style_resolver.rs builds with
// build_dependency_graph/topological_sort.
func ResolveStyles(mg *ModuleGraph, st *StringTable, res *ResourceTable) ([]Warning, error) {
	r := &styleResolver{graph: mg, strings: st, resources: res, nextID: 1}
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		if err := r.resolveModule(mod); err != nil {
			return r.warnings, err
		}
	}
	return r.warnings, nil
}

func (r *styleResolver) resolveModule(mod *Module) error {
	local := map[string]*StyleNode{}
	for i := range mod.AST.Styles {
		s := &mod.AST.Styles[i]
		if _, exists := local[s.Name]; exists {
			r.warnings = append(r.warnings, Warning{
				Pos:     Pos{File: mod.Path, Line: s.Line},
				Message: "style '" + s.Name + "' redefined in the same module",
			})
		}
		local[s.Name] = s
	}

	order, err := topoSortStyles(mod, local)
	if err != nil {
		return err
	}

	for _, name := range order {
		def, err := r.resolveOne(local[name], mod, local)
		if err != nil {
			return err
		}
		mod.Styles[name] = def
	}
	return nil
}

func (r *styleResolver) resolveOne(s *StyleNode, mod *Module, local map[string]*StyleNode) (*StyleDef, error) {
	def := &StyleDef{Name: s.Name, Extends: s.Extends, Line: s.Line, ID: r.nextID}
	r.nextID++

	merged := map[uint8]KrbProperty{}
	var mergedOrder []uint8
	take := func(id uint8, p KrbProperty) {
		if _, exists := merged[id]; !exists {
			mergedOrder = append(mergedOrder, id)
		}
		merged[id] = p
	}

	for _, parentName := range s.Extends {
		parent, err := r.lookupStyle(parentName, mod, local)
		if err != nil {
			return nil, &SemanticError{Kind: SemErrUnknownReference, Pos: Pos{File: mod.Path, Line: s.Line}, Name: parentName, Reason: "style extends an undefined or inaccessible style"}
		}
		for i, id := range parent.PropOrder {
			take(id, parent.Properties[i])
		}
	}

	own, ownOrder, propWarnings, err := CompileProperties(withoutExtends(s.Properties), r.strings, r.resources, mod.Path)
	if err != nil {
		return nil, err
	}
	r.warnings = append(r.warnings, propWarnings...)
	for i, id := range ownOrder {
		take(id, own[i])
	}

	def.PropOrder = mergedOrder
	def.Properties = make([]KrbProperty, len(mergedOrder))
	for i, id := range mergedOrder {
		def.Properties[i] = merged[id]
	}

	def.Pseudo = map[string][]KrbProperty{}
	for _, pb := range s.Pseudo {
		if !isKnownPseudoState(pb.State) {
			return nil, &SemanticError{Kind: SemErrUnknownReference, Pos: Pos{File: mod.Path, Line: pb.Line}, Name: pb.State, Reason: "not a recognized pseudo-state"}
		}
		props, _, pseudoWarnings, err := CompileProperties(pb.Properties, r.strings, r.resources, mod.Path)
		if err != nil {
			return nil, err
		}
		r.warnings = append(r.warnings, pseudoWarnings...)
		def.Pseudo[pb.State] = props
	}

	return def, nil
}

// lookupStyle resolves a style name visible from mod: declared in mod
// itself, else a directly-imported module's public style (not prefixed
// `_`), by descending import rank on conflict — the same module-isolation
// shape variables.go's lookup uses (spec 4.2's invariant applies generally
// to "a module's declarations", not only variables).
func (r *styleResolver) lookupStyle(name string, mod *Module, local map[string]*StyleNode) (*StyleDef, error) {
	if s, ok := local[name]; ok {
		if def, ok := mod.Styles[name]; ok {
			return def, nil
		}
		return nil, &SemanticError{Kind: SemErrCircularStyle, Pos: Pos{File: mod.Path, Line: s.Line}, Name: name, Reason: "style referenced before it was resolved (extends cycle)"}
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
		if def, ok := dep.Styles[name]; ok {
			return def, nil
		}
	}
	return nil, &SemanticError{Kind: SemErrUnknownReference, Name: name, Reason: "style not found in this module or its direct imports"}
}

// topoSortStyles orders one module's own style names so every style is
// processed after all of its locally-declared `extends` parents (Kahn's
// algorithm), grounded on original_source/src/style_resolver.rs's
// build_dependency_graph + topological_sort. A parent not declared in
// this module is assumed to be an import, resolved later by lookupStyle,
// not a local graph edge. Ties break alphabetically for determinism.
func topoSortStyles(mod *Module, local map[string]*StyleNode) ([]string, error) {
	inDegree := map[string]int{}
	adj := map[string][]string{}
	for name := range local {
		inDegree[name] = 0
	}
	for name, s := range local {
		for _, parent := range s.Extends {
			if _, ok := local[parent]; !ok {
				continue // resolved across the module boundary instead
			}
			inDegree[name]++
			adj[parent] = append(adj[parent], name)
		}
	}

	var queue []string
	for name, d := range inDegree {
		if d == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)

		var freed []string
		for _, next := range adj[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				freed = append(freed, next)
			}
		}
		sort.Strings(freed)
		queue = append(queue, freed...)
		sort.Strings(queue)
	}

	if len(order) != len(local) {
		var cyclic []string
		for name := range local {
			found := false
			for _, o := range order {
				if o == name {
					found = true
					break
				}
			}
			if !found {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, &SemanticError{Kind: SemErrCircularStyle, Pos: Pos{File: mod.Path}, Path: cyclic, Reason: "circular style inheritance"}
	}
	return order, nil
}

func isKnownPseudoState(s string) bool {
	for _, p := range PseudoStates {
		if p == s {
			return true
		}
	}
	return false
}

// withoutExtends filters out the `extends` pseudo-property the Parser may
// carry alongside real properties (it is consumed into StyleNode.Extends,
// not compiled as a KrbProperty).
func withoutExtends(props []PropertyNode) []PropertyNode {
	out := make([]PropertyNode, 0, len(props))
	for _, p := range props {
		if strings.EqualFold(p.Key, "extends") {
			continue
		}
		out = append(out, p)
	}
	return out
}
