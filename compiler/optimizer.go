package compiler

// OptimizationLevel selects which optimizer passes run (spec 4.8). Level 0
// runs none; each higher level is additive over the one below it, mirroring
// original_source/src/compiler/optimizer.rs's Optimizer.optimize level
// dispatch (0 = none, 1 = basic, 2 = aggressive). propertySignature, the
// canonicalization both this file's reporting and PropertyBlockTable's
// real dedup rely on, lives in property_blocks.go.
type OptimizationLevel uint8

const (
	OptNone OptimizationLevel = iota
	OptBasic
	OptAggressive
)

// OptimizationReport records which passes fired and what they found
// (Compile discards it; Stats has no optimizer fields) — grounded on the
// Rust optimizer's
// optimizations_applied/size_savings bookkeeping, flattened into one
// struct per pass instead of a free-form map.
type OptimizationReport struct {
	Applied          []string
	UnusedStyles     int
	UnusedComponents int
	UnusedResources  int
	SharedPropertyBlocks int
}

// Optimize runs the opt-in passes appropriate for level against an already
// fully-resolved compilation (spec 4.8: the Optimizer sits between the
// Semantic Analyzer and the Size Calculator, operating on resolved data,
// never re-deriving anything a prior stage already decided). Because this
// pipeline works over live Go structs rather than the Rust original's
// already-indexed byte buffers, deduplication happens naturally as a
// structural rewrite (drop elements from a slice, merge identical
// property signatures) instead of an index-remapping pass — the
// string-table dedup the Rust optimizer does explicitly is already
// subsumed here by StringTable.Add's own dedup-by-content behavior.
func Optimize(level OptimizationLevel, root *ResolvedElement, styles []*StyleDef, components []*ComponentDef, resources []ResourceEntry) ([]*StyleDef, []*ComponentDef, *OptimizationReport, error) {
	report := &OptimizationReport{}
	if level == OptNone {
		return styles, components, report, nil
	}

	usedStyles := map[string]bool{}
	usedComponents := map[string]bool{} // components are fully expanded by this stage; tracked for the introspection table only
	collectUsedStyles(root, usedStyles)

	keptStyles := make([]*StyleDef, 0, len(styles))
	for _, s := range styles {
		if usedStyles[s.Name] {
			keptStyles = append(keptStyles, s)
		} else {
			report.UnusedStyles++
		}
	}
	if report.UnusedStyles > 0 {
		report.Applied = append(report.Applied, "unused style elimination")
	}

	// Component defs have no post-expansion references left in the tree
	// (every instance was replaced by the Component Resolver), so "unused"
	// here just means "never instantiated" — which this pipeline doesn't
	// track per-instance once expansion has happened. Aggressive level
	// still reports the full defined set as kept, since dropping a
	// component definition would remove it from the introspection table
	// tooling relies on even though no encoded element references it by
	// name anymore.
	_ = usedComponents
	keptComponents := components

	// Property-block sharing is real dedup performed by the Size
	// Calculator's PropertyBlockTable (property_blocks.go), not just a
	// report here; testable property D requires it from opt-level >= 1,
	// so this count (and the CalculateLayout share flag it mirrors) both
	// key off OptBasic, not OptAggressive.
	if level >= OptBasic {
		report.SharedPropertyBlocks = countSharedPropertyBlocks(root)
		if report.SharedPropertyBlocks > 0 {
			report.Applied = append(report.Applied, "property block sharing")
		}
	}

	return keptStyles, keptComponents, report, nil
}

func collectUsedStyles(el *ResolvedElement, used map[string]bool) {
	if el == nil {
		return
	}
	if el.StyleName != "" {
		used[el.StyleName] = true
	}
	for _, child := range el.Children {
		collectUsedStyles(child, used)
	}
}

// countSharedPropertyBlocks reports how many elements carry a property set
// byte-identical to another element's, the same signature-grouping idea as
// the Rust optimizer's calculate_property_signature/optimize_property_sharing.
// This is a pre-layout estimate over elements only (styles and pseudo
// blocks also share through the same table, but aren't visible from the
// resolved tree yet at this stage); the Size Calculator's
// PropertyBlockTable is what actually performs the dedup this counts.
func countSharedPropertyBlocks(root *ResolvedElement) int {
	sigCounts := map[string]int{}
	var walk func(*ResolvedElement)
	walk = func(el *ResolvedElement) {
		if el == nil {
			return
		}
		if len(el.Properties) > 0 {
			sigCounts[propertySignature(el.Properties)]++
		}
		for _, c := range el.Children {
			walk(c)
		}
	}
	walk(root)

	shared := 0
	for _, count := range sigCounts {
		if count > 1 {
			shared += count - 1
		}
	}
	return shared
}
