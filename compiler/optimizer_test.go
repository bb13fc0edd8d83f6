package compiler

import "testing"

func TestOptimizeNoneLeavesEverythingUntouched(t *testing.T) {
	root := &ResolvedElement{Type: ElemTypeContainer}
	styles := []*StyleDef{{Name: "unused"}}
	keptStyles, _, report, err := Optimize(OptNone, root, styles, nil, nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(keptStyles) != 1 {
		t.Fatalf("OptNone dropped a style, got %d want 1", len(keptStyles))
	}
	if len(report.Applied) != 0 {
		t.Errorf("OptNone should apply no passes, got %v", report.Applied)
	}
}

func TestOptimizeBasicDropsUnusedStyles(t *testing.T) {
	root := &ResolvedElement{
		Type:      ElemTypeContainer,
		StyleName: "used",
		Children: []*ResolvedElement{
			{Type: ElemTypeText, StyleName: "used"},
		},
	}
	styles := []*StyleDef{
		{Name: "used"},
		{Name: "unused"},
	}
	kept, _, report, err := Optimize(OptBasic, root, styles, nil, nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if len(kept) != 1 || kept[0].Name != "used" {
		t.Fatalf("got kept styles %v, want only \"used\"", kept)
	}
	if report.UnusedStyles != 1 {
		t.Errorf("UnusedStyles = %d, want 1", report.UnusedStyles)
	}
}

func TestOptimizeAggressiveReportsSharedPropertyBlocks(t *testing.T) {
	props := []KrbProperty{{PropertyID: PropIDMaxWidth, ValueType: ValTypeShort, Size: 2, Data: []byte{100, 0}}}
	root := &ResolvedElement{
		Type: ElemTypeContainer,
		Children: []*ResolvedElement{
			{Type: ElemTypeText, Properties: props},
			{Type: ElemTypeText, Properties: props},
		},
	}
	_, _, report, err := Optimize(OptAggressive, root, nil, nil, nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if report.SharedPropertyBlocks != 1 {
		t.Errorf("SharedPropertyBlocks = %d, want 1", report.SharedPropertyBlocks)
	}
}

// Testable property D (spec 8) requires property-block dedup starting at
// opt-level >= 1, i.e. OptBasic, not only the highest level.
func TestOptimizeBasicAlsoReportsSharedPropertyBlocks(t *testing.T) {
	props := []KrbProperty{{PropertyID: PropIDMaxWidth, ValueType: ValTypeShort, Size: 2, Data: []byte{100, 0}}}
	root := &ResolvedElement{
		Type: ElemTypeContainer,
		Children: []*ResolvedElement{
			{Type: ElemTypeText, Properties: props},
			{Type: ElemTypeText, Properties: props},
		},
	}
	_, _, report, err := Optimize(OptBasic, root, nil, nil, nil)
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if report.SharedPropertyBlocks != 1 {
		t.Errorf("SharedPropertyBlocks = %d, want 1 at OptBasic", report.SharedPropertyBlocks)
	}
	found := false
	for _, a := range report.Applied {
		if a == "property block sharing" {
			found = true
		}
	}
	if !found {
		t.Errorf("Applied = %v, want it to include \"property block sharing\" at OptBasic", report.Applied)
	}
}
