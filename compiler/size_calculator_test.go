package compiler

import "testing"

func twoIdenticalTextChildren() *ResolvedElement {
	props := []KrbProperty{{PropertyID: PropIDMaxWidth, ValueType: ValTypeShort, Size: 2, Data: []byte{100, 0}}}
	return &ResolvedElement{
		Type: ElemTypeContainer,
		Children: []*ResolvedElement{
			{Type: ElemTypeText, Properties: append([]KrbProperty(nil), props...)},
			{Type: ElemTypeText, Properties: append([]KrbProperty(nil), props...)},
		},
	}
}

func TestCalculateLayoutSharesIdenticalPropertyBlocksAtOptBasic(t *testing.T) {
	root := twoIdenticalTextChildren()
	st := NewStringTable()
	plan, err := CalculateLayout(root, nil, nil, nil, nil, st, false, OptBasic)
	if err != nil {
		t.Fatalf("CalculateLayout failed: %v", err)
	}
	a, b := plan.ElementsFlat[1], plan.ElementsFlat[2]
	if a.PropertyBlockIndex != b.PropertyBlockIndex {
		t.Fatalf("two elements with byte-identical properties got different block indices %d and %d at opt-level >= 1", a.PropertyBlockIndex, b.PropertyBlockIndex)
	}
	if a.PropertyBlockIndex == 0 {
		t.Fatalf("non-empty properties interned into the reserved empty block 0")
	}
	// Testable property D: no two property blocks encode the same byte
	// sequence once sharing is in effect.
	seen := map[string]int{}
	for _, blk := range plan.PropertyBlocks {
		if len(blk.Properties) == 0 {
			continue
		}
		seen[propertySignature(blk.Properties)]++
	}
	for sig, count := range seen {
		if count > 1 {
			t.Fatalf("signature %q encoded in %d distinct blocks, want at most 1 once shared", sig, count)
		}
	}
	if len(plan.PropertyBlocks) != 2 { // reserved empty slot + one shared block
		t.Fatalf("got %d property blocks, want 2 (empty + one shared)", len(plan.PropertyBlocks))
	}
}

func TestCalculateLayoutDoesNotShareAtOptNone(t *testing.T) {
	root := twoIdenticalTextChildren()
	st := NewStringTable()
	plan, err := CalculateLayout(root, nil, nil, nil, nil, st, false, OptNone)
	if err != nil {
		t.Fatalf("CalculateLayout failed: %v", err)
	}
	a, b := plan.ElementsFlat[1], plan.ElementsFlat[2]
	if a.PropertyBlockIndex == b.PropertyBlockIndex {
		t.Fatalf("opt-level 0 should not dedupe, but both elements reference block %d", a.PropertyBlockIndex)
	}
	if len(plan.PropertyBlocks) != 3 { // reserved empty slot + one block per element
		t.Fatalf("got %d property blocks, want 3 (empty + one per element, unshared)", len(plan.PropertyBlocks))
	}
}

func TestCalculateLayoutStyleAndElementReferenceSameSharedBlock(t *testing.T) {
	props := []KrbProperty{{PropertyID: PropIDBgColor, ValueType: ValTypeColor, Size: 4, Data: []byte{255, 0, 0, 255}}}
	style := &StyleDef{Name: "red", ID: 1, Properties: append([]KrbProperty(nil), props...), PropOrder: []uint8{PropIDBgColor}}
	root := &ResolvedElement{Type: ElemTypeContainer, Properties: append([]KrbProperty(nil), props...)}

	st := NewStringTable()
	plan, err := CalculateLayout(root, []*StyleDef{style}, nil, nil, nil, st, false, OptBasic)
	if err != nil {
		t.Fatalf("CalculateLayout failed: %v", err)
	}
	if plan.Styles[0].PropertyBlockIndex != plan.Root.PropertyBlockIndex {
		t.Fatalf("style and element with identical properties got different blocks: %d vs %d", plan.Styles[0].PropertyBlockIndex, plan.Root.PropertyBlockIndex)
	}
}

func TestCalculateLayoutWiresPropertyBlockSectionSize(t *testing.T) {
	root := twoIdenticalTextChildren()
	st := NewStringTable()
	plan, err := CalculateLayout(root, nil, nil, nil, nil, st, false, OptBasic)
	if err != nil {
		t.Fatalf("CalculateLayout failed: %v", err)
	}
	if plan.PropertyBlockSize == 0 {
		t.Fatal("PropertyBlockSize is 0 despite non-empty property blocks")
	}
	if plan.PropertyBlockOffset <= plan.ElementOffset {
		t.Fatalf("PropertyBlockOffset %d should follow ElementOffset %d", plan.PropertyBlockOffset, plan.ElementOffset)
	}
}
