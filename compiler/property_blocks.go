package compiler

import (
	"encoding/hex"
	"fmt"
	"sort"
)

// PropertyBlock is one entry in the property-block table (spec 6.1,
// "Property-block table": "count, then per block: entry count, then each
// entry"). Styles and elements no longer carry their properties inline;
// each instead stores the index of the block it uses, the same
// indirection StringTable already applies to string literals.
type PropertyBlock struct {
	Properties []KrbProperty
}

// PropertyBlockTable interns property sets by their canonicalized byte
// signature (propertySignature), so a style or element that declares a
// byte-identical property set as another reuses the same block index
// instead of encoding its own copy. Index 0 is reserved for "no
// properties", mirroring StringTable's reserved empty slot, so an
// element with nothing of its own can reference "none" without a
// special-cased absent-block encoding.
//
// share gates whether interning actually dedupes (opt-level >= 1, per
// testable property D, "no two property blocks encode the same byte
// sequence") or simply hands every non-empty property set its own block
// (opt-level 0): either way the wire format's shape is identical, only
// its size differs.
type PropertyBlockTable struct {
	blocks []PropertyBlock
	index  map[string]uint16
	share  bool
}

func NewPropertyBlockTable(share bool) *PropertyBlockTable {
	return &PropertyBlockTable{
		blocks: []PropertyBlock{{}},
		index:  map[string]uint16{"": 0},
		share:  share,
	}
}

// Intern returns the block index props should be referenced by, creating
// a new block unless sharing is enabled and an identical signature was
// already interned.
func (t *PropertyBlockTable) Intern(props []KrbProperty) (uint16, error) {
	if len(props) == 0 {
		return 0, nil
	}
	sig := propertySignature(props)
	if t.share {
		if idx, ok := t.index[sig]; ok {
			return idx, nil
		}
	}
	if len(t.blocks) > MaxPropertyBlockIndex {
		return 0, fmt.Errorf("property-block table exceeds maximum index %d", MaxPropertyBlockIndex)
	}
	idx := uint16(len(t.blocks))
	t.blocks = append(t.blocks, PropertyBlock{Properties: props})
	if t.share {
		t.index[sig] = idx
	}
	return idx, nil
}

// Blocks returns the table in index order, including the reserved empty
// slot 0.
func (t *PropertyBlockTable) Blocks() []PropertyBlock { return t.blocks }

func (t *PropertyBlockTable) Len() int { return len(t.blocks) }

// propertySignature canonicalizes a property set into an order-independent
// byte signature, so two elements or styles with the same properties
// declared in different source order still collapse to one block. Shared
// by PropertyBlockTable.Intern (real dedup) and optimizer.go's
// countSharedPropertyBlocks (pre-layout reporting of the same grouping).
func propertySignature(props []KrbProperty) string {
	sorted := append([]KrbProperty(nil), props...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PropertyID < sorted[j].PropertyID })

	var sig []byte
	for _, p := range sorted {
		sig = append(sig, p.PropertyID, p.ValueType)
		sig = append(sig, []byte(hex.EncodeToString(p.Data))...)
		sig = append(sig, ',')
	}
	return string(sig)
}
