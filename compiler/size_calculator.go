package compiler

import (
	"fmt"
	"math"
)

// Fixed-size field widths for the Size Calculator/Code Generator's element,
// style, resource and script records (spec 4.9/6.1). The teacher's KRB v0.4
// header used 1-byte indices/counts throughout (KRBElementHeaderSize=17,
// 1-byte string/resource indices); this expansion widens whichever fields
// the richer data model can legitimately overflow a byte on (string-table
// index, property-block index, child count) while keeping the teacher's
// "one fixed header + repeated variable records" shape.
const (
	elementHeaderSize = 11 // Type(1) IDIndex(2) StyleID(1) LayoutFlags(1) PropertyBlockIndex(2) PseudoCount(1) EventCount(1) ChildCount(2)
	pseudoRefSize     = 3  // StateTag(1) PropertyBlockIndex(2), one per pseudo-state override
	eventRecSize      = 3  // Type(1) HandlerNameIndex(2)
	childRefSize      = 4  // relative offset, u32

	styleHeaderSize      = 5 // ID(1) NameIndex(2) PropertyBlockIndex(2)
	stylePseudoCountSize = 1

	componentHeaderSize  = 2 // NameIndex(2)
	componentPropRecSize = 4 // NameIndex(2) TypeTag(1) Flags(1)

	resourceRecSizeBase = 5 // Type(1) Format(1) PathIndex(2) ChecksumPresent(1)

	scriptHeaderSize = 4 // Language(1) NameIndex(2) Storage(1)

	// propertyHdrSize and propertyBlockHeaderSize size the property-block
	// table (spec 6.1 item 6), the one place property bytes are actually
	// written; elements and styles reference a block by index instead of
	// carrying properties inline (see PropertyBlockTable).
	propertyHdrSize         = 3 // PropertyID(1) ValueType(1) Size(1)
	propertyBlockHeaderSize = 2 // EntryCount(2), per block
	propertyBlockTableCountSize = 2
)

// ElementRecord is a flattened, offset-assigned element ready for binary
// emission. Mirrors the teacher's Element-with-AbsoluteOffset/
// CalculatedSize fields (writer.go's calculateOffsetsAndSizes), generalized
// over a *ResolvedElement tree instead of the teacher's flat Elements slice
// with parent indices baked in by the parser.
type ElementRecord struct {
	*ResolvedElement
	AbsoluteOffset      uint32
	CalculatedSize      uint32
	ChildRecords        []*ElementRecord
	IDIndex             uint16
	EventHandlerIndices []uint16 // string-table indices, parallel to ResolvedElement.Events
	PropertyBlockIndex  uint16   // index into the property-block table for this element's own properties
	PseudoBlockIndices  map[string]uint16 // pseudo-state -> property-block index
}

// StyleRecord pairs a StyleDef with its string-table name index and
// computed size.
type StyleRecord struct {
	*StyleDef
	NameIndex          uint16
	CalculatedSize     uint32
	PropertyBlockIndex uint16
	PseudoBlockIndices map[string]uint16
}

// ComponentRecord is a component definition's introspection record: its
// name and typed property schema, retained after expansion purely for
// tooling (editors, debuggers) since every instance has already been
// expanded away by the Component Resolver.
type ComponentRecord struct {
	Name           string
	NameIndex      uint16
	Properties     []ComponentPropertyNode
	CalculatedSize uint32
}

// ScriptRecordSized pairs a ScriptRecord with its computed size.
type ScriptRecordSized struct {
	ScriptRecord
	CalculatedSize uint32
}

// ResourceRecordSized pairs a ResourceEntry with its computed size.
type ResourceRecordSized struct {
	ResourceEntry
	CalculatedSize uint32
}

// LayoutPlan is the Size Calculator's complete output: every section's
// starting offset plus every record's own offset/size, so the Code
// Generator never has to backpatch (spec 9's "no stage reads from a later
// stage" discipline extended to "no backpatching either").
type LayoutPlan struct {
	HeaderFlags uint16

	StringOffset        uint32
	StringSize          uint32
	StyleOffset         uint32
	StyleSize           uint32
	ComponentOffset     uint32
	ComponentSize       uint32
	ElementOffset       uint32
	ElementSize         uint32
	PropertyBlockOffset uint32
	PropertyBlockSize   uint32
	ScriptOffset        uint32
	ScriptSize          uint32
	ResourceOffset      uint32
	ResourceSize        uint32

	Root           *ElementRecord
	ElementsFlat   []*ElementRecord // pre-order, for sequential emission
	Styles         []*StyleRecord
	Components     []*ComponentRecord
	Scripts        []*ScriptRecordSized
	Resources      []*ResourceRecordSized
	Strings        []string
	PropertyBlocks []PropertyBlock

	TotalSize uint32
}

// CalculateLayout is the Size Calculator entry point (spec 4.9): a
// single deterministic pass assigning every section and record its final
// offset and byte size, generalizing the teacher's calculateOffsetsAndSizes
// (writer.go) to the component and script tables this expansion adds.
// level gates whether the property-block table built along the way
// actually dedupes (opt-level >= 1) or gives every property set its own
// block (opt-level 0), per testable property D.
func CalculateLayout(root *ResolvedElement, styles []*StyleDef, components []*ComponentDef, scripts []ScriptRecord, resources []ResourceEntry, st *StringTable, hasStateProps bool, level OptimizationLevel) (*LayoutPlan, error) {
	plan := &LayoutPlan{}
	if hasStateProps {
		plan.HeaderFlags |= FlagHasStateProperties
	}
	if len(scripts) > 0 {
		plan.HeaderFlags |= FlagHasScripts
	}
	if len(components) > 0 {
		plan.HeaderFlags |= FlagHasComponents
	}
	if len(resources) > 0 {
		plan.HeaderFlags |= FlagHasResources
	}

	offset := uint32(KRBHeaderSize)

	// --- Strings (spec 6.1, "String Table Entry"): count(2) + per-entry
	// length(2)+bytes. Index 0's reserved "" entry is still emitted so
	// reader-side indices line up 1:1 with StringTable.Entries().
	plan.StringOffset = offset
	entries := st.Entries()
	strSize := uint32(2)
	for _, s := range entries {
		if len(s) > math.MaxUint16 {
			return nil, &CodegenError{Reason: fmt.Sprintf("string %q exceeds maximum length %d", s[:32]+"...", math.MaxUint16)}
		}
		strSize += 2 + uint32(len(s))
	}
	plan.StringSize = strSize
	plan.Strings = entries
	offset += strSize

	// --- Property-block table (spec 6.1 item 6): built alongside styles
	// and elements below, since both reference it by index rather than
	// carrying properties inline. Sharing (opt-level >= 1) is what makes
	// testable property D hold: two identical property sets collapse to
	// one block instead of merely being counted as identical.
	blocks := NewPropertyBlockTable(level >= OptBasic)

	// --- Styles.
	plan.StyleOffset = offset
	var styleSize uint32
	for _, s := range styles {
		nameIdx, err := st.Add(s.Name)
		if err != nil {
			return nil, err
		}
		blockIdx, err := blocks.Intern(s.Properties)
		if err != nil {
			return nil, err
		}
		sz := uint32(styleHeaderSize) + stylePseudoCountSize
		pseudoIdx := make(map[string]uint16, len(s.Pseudo))
		for state, props := range s.Pseudo {
			idx, err := blocks.Intern(props)
			if err != nil {
				return nil, err
			}
			pseudoIdx[state] = idx
			sz += pseudoRefSize
		}
		rec := &StyleRecord{StyleDef: s, NameIndex: nameIdx, CalculatedSize: sz, PropertyBlockIndex: blockIdx, PseudoBlockIndices: pseudoIdx}
		plan.Styles = append(plan.Styles, rec)
		styleSize += sz
	}
	plan.StyleSize = styleSize
	offset += styleSize

	// --- Components (introspection only; see ComponentRecord doc).
	plan.ComponentOffset = offset
	var compSize uint32
	for _, c := range components {
		nameIdx, err := st.Add(c.Name)
		if err != nil {
			return nil, err
		}
		sz := uint32(componentHeaderSize) + 1 // +1 for property-schema count
		for _, pd := range c.Properties {
			if _, err := st.Add(pd.Name); err != nil {
				return nil, err
			}
			sz += componentPropRecSize
		}
		rec := &ComponentRecord{Name: c.Name, NameIndex: nameIdx, Properties: c.Properties, CalculatedSize: sz}
		plan.Components = append(plan.Components, rec)
		compSize += sz
	}
	plan.ComponentSize = compSize
	offset += compSize

	// --- Elements: flatten the tree pre-order, computing each record's
	// size before we know absolute offsets (sizes don't depend on
	// position), then assign offsets in the same walk order.
	plan.ElementOffset = offset
	elemRoot, flat, err := flattenElement(root, st, blocks)
	if err != nil {
		return nil, err
	}
	var elemSize uint32
	for _, rec := range flat {
		elemSize += rec.CalculatedSize
	}
	cur := offset
	for _, rec := range flat {
		rec.AbsoluteOffset = cur
		cur += rec.CalculatedSize
	}
	plan.ElementSize = elemSize
	plan.Root = elemRoot
	plan.ElementsFlat = flat
	offset += elemSize

	// --- Property blocks: count(2), then per block entry-count(2) plus
	// each entry's PropertyID(1) ValueType(1) Size(1) bytes. Every style
	// and element above has already interned its properties into blocks,
	// so this table is now complete.
	plan.PropertyBlockOffset = offset
	blockList := blocks.Blocks()
	blockSize := uint32(propertyBlockTableCountSize)
	for _, b := range blockList {
		blockSize += propertyBlockHeaderSize
		for _, p := range b.Properties {
			blockSize += propertyHdrSize + uint32(p.Size)
		}
	}
	plan.PropertyBlockSize = blockSize
	plan.PropertyBlocks = blockList
	offset += blockSize

	// --- Scripts.
	plan.ScriptOffset = offset
	var scriptSize uint32
	for _, s := range scripts {
		sz := uint32(scriptHeaderSize) + 1 // +1 entry-point count
		sz += uint32(len(s.EntryPoints)) * 2
		if s.Storage == ScriptStorageInline {
			sz += 4 + uint32(len(s.Code)) // code length(4) + bytes
		} else {
			sz += 2 // resource index
		}
		plan.Scripts = append(plan.Scripts, &ScriptRecordSized{ScriptRecord: s, CalculatedSize: sz})
		scriptSize += sz
	}
	plan.ScriptSize = scriptSize
	offset += scriptSize

	// --- Resources.
	plan.ResourceOffset = offset
	var resSize uint32
	for _, r := range resources {
		sz := uint32(resourceRecSizeBase)
		if r.HasChecksum {
			sz += 16
		}
		plan.Resources = append(plan.Resources, &ResourceRecordSized{ResourceEntry: r, CalculatedSize: sz})
		resSize += sz
	}
	plan.ResourceSize = resSize
	offset += resSize

	plan.TotalSize = offset
	return plan, nil
}

// flattenElement walks el pre-order, computing each node's own size
// (independent of position) and returning the root record plus the full
// pre-order slice for sequential emission. Child relative offsets are
// filled in by the Code Generator once absolute offsets are known (it only
// needs arithmetic, no further lookups, keeping the two-pass "no
// backpatching" discipline the teacher's writer.go follows).
func flattenElement(el *ResolvedElement, st *StringTable, blocks *PropertyBlockTable) (*ElementRecord, []*ElementRecord, error) {
	var idIdx uint16
	if el.ID != "" {
		idx, err := st.Add(el.ID)
		if err != nil {
			return nil, nil, err
		}
		idIdx = idx
	}
	if el.CustomName != "" {
		if _, err := st.Add(el.CustomName); err != nil {
			return nil, nil, err
		}
	}
	handlerIdx := make([]uint16, 0, len(el.Events))
	for _, ev := range el.Events {
		idx, err := st.Add(ev.Handler)
		if err != nil {
			return nil, nil, err
		}
		handlerIdx = append(handlerIdx, idx)
	}

	blockIdx, err := blocks.Intern(el.Properties)
	if err != nil {
		return nil, nil, err
	}
	pseudoIdx := make(map[string]uint16, len(el.Pseudo))
	for state, props := range el.Pseudo {
		idx, err := blocks.Intern(props)
		if err != nil {
			return nil, nil, err
		}
		pseudoIdx[state] = idx
	}

	rec := &ElementRecord{ResolvedElement: el, IDIndex: idIdx, EventHandlerIndices: handlerIdx, PropertyBlockIndex: blockIdx, PseudoBlockIndices: pseudoIdx}
	sz := uint32(elementHeaderSize)
	sz += uint32(len(el.Pseudo)) * pseudoRefSize
	sz += uint32(len(el.Events)) * eventRecSize
	sz += uint32(len(el.Children)) * childRefSize
	if sz > math.MaxUint32 {
		return nil, nil, &CodegenError{Reason: fmt.Sprintf("element %q exceeds maximum representable size", el.ID)}
	}
	if len(el.Properties) > MaxPropertyIndex {
		return nil, nil, &CodegenError{Reason: "element property count exceeds the maximum index width"}
	}

	flat := []*ElementRecord{rec}
	for _, child := range el.Children {
		childRec, childFlat, err := flattenElement(child, st, blocks)
		if err != nil {
			return nil, nil, err
		}
		rec.ChildRecords = append(rec.ChildRecords, childRec)
		flat = append(flat, childFlat...)
	}
	rec.CalculatedSize = sz
	return rec, flat, nil
}

func pseudoStateTag(state string) uint8 {
	for i, s := range PseudoStates {
		if s == state {
			return uint8(i)
		}
	}
	return 0xFF
}
