package compiler

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteKRB serializes plan to w as a complete KRB v1 binary artifact (spec
// 6.1) in one buffered pass, following the teacher's buffered-writer shape
// (writer.go's writeKrbFile) without its post-write size verification:
// every offset comes from plan. Targets the 72-byte header and
// eight-section-descriptor layout this expansion's wire format uses
// instead of the teacher's own 42-byte KRB v0.4 header.
func WriteKRB(w io.Writer, plan *LayoutPlan) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(KRBMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := writeU8(bw, KRBVersionMajor); err != nil {
		return err
	}
	if err := writeU8(bw, KRBVersionMinor); err != nil {
		return err
	}
	if err := writeU16(bw, plan.HeaderFlags); err != nil {
		return err
	}

	descriptors := [KRBSectionCount][2]uint32{
		SectionHeader:         {0, KRBHeaderSize},
		SectionStrings:        {plan.StringOffset, plan.StringSize},
		SectionStyles:         {plan.StyleOffset, plan.StyleSize},
		SectionComponents:     {plan.ComponentOffset, plan.ComponentSize},
		SectionElements:       {plan.ElementOffset, plan.ElementSize},
		SectionPropertyBlocks: {plan.PropertyBlockOffset, plan.PropertyBlockSize},
		SectionScripts:        {plan.ScriptOffset, plan.ScriptSize},
		SectionResources:      {plan.ResourceOffset, plan.ResourceSize},
	}
	for i := uint8(0); i < KRBSectionCount; i++ {
		if err := writeU32(bw, descriptors[i][0]); err != nil {
			return err
		}
		if err := writeU32(bw, descriptors[i][1]); err != nil {
			return err
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush header: %w", err)
	}

	if err := writeStringSection(bw, plan.Strings); err != nil {
		return err
	}
	if err := writeStyleSection(bw, plan.Styles); err != nil {
		return err
	}
	if err := writeComponentSection(bw, plan.Components); err != nil {
		return err
	}
	if err := writeElementSection(bw, plan.ElementsFlat); err != nil {
		return err
	}
	if err := writePropertyBlockSection(bw, plan.PropertyBlocks); err != nil {
		return err
	}
	if err := writeScriptSection(bw, plan.Scripts); err != nil {
		return err
	}
	if err := writeResourceSection(bw, plan.Resources); err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

func writeStringSection(w *bufio.Writer, strs []string) error {
	if err := writeU16(w, uint16(len(strs))); err != nil {
		return err
	}
	for i, s := range strs {
		if err := writeU16(w, uint16(len(s))); err != nil {
			return fmt.Errorf("string %d length: %w", i, err)
		}
		if _, err := w.WriteString(s); err != nil {
			return fmt.Errorf("string %d data: %w", i, err)
		}
	}
	return nil
}

func writeStyleSection(w *bufio.Writer, styles []*StyleRecord) error {
	for _, s := range styles {
		if err := writeU8(w, s.ID); err != nil {
			return err
		}
		if err := writeU16(w, s.NameIndex); err != nil {
			return err
		}
		if err := writeU16(w, s.PropertyBlockIndex); err != nil {
			return err
		}
		if err := writeU8(w, uint8(len(s.Pseudo))); err != nil {
			return err
		}
		if err := writePseudoRefs(w, s.PseudoBlockIndices); err != nil {
			return fmt.Errorf("style %q pseudo: %w", s.Name, err)
		}
	}
	return nil
}

func writeComponentSection(w *bufio.Writer, comps []*ComponentRecord) error {
	for _, c := range comps {
		if err := writeU16(w, c.NameIndex); err != nil {
			return err
		}
		if err := writeU8(w, uint8(len(c.Properties))); err != nil {
			return err
		}
		for _, pd := range c.Properties {
			// Name index was interned during size calculation but not kept
			// on ComponentPropertyNode; re-add is a no-op dedup lookup.
			// (StringTable.Add is idempotent for an existing entry.)
			flags := uint8(0)
			if pd.Required {
				flags |= 1
			}
			if pd.HasDefault {
				flags |= 2
			}
			if err := writeU8(w, typeTagByte(pd.TypeTag)); err != nil {
				return err
			}
			if err := writeU8(w, flags); err != nil {
				return err
			}
		}
	}
	return nil
}

func typeTagByte(tag string) uint8 {
	switch tag {
	case "Int":
		return 1
	case "Float":
		return 2
	case "Bool":
		return 3
	case "Color":
		return 4
	case "Size":
		return 5
	default:
		return 0 // String
	}
}

func writeElementSection(w *bufio.Writer, flat []*ElementRecord) error {
	for _, rec := range flat {
		if err := writeU8(w, rec.Type); err != nil {
			return err
		}
		if err := writeU16(w, rec.IDIndex); err != nil {
			return err
		}
		if err := writeU8(w, rec.StyleID); err != nil {
			return err
		}
		if err := writeU8(w, rec.LayoutFlags); err != nil {
			return err
		}
		if err := writeU16(w, rec.PropertyBlockIndex); err != nil {
			return err
		}
		if err := writeU8(w, uint8(len(rec.Pseudo))); err != nil {
			return err
		}
		if err := writeU8(w, uint8(len(rec.Events))); err != nil {
			return err
		}
		if err := writeU16(w, uint16(len(rec.ChildRecords))); err != nil {
			return err
		}

		if err := writePseudoRefs(w, rec.PseudoBlockIndices); err != nil {
			return fmt.Errorf("element %q pseudo: %w", rec.ID, err)
		}
		for i, ev := range rec.Events {
			if err := writeU8(w, ev.Type); err != nil {
				return err
			}
			if err := writeU16(w, rec.EventHandlerIndices[i]); err != nil {
				return err
			}
		}

		for _, child := range rec.ChildRecords {
			rel := int64(child.AbsoluteOffset) - int64(rec.AbsoluteOffset)
			if rel <= 0 {
				return &CodegenError{Reason: fmt.Sprintf("element %q: non-positive child relative offset %d", rec.ID, rel)}
			}
			if err := writeU32(w, uint32(rel)); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeScriptSection(w *bufio.Writer, scripts []*ScriptRecordSized) error {
	for _, s := range scripts {
		if err := writeU8(w, s.Language); err != nil {
			return err
		}
		if err := writeU16(w, s.NameIndex); err != nil {
			return err
		}
		if err := writeU8(w, s.Storage); err != nil {
			return err
		}
		if err := writeU8(w, uint8(len(s.EntryPoints))); err != nil {
			return err
		}
		for _, ep := range s.EntryPoints {
			if err := writeU16(w, ep); err != nil {
				return err
			}
		}
		if s.Storage == ScriptStorageInline {
			if err := writeU32(w, uint32(len(s.Code))); err != nil {
				return err
			}
			if _, err := w.Write(s.Code); err != nil {
				return fmt.Errorf("script (name index %d) code: %w", s.NameIndex, err)
			}
		} else {
			if err := writeU16(w, s.ResourceIdx); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeResourceSection(w *bufio.Writer, resources []*ResourceRecordSized) error {
	for _, r := range resources {
		if err := writeU8(w, r.Type); err != nil {
			return err
		}
		if err := writeU8(w, r.Format); err != nil {
			return err
		}
		if err := writeU16(w, r.PathIndex); err != nil {
			return err
		}
		present := uint8(0)
		if r.HasChecksum {
			present = 1
		}
		if err := writeU8(w, present); err != nil {
			return err
		}
		if r.HasChecksum {
			if _, err := w.Write(r.Checksum[:]); err != nil {
				return fmt.Errorf("resource checksum: %w", err)
			}
		}
	}
	return nil
}

func writeProperties(w *bufio.Writer, props []KrbProperty) error {
	for _, p := range props {
		if err := writeU8(w, p.PropertyID); err != nil {
			return err
		}
		if err := writeU8(w, p.ValueType); err != nil {
			return err
		}
		if err := writeU8(w, p.Size); err != nil {
			return err
		}
		if p.Size > 0 {
			n, err := w.Write(p.Data)
			if err != nil {
				return err
			}
			if n != int(p.Size) {
				return &CodegenError{Reason: "short property value write"}
			}
		}
	}
	return nil
}

// writePseudoRefs writes each present pseudo-state's property-block
// reference (StateTag(1) PropertyBlockIndex(2)), in PseudoStates order so
// output is deterministic across map iteration.
func writePseudoRefs(w *bufio.Writer, pseudoIdx map[string]uint16) error {
	for _, state := range PseudoStates {
		idx, ok := pseudoIdx[state]
		if !ok {
			continue
		}
		if err := writeU8(w, pseudoStateTag(state)); err != nil {
			return err
		}
		if err := writeU16(w, idx); err != nil {
			return err
		}
	}
	return nil
}

// writePropertyBlockSection emits the property-block table (spec 6.1
// item 6): count(2), then per block entry-count(2) and the block's
// properties in the same (id, type, length, value) shape writeProperties
// already uses inline — the only difference from the teacher's per-
// element inline properties is that a block is written once here and
// referenced by index everywhere else.
func writePropertyBlockSection(w *bufio.Writer, blocks []PropertyBlock) error {
	if err := writeU16(w, uint16(len(blocks))); err != nil {
		return err
	}
	for i, b := range blocks {
		if err := writeU16(w, uint16(len(b.Properties))); err != nil {
			return err
		}
		if err := writeProperties(w, b.Properties); err != nil {
			return fmt.Errorf("property block %d: %w", i, err)
		}
	}
	return nil
}

func writeU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}
