package compiler

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// KrbProperty is one resolved (property-id, value-type, bytes) triple (spec
// 3, "Property Block"). Both the Style Resolver and the Semantic Analyzer
// compile textual KRY properties into these through CompileProperties, so
// the two stages share one conversion table instead of the teacher's
// near-duplicate switch statements in style_resolver.go and resolver.go.
type KrbProperty struct {
	PropertyID uint8
	ValueType  uint8
	Size       uint8
	Data       []byte
}

// StringTable is the Code Generator's deduplicated string pool (spec 3,
// "String Table Entry"): equal strings share one index. Index 0 is
// reserved as the "none" sentinel (spec 6.1: "All indices that appear in
// the body are u16 (0 is reserved as 'none')"), so real entries start at 1.
type StringTable struct {
	values []string // values[0] is the reserved "" none slot
	index  map[string]uint16
}

func NewStringTable() *StringTable {
	return &StringTable{values: []string{""}, index: map[string]uint16{"": 0}}
}

// Add returns the deduplicated index for s, inserting it if new.
func (st *StringTable) Add(s string) (uint16, error) {
	if idx, ok := st.index[s]; ok {
		return idx, nil
	}
	if len(st.values) > MaxStringIndex {
		return 0, fmt.Errorf("string table exceeds maximum index %d", MaxStringIndex)
	}
	idx := uint16(len(st.values))
	st.values = append(st.values, s)
	st.index[s] = idx
	return idx, nil
}

// Entries returns the table in index order, including the reserved slot 0.
func (st *StringTable) Entries() []string { return st.values }

func (st *StringTable) Len() int { return len(st.values) }

// CompileProperties converts a flat list of KRY property nodes into
// deduplicated KrbProperty values, keyed and merged by PropertyID the same
// way the teacher's resolveSingleStyle does ("overwrite if it exists, add
// if new"), so a later property with the same id wins. Edge-inset sugar
// keys (padding_top/_right/_bottom/_left, same for margin) are grouped
// into one ValTypeEdgeInsets property before the scalar switch runs,
// generalizing the teacher's uniform-only `padding: N` handling to
// independently-set sides (spec 4.6, "padding: { top: .. right: .. }").
//
// A key that matches none of compileScalarProperty's cases does not fail
// the compile: it is collected as a SemErrUnknownProperty warning (spec
// 4.7, "downgradable to warning at lower strictness levels") against
// file, since nothing in Options currently exposes a strictness knob to
// raise it to a hard error instead.
func CompileProperties(props []PropertyNode, st *StringTable, res *ResourceTable, file string) ([]KrbProperty, []uint8, []Warning, error) {
	merged := make(map[uint8]KrbProperty)
	order := make([]uint8, 0, len(props))
	var warnings []Warning
	remember := func(id uint8, p KrbProperty) {
		if _, exists := merged[id]; !exists {
			order = append(order, id)
		}
		merged[id] = p
	}

	grouped, rest := groupEdgeInsets(props)
	for _, g := range grouped {
		id, p, err := compileEdgeInsetGroup(g)
		if err != nil {
			return nil, nil, nil, err
		}
		remember(id, p)
	}

	for _, pr := range rest {
		id, p, handled, err := compileScalarProperty(pr.Key, pr.ValueStr, pr.Line, st, res)
		if err != nil {
			return nil, nil, nil, err
		}
		if !handled {
			se := &SemanticError{Kind: SemErrUnknownProperty, Pos: Pos{File: file, Line: pr.Line}, Name: pr.Key, Warning: true}
			warnings = append(warnings, Warning{Pos: se.Pos, Message: se.Error()})
			continue
		}
		remember(id, p)
	}

	out := make([]KrbProperty, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out, order, warnings, nil
}

type edgeInsetGroup struct {
	base                            string
	propID                          uint8
	top, right, bottom, left        string
	haveT, haveR, haveB, haveL      bool
	line                            int
}

var edgeInsetBases = map[string]uint8{
	"padding": PropIDPadding,
	"margin":  PropIDMargin,
}

// groupEdgeInsets pulls padding_top/_right/_bottom/_left (and margin_*)
// keys — produced by the Parser's edge-inset sugar expansion — out of the
// property list and collects them per base name, returning the untouched
// remainder for the ordinary scalar switch.
func groupEdgeInsets(props []PropertyNode) ([]*edgeInsetGroup, []PropertyNode) {
	groups := map[string]*edgeInsetGroup{}
	var order []string
	var rest []PropertyNode

	for _, p := range props {
		base, side, isSide := splitEdgeSide(p.Key)
		propID, isBase := edgeInsetBases[p.Key]
		switch {
		case isSide:
			if _, ok := edgeInsetBases[base]; !ok {
				rest = append(rest, p)
				continue
			}
			g, ok := groups[base]
			if !ok {
				g = &edgeInsetGroup{base: base, propID: edgeInsetBases[base], line: p.Line}
				groups[base] = g
				order = append(order, base)
			}
			switch side {
			case "top":
				g.top, g.haveT = p.ValueStr, true
			case "right":
				g.right, g.haveR = p.ValueStr, true
			case "bottom":
				g.bottom, g.haveB = p.ValueStr, true
			case "left":
				g.left, g.haveL = p.ValueStr, true
			}
		case isBase:
			g, ok := groups[p.Key]
			if !ok {
				g = &edgeInsetGroup{base: p.Key, propID: propID, line: p.Line}
				groups[p.Key] = g
				order = append(order, p.Key)
			}
			// A bare `padding: N` sets all four sides; later explicit
			// per-side keys (processed above in declaration order) still
			// override it since PropertyNode order is preserved.
			g.top, g.right, g.bottom, g.left = p.ValueStr, p.ValueStr, p.ValueStr, p.ValueStr
			g.haveT, g.haveR, g.haveB, g.haveL = true, true, true, true
		default:
			rest = append(rest, p)
		}
	}

	out := make([]*edgeInsetGroup, 0, len(order))
	for _, b := range order {
		out = append(out, groups[b])
	}
	return out, rest
}

func splitEdgeSide(key string) (base, side string, ok bool) {
	for _, s := range [...]string{"top", "right", "bottom", "left"} {
		suffix := "_" + s
		if strings.HasSuffix(key, suffix) && len(key) > len(suffix) {
			return key[:len(key)-len(suffix)], s, true
		}
	}
	return "", "", false
}

func compileEdgeInsetGroup(g *edgeInsetGroup) (uint8, KrbProperty, error) {
	parseSide := func(raw string, have bool) (uint8, error) {
		if !have {
			return 0, nil
		}
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 8)
		if err != nil {
			return 0, fmt.Errorf("L%d: invalid edge-inset value %q for %q: %w", g.line, raw, g.base, err)
		}
		return uint8(n), nil
	}
	t, err := parseSide(g.top, g.haveT)
	if err != nil {
		return 0, KrbProperty{}, err
	}
	r, err := parseSide(g.right, g.haveR)
	if err != nil {
		return 0, KrbProperty{}, err
	}
	b, err := parseSide(g.bottom, g.haveB)
	if err != nil {
		return 0, KrbProperty{}, err
	}
	l, err := parseSide(g.left, g.haveL)
	if err != nil {
		return 0, KrbProperty{}, err
	}
	return g.propID, KrbProperty{PropertyID: g.propID, ValueType: ValTypeEdgeInsets, Size: 4, Data: []byte{t, r, b, l}}, nil
}

// compileScalarProperty converts one KRY key/value pair into a KrbProperty,
// generalizing the teacher's resolveSingleStyle switch (style_resolver.go)
// to a standalone function usable by both the Style Resolver and the
// Semantic Analyzer's direct-element-property pass.
func compileScalarProperty(key, valStr string, line int, st *StringTable, res *ResourceTable) (uint8, KrbProperty, bool, error) {
	val := strings.TrimSpace(valStr)

	u8 := func(id uint8, valType uint8) (KrbProperty, error) {
		n, err := strconv.ParseUint(stripUnit(val), 10, 8)
		if err != nil {
			return KrbProperty{}, fmt.Errorf("L%d: invalid byte value %q for %q: %w", line, val, key, err)
		}
		return KrbProperty{PropertyID: id, ValueType: valType, Size: 1, Data: []byte{uint8(n)}}, nil
	}
	u16 := func(id uint8) (KrbProperty, error) {
		n, err := strconv.ParseUint(stripUnit(val), 10, 16)
		if err != nil {
			return KrbProperty{}, fmt.Errorf("L%d: invalid 16-bit value %q for %q: %w", line, val, key, err)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(n))
		return KrbProperty{PropertyID: id, ValueType: ValTypeShort, Size: 2, Data: buf}, nil
	}
	color := func(id uint8) (KrbProperty, error) {
		c, ok := parseColorLiteral(val)
		if !ok {
			return KrbProperty{}, fmt.Errorf("L%d: invalid color literal %q for %q", line, val, key)
		}
		return KrbProperty{PropertyID: id, ValueType: ValTypeColor, Size: 4, Data: c[:]}, nil
	}
	str := func(id uint8) (KrbProperty, error) {
		idx, err := st.Add(val)
		if err != nil {
			return KrbProperty{}, fmt.Errorf("L%d: %w", line, err)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, idx)
		return KrbProperty{PropertyID: id, ValueType: ValTypeString, Size: 2, Data: buf}, nil
	}
	resource := func(id uint8, resType uint8) (KrbProperty, error) {
		if res == nil {
			return str(id)
		}
		idx, err := res.Add(resType, val)
		if err != nil {
			return KrbProperty{}, fmt.Errorf("L%d: failed adding resource for %q: %w", line, key, err)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, idx)
		return KrbProperty{PropertyID: id, ValueType: ValTypeResource, Size: 2, Data: buf}, nil
	}
	boolProp := func(id uint8, trueWords, falseWords []string) (KrbProperty, error) {
		lower := strings.ToLower(val)
		for _, w := range trueWords {
			if lower == w {
				return KrbProperty{PropertyID: id, ValueType: ValTypeByte, Size: 1, Data: []byte{1}}, nil
			}
		}
		for _, w := range falseWords {
			if lower == w {
				return KrbProperty{PropertyID: id, ValueType: ValTypeByte, Size: 1, Data: []byte{0}}, nil
			}
		}
		return KrbProperty{}, fmt.Errorf("L%d: invalid boolean %q for %q", line, val, key)
	}

	var p KrbProperty
	var err error
	id := PropIDInvalid
	handled := true

	switch key {
	case "background_color":
		id = PropIDBgColor
		p, err = color(id)
	case "text_color", "foreground_color":
		id = PropIDFgColor
		p, err = color(id)
	case "border_color":
		id = PropIDBorderColor
		p, err = color(id)
	case "border_width":
		id = PropIDBorderWidth
		p, err = u8(id, ValTypeByte)
	case "border_radius":
		id = PropIDBorderRadius
		p, err = u8(id, ValTypeByte)
	case "padding":
		id = PropIDPadding
		n, e := strconv.ParseUint(stripUnit(val), 10, 8)
		if e != nil {
			err = fmt.Errorf("L%d: invalid uniform padding %q: %w", line, val, e)
		} else {
			b := uint8(n)
			p = KrbProperty{PropertyID: id, ValueType: ValTypeEdgeInsets, Size: 4, Data: []byte{b, b, b, b}}
		}
	case "margin":
		id = PropIDMargin
		n, e := strconv.ParseUint(stripUnit(val), 10, 8)
		if e != nil {
			err = fmt.Errorf("L%d: invalid uniform margin %q: %w", line, val, e)
		} else {
			b := uint8(n)
			p = KrbProperty{PropertyID: id, ValueType: ValTypeEdgeInsets, Size: 4, Data: []byte{b, b, b, b}}
		}
	case "text", "content":
		id = PropIDTextContent
		p, err = str(id)
	case "font_size":
		id = PropIDFontSize
		p, err = u16(id)
	case "font_weight":
		weight := uint8(0)
		switch strings.ToLower(val) {
		case "bold", "700":
			weight = 1
		case "normal", "400", "":
			weight = 0
		default:
			err = fmt.Errorf("L%d: invalid font_weight %q", line, val)
		}
		if err == nil {
			id = PropIDFontWeight
			p = KrbProperty{PropertyID: id, ValueType: ValTypeEnum, Size: 1, Data: []byte{weight}}
		}
	case "text_alignment":
		align := uint8(0)
		switch val {
		case "center", "centre":
			align = 1
		case "right", "end":
			align = 2
		case "left", "start", "":
			align = 0
		default:
			err = fmt.Errorf("L%d: invalid text_alignment %q", line, val)
		}
		if err == nil {
			id = PropIDTextAlignment
			p = KrbProperty{PropertyID: id, ValueType: ValTypeEnum, Size: 1, Data: []byte{align}}
		}
	case "layout":
		id = PropIDLayoutFlags
		p = KrbProperty{PropertyID: id, ValueType: ValTypeByte, Size: 1, Data: []byte{ParseLayoutString(val)}}
	case "gap":
		id = PropIDGap
		p, err = u16(id)
	case "overflow":
		ovf := uint8(0)
		switch val {
		case "visible", "":
			ovf = 0
		case "hidden":
			ovf = 1
		case "scroll":
			ovf = 2
		default:
			err = fmt.Errorf("L%d: invalid overflow %q", line, val)
		}
		if err == nil {
			id = PropIDOverflow
			p = KrbProperty{PropertyID: id, ValueType: ValTypeEnum, Size: 1, Data: []byte{ovf}}
		}
	case "width":
		id = PropIDMaxWidth
		p, err = u16(id)
	case "height":
		id = PropIDMaxHeight
		p, err = u16(id)
	case "min_width":
		id = PropIDMinWidth
		p, err = u16(id)
	case "min_height":
		id = PropIDMinHeight
		p, err = u16(id)
	case "aspect_ratio":
		f, e := strconv.ParseFloat(val, 64)
		if e != nil || f < 0 {
			err = fmt.Errorf("L%d: invalid positive aspect_ratio %q", line, val)
		} else {
			id = PropIDAspectRatio
			fixed := uint16(f * 256.0)
			buf := make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, fixed)
			p = KrbProperty{PropertyID: id, ValueType: ValTypePercentage, Size: 2, Data: buf}
		}
	case "opacity":
		id = PropIDOpacity
		p, err = u8(id, ValTypeByte)
	case "visibility", "visible":
		id = PropIDVisibility
		p, err = boolProp(id, []string{"true", "visible", "1"}, []string{"false", "hidden", "0"})
	case "z_index":
		id = PropIDZindex
		p, err = u16(id)
	case "transform":
		id = PropIDTransform
		p, err = str(id)
	case "shadow":
		id = PropIDShadow
		p, err = str(id)
	case "cursor":
		id = PropIDCursor
		p, err = str(id)
	case "image_source", "source":
		id = PropIDImageSource
		p, err = resource(id, resourceTypeFromExt(val))
	case "window_width":
		id = PropIDWindowWidth
		p, err = u16(id)
	case "window_height":
		id = PropIDWindowHeight
		p, err = u16(id)
	case "window_title", "title":
		id = PropIDWindowTitle
		p, err = str(id)
	case "resizable":
		id = PropIDResizable
		p, err = boolProp(id, []string{"true", "1"}, []string{"false", "0"})
	case "keep_aspect":
		id = PropIDKeepAspect
		p, err = boolProp(id, []string{"true", "1"}, []string{"false", "0"})
	case "scale_factor":
		f, e := strconv.ParseFloat(val, 64)
		if e != nil || f <= 0 {
			err = fmt.Errorf("L%d: invalid positive scale_factor %q", line, val)
		} else {
			id = PropIDScaleFactor
			fixed := uint16(f * 256.0)
			buf := make([]byte, 2)
			binary.LittleEndian.PutUint16(buf, fixed)
			p = KrbProperty{PropertyID: id, ValueType: ValTypePercentage, Size: 2, Data: buf}
		}
	case "icon":
		id = PropIDIcon
		p, err = resource(id, ResTypeImage)
	case "version":
		id = PropIDVersion
		p, err = str(id)
	case "author":
		id = PropIDAuthor
		p, err = str(id)
	default:
		handled = false
	}

	if err != nil {
		return 0, KrbProperty{}, false, err
	}
	return id, p, handled, nil
}

func stripUnit(s string) string {
	s = strings.TrimSuffix(s, "px")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSuffix(s, "em")
	return s
}

// parseColorLiteral converts `#RGB`/`#RGBA`/`#RRGGBB`/`#RRGGBBAA` into
// RGBA bytes, ported from the teacher's parseColor (utils.go).
func parseColorLiteral(s string) ([4]uint8, bool) {
	var c [4]uint8
	c[3] = 255
	if !strings.HasPrefix(s, "#") {
		return c, false
	}
	hexStr := s[1:]
	var r, g, b, a uint64
	var err error
	switch len(hexStr) {
	case 8:
		_, err = fmt.Sscanf(hexStr, "%02x%02x%02x%02x", &r, &g, &b, &a)
		if err == nil {
			return [4]uint8{uint8(r), uint8(g), uint8(b), uint8(a)}, true
		}
	case 6:
		_, err = fmt.Sscanf(hexStr, "%02x%02x%02x", &r, &g, &b)
		if err == nil {
			return [4]uint8{uint8(r), uint8(g), uint8(b), 255}, true
		}
	case 4:
		_, err = fmt.Sscanf(hexStr, "%1x%1x%1x%1x", &r, &g, &b, &a)
		if err == nil {
			return [4]uint8{uint8(r*16 + r), uint8(g*16 + g), uint8(b*16 + b), uint8(a*16 + a)}, true
		}
	case 3:
		_, err = fmt.Sscanf(hexStr, "%1x%1x%1x", &r, &g, &b)
		if err == nil {
			return [4]uint8{uint8(r*16 + r), uint8(g*16 + g), uint8(b*16 + b), 255}, true
		}
	}
	return c, false
}

// ParseLayoutString converts a space-separated layout string ("row center
// wrap grow") into the packed KRB layout-flag byte (spec glossary, "Layout
// flag byte"), ported from the teacher's parseLayoutString (utils.go).
func ParseLayoutString(layoutStr string) uint8 {
	var b uint8
	parts := strings.Fields(layoutStr)
	hasDir, hasAlign := false, false
	for _, part := range parts {
		switch part {
		case "row", "col", "column", "row_rev", "row-rev", "col_rev", "col-rev", "column-rev":
			hasDir = true
		case "start", "center", "centre", "end", "space_between", "space-between":
			hasAlign = true
		}
	}
	if !hasDir {
		b |= LayoutDirectionColumn
	}
	if !hasAlign {
		b |= LayoutAlignmentStart
	}
	for _, part := range parts {
		switch part {
		case "row":
			b = (b &^ LayoutDirectionMask) | LayoutDirectionRow
		case "col", "column":
			b = (b &^ LayoutDirectionMask) | LayoutDirectionColumn
		case "row_rev", "row-rev":
			b = (b &^ LayoutDirectionMask) | LayoutDirectionRowRev
		case "col_rev", "col-rev", "column-rev":
			b = (b &^ LayoutDirectionMask) | LayoutDirectionColRev
		case "start":
			b = (b &^ LayoutAlignmentMask) | LayoutAlignmentStart
		case "center", "centre":
			b = (b &^ LayoutAlignmentMask) | LayoutAlignmentCenter
		case "end":
			b = (b &^ LayoutAlignmentMask) | LayoutAlignmentEnd
		case "space_between", "space-between":
			b = (b &^ LayoutAlignmentMask) | LayoutAlignmentSpaceBtn
		case "wrap":
			b |= LayoutWrapBit
		case "grow":
			b |= LayoutGrowBit
		case "absolute":
			b |= LayoutAbsoluteBit
		}
	}
	return b
}
