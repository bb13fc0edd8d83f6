// Package compiler implements the KRY -> KRB compilation pipeline: lexing,
// preprocessing, parsing, variable/style/component resolution, semantic
// analysis, size calculation and code generation.
package compiler

// --- KRB v1.0 wire format constants (spec section 6.1) ---
const (
	KRBMagic        = "KRB1"
	KRBVersionMajor = 1
	KRBVersionMinor = 0

	// Fixed-size portion of the header: magic(4) + major(1) + minor(1) +
	// feature-flags(2) + 8 section descriptors of (u32 offset, u32 size).
	// The spec's prose figure of 64 bytes undercounts the eight listed
	// section descriptors; see DESIGN.md for the resolution of this
	// discrepancy. Header + 8 descriptors of 8 bytes = 8 + 64 = 72.
	KRBHeaderSize   = 72
	KRBSectionCount = 8
)

// Section indices, in the order emitted by the Code Generator (spec 4.10).
const (
	SectionHeader uint8 = iota
	SectionStrings
	SectionStyles
	SectionComponents
	SectionElements
	SectionPropertyBlocks
	SectionScripts
	SectionResources
)

// Header feature flags (spec 6.1).
const (
	FlagHasStateProperties uint16 = 1 << 0
	FlagCompressedStrings  uint16 = 1 << 1
	FlagHasScripts         uint16 = 1 << 2
	FlagHasComponents      uint16 = 1 << 3
	FlagHasResources       uint16 = 1 << 4
	FlagExtendedStringsU16 uint16 = 1 << 5
)

// Element type tags. The standard set is closed per spec 3; custom/component
// expansions resolve to one of these before code generation.
const (
	ElemTypeApp uint8 = iota
	ElemTypeContainer
	ElemTypeText
	ElemTypeButton
	ElemTypeInput
	ElemTypeImage
	ElemTypeCustomBase uint8 = 0x31
	ElemTypeUnknown    uint8 = 0xFF
)

// Property IDs. Grounded on the teacher's KRB v0.4 property table
// (waozixyz/kryc types.go), extended with original_source's renderer
// contract (core/properties.rs) for properties the teacher never emitted.
// Per spec 9's open question, the exact numeric contract belongs to the
// renderer; this table is our half of that coordination.
const (
	PropIDInvalid uint8 = 0x00
	PropIDBgColor uint8 = 0x01
	PropIDFgColor uint8 = 0x02
	PropIDBorderColor  uint8 = 0x03
	PropIDBorderWidth  uint8 = 0x04
	PropIDBorderRadius uint8 = 0x05
	PropIDPadding      uint8 = 0x06
	PropIDMargin       uint8 = 0x07
	PropIDTextContent  uint8 = 0x08
	PropIDFontSize     uint8 = 0x09
	PropIDFontWeight   uint8 = 0x0A
	PropIDTextAlignment uint8 = 0x0B
	PropIDImageSource  uint8 = 0x0C
	PropIDOpacity      uint8 = 0x0D
	PropIDZindex       uint8 = 0x0E
	PropIDVisibility   uint8 = 0x0F
	PropIDGap          uint8 = 0x10
	PropIDMinWidth     uint8 = 0x11
	PropIDMinHeight    uint8 = 0x12
	PropIDMaxWidth     uint8 = 0x13
	PropIDMaxHeight    uint8 = 0x14
	PropIDAspectRatio  uint8 = 0x15
	PropIDTransform    uint8 = 0x16
	PropIDShadow       uint8 = 0x17
	PropIDOverflow     uint8 = 0x18
	PropIDCustomDataBlob uint8 = 0x19
	PropIDCursor       uint8 = 0x1A
	PropIDLayoutFlags  uint8 = 0x1B
	// App-specific properties (ELEM_TYPE_APP only)
	PropIDWindowWidth  uint8 = 0x20
	PropIDWindowHeight uint8 = 0x21
	PropIDWindowTitle  uint8 = 0x22
	PropIDResizable    uint8 = 0x23
	PropIDKeepAspect   uint8 = 0x24
	PropIDScaleFactor  uint8 = 0x25
	PropIDIcon         uint8 = 0x26
	PropIDVersion      uint8 = 0x27
	PropIDAuthor       uint8 = 0x28
)

// KRB value-type tags (spec 3, Property Value).
const (
	ValTypeNone       uint8 = 0x00
	ValTypeByte       uint8 = 0x01 // also bool
	ValTypeShort      uint8 = 0x02 // also int
	ValTypeColor      uint8 = 0x03 // RGBA, 4 bytes
	ValTypeString     uint8 = 0x04 // string table index
	ValTypeResource   uint8 = 0x05 // resource table index
	ValTypePercentage uint8 = 0x06 // 8.8 fixed point, uint16
	ValTypeEdgeInsets uint8 = 0x07 // 4 bytes t,r,b,l
	ValTypeEnum       uint8 = 0x08
)

// Event types.
const (
	EventTypeClick uint8 = 0x01
	EventTypeChange uint8 = 0x02
)

// Layout flag byte bit layout (spec glossary: "Layout flag byte").
const (
	LayoutDirectionMask   uint8 = 0x03
	LayoutDirectionRow    uint8 = 0
	LayoutDirectionColumn uint8 = 1
	LayoutDirectionRowRev uint8 = 2
	LayoutDirectionColRev uint8 = 3

	LayoutAlignmentMask     uint8 = 0x0C
	LayoutAlignmentStart    uint8 = 0 << 2
	LayoutAlignmentCenter   uint8 = 1 << 2
	LayoutAlignmentEnd      uint8 = 2 << 2
	LayoutAlignmentSpaceBtn uint8 = 3 << 2

	LayoutWrapBit     uint8 = 1 << 4
	LayoutGrowBit     uint8 = 1 << 5
	LayoutAbsoluteBit uint8 = 1 << 6
)

// Pseudo-states, a closed set (spec glossary).
const (
	StateHover    = "hover"
	StateActive   = "active"
	StateFocus    = "focus"
	StateDisabled = "disabled"
	StateChecked  = "checked"
)

var PseudoStates = []string{StateHover, StateActive, StateFocus, StateDisabled, StateChecked}

// Resource kinds/formats.
const (
	ResTypeImage uint8 = 0x01
	ResTypeFont  uint8 = 0x02
	ResTypeSound uint8 = 0x03
	ResTypeVideo uint8 = 0x04
	ResTypeScript uint8 = 0x05

	ResFormatExternal uint8 = 0x00
	ResFormatInline   uint8 = 0x01
)

// Compiler limits (carried from the teacher; keeps size bounds on hot paths
// deterministic and gives CodegenError a concrete overflow condition to
// trigger on, per spec 7).
const (
	MaxIncludeDepth      = 16
	MaxComponentDepth    = 64 // spec 4.6: bounded expansion recursion
	MaxLineLength        = 2048
	MaxEvents            = 16
	MaxStringIndex       = 65535
	MaxPropertyIndex     = 65535
	MaxStyleIndex        = 65535
	MaxResources         = 65535
	MaxPropertyBlockIndex = 65535
)
