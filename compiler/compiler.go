package compiler

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
)

// TargetPlatform is the driver-facing platform hint (spec 6.3).
type TargetPlatform int

const (
	TargetUniversal TargetPlatform = iota
	TargetDesktop
	TargetMobile
	TargetWeb
	TargetEmbedded
)

// Options configures one compilation (spec 6.3's enumerated options
// record), realized as a Go struct rather than a generic config map so
// every field is statically checked at the call site.
type Options struct {
	OptimizationLevel  OptimizationLevel
	TargetPlatform     TargetPlatform
	EmbedScripts       bool
	CompressOutput     bool
	IncludeDirectories []string
	CustomVariables    map[string]string
	DebugMode          bool
	MaxFileSize        uint32 // bytes; 0 = unlimited
	GenerateDebugInfo  bool
}

// Stats reports what one compilation produced (spec 6.3).
type Stats struct {
	CompilationID    uuid.UUID
	ElementCount     int
	StyleCount       int
	ComponentCount   int
	VariableCount    int
	ScriptCount      int
	ResourceCount    int
	IncludeCount     int
	InputSize        int64
	OutputSize       int64
	CompileTimeMs    int64
	CompressionRatio float64
	Warnings         []Warning
}

// KrbInfo is analyze()'s report on an already-compiled artifact (spec
// 6.3), extended per SPEC_FULL.md's supplemented features with the
// feature-flag names actually set, not just the raw bitmask.
type KrbInfo struct {
	VersionMajor  uint8
	VersionMinor  uint8
	Flags         uint16
	FlagNames     []string
	ElementCount  int
	StringCount   int
	StyleCount    int
	ResourceCount int
	SectionSizes  map[string]uint32
}

// Compile runs the full KRY -> KRB pipeline (spec 4.1's ten stages) and
// writes the binary artifact to outputPath, mirroring the teacher's
// main()'s linear pass sequence (Preprocess -> Parse -> Resolve Styles ->
// Resolve Components -> Analyze -> Optimize -> Calculate Sizes ->
// Generate) but as a reusable library entry point instead of inline
// program logic.
func Compile(inputPath, outputPath string, opts Options) (*Stats, error) {
	start := time.Now()
	stats := &Stats{CompilationID: uuid.New()}

	inputInfo, err := os.Stat(inputPath)
	if err != nil {
		return nil, &IoError{Path: inputPath, Err: err}
	}
	stats.InputSize = inputInfo.Size()

	mg, err := Preprocess(inputPath, opts.IncludeDirectories)
	if err != nil {
		return nil, err
	}
	stats.IncludeCount = len(mg.Modules) - 1

	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		ast, err := Parse(mod)
		if err != nil {
			return nil, err
		}
		mod.AST = ast
	}

	varWarnings, err := ResolveVariables(mg, opts.CustomVariables)
	if err != nil {
		return nil, err
	}
	stats.Warnings = append(stats.Warnings, varWarnings...)

	st := NewStringTable()
	res := NewResourceTable(st, true)

	styleWarnings, err := ResolveStyles(mg, st, res)
	if err != nil {
		return nil, err
	}
	stats.Warnings = append(stats.Warnings, styleWarnings...)

	compWarnings, err := ResolveComponents(mg)
	if err != nil {
		return nil, err
	}
	stats.Warnings = append(stats.Warnings, compWarnings...)

	root, hasStateProps, semWarnings, err := AnalyzeSemantics(mg, st, res)
	if err != nil {
		return nil, err
	}
	stats.Warnings = append(stats.Warnings, semWarnings...)

	var allStyles []*StyleDef
	var allComponents []*ComponentDef
	var allScripts []ScriptRecord
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		for _, s := range mod.Styles {
			allStyles = append(allStyles, s)
		}
		for _, c := range mod.Components {
			allComponents = append(allComponents, c)
		}
	}
	allScripts, err = CompileScripts(mg, st, res)
	if err != nil {
		return nil, err
	}
	if !opts.EmbedScripts {
		for i := range allScripts {
			if allScripts[i].Storage == ScriptStorageInline {
				allScripts[i].Code = nil
			}
		}
	}

	optStyles, optComponents, _, err := Optimize(opts.OptimizationLevel, root, allStyles, allComponents, res.Entries())
	if err != nil {
		return nil, err
	}

	plan, err := CalculateLayout(root, optStyles, optComponents, allScripts, res.Entries(), st, hasStateProps, opts.OptimizationLevel)
	if err != nil {
		return nil, err
	}

	if opts.MaxFileSize > 0 && plan.TotalSize > opts.MaxFileSize {
		return nil, &CodegenError{Reason: fmt.Sprintf("output size %d exceeds max_file_size %d", plan.TotalSize, opts.MaxFileSize)}
	}

	var buf bytes.Buffer
	if err := WriteKRB(&buf, plan); err != nil {
		return nil, err
	}

	finalBytes := buf.Bytes()
	uncompressedSize := int64(len(finalBytes))
	if opts.CompressOutput {
		compressed, err := compressOutput(finalBytes)
		if err != nil {
			return nil, &CodegenError{Reason: "compress_output: " + err.Error()}
		}
		finalBytes = compressed
		plan.HeaderFlags |= FlagCompressedStrings
	}

	if err := os.WriteFile(outputPath, finalBytes, 0o644); err != nil {
		return nil, &IoError{Path: outputPath, Err: err}
	}

	stats.ElementCount = len(plan.ElementsFlat)
	stats.StyleCount = len(optStyles)
	stats.ComponentCount = len(optComponents)
	stats.ScriptCount = len(allScripts)
	stats.ResourceCount = res.Len()
	stats.VariableCount = countVariables(mg)
	stats.OutputSize = int64(len(finalBytes))
	if uncompressedSize > 0 {
		stats.CompressionRatio = float64(stats.OutputSize) / float64(uncompressedSize)
	} else {
		stats.CompressionRatio = 1
	}
	stats.CompileTimeMs = time.Since(start).Milliseconds()
	return stats, nil
}

// Check is the "check" driver operation (spec 6.3): it runs the whole
// Compile pipeline, code generation included, into a temporary file that
// it removes before returning, so no artifact is left behind, and returns
// the resolved Stats.
func Check(inputPath string, opts Options) (*Stats, error) {
	tmp, err := os.CreateTemp("", "kryc-check-*.krb")
	if err != nil {
		return nil, &IoError{Path: inputPath, Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)
	return Compile(inputPath, tmpPath, opts)
}

// AnalyzeArtifact implements analyze() (spec 6.3): it reads an already-
// compiled KRB file's header and reports its version, feature flags and
// section sizes without recompiling from source. The ElementCount,
// StringCount, StyleCount and ResourceCount fields of the returned KrbInfo
// are left at zero.
func AnalyzeArtifact(krbPath string) (*KrbInfo, error) {
	f, err := os.Open(krbPath)
	if err != nil {
		return nil, &IoError{Path: krbPath, Err: err}
	}
	defer f.Close()

	header := make([]byte, KRBHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, &IoError{Path: krbPath, Err: err}
	}
	if string(header[:4]) != KRBMagic {
		return nil, &CodegenError{Reason: "not a KRB file: bad magic"}
	}

	info := &KrbInfo{
		VersionMajor: header[4],
		VersionMinor: header[5],
		Flags:        uint16(header[6]) | uint16(header[7])<<8,
	}
	info.FlagNames = flagNames(info.Flags)
	info.SectionSizes = map[string]uint32{}

	sectionNames := []string{"", "strings", "styles", "components", "elements", "property_blocks", "scripts", "resources"}
	off := 16 // fixed fields (8 bytes), then the header's own descriptor
	for i := 1; i < KRBSectionCount; i++ {
		size := le32(header[off+4 : off+8])
		info.SectionSizes[sectionNames[i]] = size
		off += 8
	}
	return info, nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func flagNames(flags uint16) []string {
	named := []struct {
		bit  uint16
		name string
	}{
		{FlagHasStateProperties, "has_state_properties"},
		{FlagCompressedStrings, "compressed_strings"},
		{FlagHasScripts, "has_scripts"},
		{FlagHasComponents, "has_components"},
		{FlagHasResources, "has_resources"},
		{FlagExtendedStringsU16, "extended_strings_u16"},
	}
	var out []string
	for _, n := range named {
		if flags&n.bit != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func countVariables(mg *ModuleGraph) int {
	count := 0
	for _, path := range mg.CompilationOrder {
		count += len(mg.Modules[path].Variables)
	}
	return count
}

// compressOutput implements the compress_output option with stdlib
// compress/flate (DESIGN.md: no compression library appears anywhere in
// the retrieval pack to prefer instead).
func compressOutput(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
