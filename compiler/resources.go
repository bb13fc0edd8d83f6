package compiler

import (
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"strings"
)

// ResourceEntry is one external (or, in principle, inline) resource
// reference: image, font, sound, video, or external script (spec 3,
// "Resource Table"). Mirrors the teacher's ResourceEntry but adds an
// optional MD5 content checksum, which the Code Generator writes into the
// resource table; nothing in the compiler re-hashes the file to compare
// against it.
type ResourceEntry struct {
	Type       uint8
	Format     uint8
	PathIndex  uint16 // string-table index of the resource path
	Index      uint16
	Checksum   [md5.Size]byte
	HasChecksum bool
}

// ResourceTable deduplicates resource references by (type, path) and
// assigns each a stable table index, the same shape as the teacher's
// CompilerState.Resources/addResource but pulled out into its own type so
// the Script Record and Code Generator stages can share it.
type ResourceTable struct {
	strings  *StringTable
	entries  []ResourceEntry
	byKey    map[string]uint16
	checksum bool // whether to hash resource file contents eagerly
}

// NewResourceTable creates an empty table backed by st for path interning.
// When checksum is true, Add reads and MD5-hashes each resource file the
// first time it's referenced (spec's testable property: "a resource whose
// file content changes without its path changing is still detected").
func NewResourceTable(st *StringTable, checksum bool) *ResourceTable {
	return &ResourceTable{strings: st, byKey: map[string]uint16{}, checksum: checksum}
}

func resourceTypeFromExt(path string) uint8 {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".png"), strings.HasSuffix(lower, ".jpg"),
		strings.HasSuffix(lower, ".jpeg"), strings.HasSuffix(lower, ".bmp"),
		strings.HasSuffix(lower, ".gif"), strings.HasSuffix(lower, ".webp"):
		return ResTypeImage
	case strings.HasSuffix(lower, ".ttf"), strings.HasSuffix(lower, ".otf"):
		return ResTypeFont
	case strings.HasSuffix(lower, ".wav"), strings.HasSuffix(lower, ".mp3"), strings.HasSuffix(lower, ".ogg"):
		return ResTypeSound
	case strings.HasSuffix(lower, ".mp4"), strings.HasSuffix(lower, ".webm"):
		return ResTypeVideo
	case strings.HasSuffix(lower, ".lua"), strings.HasSuffix(lower, ".js"),
		strings.HasSuffix(lower, ".py"), strings.HasSuffix(lower, ".wren"):
		return ResTypeScript
	}
	return ResTypeImage
}

// Add registers (or finds an existing) resource reference for path under
// resType, returning its table index. Ported from the teacher's
// CompilerState.addResource, generalized off a fixed uint8 cap to
// MaxResources and with the checksum step layered on top.
func (rt *ResourceTable) Add(resType uint8, path string) (uint16, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, fmt.Errorf("resource path cannot be empty or whitespace only")
	}

	key := fmt.Sprintf("%d:%s", resType, path)
	if idx, ok := rt.byKey[key]; ok {
		return idx, nil
	}

	pathIdx, err := rt.strings.Add(path)
	if err != nil {
		return 0, err
	}
	if len(rt.entries) >= MaxResources {
		return 0, fmt.Errorf("maximum resource limit (%d) exceeded", MaxResources)
	}

	entry := ResourceEntry{
		Type:      resType,
		Format:    ResFormatExternal,
		PathIndex: pathIdx,
		Index:     uint16(len(rt.entries)),
	}

	if rt.checksum && !isVariableReference(path) {
		if sum, err := hashResourceFile(path); err == nil {
			entry.Checksum = sum
			entry.HasChecksum = true
		}
		// A file that can't be read here (not yet materialized, a template
		// placeholder left over, etc.) just goes unchecksummed rather than
		// failing the whole resource reference.
	}

	rt.byKey[key] = entry.Index
	rt.entries = append(rt.entries, entry)
	return entry.Index, nil
}

// Entries returns the resources in assigned-index order.
func (rt *ResourceTable) Entries() []ResourceEntry { return rt.entries }

func (rt *ResourceTable) Len() int { return len(rt.entries) }

func isVariableReference(path string) bool {
	return strings.Contains(path, "$")
}

func hashResourceFile(path string) ([md5.Size]byte, error) {
	var sum [md5.Size]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
