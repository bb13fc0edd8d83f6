package compiler

import "fmt"

// Script language tags (spec 3, "Script Record").
const (
	ScriptLangLua uint8 = iota
	ScriptLangJavaScript
	ScriptLangPython
	ScriptLangWren
)

var scriptLanguageNames = map[string]uint8{
	"lua": ScriptLangLua, "javascript": ScriptLangJavaScript, "js": ScriptLangJavaScript,
	"python": ScriptLangPython, "py": ScriptLangPython, "wren": ScriptLangWren,
}

const (
	ScriptStorageInline   uint8 = 0
	ScriptStorageExternal uint8 = 1
)

// ScriptRecord is one compiled script (spec 3, "Script Record"): a
// language tag, inline-or-external source form, and the entry points the
// Semantic Analyzer validated event handlers against.
type ScriptRecord struct {
	Language     uint8
	NameIndex    uint16
	Storage      uint8
	Code         []byte // present when Storage == ScriptStorageInline
	ResourceIdx  uint16 // present when Storage == ScriptStorageExternal
	EntryPoints  []uint16 // string-table indices, one per declared entry point
}

// CompileScripts converts every module's parsed script blocks into
// ScriptRecords, interning their names and entry-point names into st and
// (for external scripts) their resource path into res. Mirrors
// original_source/src/script.rs's ScriptProcessor.process_script: inline
// scripts carry their body bytes directly, `from "path"` scripts are
// recorded as an external resource reference instead, and the already-
// extracted entry points (compiler/parser.go's extractEntryPoints) are
// interned alongside.
func CompileScripts(mg *ModuleGraph, st *StringTable, res *ResourceTable) ([]ScriptRecord, error) {
	var out []ScriptRecord
	for _, path := range mg.CompilationOrder {
		mod := mg.Modules[path]
		for i := range mod.AST.Scripts {
			s := &mod.AST.Scripts[i]
			lang, ok := scriptLanguageNames[s.Language]
			if !ok {
				return nil, &CodegenError{Reason: fmt.Sprintf("%s:L%d: unsupported script language %q", mod.Path, s.Line, s.Language)}
			}
			rec := ScriptRecord{Language: lang}

			if s.Name != "" {
				idx, err := st.Add(s.Name)
				if err != nil {
					return nil, err
				}
				rec.NameIndex = idx
			}

			if s.ExternPath != "" {
				rec.Storage = ScriptStorageExternal
				idx, err := res.Add(ResTypeScript, s.ExternPath)
				if err != nil {
					return nil, err
				}
				rec.ResourceIdx = idx
			} else {
				rec.Storage = ScriptStorageInline
				rec.Code = []byte(s.Body)
			}

			for _, fn := range s.EntryPoints {
				idx, err := st.Add(fn)
				if err != nil {
					return nil, err
				}
				rec.EntryPoints = append(rec.EntryPoints, idx)
			}

			out = append(out, rec)
		}
	}
	return out, nil
}
