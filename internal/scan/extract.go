package scan

import (
	"sort"

	"github.com/cerberusindex/cerberus/internal/store"
)

// Extract converts a parsed tree into a Record for the given repo-relative
// path. Unknown languages yield an empty record.
func Extract(tree *Tree, filePath string) *Record {
	rec := &Record{
		FileRecord: &store.FileRecord{
			Symbols:     []*store.Symbol{},
			Calls:       []*store.Call{},
			Imports:     []*store.Import{},
			MethodCalls: []*store.MethodCall{},
			TypeInfos:   []*store.TypeInfo{},
		},
		References: []*store.SymbolReference{},
	}
	rec.FileRecord.File.Path = filePath

	if tree == nil || tree.Root == nil {
		return rec
	}

	switch tree.Language {
	case LangPython:
		extractPython(tree, filePath, rec)
	case LangGo:
		extractGo(tree, filePath, rec)
	case LangJavaScript, LangTypeScript, "tsx":
		extractJS(tree, filePath, rec)
	}

	sortSymbols(rec.FileRecord.Symbols)
	return rec
}

// sortSymbols orders symbols by (start_line, name), the canonical in-file
// order the store and blueprint layer rely on.
func sortSymbols(symbols []*store.Symbol) {
	sort.SliceStable(symbols, func(i, j int) bool {
		if symbols[i].StartLine != symbols[j].StartLine {
			return symbols[i].StartLine < symbols[j].StartLine
		}
		return symbols[i].Name < symbols[j].Name
	})
}

// inheritsRef records a class-extends-base edge with the target left for
// the resolution layer to fill in.
func inheritsRef(filePath, class, base string, line int) *store.SymbolReference {
	return &store.SymbolReference{
		SourceFile:       filePath,
		SourceLine:       line,
		SourceSymbol:     class,
		ReferenceType:    store.RefInherits,
		TargetSymbol:     &base,
		TargetType:       string(store.SymbolClass),
		Confidence:       0.9,
		ResolutionMethod: "syntax",
	}
}
