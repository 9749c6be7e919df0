package mutate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

// span is an exact byte range within a file, with the decorator prefix
// tracked separately so deletes can keep it.
type span struct {
	start          uint32
	end            uint32
	decoratorStart uint32 // == start when no decorators
}

// resolveSymbol finds exactly one matching symbol or fails: zero matches
// is symbol-not-found, more than one is ambiguous until qualified.
func resolveSymbol(ctx context.Context, st store.Store, file, name string, symType store.SymbolType, parentClass string) (*store.Symbol, error) {
	symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{
		FilePath: file, Name: name, Type: symType, ParentClass: parentClass,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*store.Symbol)
	for _, sym := range symbols {
		seen[sym.DedupeKey()] = sym
	}
	switch len(seen) {
	case 0:
		return nil, cerrs.New(cerrs.ErrCodeSymbolNotFound,
			fmt.Sprintf("symbol %q not found in %s", name, file), nil).
			WithSuggestion("run `cerberus search " + name + "` to locate it")
	case 1:
		for _, sym := range seen {
			return sym, nil
		}
	}
	return nil, cerrs.New(cerrs.ErrCodeAmbiguousSymbol,
		fmt.Sprintf("%d symbols named %q in %s", len(seen), name, file), nil).
		WithSuggestion("qualify with --type or --class")
}

// symbolNodeTypes are the definition node types a surgical edit can
// target, per language.
var symbolNodeTypes = map[string][]string{
	scan.LangPython:     {"function_definition", "class_definition"},
	scan.LangGo:         {"function_declaration", "method_declaration", "type_declaration"},
	scan.LangJavaScript: {"function_declaration", "class_declaration", "method_definition", "generator_function_declaration"},
	scan.LangTypeScript: {"function_declaration", "class_declaration", "method_definition"},
}

// locateSpan parses content and finds the exact syntactic span of the
// symbol. The stored line span anchors the search; the freshly parsed
// tree provides the byte-accurate range even when the file has drifted a
// little since the last index pass.
func locateSpan(ctx context.Context, content []byte, sym *store.Symbol) (*span, error) {
	ext := strings.ToLower(filepath.Ext(sym.FilePath))
	lang, ok := scan.DefaultRegistry().ByExtension(ext)
	if !ok {
		return nil, fmt.Errorf("no grammar for %s", ext)
	}

	parser := scan.NewParser()
	defer parser.Close()
	tree, err := parser.Parse(ctx, content, lang.Name)
	if err != nil {
		return nil, err
	}

	nodeTypes := symbolNodeTypes[lang.Name]
	if nodeTypes == nil {
		nodeTypes = symbolNodeTypes[scan.LangJavaScript]
	}

	var best *scan.Node
	tree.Root.Walk(func(n *scan.Node) bool {
		for _, nodeType := range nodeTypes {
			if n.Type != nodeType {
				continue
			}
			if nodeName(n, tree.Source) != sym.Name {
				continue
			}
			if best == nil || lineDistance(n, sym) < lineDistance(best, sym) {
				best = n
			}
		}
		return true
	})
	if best == nil {
		return nil, cerrs.New(cerrs.ErrCodeSymbolNotFound,
			fmt.Sprintf("definition of %q no longer present in %s", sym.Name, sym.FilePath), nil).
			WithSuggestion("reindex the file and retry")
	}

	s := &span{start: best.StartByte, end: best.EndByte, decoratorStart: best.StartByte}
	// A decorated definition's span includes its decorators.
	if wrapper := findDecoratedWrapper(tree.Root, best); wrapper != nil {
		s.start = wrapper.StartByte
		s.end = wrapper.EndByte
		s.decoratorStart = best.StartByte
	}
	return s, nil
}

// nodeName extracts the defined name of a definition node.
func nodeName(n *scan.Node, source []byte) string {
	if name := n.ChildByField("name"); name != nil {
		return name.Content(source)
	}
	// type_declaration nests the name under type_spec.
	if spec := n.FindChildByType("type_spec"); spec != nil {
		if name := spec.ChildByField("name"); name != nil {
			return name.Content(source)
		}
	}
	return ""
}

func lineDistance(n *scan.Node, sym *store.Symbol) int {
	d := n.StartLine() - sym.StartLine
	if d < 0 {
		return -d
	}
	return d
}

// findDecoratedWrapper returns the decorated_definition wrapping def, if
// one exists.
func findDecoratedWrapper(root, def *scan.Node) *scan.Node {
	var wrapper *scan.Node
	root.Walk(func(n *scan.Node) bool {
		if n.Type == "decorated_definition" {
			for _, child := range n.Children {
				if child == def {
					wrapper = n
					return false
				}
			}
		}
		return true
	})
	return wrapper
}
