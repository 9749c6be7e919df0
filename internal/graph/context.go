package graph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/store"
)

// ContextOptions selects what rides along with the target symbol.
type ContextOptions struct {
	IncludeBases   bool
	IncludeCallers bool
	IncludeCallees bool
}

// Skeleton is a blueprint-like view of a class: signatures and docstrings
// with bodies elided.
type Skeleton struct {
	Name      string   `json:"name"`
	File      string   `json:"file"`
	Signature string   `json:"signature"`
	Docstring string   `json:"docstring,omitempty"`
	Methods   []string `json:"methods"`
}

// AssembledContext is everything an agent needs to reason about one
// symbol without reading raw files.
type AssembledContext struct {
	Target           *store.Symbol `json:"target"`
	Source           string        `json:"source"`
	Bases            []Skeleton    `json:"bases,omitempty"`
	Callers          []GraphNode   `json:"callers,omitempty"`
	Callees          []GraphNode   `json:"callees,omitempty"`
	Imports          []string      `json:"imports,omitempty"`
	CompressionRatio float64       `json:"compression_ratio"`
}

// AssembleContext gathers the target's source, skeletonized base classes,
// direct callers/callees, and the file's imports. CompressionRatio
// reports context size against the raw bytes of every involved file.
func AssembleContext(ctx context.Context, st store.Store, root, symbolName string, opts ContextOptions) (*AssembledContext, error) {
	defs, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: symbolName})
	if err != nil {
		return nil, err
	}
	defs = dedupeSymbols(defs)
	if len(defs) == 0 {
		return nil, cerrs.New(cerrs.ErrCodeSymbolNotFound,
			fmt.Sprintf("symbol %q not in index", symbolName), nil)
	}
	target := defs[0]

	source, rawBytes, err := readSymbolSource(root, target)
	if err != nil {
		return nil, err
	}

	result := &AssembledContext{Target: target, Source: source}
	totalRaw := rawBytes

	if opts.IncludeBases {
		mro, err := MRO(ctx, st, baseClassName(target))
		if err != nil {
			return nil, err
		}
		for _, entry := range mro.Order[1:] {
			if !entry.Found {
				continue
			}
			skeleton, baseRaw, err := skeletonize(ctx, st, root, entry.Name, entry.File)
			if err != nil {
				return nil, err
			}
			result.Bases = append(result.Bases, *skeleton)
			totalRaw += baseRaw
		}
	}

	if opts.IncludeCallers {
		g, err := ReverseGraph(ctx, st, symbolName, TraversalOptions{MaxDepth: 1})
		if err != nil {
			return nil, err
		}
		result.Callers = nonRootNodes(g)
	}
	if opts.IncludeCallees {
		g, err := ForwardGraph(ctx, st, symbolName, TraversalOptions{MaxDepth: 1})
		if err != nil {
			return nil, err
		}
		result.Callees = nonRootNodes(g)
	}

	imports, err := st.QueryImports(ctx, store.ImportFilter{ImporterFile: target.FilePath})
	if err != nil {
		return nil, err
	}
	for _, imp := range imports {
		result.Imports = append(result.Imports, imp.ImportedModule)
	}

	contextBytes := len(result.Source)
	for _, base := range result.Bases {
		contextBytes += len(base.Signature) + len(base.Docstring)
		for _, m := range base.Methods {
			contextBytes += len(m)
		}
	}
	if totalRaw > 0 {
		result.CompressionRatio = float64(contextBytes) / float64(totalRaw)
	}
	return result, nil
}

// baseClassName picks which class to linearize: the target itself when it
// is a class, its parent when it is a method.
func baseClassName(sym *store.Symbol) string {
	if sym.Type == store.SymbolMethod && sym.ParentClass != "" {
		return sym.ParentClass
	}
	return sym.Name
}

// readSymbolSource slices the symbol's line span out of its file.
func readSymbolSource(root string, sym *store.Symbol) (string, int, error) {
	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(sym.FilePath)))
	if err != nil {
		return "", 0, err
	}
	lines := strings.Split(string(content), "\n")
	start, end := sym.StartLine-1, sym.EndLine
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return "", len(content), nil
	}
	return strings.Join(lines[start:end], "\n"), len(content), nil
}

// skeletonize builds a signatures-and-docstrings view of a class straight
// from the store; bodies never load.
func skeletonize(ctx context.Context, st store.Store, root, className, file string) (*Skeleton, int, error) {
	classes, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: className, Type: store.SymbolClass, FilePath: file})
	if err != nil {
		return nil, 0, err
	}
	skeleton := &Skeleton{Name: className, File: file}
	rawBytes := 0
	if len(classes) > 0 {
		skeleton.Signature = classes[0].Signature
		skeleton.Docstring = classes[0].Docstring
		if info, statErr := os.Stat(filepath.Join(root, filepath.FromSlash(file))); statErr == nil {
			rawBytes = int(info.Size())
		}
	}

	methods, err := st.QuerySymbols(ctx, store.SymbolFilter{ParentClass: className, Type: store.SymbolMethod})
	if err != nil {
		return nil, 0, err
	}
	for _, method := range dedupeSymbols(methods) {
		entry := method.Signature
		if method.Docstring != "" {
			entry += "  # " + method.Docstring
		}
		skeleton.Methods = append(skeleton.Methods, entry)
	}
	return skeleton, rawBytes, nil
}

func nonRootNodes(g *Graph) []GraphNode {
	var out []GraphNode
	for _, node := range g.Nodes {
		if node.Name != g.Root {
			out = append(out, node)
		}
	}
	return out
}
