// Package graph is the resolution and graph layer: import resolution,
// inheritance linearization, depth- and size-capped call-graph traversal,
// path tracing, and context assembly for a target symbol.
package graph

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/cerberusindex/cerberus/internal/store"
)

// Resolver resolves imports and symbol references against the index.
type Resolver struct {
	store  store.Store
	logger *slog.Logger
}

// NewResolver returns a resolver over st.
func NewResolver(st store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: st, logger: logger}
}

// ResolutionReport summarizes one resolution pass.
type ResolutionReport struct {
	ImportsTotal    int
	ImportsResolved int
	RefsTotal       int
	RefsResolved    int
}

// ImportResolutionRate is the fraction of imports that found a definition
// file.
func (r *ResolutionReport) ImportResolutionRate() float64 {
	if r.ImportsTotal == 0 {
		return 0
	}
	return float64(r.ImportsResolved) / float64(r.ImportsTotal)
}

// ResolveImports maps each stored import to a definition file by
// module-name conventions (dotted name to path) and writes the outcome to
// import_links. Unresolvable imports are stored with null definition.
func (r *Resolver) ResolveImports(ctx context.Context, files []string) (*ResolutionReport, error) {
	report := &ResolutionReport{}

	indexed, err := r.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]bool, len(indexed))
	for _, f := range indexed {
		byPath[f.Path] = true
	}

	var links []*store.ImportLink
	for _, file := range files {
		imports, err := importsForFile(ctx, r.store, file)
		if err != nil {
			return nil, err
		}
		for _, imp := range imports {
			report.ImportsTotal++
			link := &store.ImportLink{
				ImporterFile:    imp.ImporterFile,
				ImportedModule:  imp.ImportedModule,
				ImportLine:      imp.ImportLine,
				ImportedSymbols: imp.ImportedSymbols,
			}

			if defFile := resolveModulePath(imp.ImportedModule, byPath); defFile != "" {
				report.ImportsResolved++
				link.DefinitionFile = &defFile
				if sym := r.findExport(ctx, defFile, imp.ImportedSymbols); sym != "" {
					link.DefinitionSymbol = &sym
				}
			}
			links = append(links, link)
		}
	}

	if len(links) > 0 {
		if err := r.store.UpsertImportLinks(ctx, links); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// importsForFile reads the raw imports rows for one file.
func importsForFile(ctx context.Context, st store.Store, file string) ([]*store.Import, error) {
	return st.QueryImports(ctx, store.ImportFilter{ImporterFile: file})
}

// resolveModulePath turns a dotted module name into candidate repo paths
// and returns the first one present in the index.
func resolveModulePath(module string, indexed map[string]bool) string {
	base := strings.ReplaceAll(module, ".", "/")
	slashBase := strings.TrimPrefix(module, "./")

	candidates := []string{
		base + ".py",
		base + "/__init__.py",
		base + ".go",
		slashBase + ".js",
		slashBase + ".ts",
		slashBase + "/index.js",
		slashBase + "/index.ts",
	}
	for _, candidate := range candidates {
		if indexed[candidate] {
			return candidate
		}
	}

	// Last path segment as a bare file anywhere it can be found.
	if i := strings.LastIndex(base, "/"); i >= 0 {
		tail := base[i+1:]
		for path := range indexed {
			if strings.HasSuffix(path, "/"+tail+".py") || path == tail+".py" {
				return path
			}
		}
	}
	return ""
}

// findExport locates the first imported name defined in the file.
func (r *Resolver) findExport(ctx context.Context, file string, names []string) string {
	for _, name := range names {
		symbols, err := r.store.QuerySymbols(ctx, store.SymbolFilter{FilePath: file, Name: name})
		if err == nil && len(symbols) > 0 {
			return name
		}
	}
	return ""
}

// ResolveReferences fills in target files for reference edges in the
// given source files: stored references by a name lookup of the target
// symbol filtered by target type, and method calls by receiver type.
// type_info rows are not read.
func (r *Resolver) ResolveReferences(ctx context.Context, files []string) (*ResolutionReport, error) {
	report := &ResolutionReport{}
	var resolved []*store.SymbolReference

	for _, file := range files {
		refs, err := r.store.QuerySymbolReferencesFiltered(ctx, store.SymbolReferenceFilter{SourceFile: file})
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			report.RefsTotal++
			if ref.TargetSymbol == nil {
				resolved = append(resolved, ref)
				continue
			}
			defs, err := r.store.QuerySymbols(ctx, store.SymbolFilter{Name: *ref.TargetSymbol})
			if err != nil {
				return nil, err
			}
			defs = filterByType(defs, ref.TargetType)
			if len(defs) > 0 {
				f := defs[0].FilePath
				ref.TargetFile = &f
				if ref.ResolutionMethod == "syntax" {
					ref.ResolutionMethod = "index_lookup"
				}
				report.RefsResolved++
			}
			resolved = append(resolved, ref)
		}

		mcRefs, err := r.methodCallReferences(ctx, file)
		if err != nil {
			return nil, err
		}
		report.RefsTotal += len(mcRefs)
		for _, ref := range mcRefs {
			if ref.TargetFile != nil {
				report.RefsResolved++
			}
		}
		resolved = append(resolved, mcRefs...)
	}

	if len(resolved) > 0 {
		if err := r.store.UpsertSymbolReferences(ctx, resolved); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// methodCallReferences derives method_call reference edges from typed
// receivers: receiver_type + method resolves to a class method when the
// index has one.
func (r *Resolver) methodCallReferences(ctx context.Context, file string) ([]*store.SymbolReference, error) {
	calls, err := r.store.QueryMethodCallsFiltered(ctx, store.MethodCallFilter{File: file})
	if err != nil {
		return nil, err
	}

	symbols, err := r.store.QuerySymbols(ctx, store.SymbolFilter{FilePath: file})
	if err != nil {
		return nil, err
	}

	var refs []*store.SymbolReference
	for _, call := range calls {
		if call.ReceiverType == nil {
			continue
		}
		methods, err := r.store.QuerySymbols(ctx, store.SymbolFilter{
			Name: call.Method, Type: store.SymbolMethod, ParentClass: *call.ReceiverType,
		})
		if err != nil {
			return nil, err
		}

		ref := &store.SymbolReference{
			SourceFile:       file,
			SourceLine:       call.Line,
			SourceSymbol:     enclosingSymbolName(symbols, call.Line),
			ReferenceType:    store.RefMethodCall,
			TargetSymbol:     &call.Method,
			TargetType:       string(store.SymbolMethod),
			Confidence:       0.7,
			ResolutionMethod: "receiver_type",
		}
		if len(methods) > 0 {
			f := methods[0].FilePath
			ref.TargetFile = &f
			ref.Confidence = 0.9
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// enclosingSymbolName maps a line to the innermost symbol containing it.
func enclosingSymbolName(symbols []*store.Symbol, line int) string {
	var best *store.Symbol
	for _, sym := range symbols {
		if sym.StartLine <= line && line <= sym.EndLine {
			if best == nil || sym.EndLine-sym.StartLine < best.EndLine-best.StartLine {
				best = sym
			}
		}
	}
	if best == nil {
		return "<module>"
	}
	return best.Name
}

func filterByType(symbols []*store.Symbol, targetType string) []*store.Symbol {
	if targetType == "" {
		return symbols
	}
	var out []*store.Symbol
	for _, sym := range symbols {
		if string(sym.Type) == targetType {
			out = append(out, sym)
		}
	}
	if len(out) == 0 {
		return symbols
	}
	return out
}

// dedupeSymbols collapses store duplicates on the canonical tuple; the
// historical store can carry duplicates and readers must tolerate them.
func dedupeSymbols(symbols []*store.Symbol) []*store.Symbol {
	seen := make(map[string]bool, len(symbols))
	out := symbols[:0:0]
	for _, sym := range symbols {
		key := sym.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sym)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartLine != out[j].StartLine {
			return out[i].StartLine < out[j].StartLine
		}
		return out[i].Name < out[j].Name
	})
	return out
}
