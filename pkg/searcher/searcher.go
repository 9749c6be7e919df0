// Package searcher is the query-side facade over an existing index:
// hybrid search, exact symbol lookup (routed through the watcher daemon
// when one is running), blueprints, graphs, and context assembly.
package searcher

import (
	"context"
	"log/slog"

	"github.com/cerberusindex/cerberus/internal/blueprint"
	"github.com/cerberusindex/cerberus/internal/embed"
	"github.com/cerberusindex/cerberus/internal/graph"
	"github.com/cerberusindex/cerberus/internal/ipc"
	"github.com/cerberusindex/cerberus/internal/retrieve"
	"github.com/cerberusindex/cerberus/internal/store"
	"github.com/cerberusindex/cerberus/internal/watch"
)

// Searcher bundles the read-side capabilities over one open store.
type Searcher struct {
	Store store.Store

	root      string
	retriever *retrieve.Searcher
	blueprint *blueprint.Builder
	daemon    *ipc.Client
	logger    *slog.Logger
}

// Open opens the index at indexPath for the project rooted at root.
func Open(root, indexPath string, logger *slog.Logger) (*Searcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(indexPath)
	if err != nil {
		return nil, err
	}

	builder, err := blueprint.NewBuilder(st, root)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &Searcher{
		Store:     st,
		root:      root,
		retriever: retrieve.NewSearcher(st, embed.NewStaticEmbedder(), logger),
		blueprint: builder,
		daemon:    ipc.NewClient(watch.SocketPath(root)),
		logger:    logger,
	}, nil
}

// Close releases the store.
func (s *Searcher) Close() error { return s.Store.Close() }

// Search runs hybrid retrieval.
func (s *Searcher) Search(ctx context.Context, opts retrieve.Options) ([]retrieve.Result, error) {
	return s.retriever.Search(ctx, opts)
}

// GetSymbol is the exact lookup. It routes through the watcher daemon's
// socket when one is serving this project — amortizing its loaded store —
// and silently falls back to the local store otherwise. Results are
// deduplicated on Symbol.DedupeKey.
func (s *Searcher) GetSymbol(ctx context.Context, name, filePath, parentClass string) ([]*store.Symbol, error) {
	symbols, err := s.daemon.GetSymbol(ctx, s.Store, ipc.GetSymbolArgs{
		Name: name, FilePath: filePath, ParentClass: parentClass,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(symbols))
	out := symbols[:0]
	for _, sym := range symbols {
		key := sym.DedupeKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, sym)
	}
	return out, nil
}

// Blueprint returns the cached structural view of a file.
func (s *Searcher) Blueprint(ctx context.Context, path string) (*blueprint.Blueprint, error) {
	return s.blueprint.Get(ctx, path)
}

// BlueprintStats reports blueprint cache effectiveness.
func (s *Searcher) BlueprintStats() blueprint.Stats { return s.blueprint.Stats() }

// Callers returns the bounded reverse call graph of a symbol.
func (s *Searcher) Callers(ctx context.Context, symbol string, opts graph.TraversalOptions) (*graph.Graph, error) {
	return graph.ReverseGraph(ctx, s.Store, symbol, opts)
}

// Callees returns the bounded forward call graph of a symbol.
func (s *Searcher) Callees(ctx context.Context, symbol string, opts graph.TraversalOptions) (*graph.Graph, error) {
	return graph.ForwardGraph(ctx, s.Store, symbol, opts)
}

// Trace returns up to three shortest call paths between two symbols.
func (s *Searcher) Trace(ctx context.Context, source, target string, maxDepth int) ([][]graph.PathStep, error) {
	return graph.PathTrace(ctx, s.Store, source, target, maxDepth)
}

// MRO returns the linearized inheritance order of a class.
func (s *Searcher) MRO(ctx context.Context, class string) (*graph.MROResult, error) {
	return graph.MRO(ctx, s.Store, class)
}

// Context assembles target source, skeletonized bases, and neighbors.
func (s *Searcher) Context(ctx context.Context, symbol string, opts graph.ContextOptions) (*graph.AssembledContext, error) {
	return graph.AssembleContext(ctx, s.Store, s.root, symbol, opts)
}

// Stats returns index-wide counts.
func (s *Searcher) Stats(ctx context.Context) (*store.Stats, error) {
	return s.Store.Stats(ctx)
}

// Integrity runs the FTS/metadata consistency check.
func (s *Searcher) Integrity(ctx context.Context) (*store.IntegrityReport, error) {
	return s.Store.CheckIntegrity(ctx)
}
