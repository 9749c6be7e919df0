package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/cerberusindex/cerberus/internal/embed"
	"github.com/cerberusindex/cerberus/internal/store"
)

// DefaultLimit bounds result lists when the caller does not.
const DefaultLimit = 20

// Searcher runs hybrid retrieval against one store. The vector index is
// rebuilt lazily from the embeddings table on the first semantic query.
type Searcher struct {
	store    store.Store
	embedder embed.Embedder
	logger   *slog.Logger

	vecOnce sync.Once
	vecErr  error
	vectors store.VectorStore
}

// NewSearcher returns a searcher over st. embedder may be nil, in which
// case semantic search always falls back to keyword.
func NewSearcher(st store.Store, embedder embed.Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{store: st, embedder: embedder, logger: logger}
}

// Search runs one query. Auto mode classifies the query first; semantic
// requests without stored embeddings degrade to keyword with results
// tagged keyword_fallback.
func (s *Searcher) Search(ctx context.Context, opts Options) ([]Result, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	mode := opts.Mode
	if mode == "" || mode == ModeAuto {
		mode = ClassifyAuto(opts.Query)
	}

	semanticWanted := mode == ModeSemantic || mode == ModeBalanced
	fallback := false
	if semanticWanted {
		ok, err := s.semanticAvailable(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			fallback = true
			mode = ModeKeyword
		}
	}

	var keyword, semantic []Candidate
	var err error
	if mode == ModeKeyword || mode == ModeBalanced {
		keyword, err = s.keyword(ctx, opts.Query, opts.Limit*2)
		if err != nil {
			return nil, err
		}
	}
	if mode == ModeSemantic || mode == ModeBalanced {
		semantic, err = s.semantic(ctx, opts.Query, opts.Limit*2)
		if err != nil {
			return nil, err
		}
	}

	var merged []fused
	switch opts.Fusion {
	case FusionWeighted:
		merged = FuseWeighted(keyword, semantic, opts.KeywordWeight, opts.SemanticWeight)
	default:
		merged = FuseRRF(keyword, semantic)
	}
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}

	results := make([]Result, 0, len(merged))
	for i, entry := range merged {
		sym, err := s.store.GetSymbolByID(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		if sym == nil {
			continue
		}
		matchType := entry.MatchType
		if fallback {
			matchType = MatchKeywordFallback
		}
		results = append(results, Result{
			Rank:      i + 1,
			SymbolID:  entry.ID,
			BM25:      entry.BM25,
			Cosine:    entry.Cosine,
			Hybrid:    entry.Hybrid,
			MatchType: matchType,
			Symbol:    sym,
		})
	}
	return results, nil
}

// keyword runs the FTS5 match. Identifier queries are quoted per token so
// FTS5 operators in user input cannot break the query.
func (s *Searcher) keyword(ctx context.Context, query string, limit int) ([]Candidate, error) {
	matches, err := s.store.FTSMatch(ctx, ftsQuery(query), limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{ID: m.SymbolID, Score: m.Score})
	}
	return out, nil
}

// ftsQuery quotes each token and ORs them together.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.ReplaceAll(field, `"`, "")
		if field == "" {
			continue
		}
		quoted = append(quoted, `"`+field+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func (s *Searcher) semanticAvailable(ctx context.Context) (bool, error) {
	if s.embedder == nil {
		return false, nil
	}
	return s.store.HasEmbeddings(ctx)
}

// semantic encodes the query and searches the lazily built vector index.
func (s *Searcher) semantic(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if err := s.ensureVectors(ctx); err != nil {
		return nil, err
	}
	if s.vectors.Count() == 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectors.Search(ctx, queryVec, limit)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, Candidate{ID: id, Score: float64(hit.Score)})
	}
	return out, nil
}

// ensureVectors rebuilds the HNSW graph from the embeddings table once
// per searcher lifetime. Watcher-driven updates invalidate the whole
// searcher, not individual vectors.
func (s *Searcher) ensureVectors(ctx context.Context) error {
	s.vecOnce.Do(func() {
		embeddings, err := s.store.AllEmbeddings(ctx)
		if err != nil {
			s.vecErr = err
			return
		}
		vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(s.embedder.Dimensions()))
		if err != nil {
			s.vecErr = err
			return
		}
		ids := make([]string, 0, len(embeddings))
		vectors := make([][]float32, 0, len(embeddings))
		for _, e := range embeddings {
			if len(e.Vector) != s.embedder.Dimensions() {
				continue
			}
			ids = append(ids, strconv.FormatInt(e.SymbolID, 10))
			vectors = append(vectors, e.Vector)
		}
		if len(ids) > 0 {
			if err := vs.Add(ctx, ids, vectors); err != nil {
				s.vecErr = err
				return
			}
		}
		s.vectors = vs
	})
	return s.vecErr
}
