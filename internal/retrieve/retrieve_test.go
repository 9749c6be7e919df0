package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerberusindex/cerberus/internal/embed"
	"github.com/cerberusindex/cerberus/internal/store"
)

func TestClassifyAuto(t *testing.T) {
	cases := map[string]Mode{
		"parse_config":                 ModeKeyword,
		"handleRequest":                ModeKeyword,
		"store.Open":                   ModeKeyword,
		"how does the watcher work":    ModeSemantic,
		"find all callers of doStuff":  ModeBalanced,
		"where is parse_config used":   ModeBalanced,
		"debounce events":              ModeSemantic,
	}
	for query, want := range cases {
		assert.Equal(t, want, ClassifyAuto(query), "query %q", query)
	}
}

func TestFuseRRFBothListsRankFirst(t *testing.T) {
	keyword := []Candidate{{ID: 1, Score: 9}, {ID: 2, Score: 5}}
	semantic := []Candidate{{ID: 2, Score: 0.9}, {ID: 3, Score: 0.4}}

	merged := FuseRRF(keyword, semantic)
	require.Len(t, merged, 3)
	// 2 appears in both lists: two reciprocal contributions beat any
	// single first-place entry at k=60.
	assert.Equal(t, int64(2), merged[0].ID)
	assert.Equal(t, MatchBoth, merged[0].MatchType)
	assert.InDelta(t, 1.0/62+1.0/61, merged[0].Hybrid, 1e-9)

	assert.Equal(t, MatchKeyword, matchOf(merged, 1))
	assert.Equal(t, MatchSemantic, matchOf(merged, 3))
}

func matchOf(list []fused, id int64) MatchType {
	for _, f := range list {
		if f.ID == id {
			return f.MatchType
		}
	}
	return ""
}

func TestFuseWeightedMinMax(t *testing.T) {
	keyword := []Candidate{{ID: 1, Score: 10}, {ID: 2, Score: 0}}
	semantic := []Candidate{{ID: 2, Score: 1.0}, {ID: 3, Score: 0.5}}

	merged := FuseWeighted(keyword, semantic, 0.5, 0.5)
	require.Len(t, merged, 3)
	// 1: 0.5*1.0 = 0.5; 2: 0.5*0 + 0.5*1.0 = 0.5; 3: 0.5*0 = 0.
	assert.InDelta(t, 0.5, merged[0].Hybrid, 1e-9)
	assert.InDelta(t, 0.5, merged[1].Hybrid, 1e-9)
	// Deterministic tie-break on ID.
	assert.Equal(t, int64(1), merged[0].ID)
	assert.Equal(t, int64(2), merged[1].ID)
	assert.Equal(t, int64(3), merged[2].ID)
}

func TestNormalizeScoresConstantList(t *testing.T) {
	norm := normalizeScores([]Candidate{{ID: 1, Score: 3}, {ID: 2, Score: 3}})
	assert.Equal(t, []float64{1, 1}, norm)
}

func seedStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	rec := &store.FileRecord{
		File: store.File{Path: "app.py", Size: 100, LastModified: 1},
		Symbols: []*store.Symbol{
			{Name: "parse_config", Type: store.SymbolFunction, FilePath: "app.py",
				StartLine: 1, EndLine: 4, Signature: "def parse_config(path)",
				Docstring: "Parse the configuration file."},
			{Name: "write_report", Type: store.SymbolFunction, FilePath: "app.py",
				StartLine: 6, EndLine: 9, Signature: "def write_report(data)",
				Docstring: "Write the summary report."},
		},
	}
	require.NoError(t, st.WriteFileRecord(context.Background(), rec))
	return st
}

func TestSearchKeyword(t *testing.T) {
	st := seedStore(t)
	s := NewSearcher(st, nil, nil)

	results, err := s.Search(context.Background(), Options{Query: "parse_config", Mode: ModeKeyword})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "parse_config", results[0].Symbol.Name)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, MatchKeyword, results[0].MatchType)
	assert.Greater(t, results[0].BM25, 0.0)
}

func TestSearchSemanticFallsBackWithoutEmbeddings(t *testing.T) {
	st := seedStore(t)
	s := NewSearcher(st, embed.NewStaticEmbedder(), nil)

	results, err := s.Search(context.Background(), Options{Query: "parse the configuration", Mode: ModeSemantic})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, MatchKeywordFallback, r.MatchType)
	}
}

func TestSearchSemanticWithEmbeddings(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	embedder := embed.NewStaticEmbedder()

	symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{})
	require.NoError(t, err)
	var embeddings []*store.Embedding
	for _, sym := range symbols {
		vec, err := embedder.Embed(ctx, sym.Name+" "+sym.Signature+" "+sym.Docstring)
		require.NoError(t, err)
		embeddings = append(embeddings, &store.Embedding{
			SymbolID: sym.ID, Vector: vec, ModelName: embedder.ModelName(),
		})
	}
	require.NoError(t, st.UpsertEmbeddings(ctx, embeddings))

	s := NewSearcher(st, embedder, nil)
	results, err := s.Search(ctx, Options{Query: "parse configuration file", Mode: ModeSemantic})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "parse_config", results[0].Symbol.Name)
	assert.NotEqual(t, MatchKeywordFallback, results[0].MatchType)
}

func TestSearchBalancedFusesBothLists(t *testing.T) {
	ctx := context.Background()
	st := seedStore(t)
	embedder := embed.NewStaticEmbedder()

	symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{})
	require.NoError(t, err)
	var embeddings []*store.Embedding
	for _, sym := range symbols {
		vec, err := embedder.Embed(ctx, sym.Signature)
		require.NoError(t, err)
		embeddings = append(embeddings, &store.Embedding{
			SymbolID: sym.ID, Vector: vec, ModelName: embedder.ModelName(),
		})
	}
	require.NoError(t, st.UpsertEmbeddings(ctx, embeddings))

	s := NewSearcher(st, embedder, nil)
	results, err := s.Search(ctx, Options{
		Query: "parse_config", Mode: ModeBalanced, Fusion: FusionWeighted,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "parse_config", results[0].Symbol.Name)
}

func TestSearchEmptyQuery(t *testing.T) {
	st := seedStore(t)
	s := NewSearcher(st, nil, nil)
	_, err := s.Search(context.Background(), Options{Query: "  "})
	require.Error(t, err)
}
