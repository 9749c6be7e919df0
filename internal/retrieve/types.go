// Package retrieve is the hybrid retrieval layer: FTS5 keyword search,
// vector search over stored embeddings, rank fusion, and the auto-mode
// query classifier.
package retrieve

import (
	"github.com/cerberusindex/cerberus/internal/store"
)

// Mode selects the retrieval strategy.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeBalanced Mode = "balanced"
	ModeAuto     Mode = "auto"
)

// MatchType tags which lists a result appeared in.
type MatchType string

const (
	MatchKeyword  MatchType = "keyword"
	MatchSemantic MatchType = "semantic"
	MatchBoth     MatchType = "both"
	// MatchKeywordFallback tags results of a semantic request that fell
	// back to keyword search because no embeddings exist.
	MatchKeywordFallback MatchType = "keyword_fallback"
)

// FusionMethod selects how the two ranked lists merge.
type FusionMethod string

const (
	// FusionRRF is reciprocal rank fusion: score = Σ 1/(k + rank).
	FusionRRF FusionMethod = "rrf"
	// FusionWeighted is w_kw·normalize(bm25) + w_sem·normalize(cos) with
	// min-max per-list normalization.
	FusionWeighted FusionMethod = "weighted"
)

// Options parameterizes one search.
type Options struct {
	Query  string
	Mode   Mode
	Fusion FusionMethod
	Limit  int

	// KeywordWeight/SemanticWeight apply to FusionWeighted; both default
	// to 0.5.
	KeywordWeight  float64
	SemanticWeight float64
}

// Result is one ranked hit, hydrated from the store.
type Result struct {
	Rank      int
	SymbolID  int64
	BM25      float64
	Cosine    float64
	Hybrid    float64
	MatchType MatchType
	Symbol    *store.Symbol
}

// Candidate is one entry of a ranked list entering fusion.
type Candidate struct {
	ID    int64
	Score float64
}
