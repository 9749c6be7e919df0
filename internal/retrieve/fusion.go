package retrieve

import "sort"

// RRFConstant is the standard smoothing parameter; k=60 is the widely
// validated default.
const RRFConstant = 60

// fused is an intermediate fusion entry before ranking.
type fused struct {
	ID        int64
	BM25      float64
	Cosine    float64
	Hybrid    float64
	MatchType MatchType
}

// FuseRRF merges a keyword list and a semantic list by reciprocal rank:
// score(s) = Σ over lists 1/(k + rank_in_list(s)). Original scores are
// preserved on the output for reporting.
func FuseRRF(keyword, semantic []Candidate) []fused {
	byID := make(map[int64]*fused)

	for rank, c := range keyword {
		entry := &fused{ID: c.ID, BM25: c.Score, MatchType: MatchKeyword}
		entry.Hybrid = 1.0 / float64(RRFConstant+rank+1)
		byID[c.ID] = entry
	}
	for rank, c := range semantic {
		if entry, ok := byID[c.ID]; ok {
			entry.Cosine = c.Score
			entry.Hybrid += 1.0 / float64(RRFConstant+rank+1)
			entry.MatchType = MatchBoth
			continue
		}
		byID[c.ID] = &fused{
			ID:        c.ID,
			Cosine:    c.Score,
			Hybrid:    1.0 / float64(RRFConstant+rank+1),
			MatchType: MatchSemantic,
		}
	}

	return rankFused(byID)
}

// FuseWeighted merges the lists by weighted min-max-normalized scores:
// score(s) = wKeyword·norm(bm25) + wSemantic·norm(cos). Zero weights
// default to 0.5/0.5.
func FuseWeighted(keyword, semantic []Candidate, wKeyword, wSemantic float64) []fused {
	if wKeyword == 0 && wSemantic == 0 {
		wKeyword, wSemantic = 0.5, 0.5
	}

	normKW := normalizeScores(keyword)
	normSem := normalizeScores(semantic)

	byID := make(map[int64]*fused)
	for i, c := range keyword {
		byID[c.ID] = &fused{
			ID:        c.ID,
			BM25:      c.Score,
			Hybrid:    wKeyword * normKW[i],
			MatchType: MatchKeyword,
		}
	}
	for i, c := range semantic {
		if entry, ok := byID[c.ID]; ok {
			entry.Cosine = c.Score
			entry.Hybrid += wSemantic * normSem[i]
			entry.MatchType = MatchBoth
			continue
		}
		byID[c.ID] = &fused{
			ID:        c.ID,
			Cosine:    c.Score,
			Hybrid:    wSemantic * normSem[i],
			MatchType: MatchSemantic,
		}
	}

	return rankFused(byID)
}

// normalizeScores min-max normalizes one list's scores into [0,1]. A
// single-element or constant list maps to 1.0.
func normalizeScores(list []Candidate) []float64 {
	if len(list) == 0 {
		return nil
	}
	min, max := list[0].Score, list[0].Score
	for _, c := range list[1:] {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	norm := make([]float64, len(list))
	for i, c := range list {
		if max == min {
			norm[i] = 1.0
			continue
		}
		norm[i] = (c.Score - min) / (max - min)
	}
	return norm
}

// rankFused orders by hybrid score descending with the ID as a
// deterministic tie-break.
func rankFused(byID map[int64]*fused) []fused {
	out := make([]fused, 0, len(byID))
	for _, entry := range byID {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Hybrid != out[j].Hybrid {
			return out[i].Hybrid > out[j].Hybrid
		}
		return out[i].ID < out[j].ID
	})
	return out
}
