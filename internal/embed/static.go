package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// StaticEmbedder is the hash-based embedder: tokens and character
// trigrams hashed into a fixed-dimension bag, then unit-normalized.
// Identical text always yields an identical vector.
type StaticEmbedder struct{}

// keywordStopWords filters language keywords that carry no retrieval
// signal.
var keywordStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder returns the deterministic embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, Dimensions), nil
	}

	vector := make([]float32, Dimensions)

	for _, token := range tokenizeIdentifiers(trimmed) {
		if keywordStopWords[token] {
			continue
		}
		vector[hashToIndex(token)] += tokenWeight
	}

	lowered := strings.ToLower(trimmed)
	for i := 0; i+ngramSize <= len(lowered); i++ {
		vector[hashToIndex(lowered[i:i+ngramSize])] += ngramWeight
	}

	return normalizeVector(vector), nil
}

func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (e *StaticEmbedder) Dimensions() int { return Dimensions }

func (e *StaticEmbedder) ModelName() string { return "static-hash-v1" }

func (e *StaticEmbedder) Close() error { return nil }

// tokenizeIdentifiers splits text into lowercase tokens, breaking
// camelCase and snake_case identifiers apart.
func tokenizeIdentifiers(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, sub := range splitCamel(word) {
			if sub != "" {
				tokens = append(tokens, strings.ToLower(sub))
			}
		}
	}
	return tokens
}

// splitCamel breaks fooBarHTTP into [foo, Bar, HTTP].
func splitCamel(s string) []string {
	var parts []string
	start := 0
	for i := 1; i < len(s); i++ {
		prevLower := s[i-1] >= 'a' && s[i-1] <= 'z'
		currUpper := s[i] >= 'A' && s[i] <= 'Z'
		nextLower := i+1 < len(s) && s[i+1] >= 'a' && s[i+1] <= 'z'
		if currUpper && (prevLower || nextLower) {
			parts = append(parts, s[start:i])
			start = i
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(Dimensions))
}
