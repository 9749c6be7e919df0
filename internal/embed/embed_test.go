package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "def parse_config(path):")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "def parse_config(path):")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, Dimensions)
}

func TestStaticEmbedderUnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "handleRequest dispatches the request")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, Cosine(v, v), 1e-6)
}

func TestStaticEmbedderEmptyInput(t *testing.T) {
	e := NewStaticEmbedder()
	v, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, v, Dimensions)
	assert.Equal(t, float64(0), Cosine(v, v))
}

func TestSimilarTextScoresHigherThanUnrelated(t *testing.T) {
	e := NewStaticEmbedder()
	ctx := context.Background()

	query, _ := e.Embed(ctx, "parse configuration file")
	related, _ := e.Embed(ctx, "def parse_config(path): parse the configuration file")
	unrelated, _ := e.Embed(ctx, "zebra quantum firmware blink")

	assert.Greater(t, Cosine(query, related), Cosine(query, unrelated))
}

func TestEmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestSplitCamel(t *testing.T) {
	assert.Equal(t, []string{"foo", "Bar"}, splitCamel("fooBar"))
	assert.Equal(t, []string{"HTTP", "Server"}, splitCamel("HTTPServer"))
	assert.Equal(t, []string{"plain"}, splitCamel("plain"))
}
