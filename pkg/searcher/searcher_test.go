package searcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerberusindex/cerberus/internal/graph"
	"github.com/cerberusindex/cerberus/internal/retrieve"
	"github.com/cerberusindex/cerberus/pkg/indexer"
)

func openIndexed(t *testing.T, files map[string]string) (*Searcher, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	indexPath := filepath.Join(root, "cerberus.db")
	_, err := indexer.Index(context.Background(), root, indexer.Options{IndexPath: indexPath})
	require.NoError(t, err)

	s, err := Open(root, indexPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, root
}

const facadeSource = `class Greeter:
    """Greets people."""

    def greet(self, name):
        return "hi " + name


def main():
    g = Greeter()
    g.greet("you")
`

func TestFacadeSearchAndGet(t *testing.T) {
	s, _ := openIndexed(t, map[string]string{"app.py": facadeSource})
	ctx := context.Background()

	results, err := s.Search(ctx, retrieve.Options{Query: "greet", Mode: retrieve.ModeKeyword})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// No daemon is running; the lookup falls back to the direct store.
	symbols, err := s.GetSymbol(ctx, "greet", "", "")
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "Greeter", symbols[0].ParentClass)
}

func TestFacadeBlueprintAndGraph(t *testing.T) {
	s, _ := openIndexed(t, map[string]string{"app.py": facadeSource})
	ctx := context.Background()

	bp, err := s.Blueprint(ctx, "app.py")
	require.NoError(t, err)
	require.NotEmpty(t, bp.Entries)

	callers, err := s.Callers(ctx, "greet", graph.TraversalOptions{MaxDepth: 1})
	require.NoError(t, err)
	require.NotNil(t, callers)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalFiles)

	integrity, err := s.Integrity(ctx)
	require.NoError(t, err)
	assert.True(t, integrity.Clean())
}
