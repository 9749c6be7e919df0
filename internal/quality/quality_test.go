package quality

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

func seed(t *testing.T, sources map[string]string) store.Store {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	scanner := scan.NewScanner(nil)
	ctx := context.Background()
	for rel, source := range sources {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(source), 0o644))
		rec, err := scanner.ParseFile(ctx, root, rel)
		require.NoError(t, err)
		require.NoError(t, st.WriteFileRecord(ctx, rec.FileRecord))
	}
	return st
}

func TestDetectMissingDocstringAndMixedNaming(t *testing.T) {
	st := seed(t, map[string]string{
		"mixed.py": `class Undocumented:
    def run(self):
        pass


def snake_func():
    pass


def camelFunc():
    pass
`,
	})

	findings, err := DetectPatterns(context.Background(), st, []string{"mixed.py"})
	require.NoError(t, err)

	kinds := map[string]bool{}
	for _, f := range findings {
		kinds[f.Kind] = true
	}
	assert.True(t, kinds["missing_docstring"])
	assert.True(t, kinds["mixed_naming"])
}

func TestDetectLongFunction(t *testing.T) {
	var b strings.Builder
	b.WriteString("def sprawling():\n")
	for i := 0; i < 90; i++ {
		b.WriteString("    x = 1\n")
	}
	st := seed(t, map[string]string{"long.py": b.String()})

	findings, err := DetectPatterns(context.Background(), st, []string{"long.py"})
	require.NoError(t, err)
	require.NotEmpty(t, findings)
	assert.Equal(t, "long_function", findings[0].Kind)
	assert.Equal(t, "sprawling", findings[0].Symbol)
}

func TestPredictRelatedChanges(t *testing.T) {
	st := seed(t, map[string]string{
		"core.py": "def pivot():\n    pass\n",
		"near.py": "def direct():\n    pivot()\n",
		"far.py":  "def indirect():\n    direct()\n",
	})

	predictions, err := PredictRelatedChanges(context.Background(), st, "pivot", 10)
	require.NoError(t, err)
	require.NotEmpty(t, predictions)

	byName := map[string]Prediction{}
	for _, p := range predictions {
		byName[p.Symbol] = p
	}
	direct, ok := byName["direct"]
	require.True(t, ok)
	indirect, ok := byName["indirect"]
	require.True(t, ok)
	// Direct callers outrank transitive ones.
	assert.Greater(t, direct.Score, indirect.Score)
}

func TestPredictNoCallers(t *testing.T) {
	st := seed(t, map[string]string{"lone.py": "def hermit():\n    pass\n"})
	predictions, err := PredictRelatedChanges(context.Background(), st, "hermit", 5)
	require.NoError(t, err)
	assert.Empty(t, predictions)
}
