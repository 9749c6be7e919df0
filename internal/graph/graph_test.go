package graph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

// seedProject indexes literal sources into a fresh in-memory store.
func seedProject(t *testing.T, sources map[string]string) (store.Store, string) {
	t.Helper()
	root := t.TempDir()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	scanner := scan.NewScanner(nil)
	ctx := context.Background()
	for rel, source := range sources {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
		rec, err := scanner.ParseFile(ctx, root, rel)
		require.NoError(t, err)
		require.NoError(t, st.WriteFileRecord(ctx, rec.FileRecord))
		if len(rec.References) > 0 {
			require.NoError(t, st.UpsertSymbolReferences(ctx, rec.References))
		}
	}
	return st, root
}

func TestResolveImports(t *testing.T) {
	st, _ := seedProject(t, map[string]string{
		"lib.py":  "def helper():\n    pass\n",
		"main.py": "from lib import helper\n\ndef run():\n    helper()\n",
	})

	resolver := NewResolver(st, nil)
	report, err := resolver.ResolveImports(context.Background(), []string{"main.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.ImportsTotal)
	assert.Equal(t, 1, report.ImportsResolved)
	assert.Equal(t, 1.0, report.ImportResolutionRate())

	links, err := st.QueryImportLinks(context.Background(), store.ImportLinkFilter{ImporterFile: "main.py"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.NotNil(t, links[0].DefinitionFile)
	assert.Equal(t, "lib.py", *links[0].DefinitionFile)
	require.NotNil(t, links[0].DefinitionSymbol)
	assert.Equal(t, "helper", *links[0].DefinitionSymbol)
}

func TestResolveImportsUnresolvedStaysNull(t *testing.T) {
	st, _ := seedProject(t, map[string]string{
		"main.py": "import numpy\n",
	})

	resolver := NewResolver(st, nil)
	report, err := resolver.ResolveImports(context.Background(), []string{"main.py"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.ImportsResolved)

	links, err := st.QueryImportLinks(context.Background(), store.ImportLinkFilter{ImporterFile: "main.py"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Nil(t, links[0].DefinitionFile)
	assert.Nil(t, links[0].DefinitionSymbol)
}

func TestMROLinearization(t *testing.T) {
	st, _ := seedProject(t, map[string]string{
		"animals.py": `class Animal:
    def speak(self):
        pass


class Mammal(Animal):
    pass


class Dog(Mammal):
    def speak(self):
        pass
`,
	})

	mro, err := MRO(context.Background(), st, "Dog")
	require.NoError(t, err)

	require.Len(t, mro.Order, 3)
	assert.Equal(t, "Dog", mro.Order[0].Name)
	assert.Equal(t, 0, mro.Order[0].Depth)
	assert.Equal(t, "Mammal", mro.Order[1].Name)
	assert.Equal(t, 1, mro.Order[1].Depth)
	assert.Equal(t, "Animal", mro.Order[2].Name)
	assert.Equal(t, 2, mro.Order[2].Depth)
	assert.Equal(t, 1.0, mro.Confidence)
}

func TestMROUnknownBaseLowersConfidence(t *testing.T) {
	st, _ := seedProject(t, map[string]string{
		"ext.py": "class Widget(QObject):\n    pass\n",
	})

	mro, err := MRO(context.Background(), st, "Widget")
	require.NoError(t, err)
	require.Len(t, mro.Order, 2)
	assert.False(t, mro.Order[1].Found)
	assert.Less(t, mro.Confidence, 1.0)
}

const callGraphSource = `def a():
    b()


def b():
    a()


def c():
    a()
    b()
`

func TestForwardGraphCycleSafe(t *testing.T) {
	st, _ := seedProject(t, map[string]string{"cg.py": callGraphSource})

	g, err := ForwardGraph(context.Background(), st, "a", TraversalOptions{MaxDepth: 5})
	require.NoError(t, err)

	// A -> B -> A terminates: two nodes, the A->B and B->A edges, no
	// truncation.
	assert.Len(t, g.Nodes, 2)
	assert.False(t, g.Truncated)
	assert.LessOrEqual(t, g.MaxDepthReached, 5)

	var edges []string
	for _, e := range g.Edges {
		edges = append(edges, e.From+"->"+e.To)
	}
	assert.ElementsMatch(t, []string{"a->b", "b->a"}, edges)
}

func TestReverseGraph(t *testing.T) {
	st, _ := seedProject(t, map[string]string{"cg.py": callGraphSource})

	g, err := ReverseGraph(context.Background(), st, "b", TraversalOptions{MaxDepth: 1})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, n := range g.Nodes {
		names[n.Name] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["c"])
}

func TestGraphNodeCapTruncates(t *testing.T) {
	source := "def root():\n"
	for i := 0; i < 10; i++ {
		source += "    leaf" + string(rune('0'+i)) + "()\n"
	}
	source += "\n"
	for i := 0; i < 10; i++ {
		source += "def leaf" + string(rune('0'+i)) + "():\n    pass\n\n"
	}
	st, _ := seedProject(t, map[string]string{"wide.py": source})

	g, err := ForwardGraph(context.Background(), st, "root", TraversalOptions{MaxDepth: 2, NodeCap: 4})
	require.NoError(t, err)
	assert.True(t, g.Truncated)
	assert.Len(t, g.Nodes, 4)
}

func TestPathTrace(t *testing.T) {
	st, _ := seedProject(t, map[string]string{
		"chain.py": `def top():
    middle()


def middle():
    bottom()


def bottom():
    pass
`,
	})

	paths, err := PathTrace(context.Background(), st, "top", "bottom", 5)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	require.Len(t, paths[0], 3)
	assert.Equal(t, "top", paths[0][0].Symbol)
	assert.Equal(t, "middle", paths[0][1].Symbol)
	assert.Equal(t, "bottom", paths[0][2].Symbol)
}

func TestPathTraceNoPath(t *testing.T) {
	st, _ := seedProject(t, map[string]string{
		"iso.py": "def alone():\n    pass\n\n\ndef island():\n    pass\n",
	})

	paths, err := PathTrace(context.Background(), st, "alone", "island", 3)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestAssembleContext(t *testing.T) {
	st, root := seedProject(t, map[string]string{
		"shapes.py": `class Shape:
    """Base shape."""

    def area(self):
        pass


class Circle(Shape):
    def area(self):
        return 3


def describe():
    c = Circle()
    c.area()
`,
	})

	result, err := AssembleContext(context.Background(), st, root, "Circle", ContextOptions{
		IncludeBases: true, IncludeCallers: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Circle", result.Target.Name)
	assert.Contains(t, result.Source, "class Circle(Shape)")

	require.Len(t, result.Bases, 1)
	assert.Equal(t, "Shape", result.Bases[0].Name)
	assert.Equal(t, "Base shape.", result.Bases[0].Docstring)
	assert.NotEmpty(t, result.Bases[0].Methods)

	assert.Greater(t, result.CompressionRatio, 0.0)
	assert.Less(t, result.CompressionRatio, 1.0)
}

func TestAssembleContextMissingSymbol(t *testing.T) {
	st, root := seedProject(t, map[string]string{"x.py": "def x():\n    pass\n"})
	_, err := AssembleContext(context.Background(), st, root, "nope", ContextOptions{})
	require.Error(t, err)
}
