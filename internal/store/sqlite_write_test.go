package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpsertFileRefreshesMetadataOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &FileRecord{
		File:    File{Path: "u.py", Size: 10, LastModified: 100},
		Symbols: []*Symbol{{Name: "f", Type: SymbolFunction, FilePath: "u.py", StartLine: 1, EndLine: 2}},
	}
	require.NoError(t, s.WriteFileRecord(ctx, rec))

	require.NoError(t, s.UpsertFile(ctx, &File{Path: "u.py", Size: 20, LastModified: 200}))

	file, err := s.GetFile(ctx, "u.py")
	require.NoError(t, err)
	require.Equal(t, int64(20), file.Size)
	require.Equal(t, int64(200), file.LastModified)

	// Symbols are untouched.
	symbols, err := s.QuerySymbols(ctx, SymbolFilter{FilePath: "u.py"})
	require.NoError(t, err)
	require.Len(t, symbols, 1)
}

func TestQueryImports(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &FileRecord{
		File: File{Path: "i.py", LastModified: 1},
		Imports: []*Import{
			{ImporterFile: "i.py", ImportedModule: "os", ImportLine: 1, ImportedSymbols: []string{}},
			{ImporterFile: "i.py", ImportedModule: "collections", ImportLine: 2, ImportedSymbols: []string{"OrderedDict"}},
		},
	}
	require.NoError(t, s.WriteFileRecord(ctx, rec))

	imports, err := s.QueryImports(ctx, ImportFilter{ImporterFile: "i.py"})
	require.NoError(t, err)
	require.Len(t, imports, 2)
	require.Equal(t, "os", imports[0].ImportedModule)
	require.Equal(t, []string{"OrderedDict"}, imports[1].ImportedSymbols)
}

func TestPruneTransactionsKeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordTransaction(ctx, &Transaction{
			ID:            string(rune('a' + i)),
			OperationType: "edit",
			Files:         []string{"f.py"},
			Timestamp:     time.Unix(int64(1000+i), 0).UTC(),
		}))
	}

	require.NoError(t, s.PruneTransactions(ctx, 2))

	txs, err := s.ListTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, "e", txs[0].ID)
	require.Equal(t, "d", txs[1].ID)
}

func TestEmbeddingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := &FileRecord{
		File:    File{Path: "e.py", LastModified: 1},
		Symbols: []*Symbol{{Name: "f", Type: SymbolFunction, FilePath: "e.py", StartLine: 1, EndLine: 2}},
	}
	require.NoError(t, s.WriteFileRecord(ctx, rec))

	has, err := s.HasEmbeddings(ctx)
	require.NoError(t, err)
	require.False(t, has)

	vec := []float32{0.25, -1.5, 3.0}
	require.NoError(t, s.UpsertEmbeddings(ctx, []*Embedding{
		{SymbolID: rec.Symbols[0].ID, Vector: vec, ModelName: "static-hash-v1"},
	}))

	all, err := s.AllEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, vec, all[0].Vector)

	// Rewriting the file drops the symbol and its embedding together.
	require.NoError(t, s.WriteFileRecord(ctx, &FileRecord{File: File{Path: "e.py", LastModified: 2}}))
	has, err = s.HasEmbeddings(ctx)
	require.NoError(t, err)
	require.False(t, has)
}
