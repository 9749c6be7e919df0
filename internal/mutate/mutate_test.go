package mutate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

func setup(t *testing.T, sources map[string]string) (*Engine, store.Store, string) {
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
	}
	return NewEngine(st, root, nil), st, root
}

const editSource = `def f():
    return 0


def g():
    f()
`

func TestEditReplacesSymbolAndRecordsTransaction(t *testing.T) {
	engine, st, root := setup(t, map[string]string{"m.py": editSource})
	ctx := context.Background()

	result, err := engine.Edit(ctx, EditRequest{
		FilePath:   "m.py",
		SymbolName: "f",
		NewCode:    "def f():\n    return 1",
	})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, result.State)
	assert.NotEmpty(t, result.TransactionID)
	assert.FileExists(t, result.BackupPath)

	content, err := os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "return 1")
	assert.NotContains(t, string(content), "return 0")
	// The untouched symbol survives.
	assert.Contains(t, string(content), "def g():")

	// The index reflects the new signature after the post-edit reindex.
	symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{FilePath: "m.py", Name: "f"})
	require.NoError(t, err)
	require.Len(t, symbols, 1)

	tx, err := st.GetTransaction(ctx, result.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, []string{"m.py"}, tx.Files)
	require.Len(t, tx.ReversePatches, 1)
	assert.Equal(t, editSource, string(tx.ReversePatches[0].OriginalContent))
}

func TestEditThenUndoRestoresExactBytes(t *testing.T) {
	engine, _, root := setup(t, map[string]string{"m.py": editSource})
	ctx := context.Background()

	result, err := engine.Edit(ctx, EditRequest{
		FilePath: "m.py", SymbolName: "f", NewCode: "def f():\n    return 1",
	})
	require.NoError(t, err)

	undo, err := engine.Undo(ctx, result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"m.py"}, undo.FilesRestored)

	content, err := os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.Equal(t, editSource, string(content))

	// Undo is idempotent per transaction id.
	_, err = engine.Undo(ctx, result.TransactionID)
	require.NoError(t, err)
	content, err = os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.Equal(t, editSource, string(content))
}

func TestEditUndoEditYieldsSameBytesAsSingleEdit(t *testing.T) {
	req := EditRequest{FilePath: "m.py", SymbolName: "f", NewCode: "def f():\n    return 1"}
	ctx := context.Background()

	engineA, _, rootA := setup(t, map[string]string{"m.py": editSource})
	_, err := engineA.Edit(ctx, req)
	require.NoError(t, err)
	single, err := os.ReadFile(filepath.Join(rootA, "m.py"))
	require.NoError(t, err)

	engineB, _, rootB := setup(t, map[string]string{"m.py": editSource})
	result, err := engineB.Edit(ctx, req)
	require.NoError(t, err)
	_, err = engineB.Undo(ctx, result.TransactionID)
	require.NoError(t, err)
	_, err = engineB.Edit(ctx, req)
	require.NoError(t, err)
	repeated, err := os.ReadFile(filepath.Join(rootB, "m.py"))
	require.NoError(t, err)

	assert.Equal(t, string(single), string(repeated))
}

func TestEditInvalidSyntaxLeavesFileUntouched(t *testing.T) {
	engine, _, root := setup(t, map[string]string{"m.py": editSource})

	_, err := engine.Edit(context.Background(), EditRequest{
		FilePath: "m.py", SymbolName: "f", NewCode: "def f(:\n    broken",
	})
	require.Error(t, err)

	content, err := os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.Equal(t, editSource, string(content))
}

func TestEditUnknownSymbol(t *testing.T) {
	engine, _, _ := setup(t, map[string]string{"m.py": editSource})
	_, err := engine.Edit(context.Background(), EditRequest{
		FilePath: "m.py", SymbolName: "missing", NewCode: "def missing():\n    pass",
	})
	require.Error(t, err)
	assert.Equal(t, cerrs.ErrCodeSymbolNotFound, cerrs.GetCode(err))
}

func TestEditAmbiguousSymbolNeedsQualifier(t *testing.T) {
	source := `class A:
    def run(self):
        pass


class B:
    def run(self):
        pass
`
	engine, _, _ := setup(t, map[string]string{"dup.py": source})
	ctx := context.Background()

	_, err := engine.Edit(ctx, EditRequest{
		FilePath: "dup.py", SymbolName: "run", NewCode: "def run(self):\n        return 1",
	})
	require.Error(t, err)
	assert.Equal(t, cerrs.ErrCodeAmbiguousSymbol, cerrs.GetCode(err))

	// Qualified by parent class it resolves.
	_, err = engine.Edit(ctx, EditRequest{
		FilePath: "dup.py", SymbolName: "run", ParentClass: "B",
		NewCode: "def run(self):\n        return 1",
	})
	require.NoError(t, err)
}

func TestSymbolGuardBlocksHighRisk(t *testing.T) {
	sources := map[string]string{"lib.py": "def hot():\n    pass\n"}
	callers := ""
	for i := 0; i < 12; i++ {
		callers += "def caller" + string(rune('a'+i)) + "():\n    hot()\n\n\n"
	}
	sources["callers.py"] = callers

	engine, _, _ := setup(t, sources)
	ctx := context.Background()

	_, err := engine.Edit(ctx, EditRequest{
		FilePath: "lib.py", SymbolName: "hot", NewCode: "def hot():\n    return 1",
	})
	require.Error(t, err)
	assert.Equal(t, cerrs.ErrCodeSymbolGuard, cerrs.GetCode(err))

	// Force overrides the guard.
	result, err := engine.Edit(ctx, EditRequest{
		FilePath: "lib.py", SymbolName: "hot", Force: true,
		NewCode: "def hot():\n    return 1",
	})
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, result.Risk)
}

func TestDeleteSymbol(t *testing.T) {
	engine, st, root := setup(t, map[string]string{"m.py": editSource})
	ctx := context.Background()

	_, err := engine.Delete(ctx, DeleteRequest{FilePath: "m.py", SymbolName: "f"})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "m.py"))
	require.NoError(t, err)
	assert.NotContains(t, string(content), "return 0")
	assert.Contains(t, string(content), "def g():")

	symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{FilePath: "m.py", Name: "f"})
	require.NoError(t, err)
	assert.Empty(t, symbols)
}

func TestDeleteKeepsDecorators(t *testing.T) {
	source := `@app.route("/x")
def handler():
    return "x"
`
	engine, _, root := setup(t, map[string]string{"web.py": source})

	_, err := engine.Delete(context.Background(), DeleteRequest{
		FilePath: "web.py", SymbolName: "handler", KeepDecorators: true,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "web.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "@app.route")
	assert.NotContains(t, string(content), "def handler")
}

const batchSource = `def one():
    return 1


def two():
    return 2
`

func TestBatchSuccess(t *testing.T) {
	engine, _, root := setup(t, map[string]string{"b.py": batchSource})

	result, err := engine.Batch(context.Background(), []BatchOp{
		{Edit: &EditRequest{FilePath: "b.py", SymbolName: "one", NewCode: "def one():\n    return 10"}},
		{Edit: &EditRequest{FilePath: "b.py", SymbolName: "two", NewCode: "def two():\n    return 20"}},
	}, BatchOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.RolledBack)
	require.Len(t, result.Ops, 2)
	for _, op := range result.Ops {
		assert.Equal(t, StateCommitted, op.State)
	}

	content, err := os.ReadFile(filepath.Join(root, "b.py"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "return 10")
	assert.Contains(t, string(content), "return 20")
}

func TestBatchVerifyFailureRollsBack(t *testing.T) {
	engine, _, root := setup(t, map[string]string{"b.py": batchSource})

	result, err := engine.Batch(context.Background(), []BatchOp{
		{Edit: &EditRequest{FilePath: "b.py", SymbolName: "one", NewCode: "def one():\n    return 10"}},
		{Edit: &EditRequest{FilePath: "b.py", SymbolName: "two", NewCode: "def two():\n    return 20"}},
	}, BatchOptions{VerifyCommand: "exit 1"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.RolledBack)

	// The files equal their pre-batch bytes.
	content, err := os.ReadFile(filepath.Join(root, "b.py"))
	require.NoError(t, err)
	assert.Equal(t, batchSource, string(content))
}

func TestBatchFailedOpRollsBackEarlierOps(t *testing.T) {
	engine, _, root := setup(t, map[string]string{"b.py": batchSource})

	result, err := engine.Batch(context.Background(), []BatchOp{
		{Edit: &EditRequest{FilePath: "b.py", SymbolName: "one", NewCode: "def one():\n    return 10"}},
		{Edit: &EditRequest{FilePath: "b.py", SymbolName: "ghost", NewCode: "def ghost():\n    pass"}},
	}, BatchOptions{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.RolledBack)
	require.Len(t, result.Ops, 2)
	assert.NotEmpty(t, result.Ops[1].Error)

	content, err := os.ReadFile(filepath.Join(root, "b.py"))
	require.NoError(t, err)
	assert.Equal(t, batchSource, string(content))
}

func TestValidateBalanced(t *testing.T) {
	require.NoError(t, validateBalanced([]byte("fn main() { let x = [1, (2)]; }")))
	require.Error(t, validateBalanced([]byte("fn main() { let x = [1, (2]; }")))
	require.Error(t, validateBalanced([]byte("open ( paren")))
	// Delimiters inside strings are ignored.
	require.NoError(t, validateBalanced([]byte(`msg = "unbalanced ) in string"`)))
}

func TestNormalizeTrailingWhitespaceIdempotent(t *testing.T) {
	input := []byte("line one   \nline two\t\n\n\n")
	once := normalizeTrailingWhitespace(input)
	twice := normalizeTrailingWhitespace(once)
	assert.Equal(t, once, twice)
	assert.Equal(t, "line one\nline two\n", string(once))
}
