package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, ch <-chan Result) []Result {
	t.Helper()
	var results []Result
	for res := range ch {
		results = append(results, res)
	}
	return results
}

func TestScanEmitsSortedOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.py", "def b():\n    pass\n")
	writeFile(t, root, "a.py", "def a():\n    pass\n")
	writeFile(t, root, "sub/c.py", "def c():\n    pass\n")

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 3)
	assert.Equal(t, "a.py", results[0].Path)
	assert.Equal(t, "b.py", results[1].Path)
	assert.Equal(t, "sub/c.py", results[2].Path)
	for _, res := range results {
		require.NoError(t, res.Err)
		require.NotNil(t, res.Record)
	}
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated.py\nskipdir/\n")
	writeFile(t, root, "kept.py", "def kept():\n    pass\n")
	writeFile(t, root, "generated.py", "def gen():\n    pass\n")
	writeFile(t, root, "skipdir/inner.py", "def inner():\n    pass\n")

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 1)
	assert.Equal(t, "kept.py", results[0].Path)
}

func TestScanSkipsBinaryAndUnknownExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "code.py", "def f():\n    pass\n")
	writeFile(t, root, "notes.txt", "plain text")
	require.NoError(t, os.WriteFile(filepath.Join(root, "blob.py"), []byte{'x', 0, 'y'}, 0o644))

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)

	results := collect(t, ch)
	// notes.txt has no registered grammar; blob.py sniffs binary and
	// yields a metadata-only record.
	require.Len(t, results, 2)
	assert.Equal(t, "blob.py", results[0].Path)
	assert.Empty(t, results[0].Record.FileRecord.Symbols)
	assert.Equal(t, "code.py", results[1].Path)
	assert.Len(t, results[1].Record.FileRecord.Symbols, 1)
}

func TestScanSkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.py", "def f():\n    pass\n")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.py"), filepath.Join(root, "link.py")))

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 1)
	assert.Equal(t, "real.py", results[0].Path)
}

func TestScanOversizeFileIsMetadataOnly(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.py", "def f():\n    pass\n# padding padding padding\n")

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root, MaxFileBytes: 10})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 1)
	rec := results[0].Record
	require.NotNil(t, rec)
	assert.Empty(t, rec.FileRecord.Symbols)
	assert.Greater(t, rec.FileRecord.File.Size, int64(10))
}

func TestScanExtensionFilter(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.py", "def a():\n    pass\n")
	writeFile(t, root, "b.go", "package b\n\nfunc B() {}\n")

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root, Extensions: []string{"py"}})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 1)
	assert.Equal(t, "a.py", results[0].Path)
}

func TestParseFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.py", "def solo():\n    pass\n")

	s := NewScanner(nil)
	rec, err := s.ParseFile(context.Background(), root, "one.py")
	require.NoError(t, err)
	require.Len(t, rec.FileRecord.Symbols, 1)
	assert.Equal(t, "solo", rec.FileRecord.Symbols[0].Name)
}

func TestParseErrorDoesNotAbortScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "good.py", "def ok():\n    pass\n")
	// Tree-sitter recovers from syntax errors, so a broken file still
	// yields a record rather than an error; the scan must not stop.
	writeFile(t, root, "broken.py", "def broken(:\n")

	s := NewScanner(nil)
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)

	results := collect(t, ch)
	require.Len(t, results, 2)
	var good *Result
	for i := range results {
		if results[i].Path == "good.py" {
			good = &results[i]
		}
	}
	require.NotNil(t, good)
	require.NoError(t, good.Err)
	assert.Len(t, good.Record.FileRecord.Symbols, 1)
}
