// Package scan walks a directory tree and parses source files into
// symbols, calls, imports, method calls, and type bindings, using
// tree-sitter grammars per language. Records are emitted in stable
// depth-first order so incremental diffs are deterministic.
package scan

import (
	"github.com/cerberusindex/cerberus/internal/store"
)

// Record is the complete extraction result for one file: the store-facing
// FileRecord plus the syntax-level reference edges (inheritance) whose
// targets are resolved later by the resolution layer.
type Record struct {
	FileRecord *store.FileRecord
	References []*store.SymbolReference
}

// Result is one element of the scan stream: a record, or the error that
// prevented the file from being parsed. A parse error never aborts the
// scan; the file is skipped and reported here.
type Result struct {
	Path   string
	Record *Record
	Err    error
}

// Options configures a scan.
type Options struct {
	// Root is the directory to walk.
	Root string

	// Extensions restricts the scan to these file extensions. Empty means
	// every extension the registry supports.
	Extensions []string

	// MaxFileBytes, when positive, stops the scanner from reading files
	// larger than this; their records carry metadata only so the enforcer
	// downstream can skip them without the read cost.
	MaxFileBytes int64

	// Workers bounds the parallel parser pool. Zero means GOMAXPROCS.
	Workers int

	// NoIgnore disables honoring .gitignore files.
	NoIgnore bool
}
