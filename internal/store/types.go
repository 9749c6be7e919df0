// Package store implements the persistent SQLite-backed index: a split
// schema of files, symbols, calls, imports, references, and an FTS5 mirror
// of symbol text, with WAL journaling and single-writer discipline.
package store

import (
	"context"
	"fmt"
	"time"
)

// SymbolType enumerates the kinds of definitions the scanner extracts.
type SymbolType string

const (
	SymbolFunction  SymbolType = "function"
	SymbolClass     SymbolType = "class"
	SymbolMethod    SymbolType = "method"
	SymbolVariable  SymbolType = "variable"
	SymbolInterface SymbolType = "interface"
)

// ReferenceType enumerates the kinds of symbol-to-symbol edges tracked in
// symbol_references.
type ReferenceType string

const (
	RefMethodCall     ReferenceType = "method_call"
	RefInstanceOf     ReferenceType = "instance_of"
	RefInherits       ReferenceType = "inherits"
	RefTypeAnnotation ReferenceType = "type_annotation"
	RefReturnType     ReferenceType = "return_type"
)

// File is a single scanned source file.
type File struct {
	Path         string
	Size         int64
	LastModified int64 // unix seconds
	Extension    string
	Hash         string // optional content hash
}

// Symbol is a function/class/method/variable/interface definition.
// Identity is the tuple (FilePath, ParentClass, Name, StartLine).
// Pre-existing duplicate rows exist in practice; readers dedupe them on
// DedupeKey, which does not include FilePath.
type Symbol struct {
	ID          int64
	Name        string
	Type        SymbolType
	FilePath    string
	StartLine   int
	EndLine     int
	Signature   string
	ParentClass string // empty if not a method
	Docstring   string
}

// DedupeKey returns the canonical tuple readers dedupe duplicate rows on.
func (s *Symbol) DedupeKey() string {
	return fmt.Sprintf("%s\x00%d\x00%d\x00%s\x00%s", s.Name, s.StartLine, s.EndLine, s.Type, s.ParentClass)
}

// Import is a raw, unresolved import statement.
type Import struct {
	ID              int64
	ImporterFile    string
	ImportedModule  string
	ImportLine      int
	ImportedSymbols []string // empty slice means wildcard/whole-module import
}

// ImportLink is a resolved Import: same fields plus the resolution outcome.
type ImportLink struct {
	ID               int64
	ImporterFile     string
	ImportedModule   string
	ImportLine       int
	ImportedSymbols  []string
	DefinitionFile   *string // nil if unresolved/external
	DefinitionSymbol *string
}

// Call is a coarse, name-only call edge.
type Call struct {
	ID         int64
	CallerFile string
	Callee     string
	Line       int
}

// MethodCall is a receiver.method(...) call edge, with best-effort receiver
// type tracking.
type MethodCall struct {
	ID           int64
	CallerFile   string
	Line         int
	Receiver     string
	Method       string
	ReceiverType *string // nil if type tracking failed
}

// SymbolReference is a resolved edge between a source symbol and a target
// symbol (method call, inheritance, type annotation, ...).
type SymbolReference struct {
	ID               int64
	SourceFile       string
	SourceLine       int
	SourceSymbol     string
	ReferenceType    ReferenceType
	TargetFile       *string
	TargetSymbol     *string
	TargetType       string
	Confidence       float64
	ResolutionMethod string
}

// TypeInfo is a best-effort variable-to-type binding.
type TypeInfo struct {
	ID       int64
	Variable string
	File     string
	Line     int
	TypeName string
}

// Embedding is a fixed-dimension vector tied to a symbol.
type Embedding struct {
	SymbolID  int64
	Vector    []float32
	ModelName string
}

// ReversePatch is the pre-change bytes of a single file, sufficient to
// restore it verbatim.
type ReversePatch struct {
	FilePath        string
	OriginalContent []byte
}

// Transaction is an append-only undo-stack entry.
type Transaction struct {
	ID             string
	OperationType  string
	Files          []string
	ReversePatches []ReversePatch
	Timestamp      time.Time
}

// BlueprintCacheEntry is the cached structural view of a file.
type BlueprintCacheEntry struct {
	FilePath            string
	SerializedBlueprint string
	SourceMtime         int64
	CreatedAt           time.Time
}

// SymbolFilter parameterizes query_symbols. Zero-value fields are wildcards.
type SymbolFilter struct {
	FilePath    string
	Name        string
	Type        SymbolType
	ParentClass string
}

// CallFilter parameterizes query_calls.
type CallFilter struct {
	CallerFile string
	Callee     string
}

// MethodCallFilter parameterizes query_method_calls_filtered.
type MethodCallFilter struct {
	Method       string
	Receiver     string
	ReceiverType string
	File         string
}

// SymbolReferenceFilter parameterizes query_symbol_references_filtered.
type SymbolReferenceFilter struct {
	SourceFile    string
	SourceSymbol  string
	TargetFile    string
	TargetSymbol  string
	ReferenceType ReferenceType
}

// ImportLinkFilter parameterizes query_import_links.
type ImportLinkFilter struct {
	ImporterFile string
}

// ImportFilter parameterizes queries over raw, unresolved imports.
type ImportFilter struct {
	ImporterFile string
}

// FTSResult is a single FTS5 match, BM25 score normalized so higher is
// better (the raw bm25() value is negated, see sqlite_read.go).
type FTSResult struct {
	SymbolID int64
	Score    float64
}

// FileRecord is the complete per-file extraction result the scanner/
// incremental engine writes in a single transaction.
type FileRecord struct {
	File        File
	Symbols     []*Symbol
	Calls       []*Call
	Imports     []*Import
	MethodCalls []*MethodCall
	TypeInfos   []*TypeInfo
}

// IntegrityReport is the result of an FTS/metadata consistency check.
type IntegrityReport struct {
	OrphanFTSIDs      []int64 // rows in symbols_fts with no matching symbols row
	OrphanSymbolIDs   []int64 // rows in symbols with no matching symbols_fts row
	OrphanImportLinks int64   // import_links referencing a missing file
	OrphanReferences  int64   // symbol_references referencing missing targets
}

// Clean reports whether the integrity check found no divergence.
func (r *IntegrityReport) Clean() bool {
	return len(r.OrphanFTSIDs) == 0 && len(r.OrphanSymbolIDs) == 0 &&
		r.OrphanImportLinks == 0 && r.OrphanReferences == 0
}

// Stats is an index-wide summary.
type Stats struct {
	TotalFiles      int
	TotalSymbols    int
	SymbolTypeCount map[SymbolType]int
}

// Store is the single capability surface over the index: queries and write
// primitives. Loaders return it directly; there is no secondary "adapter"
// indirection.
type Store interface {
	// Write path.
	WriteFileRecord(ctx context.Context, rec *FileRecord) error
	DeleteFile(ctx context.Context, path string) error
	ReplaceSymbolsInRange(ctx context.Context, path string, startLine, endLine int, symbols []*Symbol) error
	UpsertFile(ctx context.Context, file *File) error

	// Read path.
	QuerySymbols(ctx context.Context, filter SymbolFilter) ([]*Symbol, error)
	GetSymbolByID(ctx context.Context, id int64) (*Symbol, error)
	QueryCalls(ctx context.Context, filter CallFilter) ([]*Call, error)
	QueryMethodCallsFiltered(ctx context.Context, filter MethodCallFilter) ([]*MethodCall, error)
	QuerySymbolReferencesFiltered(ctx context.Context, filter SymbolReferenceFilter) ([]*SymbolReference, error)
	QueryImports(ctx context.Context, filter ImportFilter) ([]*Import, error)
	QueryImportLinks(ctx context.Context, filter ImportLinkFilter) ([]*ImportLink, error)
	ListFiles(ctx context.Context) ([]*File, error)
	GetFile(ctx context.Context, path string) (*File, error)

	// Resolution writes (used by C8/C5 cascade).
	UpsertImportLinks(ctx context.Context, links []*ImportLink) error
	UpsertSymbolReferences(ctx context.Context, refs []*SymbolReference) error

	// Embeddings (optional, C7 semantic path).
	UpsertEmbeddings(ctx context.Context, embeddings []*Embedding) error
	GetEmbeddings(ctx context.Context, symbolIDs []int64) ([]*Embedding, error)
	AllEmbeddings(ctx context.Context) ([]*Embedding, error)
	HasEmbeddings(ctx context.Context) (bool, error)

	// Metadata key/value (schema version, git commit, scan timestamps).
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key, value string) error

	// Full-text search.
	FTSMatch(ctx context.Context, query string, limit int) ([]FTSResult, error)

	// Mutation engine support (C9).
	RecordTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]*Transaction, error)
	PruneTransactions(ctx context.Context, keep int) error

	// Blueprint cache (C10).
	GetBlueprintCache(ctx context.Context, path string) (*BlueprintCacheEntry, error)
	PutBlueprintCache(ctx context.Context, entry *BlueprintCacheEntry) error

	// Integrity & stats.
	CheckIntegrity(ctx context.Context) (*IntegrityReport, error)
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// VectorStore is the capability surface over the optional HNSW vector
// index (symbol embeddings only; persistence is sidecar, see hnsw.go).
type VectorStore interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs() []string
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorStoreConfig configures the HNSW graph.
type VectorStoreConfig struct {
	Dimensions int
	Metric     string // "cos" or "l2"
	M          int
	EfSearch   int
}

// DefaultVectorStoreConfig returns the default HNSW configuration for the
// given embedding dimensionality.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   20,
	}
}

// ErrDimensionMismatch is returned when a vector's dimensionality doesn't
// match the store's configured dimensions.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
