package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

func (s *sqliteStore) QuerySymbols(ctx context.Context, filter SymbolFilter) ([]*Symbol, error) {
	query := `SELECT id, name, type, file_path, start_line, end_line, signature, parent_class, docstring FROM symbols WHERE 1=1`
	var args []any

	if filter.FilePath != "" {
		query += " AND file_path = ?"
		args = append(args, filter.FilePath)
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.ParentClass != "" {
		query += " AND parent_class = ?"
		args = append(args, filter.ParentClass)
	}
	query += " ORDER BY start_line, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func scanSymbol(rows *sql.Rows) (*Symbol, error) {
	sym := &Symbol{}
	var typ string
	if err := rows.Scan(&sym.ID, &sym.Name, &typ, &sym.FilePath, &sym.StartLine, &sym.EndLine,
		&sym.Signature, &sym.ParentClass, &sym.Docstring); err != nil {
		return nil, fmt.Errorf("scan symbol: %w", err)
	}
	sym.Type = SymbolType(typ)
	return sym, nil
}

func (s *sqliteStore) GetSymbolByID(ctx context.Context, id int64) (*Symbol, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, file_path, start_line, end_line, signature, parent_class, docstring
		 FROM symbols WHERE id = ?`, id)

	sym := &Symbol{}
	var typ string
	err := row.Scan(&sym.ID, &sym.Name, &typ, &sym.FilePath, &sym.StartLine, &sym.EndLine,
		&sym.Signature, &sym.ParentClass, &sym.Docstring)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get symbol by id: %w", err)
	}
	sym.Type = SymbolType(typ)
	return sym, nil
}

func (s *sqliteStore) QueryCalls(ctx context.Context, filter CallFilter) ([]*Call, error) {
	query := "SELECT id, caller_file, callee, line FROM calls WHERE 1=1"
	var args []any
	if filter.CallerFile != "" {
		query += " AND caller_file = ?"
		args = append(args, filter.CallerFile)
	}
	if filter.Callee != "" {
		query += " AND callee = ?"
		args = append(args, filter.Callee)
	}
	query += " ORDER BY line"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []*Call
	for rows.Next() {
		c := &Call{}
		if err := rows.Scan(&c.ID, &c.CallerFile, &c.Callee, &c.Line); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) QueryMethodCallsFiltered(ctx context.Context, filter MethodCallFilter) ([]*MethodCall, error) {
	query := "SELECT id, caller_file, line, receiver, method, receiver_type FROM method_calls WHERE 1=1"
	var args []any
	if filter.Method != "" {
		query += " AND method = ?"
		args = append(args, filter.Method)
	}
	if filter.Receiver != "" {
		query += " AND receiver = ?"
		args = append(args, filter.Receiver)
	}
	if filter.ReceiverType != "" {
		query += " AND receiver_type = ?"
		args = append(args, filter.ReceiverType)
	}
	if filter.File != "" {
		query += " AND caller_file = ?"
		args = append(args, filter.File)
	}
	query += " ORDER BY line"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query method calls: %w", err)
	}
	defer rows.Close()

	var out []*MethodCall
	for rows.Next() {
		mc := &MethodCall{}
		if err := rows.Scan(&mc.ID, &mc.CallerFile, &mc.Line, &mc.Receiver, &mc.Method, &mc.ReceiverType); err != nil {
			return nil, fmt.Errorf("scan method call: %w", err)
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) QuerySymbolReferencesFiltered(ctx context.Context, filter SymbolReferenceFilter) ([]*SymbolReference, error) {
	query := `SELECT id, source_file, source_line, source_symbol, reference_type, target_file, target_symbol, target_type, confidence, resolution_method
	          FROM symbol_references WHERE 1=1`
	var args []any
	if filter.SourceFile != "" {
		query += " AND source_file = ?"
		args = append(args, filter.SourceFile)
	}
	if filter.SourceSymbol != "" {
		query += " AND source_symbol = ?"
		args = append(args, filter.SourceSymbol)
	}
	if filter.TargetFile != "" {
		query += " AND target_file = ?"
		args = append(args, filter.TargetFile)
	}
	if filter.TargetSymbol != "" {
		query += " AND target_symbol = ?"
		args = append(args, filter.TargetSymbol)
	}
	if filter.ReferenceType != "" {
		query += " AND reference_type = ?"
		args = append(args, string(filter.ReferenceType))
	}
	query += " ORDER BY source_line"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbol references: %w", err)
	}
	defer rows.Close()

	var out []*SymbolReference
	for rows.Next() {
		r := &SymbolReference{}
		var refType string
		if err := rows.Scan(&r.ID, &r.SourceFile, &r.SourceLine, &r.SourceSymbol, &refType,
			&r.TargetFile, &r.TargetSymbol, &r.TargetType, &r.Confidence, &r.ResolutionMethod); err != nil {
			return nil, fmt.Errorf("scan symbol reference: %w", err)
		}
		r.ReferenceType = ReferenceType(refType)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) QueryImports(ctx context.Context, filter ImportFilter) ([]*Import, error) {
	query := `SELECT id, importer_file, imported_module, import_line, imported_symbols_json FROM imports WHERE 1=1`
	var args []any
	if filter.ImporterFile != "" {
		query += " AND importer_file = ?"
		args = append(args, filter.ImporterFile)
	}
	query += " ORDER BY import_line"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query imports: %w", err)
	}
	defer rows.Close()

	var out []*Import
	for rows.Next() {
		imp := &Import{}
		var symbolsJSON string
		if err := rows.Scan(&imp.ID, &imp.ImporterFile, &imp.ImportedModule, &imp.ImportLine, &symbolsJSON); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		if err := json.Unmarshal([]byte(symbolsJSON), &imp.ImportedSymbols); err != nil {
			return nil, fmt.Errorf("unmarshal imported symbols: %w", err)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

func (s *sqliteStore) QueryImportLinks(ctx context.Context, filter ImportLinkFilter) ([]*ImportLink, error) {
	query := `SELECT id, importer_file, imported_module, import_line, imported_symbols_json, definition_file, definition_symbol
	          FROM import_links WHERE 1=1`
	var args []any
	if filter.ImporterFile != "" {
		query += " AND importer_file = ?"
		args = append(args, filter.ImporterFile)
	}
	query += " ORDER BY import_line"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query import links: %w", err)
	}
	defer rows.Close()

	var out []*ImportLink
	for rows.Next() {
		l := &ImportLink{}
		var symbolsJSON string
		if err := rows.Scan(&l.ID, &l.ImporterFile, &l.ImportedModule, &l.ImportLine, &symbolsJSON,
			&l.DefinitionFile, &l.DefinitionSymbol); err != nil {
			return nil, fmt.Errorf("scan import link: %w", err)
		}
		if err := json.Unmarshal([]byte(symbolsJSON), &l.ImportedSymbols); err != nil {
			return nil, fmt.Errorf("unmarshal imported symbols: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListFiles(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, size, last_modified, extension, hash FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.Path, &f.Size, &f.LastModified, &f.Extension, &f.Hash); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetFile(ctx context.Context, path string) (*File, error) {
	row := s.db.QueryRowContext(ctx, "SELECT path, size, last_modified, extension, hash FROM files WHERE path = ?", path)
	f := &File{}
	err := row.Scan(&f.Path, &f.Size, &f.LastModified, &f.Extension, &f.Hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (s *sqliteStore) GetEmbeddings(ctx context.Context, symbolIDs []int64) ([]*Embedding, error) {
	if len(symbolIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbolIDs)), ",")
	args := make([]any, len(symbolIDs))
	for i, id := range symbolIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT symbol_id, vector, model_name FROM embeddings WHERE symbol_id IN (%s)", placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("get embeddings: %w", err)
	}
	defer rows.Close()
	return scanEmbeddings(rows)
}

func (s *sqliteStore) AllEmbeddings(ctx context.Context) ([]*Embedding, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT symbol_id, vector, model_name FROM embeddings")
	if err != nil {
		return nil, fmt.Errorf("all embeddings: %w", err)
	}
	defer rows.Close()
	return scanEmbeddings(rows)
}

func scanEmbeddings(rows *sql.Rows) ([]*Embedding, error) {
	var out []*Embedding
	for rows.Next() {
		e := &Embedding{}
		var blob []byte
		if err := rows.Scan(&e.SymbolID, &blob, &e.ModelName); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		e.Vector = bytesToFloat32s(blob)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) HasEmbeddings(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM embeddings LIMIT 1").Scan(&count); err != nil {
		return false, fmt.Errorf("has embeddings: %w", err)
	}
	return count > 0, nil
}

// FTSMatch runs the FTS5 MATCH query and negates bm25()'s native
// lower-is-better score to the store's higher-is-better convention.
func (s *sqliteStore) FTSMatch(ctx context.Context, query string, limit int) ([]FTSResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bm25(symbols_fts) AS score FROM symbols_fts WHERE symbols_fts MATCH ? ORDER BY score LIMIT ?`,
		query, limit)
	if err != nil {
		// FTS5 syntax errors on malformed queries are treated as no results,
		// not a failure — callers should not have to sanitize query strings.
		return []FTSResult{}, nil
	}
	defer rows.Close()

	var out []FTSResult
	for rows.Next() {
		var r FTSResult
		var rawScore float64
		if err := rows.Scan(&r.SymbolID, &rawScore); err != nil {
			return nil, fmt.Errorf("scan fts result: %w", err)
		}
		r.Score = -rawScore
		out = append(out, r)
	}
	return out, rows.Err()
}

func float32sToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func bytesToFloat32s(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
