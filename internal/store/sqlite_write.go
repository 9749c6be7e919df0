package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// WriteFileRecord writes a file's complete extraction result in a single
// transaction: the file row, its symbols (+ FTS mirror), calls, imports, and
// method calls. Any previous rows for the file are replaced wholesale.
func (s *sqliteStore) WriteFileRecord(ctx context.Context, rec *FileRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin write file record: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileRowsTx(ctx, tx, rec.File.Path); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO files (path, size, last_modified, extension, hash) VALUES (?, ?, ?, ?, ?)",
		rec.File.Path, rec.File.Size, rec.File.LastModified, rec.File.Extension, rec.File.Hash,
	); err != nil {
		return fmt.Errorf("insert file: %w", err)
	}

	if err := insertSymbolsTx(ctx, tx, rec.Symbols); err != nil {
		return err
	}
	if err := insertCallsTx(ctx, tx, rec.Calls); err != nil {
		return err
	}
	if err := insertImportsTx(ctx, tx, rec.Imports); err != nil {
		return err
	}
	if err := insertMethodCallsTx(ctx, tx, rec.MethodCalls); err != nil {
		return err
	}
	if err := insertTypeInfosTx(ctx, tx, rec.TypeInfos); err != nil {
		return err
	}

	return tx.Commit()
}

func insertSymbolsTx(ctx context.Context, tx *sql.Tx, symbols []*Symbol) error {
	for _, sym := range symbols {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO symbols (name, type, file_path, start_line, end_line, signature, parent_class, docstring)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sym.Name, sym.Type, sym.FilePath, sym.StartLine, sym.EndLine, sym.Signature, sym.ParentClass, sym.Docstring,
		)
		if err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("symbol last insert id: %w", err)
		}
		sym.ID = id

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO symbols_fts (id, content) VALUES (?, ?)",
			id, ftsContent(sym),
		); err != nil {
			return fmt.Errorf("insert fts row for symbol %d: %w", id, err)
		}
	}
	return nil
}

// ftsContent builds the indexed text for a symbol: name, signature and
// docstring, so identifier and prose search both hit.
func ftsContent(sym *Symbol) string {
	return sym.Name + " " + sym.Signature + " " + sym.Docstring
}

func insertCallsTx(ctx context.Context, tx *sql.Tx, calls []*Call) error {
	for _, c := range calls {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO calls (caller_file, callee, line) VALUES (?, ?, ?)",
			c.CallerFile, c.Callee, c.Line,
		); err != nil {
			return fmt.Errorf("insert call: %w", err)
		}
	}
	return nil
}

func insertImportsTx(ctx context.Context, tx *sql.Tx, imports []*Import) error {
	for _, imp := range imports {
		symbolsJSON, err := json.Marshal(imp.ImportedSymbols)
		if err != nil {
			return fmt.Errorf("marshal imported symbols: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO imports (importer_file, imported_module, import_line, imported_symbols_json) VALUES (?, ?, ?, ?)",
			imp.ImporterFile, imp.ImportedModule, imp.ImportLine, string(symbolsJSON),
		); err != nil {
			return fmt.Errorf("insert import: %w", err)
		}
	}
	return nil
}

func insertMethodCallsTx(ctx context.Context, tx *sql.Tx, calls []*MethodCall) error {
	for _, mc := range calls {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO method_calls (caller_file, line, receiver, method, receiver_type) VALUES (?, ?, ?, ?, ?)",
			mc.CallerFile, mc.Line, mc.Receiver, mc.Method, mc.ReceiverType,
		); err != nil {
			return fmt.Errorf("insert method call: %w", err)
		}
	}
	return nil
}

func insertTypeInfosTx(ctx context.Context, tx *sql.Tx, infos []*TypeInfo) error {
	for _, ti := range infos {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO type_info (variable, file, line, type_name) VALUES (?, ?, ?, ?)",
			ti.Variable, ti.File, ti.Line, ti.TypeName,
		); err != nil {
			return fmt.Errorf("insert type info: %w", err)
		}
	}
	return nil
}

// deleteFileRowsTx removes all rows owned by path across every table that
// carries a file reference, used both by DeleteFile and as the "replace"
// half of WriteFileRecord.
func deleteFileRowsTx(ctx context.Context, tx *sql.Tx, path string) error {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM symbols WHERE file_path = ?", path)
	if err != nil {
		return fmt.Errorf("select symbol ids for delete: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		// FTS5 has no UPSERT/REPLACE support; rows must be deleted individually.
		if _, err := tx.ExecContext(ctx, "DELETE FROM symbols_fts WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete fts row %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE symbol_id = ?", id); err != nil {
			return fmt.Errorf("delete embedding for symbol %d: %w", id, err)
		}
	}

	stmts := []string{
		"DELETE FROM symbols WHERE file_path = ?",
		"DELETE FROM calls WHERE caller_file = ?",
		"DELETE FROM imports WHERE importer_file = ?",
		"DELETE FROM import_links WHERE importer_file = ?",
		"DELETE FROM method_calls WHERE caller_file = ?",
		"DELETE FROM type_info WHERE file = ?",
		"DELETE FROM symbol_references WHERE source_file = ?",
		"DELETE FROM files WHERE path = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, path); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// DeleteFile cascades deletion of a removed file's rows from every
// table that references it.
func (s *sqliteStore) DeleteFile(ctx context.Context, path string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete file: %w", err)
	}
	defer tx.Rollback()

	if err := deleteFileRowsTx(ctx, tx, path); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceSymbolsInRange implements the surgical strategy: only symbols
// overlapping [startLine, endLine] are dropped and re-emitted; everything
// else in the file is left untouched.
func (s *sqliteStore) ReplaceSymbolsInRange(ctx context.Context, path string, startLine, endLine int, symbols []*Symbol) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace symbols in range: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM symbols WHERE file_path = ? AND start_line <= ? AND end_line >= ?",
		path, endLine, startLine,
	)
	if err != nil {
		return fmt.Errorf("select overlapping symbols: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM symbols_fts WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete fts row %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings WHERE symbol_id = ?", id); err != nil {
			return fmt.Errorf("delete embedding %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM symbols WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete symbol %d: %w", id, err)
		}
	}

	if err := insertSymbolsTx(ctx, tx, symbols); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertFile refreshes a file's metadata row without touching its symbols,
// used by the surgical strategy where only a line range was reparsed.
func (s *sqliteStore) UpsertFile(ctx context.Context, file *File) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO files (path, size, last_modified, extension, hash) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET size = excluded.size, last_modified = excluded.last_modified,
		 extension = excluded.extension, hash = excluded.hash`,
		file.Path, file.Size, file.LastModified, file.Extension, file.Hash,
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", file.Path, err)
	}
	return nil
}

// UpsertImportLinks replaces resolution results for the given import links,
// keyed on (importer_file, import_line).
func (s *sqliteStore) UpsertImportLinks(ctx context.Context, links []*ImportLink) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert import links: %w", err)
	}
	defer tx.Rollback()

	for _, link := range links {
		symbolsJSON, err := json.Marshal(link.ImportedSymbols)
		if err != nil {
			return fmt.Errorf("marshal imported symbols: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM import_links WHERE importer_file = ? AND import_line = ?",
			link.ImporterFile, link.ImportLine,
		); err != nil {
			return fmt.Errorf("delete existing import link: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO import_links (importer_file, imported_module, import_line, imported_symbols_json, definition_file, definition_symbol)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			link.ImporterFile, link.ImportedModule, link.ImportLine, string(symbolsJSON), link.DefinitionFile, link.DefinitionSymbol,
		); err != nil {
			return fmt.Errorf("insert import link: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertSymbolReferences replaces resolved reference edges for the
// affected (source_file, source_symbol) pairs. The incremental engine's
// caller cascade recomputes only touched symbols, so the delete is
// scoped per pair, never index-wide.
func (s *sqliteStore) UpsertSymbolReferences(ctx context.Context, refs []*SymbolReference) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert symbol references: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool)
	for _, ref := range refs {
		key := ref.SourceFile + "\x00" + ref.SourceSymbol
		if !seen[key] {
			seen[key] = true
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM symbol_references WHERE source_file = ? AND source_symbol = ?",
				ref.SourceFile, ref.SourceSymbol,
			); err != nil {
				return fmt.Errorf("delete existing symbol references: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO symbol_references
			 (source_file, source_line, source_symbol, reference_type, target_file, target_symbol, target_type, confidence, resolution_method)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ref.SourceFile, ref.SourceLine, ref.SourceSymbol, ref.ReferenceType,
			ref.TargetFile, ref.TargetSymbol, ref.TargetType, ref.Confidence, ref.ResolutionMethod,
		); err != nil {
			return fmt.Errorf("insert symbol reference: %w", err)
		}
	}
	return tx.Commit()
}

// UpsertEmbeddings replaces stored vectors for the given symbols.
func (s *sqliteStore) UpsertEmbeddings(ctx context.Context, embeddings []*Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert embeddings: %w", err)
	}
	defer tx.Rollback()

	for _, e := range embeddings {
		blob := float32sToBytes(e.Vector)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (symbol_id, vector, model_name) VALUES (?, ?, ?)
			 ON CONFLICT(symbol_id) DO UPDATE SET vector = excluded.vector, model_name = excluded.model_name`,
			e.SymbolID, blob, e.ModelName,
		); err != nil {
			return fmt.Errorf("upsert embedding for symbol %d: %w", e.SymbolID, err)
		}
	}
	return tx.Commit()
}
