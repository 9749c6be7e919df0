package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// CurrentSchemaVersion gates schema upgrades via the metadata table.
const CurrentSchemaVersion = 1

const schemaVersionKey = "schema_version"

// sqliteStore implements Store over a single SQLite database file (or
// ":memory:"). Writers serialize through a single *sql.DB connection; WAL
// mode tolerates concurrent external readers while this process keeps one
// logical writer lane.
type sqliteStore struct {
	db   *sql.DB
	path string
}

// Open opens or creates the index database at path, validating and
// recovering from corruption, then ensures the schema exists.
func Open(path string) (Store, error) {
	if path != ":memory:" {
		if err := validateIntegrity(path); err != nil {
			slog.Warn("index integrity check failed, recreating store",
				slog.String("path", path), slog.String("error", err.Error()))
			removeStoreFiles(path)
		}
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &sqliteStore{db: db, path: path}
	if err := s.applyPragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) applyPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-65536",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // fresh database, nothing to validate
	}

	db, err := sql.Open(driverName, dsnReadOnly(path))
	if err != nil {
		return fmt.Errorf("open for integrity check: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity_check query: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}
	return nil
}

func removeStoreFiles(path string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
	path TEXT PRIMARY KEY,
	size INTEGER NOT NULL,
	last_modified INTEGER NOT NULL,
	extension TEXT,
	hash TEXT
);

CREATE TABLE IF NOT EXISTS symbols (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	signature TEXT,
	parent_class TEXT,
	docstring TEXT
);
CREATE INDEX IF NOT EXISTS idx_symbols_file_path ON symbols(file_path);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_parent_class ON symbols(parent_class);

CREATE VIRTUAL TABLE IF NOT EXISTS symbols_fts USING fts5(
	id UNINDEXED,
	content,
	tokenize='porter unicode61'
);

CREATE TABLE IF NOT EXISTS imports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	importer_file TEXT NOT NULL,
	imported_module TEXT NOT NULL,
	import_line INTEGER NOT NULL,
	imported_symbols_json TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_imports_importer_file ON imports(importer_file);

CREATE TABLE IF NOT EXISTS import_links (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	importer_file TEXT NOT NULL,
	imported_module TEXT NOT NULL,
	import_line INTEGER NOT NULL,
	imported_symbols_json TEXT NOT NULL DEFAULT '[]',
	definition_file TEXT,
	definition_symbol TEXT
);
CREATE INDEX IF NOT EXISTS idx_import_links_importer_file ON import_links(importer_file);
CREATE INDEX IF NOT EXISTS idx_import_links_definition_file ON import_links(definition_file);

CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	caller_file TEXT NOT NULL,
	callee TEXT NOT NULL,
	line INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_caller_file ON calls(caller_file);
CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(callee);

CREATE TABLE IF NOT EXISTS method_calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	caller_file TEXT NOT NULL,
	line INTEGER NOT NULL,
	receiver TEXT NOT NULL,
	method TEXT NOT NULL,
	receiver_type TEXT
);
CREATE INDEX IF NOT EXISTS idx_method_calls_caller_file ON method_calls(caller_file);
CREATE INDEX IF NOT EXISTS idx_method_calls_method ON method_calls(method);

CREATE TABLE IF NOT EXISTS symbol_references (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source_file TEXT NOT NULL,
	source_line INTEGER NOT NULL,
	source_symbol TEXT NOT NULL,
	reference_type TEXT NOT NULL,
	target_file TEXT,
	target_symbol TEXT,
	target_type TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	resolution_method TEXT
);
CREATE INDEX IF NOT EXISTS idx_symbol_references_source_file ON symbol_references(source_file);
CREATE INDEX IF NOT EXISTS idx_symbol_references_target_symbol ON symbol_references(target_symbol);

CREATE TABLE IF NOT EXISTS type_info (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	variable TEXT NOT NULL,
	file TEXT NOT NULL,
	line INTEGER NOT NULL,
	type_name TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_type_info_file ON type_info(file);

CREATE TABLE IF NOT EXISTS embeddings (
	symbol_id INTEGER PRIMARY KEY,
	vector BLOB NOT NULL,
	model_name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transactions (
	id TEXT PRIMARY KEY,
	op TEXT NOT NULL,
	files_json TEXT NOT NULL,
	patches_json TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts);

CREATE TABLE IF NOT EXISTS blueprint_cache (
	file_path TEXT PRIMARY KEY,
	blueprint TEXT NOT NULL,
	source_mtime INTEGER NOT NULL,
	ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func (s *sqliteStore) initSchema() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}

	var existing string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", schemaVersionKey).Scan(&existing)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec("INSERT INTO metadata (key, value) VALUES (?, ?)",
			schemaVersionKey, fmt.Sprintf("%d", CurrentSchemaVersion))
		return err
	}
	return err
}

func (s *sqliteStore) Close() error {
	if s.path != ":memory:" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func (s *sqliteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{SymbolTypeCount: make(map[SymbolType]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&stats.TotalFiles); err != nil {
		return nil, fmt.Errorf("count files: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM symbols").Scan(&stats.TotalSymbols); err != nil {
		return nil, fmt.Errorf("count symbols: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM symbols GROUP BY type")
	if err != nil {
		return nil, fmt.Errorf("group symbols by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			return nil, err
		}
		stats.SymbolTypeCount[SymbolType(t)] = c
	}
	return stats, rows.Err()
}

func (s *sqliteStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return value, true, nil
}

func (s *sqliteStore) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

func unixToTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
