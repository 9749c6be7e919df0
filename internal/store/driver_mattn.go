//go:build cerberus_cgo_sqlite

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName selects the CGO-backed SQLite driver, for environments
// where CGO is available and native FTS5 tokenization speed matters.
// Both drivers serve the same Store interface and schema.
const driverName = "sqlite3"

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return "file:" + path + "?_busy_timeout=5000"
}

func dsnReadOnly(path string) string {
	return "file:" + path + "?mode=ro"
}
