//go:build !cerberus_cgo_sqlite

package store

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go SQLite driver; build with the
// cerberus_cgo_sqlite tag for the CGO-backed alternative.
const driverName = "sqlite"

func dsn(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)"
}

func dsnReadOnly(path string) string {
	return "file:" + path + "?mode=ro"
}
