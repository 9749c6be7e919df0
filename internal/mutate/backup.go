package mutate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupRetention bounds how many backups per file stick around.
const backupRetention = 10

// writeBackup copies the pre-edit bytes into the state dir's backup
// directory. The name carries the timestamp and transaction id so a human
// can correlate backups with ledger entries.
func writeBackup(backupDir, rel string, content []byte, txID string) (string, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	flat := strings.ReplaceAll(filepath.ToSlash(rel), "/", "__")
	name := fmt.Sprintf("%s.%s.%s.bak", flat, time.Now().UTC().Format("20060102T150405"), txID)
	path := filepath.Join(backupDir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	pruneBackups(backupDir, flat)
	return path, nil
}

// pruneBackups keeps the newest backupRetention backups for one file.
func pruneBackups(backupDir, flatName string) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return
	}
	var mine []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), flatName+".") && strings.HasSuffix(entry.Name(), ".bak") {
			mine = append(mine, entry.Name())
		}
	}
	if len(mine) <= backupRetention {
		return
	}
	sort.Strings(mine) // timestamp sorts lexically
	for _, name := range mine[:len(mine)-backupRetention] {
		_ = os.Remove(filepath.Join(backupDir, name))
	}
}

// atomicWrite replaces path via temp-file-plus-rename in the same
// directory, preserving the original's permissions when it exists.
func atomicWrite(path string, content []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cerberus-write-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
