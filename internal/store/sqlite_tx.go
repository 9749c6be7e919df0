package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// RecordTransaction appends an undo-stack entry. Transactions are
// append-only; retention/pruning is the caller's responsibility (mutation
// engine keeps last-N, see internal/mutate).
func (s *sqliteStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	filesJSON, err := json.Marshal(tx.Files)
	if err != nil {
		return fmt.Errorf("marshal transaction files: %w", err)
	}
	patchesJSON, err := json.Marshal(tx.ReversePatches)
	if err != nil {
		return fmt.Errorf("marshal reverse patches: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO transactions (id, op, files_json, patches_json, ts) VALUES (?, ?, ?, ?, ?)",
		tx.ID, tx.OperationType, string(filesJSON), string(patchesJSON), tx.Timestamp.Unix(),
	)
	if err != nil {
		return fmt.Errorf("record transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, op, files_json, patches_json, ts FROM transactions WHERE id = ?", id)
	return scanTransaction(row)
}

func (s *sqliteStore) ListTransactions(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, op, files_json, patches_json, ts FROM transactions ORDER BY ts DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTransactionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneTransactions bounds the undo ledger to the newest keep entries.
func (s *sqliteStore) PruneTransactions(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id NOT IN
		 (SELECT id FROM transactions ORDER BY ts DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return fmt.Errorf("prune transactions: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row *sql.Row) (*Transaction, error) {
	t, filesJSON, patchesJSON, ts, err := scanTransactionCommon(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return decodeTransaction(t, filesJSON, patchesJSON, ts)
}

func scanTransactionRows(rows *sql.Rows) (*Transaction, error) {
	t, filesJSON, patchesJSON, ts, err := scanTransactionCommon(rows)
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return decodeTransaction(t, filesJSON, patchesJSON, ts)
}

func scanTransactionCommon(s scanner) (*Transaction, string, string, int64, error) {
	t := &Transaction{}
	var filesJSON, patchesJSON string
	var ts int64
	err := s.Scan(&t.ID, &t.OperationType, &filesJSON, &patchesJSON, &ts)
	return t, filesJSON, patchesJSON, ts, err
}

func decodeTransaction(t *Transaction, filesJSON, patchesJSON string, ts int64) (*Transaction, error) {
	if err := json.Unmarshal([]byte(filesJSON), &t.Files); err != nil {
		return nil, fmt.Errorf("unmarshal transaction files: %w", err)
	}
	if err := json.Unmarshal([]byte(patchesJSON), &t.ReversePatches); err != nil {
		return nil, fmt.Errorf("unmarshal reverse patches: %w", err)
	}
	t.Timestamp = unixToTime(ts)
	return t, nil
}

func (s *sqliteStore) GetBlueprintCache(ctx context.Context, path string) (*BlueprintCacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT file_path, blueprint, source_mtime, ts FROM blueprint_cache WHERE file_path = ?", path)
	e := &BlueprintCacheEntry{}
	var ts int64
	err := row.Scan(&e.FilePath, &e.SerializedBlueprint, &e.SourceMtime, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get blueprint cache: %w", err)
	}
	e.CreatedAt = unixToTime(ts)
	return e, nil
}

func (s *sqliteStore) PutBlueprintCache(ctx context.Context, entry *BlueprintCacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blueprint_cache (file_path, blueprint, source_mtime, ts) VALUES (?, ?, ?, ?)
		 ON CONFLICT(file_path) DO UPDATE SET blueprint = excluded.blueprint, source_mtime = excluded.source_mtime, ts = excluded.ts`,
		entry.FilePath, entry.SerializedBlueprint, entry.SourceMtime, entry.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put blueprint cache: %w", err)
	}
	return nil
}
