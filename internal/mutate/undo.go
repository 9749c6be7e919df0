package mutate

import (
	"context"
	"fmt"
	"path/filepath"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/store"
)

// Undo restores every file of a recorded transaction to its captured
// original bytes, then reindexes them. Undoing the same transaction
// twice writes the same bytes again: idempotent per transaction id. An
// empty id undoes the most recent transaction.
func (e *Engine) Undo(ctx context.Context, transactionID string) (*UndoResult, error) {
	tx, err := e.lookupTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	result := &UndoResult{TransactionID: tx.ID, Timestamp: tx.Timestamp}
	// Last patch first, so a file touched by several ops of one batch ends
	// at the bytes captured before the first of them.
	for i := len(tx.ReversePatches) - 1; i >= 0; i-- {
		patch := tx.ReversePatches[i]
		abs := filepath.Join(e.root, filepath.FromSlash(patch.FilePath))
		if err := atomicWrite(abs, patch.OriginalContent); err != nil {
			return nil, fmt.Errorf("restore %s: %w", patch.FilePath, err)
		}
		result.FilesRestored = append(result.FilesRestored, patch.FilePath)
	}

	for _, path := range result.FilesRestored {
		if err := e.reindexFile(ctx, path); err != nil {
			e.logger.Warn("post-undo reindex failed: " + err.Error())
		}
	}
	return result, nil
}

// History lists recent transactions, newest first.
func (e *Engine) History(ctx context.Context, limit int) ([]*UndoResult, error) {
	txs, err := e.store.ListTransactions(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*UndoResult, 0, len(txs))
	for _, tx := range txs {
		out = append(out, &UndoResult{
			TransactionID: tx.ID,
			FilesRestored: tx.Files,
			Timestamp:     tx.Timestamp,
		})
	}
	return out, nil
}

func (e *Engine) lookupTransaction(ctx context.Context, id string) (*store.Transaction, error) {
	if id == "" {
		txs, err := e.store.ListTransactions(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(txs) == 0 {
			return nil, cerrs.New(cerrs.ErrCodeInvalidInput, "no transactions to undo", nil)
		}
		return txs[0], nil
	}

	tx, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, cerrs.New(cerrs.ErrCodeInvalidInput,
			fmt.Sprintf("transaction %q not found", id), nil).
			WithSuggestion("run `cerberus history` to list undoable transactions")
	}
	return tx, nil
}
