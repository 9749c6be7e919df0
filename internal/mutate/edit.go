package mutate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cerberusindex/cerberus/internal/incremental"
	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

// Engine performs mutations against one project root and its index.
type Engine struct {
	store     store.Store
	root      string
	backupDir string
	inc       *incremental.Engine
	logger    *slog.Logger
	retention int
}

// NewEngine returns a mutation engine. Backups land under the project's
// state directory.
func NewEngine(st store.Store, root string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     st,
		root:      root,
		backupDir: filepath.Join(root, ".cerberus", "backups"),
		inc:       incremental.NewEngine(st, scan.NewScanner(logger), root, logger),
		logger:    logger,
		retention: DefaultTransactionRetention,
	}
}

// Edit surgically replaces one symbol's span with req.NewCode, records a
// reverse-patch transaction, and reindexes the file.
func (e *Engine) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	op, patch, err := e.applyEdit(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, "edit", []applied{{result: op, patch: patch}}); err != nil {
		return nil, err
	}
	op.State = StateCommitted
	return op, nil
}

// Delete removes one symbol's span, optionally keeping its decorators.
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) (*Result, error) {
	op, patch, err := e.applyDelete(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.commit(ctx, "delete", []applied{{result: op, patch: patch}}); err != nil {
		return nil, err
	}
	op.State = StateCommitted
	return op, nil
}

// applied pairs a written op with its reverse patch, pending commit.
type applied struct {
	result *Result
	patch  store.ReversePatch
}

// applyEdit runs the per-file state machine through written. Nothing
// touches the store until commit.
func (e *Engine) applyEdit(ctx context.Context, req EditRequest) (*Result, store.ReversePatch, error) {
	result := &Result{FilePath: req.FilePath, Symbol: req.SymbolName, State: StatePending}
	var patch store.ReversePatch

	sym, err := resolveSymbol(ctx, e.store, req.FilePath, req.SymbolName, req.SymbolType, req.ParentClass)
	if err != nil {
		return nil, patch, err
	}

	risk, err := guard(ctx, e.store, sym, req.Force, req.NoGuard)
	if err != nil {
		return nil, patch, err
	}
	result.Risk = risk

	abs := filepath.Join(e.root, filepath.FromSlash(req.FilePath))
	original, err := os.ReadFile(abs)
	if err != nil {
		return nil, patch, err
	}
	patch = store.ReversePatch{FilePath: req.FilePath, OriginalContent: original}
	result.BytesBefore = len(original)

	sp, err := locateSpan(ctx, original, sym)
	if err != nil {
		return nil, patch, err
	}

	mutated := spliceSpan(original, sp.start, sp.end, []byte(req.NewCode))
	if err := validateSyntax(ctx, req.FilePath, mutated); err != nil {
		// Abort before any write; the file is untouched.
		return nil, patch, err
	}
	result.State = StateValidated

	if req.Format {
		mutated = autoFormat(req.FilePath, mutated)
	}

	txID := newTransactionID()
	result.TransactionID = txID
	backupPath, err := writeBackup(e.backupDir, req.FilePath, original, txID)
	if err != nil {
		return nil, patch, err
	}
	result.BackupPath = backupPath

	if err := atomicWrite(abs, mutated); err != nil {
		return nil, patch, err
	}
	result.State = StateWritten
	result.BytesAfter = len(mutated)
	return result, patch, nil
}

func (e *Engine) applyDelete(ctx context.Context, req DeleteRequest) (*Result, store.ReversePatch, error) {
	result := &Result{FilePath: req.FilePath, Symbol: req.SymbolName, State: StatePending}
	var patch store.ReversePatch

	sym, err := resolveSymbol(ctx, e.store, req.FilePath, req.SymbolName, req.SymbolType, req.ParentClass)
	if err != nil {
		return nil, patch, err
	}

	risk, err := guard(ctx, e.store, sym, req.Force, req.NoGuard)
	if err != nil {
		return nil, patch, err
	}
	result.Risk = risk

	abs := filepath.Join(e.root, filepath.FromSlash(req.FilePath))
	original, err := os.ReadFile(abs)
	if err != nil {
		return nil, patch, err
	}
	patch = store.ReversePatch{FilePath: req.FilePath, OriginalContent: original}
	result.BytesBefore = len(original)

	sp, err := locateSpan(ctx, original, sym)
	if err != nil {
		return nil, patch, err
	}
	start := sp.start
	if req.KeepDecorators {
		start = sp.decoratorStart
	}

	mutated := collapseSpan(original, start, sp.end)
	if req.KeepDecorators {
		// A kept decorator dangles until the caller inserts a new
		// definition under it; only the delimiter check applies.
		if err := validateBalanced(mutated); err != nil {
			return nil, patch, err
		}
	} else if err := validateSyntax(ctx, req.FilePath, mutated); err != nil {
		return nil, patch, err
	}
	result.State = StateValidated

	txID := newTransactionID()
	result.TransactionID = txID
	backupPath, err := writeBackup(e.backupDir, req.FilePath, original, txID)
	if err != nil {
		return nil, patch, err
	}
	result.BackupPath = backupPath

	if err := atomicWrite(abs, mutated); err != nil {
		return nil, patch, err
	}
	result.State = StateWritten
	result.BytesAfter = len(mutated)
	return result, patch, nil
}

// commit records the transaction ledger entry and reindexes every written
// file. The ops share one transaction id when batched.
func (e *Engine) commit(ctx context.Context, opType string, ops []applied) error {
	if len(ops) == 0 {
		return nil
	}

	tx := &store.Transaction{
		ID:            ops[0].result.TransactionID,
		OperationType: opType,
		Timestamp:     time.Now().UTC(),
	}
	for _, op := range ops {
		tx.Files = append(tx.Files, op.result.FilePath)
		tx.ReversePatches = append(tx.ReversePatches, op.patch)
	}

	if err := e.store.RecordTransaction(ctx, tx); err != nil {
		return err
	}
	if err := e.store.PruneTransactions(ctx, e.retention); err != nil {
		e.logger.Warn("transaction prune failed", slog.String("error", err.Error()))
	}

	for _, op := range ops {
		if err := e.reindexFile(ctx, op.result.FilePath); err != nil {
			e.logger.Warn("post-mutation reindex failed",
				slog.String("path", op.result.FilePath), slog.String("error", err.Error()))
		}
	}
	return nil
}

// reindexFile refreshes the index for one mutated file.
func (e *Engine) reindexFile(ctx context.Context, rel string) error {
	cs := &incremental.ChangeSet{Modified: []incremental.ModifiedFile{{Path: rel}}}
	if _, err := os.Lstat(filepath.Join(e.root, filepath.FromSlash(rel))); os.IsNotExist(err) {
		cs = &incremental.ChangeSet{Deleted: []string{rel}}
	}
	result, err := e.inc.Apply(ctx, cs, incremental.StrategyIncremental)
	if err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("reindex %s: %v", rel, result.Errors[0])
	}
	return nil
}

// spliceSpan replaces content[start:end] with replacement.
func spliceSpan(content []byte, start, end uint32, replacement []byte) []byte {
	out := make([]byte, 0, len(content)-int(end-start)+len(replacement))
	out = append(out, content[:start]...)
	out = append(out, replacement...)
	out = append(out, content[end:]...)
	return out
}

// collapseSpan removes content[start:end] plus one trailing newline.
func collapseSpan(content []byte, start, end uint32) []byte {
	if int(end) < len(content) && content[end] == '\n' {
		end++
	}
	out := make([]byte, 0, len(content)-int(end-start))
	out = append(out, content[:start]...)
	out = append(out, content[end:]...)
	return out
}

// newTransactionID is time-prefixed for lexical ordering with a random
// suffix for uniqueness.
func newTransactionID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("tx-%s-%s", time.Now().UTC().Format("20060102T150405"), hex.EncodeToString(buf[:]))
}
