package mutate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/store"
)

// DefaultVerifyTimeout bounds the external verification command.
const DefaultVerifyTimeout = 2 * time.Minute

// BatchOptions configures an atomic batch.
type BatchOptions struct {
	// VerifyCommand, when non-empty, runs after all ops via the shell; a
	// non-zero exit rolls the whole batch back.
	VerifyCommand string
	VerifyTimeout time.Duration
}

// Batch applies the ops as one atomic unit: either every op lands and a
// single transaction is recorded, or every written file is restored from
// its reverse patch in reverse order.
func (e *Engine) Batch(ctx context.Context, ops []BatchOp, opts BatchOptions) (*BatchResult, error) {
	if len(ops) == 0 {
		return nil, cerrs.ValidationError("batch has no operations", nil)
	}

	result := &BatchResult{}
	var done []applied

	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			patch := done[i].patch
			abs := filepath.Join(e.root, filepath.FromSlash(patch.FilePath))
			if err := atomicWrite(abs, patch.OriginalContent); err != nil {
				e.logger.Error("rollback write failed: " + err.Error())
			}
		}
		result.RolledBack = true
		for i := range result.Ops {
			if result.Ops[i].State == StateWritten {
				result.Ops[i].State = StatePending
			}
		}
	}

	for _, op := range ops {
		var res *Result
		var patch store.ReversePatch
		var err error

		switch {
		case op.Edit != nil:
			res, patch, err = e.applyEdit(ctx, *op.Edit)
		case op.Delete != nil:
			res, patch, err = e.applyDelete(ctx, *op.Delete)
		default:
			err = cerrs.ValidationError("batch op has neither edit nor delete", nil)
		}

		if err != nil {
			result.Ops = append(result.Ops, OpStatus{
				FilePath: opPath(op), Symbol: opSymbol(op), Error: err.Error(), State: StatePending,
			})
			rollback()
			return result, nil
		}

		done = append(done, applied{result: res, patch: patch})
		result.Ops = append(result.Ops, OpStatus{
			FilePath: res.FilePath, Symbol: res.Symbol, State: StateWritten,
		})
	}

	if opts.VerifyCommand != "" {
		output, err := e.runVerify(ctx, opts)
		result.VerifyOutput = output
		if err != nil {
			rollback()
			return result, nil
		}
	}

	// Batched ops share the first op's transaction id.
	txID := done[0].result.TransactionID
	for _, op := range done {
		op.result.TransactionID = txID
	}
	if err := e.commit(ctx, "batch", done); err != nil {
		rollback()
		return result, err
	}

	result.TransactionID = txID
	result.Success = true
	for i := range result.Ops {
		result.Ops[i].State = StateCommitted
	}
	return result, nil
}

// runVerify executes the external verification command with a hard
// timeout, in the project root.
func (e *Engine) runVerify(ctx context.Context, opts BatchOptions) (string, error) {
	timeout := opts.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", opts.VerifyCommand)
	cmd.Dir = e.root
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		return out.String(), cerrs.PolicyError(cerrs.ErrCodeVerifyNonzero,
			fmt.Sprintf("verify command failed: %v", err))
	}
	return out.String(), nil
}

func opPath(op BatchOp) string {
	if op.Edit != nil {
		return op.Edit.FilePath
	}
	if op.Delete != nil {
		return op.Delete.FilePath
	}
	return ""
}

func opSymbol(op BatchOp) string {
	if op.Edit != nil {
		return op.Edit.SymbolName
	}
	if op.Delete != nil {
		return op.Delete.SymbolName
	}
	return ""
}
