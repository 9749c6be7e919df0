// Package mutate is the mutation engine: AST-surgical symbol edits and
// deletes with backup, validation, a persistent reverse-patch undo stack,
// and all-or-nothing batches.
package mutate

import (
	"time"

	"github.com/cerberusindex/cerberus/internal/store"
)

// OpState tracks a per-file operation through its lifecycle. Rollback
// paths lead from every intermediate state back to the pre-state.
type OpState string

const (
	StatePending   OpState = "pending"
	StateValidated OpState = "validated"
	StateWritten   OpState = "written"
	StateCommitted OpState = "committed"
)

// RiskLevel is the symbol-guard verdict.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Guard thresholds on inbound-reference counts.
const (
	mediumRiskCallers = 3
	highRiskCallers   = 10
)

// DefaultTransactionRetention bounds the undo ledger.
const DefaultTransactionRetention = 50

// EditRequest is one surgical symbol replacement.
type EditRequest struct {
	FilePath   string
	SymbolName string
	NewCode    string

	// SymbolType and ParentClass qualify an otherwise ambiguous name.
	SymbolType  store.SymbolType
	ParentClass string

	// Force overrides a HIGH symbol-guard verdict.
	Force bool

	// NoGuard disables the risk check entirely.
	NoGuard bool

	// Format runs the per-language auto-formatter over the result.
	Format bool
}

// DeleteRequest removes a symbol's span.
type DeleteRequest struct {
	FilePath    string
	SymbolName  string
	SymbolType  store.SymbolType
	ParentClass string
	Force       bool
	NoGuard     bool

	// KeepDecorators leaves leading decorators in place.
	KeepDecorators bool
}

// Result reports one completed mutation.
type Result struct {
	TransactionID string    `json:"transaction_id"`
	FilePath      string    `json:"file_path"`
	Symbol        string    `json:"symbol"`
	State         OpState   `json:"state"`
	Risk          RiskLevel `json:"risk,omitempty"`
	BackupPath    string    `json:"backup_path,omitempty"`
	BytesBefore   int       `json:"bytes_before"`
	BytesAfter    int       `json:"bytes_after"`
}

// BatchOp is one operation of a batch: exactly one of Edit or Delete set.
type BatchOp struct {
	Edit   *EditRequest
	Delete *DeleteRequest
}

// BatchResult reports an atomic batch.
type BatchResult struct {
	TransactionID string     `json:"transaction_id"`
	Success       bool       `json:"success"`
	RolledBack    bool       `json:"rolled_back"`
	Ops           []OpStatus `json:"ops"`
	VerifyOutput  string     `json:"verify_output,omitempty"`
}

// OpStatus is the per-op outcome inside a batch.
type OpStatus struct {
	FilePath string  `json:"file_path"`
	Symbol   string  `json:"symbol"`
	State    OpState `json:"state"`
	Error    string  `json:"error,omitempty"`
}

// UndoResult reports one undone transaction.
type UndoResult struct {
	TransactionID string   `json:"transaction_id"`
	FilesRestored []string `json:"files_restored"`
	Timestamp     time.Time `json:"timestamp"`
}
