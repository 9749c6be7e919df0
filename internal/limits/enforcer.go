package limits

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cerberusindex/cerberus/internal/store"
)

// Decision is the enforcement outcome for one scanned file. Backpressure
// is data, not stack-unwind: the enforcer never panics or aborts, it
// returns a verdict the pipeline acts on.
type Decision int

const (
	// Allow admits the record, possibly after per-file truncation.
	Allow Decision = iota
	// Skip drops this record and continues with the next one.
	Skip
	// Stop terminates the stream; the global ceiling would be crossed.
	Stop
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Verdict is the full result of admitting one record: the decision, a
// human-readable reason for skip/stop, and how many symbols were truncated
// off the record when the per-file ceiling was applied.
type Verdict struct {
	Decision  Decision
	Reason    string
	Truncated int
}

// Enforcer is the streaming gate between the parallel scanner producers
// and the serialized store writer. It is safe for concurrent use; the
// running total is the only shared state.
type Enforcer struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	total   int
	stopped bool
}

// NewEnforcer returns an enforcer over the given limits.
func NewEnforcer(cfg Config, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{cfg: cfg, logger: logger}
}

// Admit applies the three gates to rec in order: the per-file size gate,
// the per-file symbol ceiling (truncating in place with a warning), and
// the global symbol ceiling. Once Stop has been returned every subsequent
// call returns Stop as well.
func (e *Enforcer) Admit(rec *store.FileRecord) Verdict {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return Verdict{Decision: Stop, Reason: "total symbol ceiling reached"}
	}

	if rec.File.Size > e.cfg.MaxFileBytes {
		reason := fmt.Sprintf("file is %d bytes, cap is %d", rec.File.Size, e.cfg.MaxFileBytes)
		e.logger.Warn("skipping oversize file",
			slog.String("path", rec.File.Path),
			slog.Int64("size", rec.File.Size),
			slog.Int64("max_file_bytes", e.cfg.MaxFileBytes))
		return Verdict{Decision: Skip, Reason: reason}
	}

	truncated := 0
	if len(rec.Symbols) > e.cfg.MaxSymbolsPerFile {
		truncated = len(rec.Symbols) - e.cfg.MaxSymbolsPerFile
		rec.Symbols = rec.Symbols[:e.cfg.MaxSymbolsPerFile]
		e.logger.Warn("truncating symbols over per-file ceiling",
			slog.String("path", rec.File.Path),
			slog.Int("dropped", truncated),
			slog.Int("max_symbols_per_file", e.cfg.MaxSymbolsPerFile))
	}

	projected := e.total + len(rec.Symbols)
	if projected > e.cfg.MaxTotalSymbols {
		e.stopped = true
		reason := fmt.Sprintf("admitting %d symbols would cross the %d total ceiling",
			len(rec.Symbols), e.cfg.MaxTotalSymbols)
		e.logger.Warn("stopping index: total symbol ceiling",
			slog.Int("total", e.total),
			slog.Int("max_total_symbols", e.cfg.MaxTotalSymbols))
		return Verdict{Decision: Stop, Reason: reason}
	}

	e.total = projected
	if float64(projected) > float64(e.cfg.MaxTotalSymbols)*e.cfg.WarnThreshold {
		e.logger.Warn("approaching total symbol ceiling",
			slog.Int("total", projected),
			slog.Int("max_total_symbols", e.cfg.MaxTotalSymbols))
	}
	return Verdict{Decision: Allow, Truncated: truncated}
}

// Total returns the number of symbols admitted so far.
func (e *Enforcer) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}
