// Package indexer is the unified indexing entry point: preflight, scan,
// enforcement, store writes, optional embeddings, and resolution, in one
// call.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cerberusindex/cerberus/internal/embed"
	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/graph"
	"github.com/cerberusindex/cerberus/internal/incremental"
	"github.com/cerberusindex/cerberus/internal/limits"
	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

// Options parameterizes one indexing run.
type Options struct {
	// IndexPath locates the store; empty means <dir>/cerberus.db.
	IndexPath string

	// Extensions restricts the scan; empty means all supported.
	Extensions []string

	// StoreEmbeddings also embeds every symbol and fills the embeddings
	// table, enabling semantic retrieval.
	StoreEmbeddings bool

	// Limits overrides the environment-resolved limits when non-zero.
	Limits *limits.Config

	// Workers bounds the parallel parser pool.
	Workers int

	Logger *slog.Logger
}

// Result summarizes an indexing run.
type Result struct {
	FilesIndexed   int             `json:"files_indexed"`
	FilesSkipped   int             `json:"files_skipped"`
	FilesErrored   int             `json:"files_errored"`
	SymbolsIndexed int             `json:"symbols_indexed"`
	Stopped        bool            `json:"stopped"`
	StopReason     string          `json:"stop_reason,omitempty"`
	Preflight      *limits.Report  `json:"preflight"`
	ImportsResolved float64        `json:"import_resolution_rate"`
	Elapsed        time.Duration   `json:"elapsed"`
	Errors         []string        `json:"errors,omitempty"`
}

// Index scans dir into the store. The scanner's parallel producers feed
// the enforcer, which gates admission into the single serialized writer
// lane; per-file writes are individual transactions so a failure skips
// one file, not the run.
func Index(ctx context.Context, dir string, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := limits.Load()
	if opts.Limits != nil {
		cfg = *opts.Limits
	}
	if err := cfg.Validate(); err != nil {
		return nil, cerrs.ConfigError("invalid limits", err)
	}

	indexPath := opts.IndexPath
	if indexPath == "" {
		indexPath = dir + "/cerberus.db"
	}

	result := &Result{Preflight: limits.Preflight(ctx, cfg, dir, indexPath)}
	if !result.Preflight.CanProceed {
		return result, cerrs.New(cerrs.ErrCodeLimitExceeded, "preflight refused indexing", nil).
			WithDetail("status", string(result.Preflight.Status)).
			WithSuggestion("free disk space or raise the limits, then retry")
	}

	st, err := store.Open(indexPath)
	if err != nil {
		return result, err
	}
	defer st.Close()

	if err := runScan(ctx, st, dir, cfg, opts, result, logger); err != nil {
		return result, err
	}

	indexed, err := st.ListFiles(ctx)
	if err != nil {
		return result, err
	}
	files := make([]string, 0, len(indexed))
	for _, f := range indexed {
		files = append(files, f.Path)
	}

	resolver := graph.NewResolver(st, logger)
	if report, err := resolver.ResolveImports(ctx, files); err != nil {
		logger.Warn("import resolution failed", slog.String("error", err.Error()))
	} else {
		result.ImportsResolved = report.ImportResolutionRate()
	}
	if _, err := resolver.ResolveReferences(ctx, files); err != nil {
		logger.Warn("reference resolution failed", slog.String("error", err.Error()))
	}

	recordScanMetadata(ctx, st, dir)

	result.Elapsed = time.Since(start)
	return result, nil
}

func runScan(ctx context.Context, st store.Store, dir string, cfg limits.Config, opts Options, result *Result, logger *slog.Logger) error {
	scanner := scan.NewScanner(logger)
	stream, err := scanner.Scan(ctx, scan.Options{
		Root:         dir,
		Extensions:   opts.Extensions,
		MaxFileBytes: cfg.MaxFileBytes,
		Workers:      opts.Workers,
	})
	if err != nil {
		return err
	}

	enforcer := limits.NewEnforcer(cfg, logger)
	var embedder embed.Embedder
	vectorBudget := cfg.MaxVectors
	if opts.StoreEmbeddings {
		embedder = embed.NewStaticEmbedder()
	}

	for res := range stream {
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Err != nil {
			result.FilesErrored++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", res.Path, res.Err))
			continue
		}

		verdict := enforcer.Admit(res.Record.FileRecord)
		switch verdict.Decision {
		case limits.Skip:
			result.FilesSkipped++
			continue
		case limits.Stop:
			// The ceiling is a hard stop after the last committed file.
			result.Stopped = true
			result.StopReason = verdict.Reason
			result.SymbolsIndexed = enforcer.Total()
			return nil
		}

		if err := st.WriteFileRecord(ctx, res.Record.FileRecord); err != nil {
			result.FilesErrored++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", res.Path, err))
			continue
		}
		if len(res.Record.References) > 0 {
			if err := st.UpsertSymbolReferences(ctx, res.Record.References); err != nil {
				logger.Warn("reference write failed", slog.String("path", res.Path))
			}
		}
		if embedder != nil && vectorBudget > 0 {
			written, err := writeEmbeddings(ctx, st, embedder, res.Record.FileRecord, vectorBudget)
			if err != nil {
				logger.Warn("embedding write failed",
					slog.String("path", res.Path), slog.String("error", err.Error()))
			}
			vectorBudget -= written
		}

		result.FilesIndexed++
	}

	result.SymbolsIndexed = enforcer.Total()
	return nil
}

// writeEmbeddings embeds one file's symbols up to the remaining vector
// budget and reports how many vectors it consumed.
func writeEmbeddings(ctx context.Context, st store.Store, embedder embed.Embedder, rec *store.FileRecord, budget int) (int, error) {
	if len(rec.Symbols) == 0 {
		return 0, nil
	}

	symbols := rec.Symbols
	if len(symbols) > budget {
		symbols = symbols[:budget]
	}

	texts := make([]string, len(symbols))
	for i, sym := range symbols {
		texts[i] = sym.Name + " " + sym.Signature + " " + sym.Docstring
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	embeddings := make([]*store.Embedding, 0, len(vectors))
	for i, vec := range vectors {
		embeddings = append(embeddings, &store.Embedding{
			SymbolID:  symbols[i].ID,
			Vector:    vec,
			ModelName: embedder.ModelName(),
		})
	}
	return len(embeddings), st.UpsertEmbeddings(ctx, embeddings)
}

// recordScanMetadata stamps the scan time and, when dir is a git
// worktree, the current commit for the incremental engine's git diff
// source.
func recordScanMetadata(ctx context.Context, st store.Store, dir string) {
	_ = st.SetMetadata(ctx, "last_scan_unix", fmt.Sprintf("%d", time.Now().Unix()))

	probe := incremental.NewGitProbe(dir)
	if commit, err := probe.RevParse(ctx, "HEAD"); err == nil {
		_ = st.SetMetadata(ctx, incremental.GitCommitKey, commit)
	}
}
