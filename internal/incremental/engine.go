package incremental

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cerberusindex/cerberus/internal/scan"
	"github.com/cerberusindex/cerberus/internal/store"
)

// FileError is a per-file apply failure. The run continues past it.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

// UpdateResult summarizes one incremental run.
type UpdateResult struct {
	Strategy        Strategy
	FilesReparsed   int
	UpdatedSymbols  []*store.Symbol
	RemovedSymbols  []*store.Symbol
	AffectedCallers []string
	Elapsed         time.Duration
	Errors          []FileError
}

// Engine applies change sets to the store. All per-file writes are single
// transactions; a failing file is rolled back and reported while the run
// proceeds.
type Engine struct {
	store   store.Store
	scanner *scan.Scanner
	root    string
	logger  *slog.Logger
}

// NewEngine returns an engine for the project rooted at root.
func NewEngine(st store.Store, scanner *scan.Scanner, root string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, scanner: scanner, root: root, logger: logger}
}

// Store exposes the engine's store for collaborators that detect changes
// before handing them to Apply.
func (e *Engine) Store() store.Store { return e.store }

// Update detects changes (git first, filesystem batch second), chooses a
// strategy, and applies it. paths is the watcher's batch; pass nil when
// driving from git. force overrides the chooser to a full reparse.
func (e *Engine) Update(ctx context.Context, probe GitProbe, paths []string, force bool) (*UpdateResult, error) {
	var cs *ChangeSet
	var err error

	if probe != nil {
		cs, err = DetectGitChanges(ctx, probe, e.store)
	}
	if cs == nil {
		cs, err = DetectFSChanges(ctx, e.store, e.root, paths)
	}
	if err != nil {
		return nil, err
	}

	files, err := e.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	strategy := Choose(cs, len(files), force)
	if strategy == StrategyFullReparse {
		// A full reparse covers the whole tree, not just the detected set.
		cs, err = e.wholeTreeChangeSet(ctx)
		if err != nil {
			return nil, err
		}
	}
	return e.Apply(ctx, cs, strategy)
}

// wholeTreeChangeSet marks every supported on-disk file modified and
// every indexed-but-missing file deleted.
func (e *Engine) wholeTreeChangeSet(ctx context.Context) (*ChangeSet, error) {
	indexed, err := e.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	onDisk, err := e.walkSupportedFiles()
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{}
	for _, f := range indexed {
		if onDisk[f.Path] {
			cs.Modified = append(cs.Modified, ModifiedFile{Path: f.Path})
			delete(onDisk, f.Path)
		} else {
			cs.Deleted = append(cs.Deleted, f.Path)
		}
	}
	for path := range onDisk {
		cs.Added = append(cs.Added, path)
	}
	cs.sortForDeterminism()
	return cs, nil
}

// Apply runs one repair pass for the given change set and strategy.
func (e *Engine) Apply(ctx context.Context, cs *ChangeSet, strategy Strategy) (*UpdateResult, error) {
	start := time.Now()
	result := &UpdateResult{Strategy: strategy}

	for _, path := range cs.Deleted {
		removed, err := e.store.QuerySymbols(ctx, store.SymbolFilter{FilePath: path})
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: path, Err: err})
			continue
		}
		if err := e.store.DeleteFile(ctx, path); err != nil {
			result.Errors = append(result.Errors, FileError{Path: path, Err: err})
			continue
		}
		result.RemovedSymbols = append(result.RemovedSymbols, removed...)
	}

	reparse := make([]ModifiedFile, 0, len(cs.Added)+len(cs.Modified))
	for _, path := range cs.Added {
		reparse = append(reparse, ModifiedFile{Path: path})
	}
	reparse = append(reparse, cs.Modified...)

	for _, mf := range reparse {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		updated, removed, err := e.applyFile(ctx, mf, strategy)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: mf.Path, Err: err})
			e.logger.Warn("incremental apply failed for file",
				slog.String("path", mf.Path), slog.String("error", err.Error()))
			continue
		}
		result.FilesReparsed++
		result.UpdatedSymbols = append(result.UpdatedSymbols, updated...)
		result.RemovedSymbols = append(result.RemovedSymbols, removed...)
	}

	affected, err := e.cascadeAffectedCallers(ctx, result)
	if err != nil {
		e.logger.Warn("affected-caller cascade failed", slog.String("error", err.Error()))
	} else {
		result.AffectedCallers = affected
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// applyFile reparses one file and writes the diff. Each store call commits
// on its own: the whole-file path writes the file record and then its
// references, the surgical path one range replace per changed range and
// then the file row, and a failure part-way leaves the earlier writes in
// place. Under the surgical strategy only symbols overlapping the changed
// ranges are re-emitted; the rest of the file's rows are preserved untouched.
func (e *Engine) applyFile(ctx context.Context, mf ModifiedFile, strategy Strategy) (updated, removed []*store.Symbol, err error) {
	rec, err := e.scanner.ParseFile(ctx, e.root, mf.Path)
	if err != nil {
		return nil, nil, err
	}

	old, err := e.store.QuerySymbols(ctx, store.SymbolFilter{FilePath: mf.Path})
	if err != nil {
		return nil, nil, err
	}

	if strategy == StrategySurgical && len(mf.Ranges) > 0 && len(old) > 0 {
		return e.applySurgical(ctx, mf, rec, old)
	}

	// Whole-file reparse: one transaction replaces every row for the file;
	// references are upserted after it in a separate one.
	if err := e.store.WriteFileRecord(ctx, rec.FileRecord); err != nil {
		return nil, nil, err
	}
	if len(rec.References) > 0 {
		if err := e.store.UpsertSymbolReferences(ctx, rec.References); err != nil {
			return nil, nil, err
		}
	}

	oldKeys := symbolKeySet(old)
	newKeys := symbolKeySet(rec.FileRecord.Symbols)
	for _, sym := range rec.FileRecord.Symbols {
		if !oldKeys[sym.DedupeKey()] {
			updated = append(updated, sym)
		}
	}
	for _, sym := range old {
		if !newKeys[sym.DedupeKey()] {
			removed = append(removed, sym)
		}
	}
	return updated, removed, nil
}

func (e *Engine) applySurgical(ctx context.Context, mf ModifiedFile, rec *scan.Record, old []*store.Symbol) (updated, removed []*store.Symbol, err error) {
	// Each changed hunk is handled on its own: symbols sitting between two
	// disjoint hunks never overlap any range and are preserved untouched.
	// A symbol spanning more than one range is re-emitted once; the later
	// range's replace drops and re-inserts the row it shares.
	reEmitted := make(map[string]bool)
	for _, r := range mf.Ranges {
		var inRange []*store.Symbol
		for _, sym := range rec.FileRecord.Symbols {
			if r.Overlaps(sym.StartLine, sym.EndLine) {
				inRange = append(inRange, sym)
			}
		}
		if err := e.store.ReplaceSymbolsInRange(ctx, mf.Path, r.Start, r.End, inRange); err != nil {
			return nil, nil, err
		}
		for _, sym := range inRange {
			if !reEmitted[sym.DedupeKey()] {
				reEmitted[sym.DedupeKey()] = true
				// Every re-emitted symbol counts as updated: a body-only
				// edit keeps the identity tuple unchanged but the stored
				// rows were replaced.
				updated = append(updated, sym)
			}
		}
	}
	if err := e.store.UpsertFile(ctx, &rec.FileRecord.File); err != nil {
		return nil, nil, err
	}

	for _, sym := range old {
		if overlapsAny(sym, mf.Ranges) && !reEmitted[sym.DedupeKey()] {
			removed = append(removed, sym)
		}
	}
	return updated, removed, nil
}

func overlapsAny(sym *store.Symbol, ranges []LineRange) bool {
	for _, r := range ranges {
		if r.Overlaps(sym.StartLine, sym.EndLine) {
			return true
		}
	}
	return false
}

// cascadeAffectedCallers recomputes reference and method-call rows whose
// targets intersect the run's updated or removed symbol names — scoped to
// the files that actually reference them, never the whole index.
func (e *Engine) cascadeAffectedCallers(ctx context.Context, result *UpdateResult) ([]string, error) {
	names := make(map[string]bool)
	for _, sym := range result.UpdatedSymbols {
		names[sym.Name] = true
	}
	for _, sym := range result.RemovedSymbols {
		names[sym.Name] = true
	}
	if len(names) == 0 {
		return nil, nil
	}

	affectedSet := make(map[string]bool)
	var retarget []*store.SymbolReference
	for name := range names {
		refs, err := e.store.QuerySymbolReferencesFiltered(ctx, store.SymbolReferenceFilter{TargetSymbol: name})
		if err != nil {
			return nil, err
		}
		if len(refs) == 0 {
			continue
		}

		// Where does the name live now, if anywhere?
		defs, err := e.store.QuerySymbols(ctx, store.SymbolFilter{Name: name})
		if err != nil {
			return nil, err
		}
		var defFile *string
		if len(defs) > 0 {
			f := defs[0].FilePath
			defFile = &f
		}

		for _, ref := range refs {
			affectedSet[ref.SourceFile+":"+ref.SourceSymbol] = true
			ref.TargetFile = defFile
			if defFile == nil {
				ref.Confidence = 0
				ref.ResolutionMethod = "stale"
			}
			retarget = append(retarget, ref)
		}
	}

	if len(retarget) > 0 {
		if err := e.store.UpsertSymbolReferences(ctx, retarget); err != nil {
			return nil, err
		}
	}

	affected := make([]string, 0, len(affectedSet))
	for key := range affectedSet {
		affected = append(affected, key)
	}
	sort.Strings(affected)
	return affected, nil
}

// Reconcile diffs the indexed file rows against the current tree: the
// startup pass covering changes made while no watcher was running. It
// returns the applied result, or nil when nothing diverged.
func (e *Engine) Reconcile(ctx context.Context) (*UpdateResult, error) {
	indexed, err := e.store.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	onDisk, err := e.walkSupportedFiles()
	if err != nil {
		return nil, err
	}

	var batch []string
	for _, f := range indexed {
		batch = append(batch, f.Path)
		delete(onDisk, f.Path)
	}
	for path := range onDisk {
		batch = append(batch, path)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	cs, err := DetectFSChanges(ctx, e.store, e.root, batch)
	if err != nil {
		return nil, err
	}
	if cs.Empty() {
		return nil, nil
	}
	return e.Apply(ctx, cs, Choose(cs, len(indexed), false))
}

// walkSupportedFiles lists every parseable file under the root, skipping
// hidden directories and symlinks.
func (e *Engine) walkSupportedFiles() (map[string]bool, error) {
	onDisk := make(map[string]bool)
	registry := scan.DefaultRegistry()
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			if d != nil && d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != e.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if _, ok := registry.ByExtension(filepath.Ext(path)); !ok {
			return nil
		}
		rel, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return nil
		}
		onDisk[filepath.ToSlash(rel)] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return onDisk, nil
}

func symbolKeySet(symbols []*store.Symbol) map[string]bool {
	keys := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		keys[sym.DedupeKey()] = true
	}
	return keys
}
