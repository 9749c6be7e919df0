package scan

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/cerberusindex/cerberus/internal/gitignore"
	"github.com/cerberusindex/cerberus/internal/store"
)

// Directories never worth descending into, regardless of ignore files.
var defaultExcludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	".cerberus":    true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
}

// Scanner discovers and parses indexable files under a project root.
type Scanner struct {
	registry *Registry
	logger   *slog.Logger

	parsers sync.Pool
}

// NewScanner returns a scanner over the default language registry.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scanner{registry: DefaultRegistry(), logger: logger}
	s.parsers.New = func() any { return NewParser() }
	return s
}

// Scan walks opts.Root and streams one Result per candidate file, in
// stable depth-first sorted order. Files are parsed in parallel across a
// bounded worker pool; emission order is independent of completion order.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	files, err := s.discover(opts)
	if err != nil {
		return nil, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(files))
	done := make([]chan struct{}, len(files))
	for i := range done {
		done[i] = make(chan struct{})
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				close(done[i])
				return nil
			}
			defer sem.Release(1)
			defer close(done[i])
			results[i] = s.scanOne(gctx, opts, path)
			return nil
		})
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		for i := range files {
			select {
			case <-done[i]:
			case <-ctx.Done():
				return
			}
			select {
			case out <- results[i]:
			case <-ctx.Done():
				return
			}
		}
		_ = g.Wait()
	}()
	return out, nil
}

// discover walks the tree and returns the sorted repo-relative candidate
// list. Symlinks are never followed; ignore files are honored unless
// disabled.
func (s *Scanner) discover(opts Options) ([]string, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}

	matcher := gitignore.New()
	if !opts.NoIgnore {
		_ = matcher.AddFromFile(filepath.Join(root, ".gitignore"), "")
	}

	extFilter := make(map[string]bool)
	for _, ext := range opts.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extFilter[strings.ToLower(ext)] = true
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("walk error, skipping entry", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if defaultExcludedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !opts.NoIgnore {
				// Nested ignore files apply from their directory down.
				_ = matcher.AddFromFile(filepath.Join(path, ".gitignore"), rel)
				if matcher.Match(rel, true) {
					return filepath.SkipDir
				}
			}
			return nil
		}

		// Symlinks are skipped, never followed.
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(rel))
		if len(extFilter) > 0 {
			if !extFilter[ext] {
				return nil
			}
		} else if _, ok := s.registry.ByExtension(ext); !ok {
			return nil
		}

		if !opts.NoIgnore && matcher.Match(rel, false) {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// WalkDir is lexical already; sorting keeps the contract explicit.
	sort.Strings(files)
	return files, nil
}

// scanOne stats, reads, sniffs, and parses a single file.
func (s *Scanner) scanOne(ctx context.Context, opts Options, rel string) Result {
	abs := filepath.Join(opts.Root, filepath.FromSlash(rel))

	info, err := os.Lstat(abs)
	if err != nil {
		return Result{Path: rel, Err: err}
	}

	file := store.File{
		Path:         rel,
		Size:         info.Size(),
		LastModified: info.ModTime().Unix(),
		Extension:    strings.ToLower(filepath.Ext(rel)),
	}

	// Oversize files are not read; the record carries metadata only and
	// the enforcer downstream skips it without paying the read.
	if opts.MaxFileBytes > 0 && info.Size() > opts.MaxFileBytes {
		rec := &Record{FileRecord: &store.FileRecord{File: file}}
		return Result{Path: rel, Record: rec}
	}

	source, err := os.ReadFile(abs)
	if err != nil {
		return Result{Path: rel, Err: err}
	}

	if isBinary(source) {
		rec := &Record{FileRecord: &store.FileRecord{File: file}}
		return Result{Path: rel, Record: rec}
	}

	rec, err := s.parse(ctx, source, file)
	if err != nil {
		// A malformed file never aborts the scan.
		s.logger.Warn("parse failed, skipping file",
			slog.String("path", rel), slog.String("error", err.Error()))
		return Result{Path: rel, Err: err}
	}
	return Result{Path: rel, Record: rec}
}

func (s *Scanner) parse(ctx context.Context, source []byte, file store.File) (*Record, error) {
	lang, ok := s.registry.ByExtension(file.Extension)
	if !ok {
		return &Record{FileRecord: &store.FileRecord{File: file}}, nil
	}

	parser := s.parsers.Get().(*Parser)
	defer s.parsers.Put(parser)

	tree, err := parser.Parse(ctx, source, lang.Name)
	if err != nil {
		return nil, err
	}

	rec := Extract(tree, file.Path)
	rec.FileRecord.File = file
	return rec, nil
}

// ParseFile parses a single file for the incremental engine and the
// mutation engine. rel must be repo-relative; root anchors the read.
func (s *Scanner) ParseFile(ctx context.Context, root, rel string) (*Record, error) {
	res := s.scanOne(ctx, Options{Root: root}, rel)
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Record, nil
}

// isBinary sniffs for a null byte in the first 512 bytes.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 512 {
		probe = probe[:512]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
