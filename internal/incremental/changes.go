// Package incremental detects repository changes, chooses a repair
// strategy, and applies surgical or per-file index updates atomically.
package incremental

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/cerberusindex/cerberus/internal/store"
)

// ErrCannotDetect is returned when neither git nor filesystem state can
// produce a change set; the caller falls back to a full rebuild.
var ErrCannotDetect = errors.New("cannot detect changes: no git history and no event batch")

// GitCommitKey is the metadata key holding the commit the index was built
// against.
const GitCommitKey = "git_commit"

// LineRange is an inclusive 1-based range of changed lines.
type LineRange struct {
	Start int
	End   int
}

// Overlaps reports whether the range intersects [start, end].
func (r LineRange) Overlaps(start, end int) bool {
	return r.Start <= end && r.End >= start
}

// ModifiedFile is a changed file plus, when the diff source provides them,
// the line ranges that changed. Empty ranges mean whole-file.
type ModifiedFile struct {
	Path   string
	Ranges []LineRange
}

// ChangeSet is the unified change structure both detectors produce.
type ChangeSet struct {
	Added    []string
	Modified []ModifiedFile
	Deleted  []string
}

// Total returns the number of changed files.
func (cs *ChangeSet) Total() int {
	return len(cs.Added) + len(cs.Modified) + len(cs.Deleted)
}

// Empty reports a change set with nothing in it.
func (cs *ChangeSet) Empty() bool { return cs.Total() == 0 }

// sortForDeterminism fixes the apply order regardless of detector.
func (cs *ChangeSet) sortForDeterminism() {
	sort.Strings(cs.Added)
	sort.Strings(cs.Deleted)
	sort.Slice(cs.Modified, func(i, j int) bool { return cs.Modified[i].Path < cs.Modified[j].Path })
}

// DetectGitChanges compares the commit recorded in index metadata against
// the working tree, producing per-file line ranges for modified files.
func DetectGitChanges(ctx context.Context, probe GitProbe, st store.Store) (*ChangeSet, error) {
	stored, ok, err := st.GetMetadata(ctx, GitCommitKey)
	if err != nil {
		return nil, err
	}
	if !ok || stored == "" {
		return nil, ErrCannotDetect
	}

	head, err := probe.RevParse(ctx, "HEAD")
	if err != nil {
		return nil, ErrCannotDetect
	}

	entries, err := probe.DiffNameStatus(ctx, stored, "")
	if err != nil {
		return nil, err
	}
	_ = head

	cs := &ChangeSet{}
	for _, entry := range entries {
		switch entry.Status {
		case 'A':
			cs.Added = append(cs.Added, entry.Path)
		case 'D':
			cs.Deleted = append(cs.Deleted, entry.Path)
		case 'R':
			// A rename is a delete+add pair at the file-identity level.
			cs.Deleted = append(cs.Deleted, entry.OldPath)
			cs.Added = append(cs.Added, entry.Path)
		case 'M':
			ranges, err := probe.DiffUnified0(ctx, stored, "", entry.Path)
			if err != nil {
				ranges = nil // degrade to whole-file reparse
			}
			cs.Modified = append(cs.Modified, ModifiedFile{Path: entry.Path, Ranges: ranges})
		}
	}
	cs.sortForDeterminism()
	return cs, nil
}

// DetectFSChanges classifies a batch of paths from the watcher by
// existence versus the stored file rows. Both sides of the mtime
// comparison are truncated to whole seconds; filesystem and store
// granularity differ.
func DetectFSChanges(ctx context.Context, st store.Store, root string, paths []string) (*ChangeSet, error) {
	if len(paths) == 0 {
		return nil, ErrCannotDetect
	}

	cs := &ChangeSet{}
	seen := make(map[string]bool)
	for _, rel := range paths {
		rel = filepath.ToSlash(rel)
		if seen[rel] {
			continue
		}
		seen[rel] = true

		stored, err := st.GetFile(ctx, rel)
		if err != nil {
			return nil, err
		}

		info, statErr := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
		switch {
		case statErr != nil:
			if stored != nil {
				cs.Deleted = append(cs.Deleted, rel)
			}
		case stored == nil:
			cs.Added = append(cs.Added, rel)
		case info.ModTime().Unix() != stored.LastModified || info.Size() != stored.Size:
			cs.Modified = append(cs.Modified, ModifiedFile{Path: rel})
		}
	}
	cs.sortForDeterminism()
	return cs, nil
}
