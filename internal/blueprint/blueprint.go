// Package blueprint builds compressed structural views of files: symbols
// sorted by line, nested methods grouped under their classes, signatures
// without bodies. Views are cached in-memory (LRU) and in the store's
// blueprint_cache table, both invalidated by the file's mtime.
package blueprint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cerberusindex/cerberus/internal/store"
)

// memoryCacheSize bounds the in-memory LRU layer.
const memoryCacheSize = 256

// Entry is one symbol of a blueprint; classes nest their methods.
type Entry struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Signature string  `json:"signature"`
	Docstring string  `json:"docstring,omitempty"`
	Methods   []Entry `json:"methods,omitempty"`
}

// Blueprint is the structural view of one file.
type Blueprint struct {
	FilePath string  `json:"file_path"`
	Entries  []Entry `json:"entries"`
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Rate   float64 `json:"hit_rate"`
}

type cached struct {
	blueprint *Blueprint
	mtime     int64
}

// Builder serves blueprints over one store.
type Builder struct {
	store  store.Store
	root   string
	memory *lru.Cache[string, cached]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewBuilder returns a builder for the project rooted at root.
func NewBuilder(st store.Store, root string) (*Builder, error) {
	memory, err := lru.New[string, cached](memoryCacheSize)
	if err != nil {
		return nil, err
	}
	return &Builder{store: st, root: root, memory: memory}, nil
}

// Get returns the blueprint for path, valid against the file's current
// mtime. A miss recomputes from the store — no source read — and writes
// both cache layers back.
func (b *Builder) Get(ctx context.Context, path string) (*Blueprint, error) {
	info, err := os.Stat(filepath.Join(b.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	mtime := info.ModTime().Unix()

	if entry, ok := b.memory.Get(path); ok && entry.mtime == mtime {
		b.hits.Add(1)
		return entry.blueprint, nil
	}

	if row, err := b.store.GetBlueprintCache(ctx, path); err == nil && row != nil && row.SourceMtime == mtime {
		bp := &Blueprint{}
		if err := json.Unmarshal([]byte(row.SerializedBlueprint), bp); err == nil {
			b.hits.Add(1)
			b.memory.Add(path, cached{blueprint: bp, mtime: mtime})
			return bp, nil
		}
	}

	b.misses.Add(1)
	bp, err := b.compute(ctx, path)
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(bp)
	if err != nil {
		return nil, err
	}
	if err := b.store.PutBlueprintCache(ctx, &store.BlueprintCacheEntry{
		FilePath:            path,
		SerializedBlueprint: string(serialized),
		SourceMtime:         mtime,
		CreatedAt:           time.Now().UTC(),
	}); err != nil {
		return nil, err
	}
	b.memory.Add(path, cached{blueprint: bp, mtime: mtime})
	return bp, nil
}

// Invalidate drops the in-memory entry for path; the watcher calls this
// after incremental updates.
func (b *Builder) Invalidate(path string) {
	b.memory.Remove(path)
}

// Stats returns hit/miss counters.
func (b *Builder) Stats() Stats {
	hits, misses := b.hits.Load(), b.misses.Load()
	s := Stats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.Rate = float64(hits) / float64(total)
	}
	return s
}

// compute assembles the blueprint from stored symbols only.
func (b *Builder) compute(ctx context.Context, path string) (*Blueprint, error) {
	symbols, err := b.store.QuerySymbols(ctx, store.SymbolFilter{FilePath: path})
	if err != nil {
		return nil, err
	}

	bp := &Blueprint{FilePath: path}
	classIndex := make(map[string]int)

	seen := make(map[string]bool)
	for _, sym := range symbols {
		if seen[sym.DedupeKey()] {
			continue
		}
		seen[sym.DedupeKey()] = true

		entry := Entry{
			Name:      sym.Name,
			Type:      string(sym.Type),
			StartLine: sym.StartLine,
			EndLine:   sym.EndLine,
			Signature: sym.Signature,
			Docstring: sym.Docstring,
		}

		if sym.Type == store.SymbolMethod && sym.ParentClass != "" {
			if i, ok := classIndex[sym.ParentClass]; ok {
				bp.Entries[i].Methods = append(bp.Entries[i].Methods, entry)
				continue
			}
			// Parent class missing from the index: surface the method at
			// the top level rather than dropping it.
		}

		bp.Entries = append(bp.Entries, entry)
		if sym.Type == store.SymbolClass {
			classIndex[sym.Name] = len(bp.Entries) - 1
		}
	}
	return bp, nil
}
