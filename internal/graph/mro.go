package graph

import (
	"context"

	"github.com/cerberusindex/cerberus/internal/store"
)

// MROEntry is one class in the linearized order.
type MROEntry struct {
	Name  string `json:"name"`
	File  string `json:"file,omitempty"`
	Depth int    `json:"depth"`
	Found bool   `json:"found"`
}

// MROResult is the linearized base-class order for a class, with a
// confidence score reflecting how many bases the index could locate.
type MROResult struct {
	Class      string     `json:"class"`
	Order      []MROEntry `json:"order"`
	Confidence float64    `json:"confidence"`
}

// MRO walks inheritance edges transitively from className, producing
// [C, B1, B2, ...] in breadth-first order with depth labels. Cycles in
// corrupt hierarchies terminate via the visited set.
func MRO(ctx context.Context, st store.Store, className string) (*MROResult, error) {
	result := &MROResult{Class: className}

	classes, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: className, Type: store.SymbolClass})
	if err != nil {
		return nil, err
	}
	classes = dedupeSymbols(classes)

	root := MROEntry{Name: className, Depth: 0, Found: len(classes) > 0}
	if root.Found {
		root.File = classes[0].FilePath
	}
	result.Order = append(result.Order, root)

	visited := map[string]bool{className: true}
	queue := []MROEntry{root}
	found, total := 0, 0
	if root.Found {
		found++
	}
	total++

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		bases, err := basesOf(ctx, st, current.Name, current.File)
		if err != nil {
			return nil, err
		}
		for _, base := range bases {
			if visited[base.name] {
				continue
			}
			visited[base.name] = true
			entry := MROEntry{Name: base.name, File: base.file, Depth: current.Depth + 1, Found: base.found}
			result.Order = append(result.Order, entry)
			queue = append(queue, entry)
			total++
			if base.found {
				found++
			}
		}
	}

	if total > 0 {
		result.Confidence = float64(found) / float64(total)
	}
	return result, nil
}

type baseClass struct {
	name  string
	file  string
	found bool
}

// basesOf reads the inherits edges out of className.
func basesOf(ctx context.Context, st store.Store, className, file string) ([]baseClass, error) {
	filter := store.SymbolReferenceFilter{
		SourceSymbol:  className,
		ReferenceType: store.RefInherits,
	}
	if file != "" {
		filter.SourceFile = file
	}
	refs, err := st.QuerySymbolReferencesFiltered(ctx, filter)
	if err != nil {
		return nil, err
	}

	var bases []baseClass
	seen := make(map[string]bool)
	for _, ref := range refs {
		if ref.TargetSymbol == nil || seen[*ref.TargetSymbol] {
			continue
		}
		seen[*ref.TargetSymbol] = true
		base := baseClass{name: *ref.TargetSymbol}
		if ref.TargetFile != nil {
			base.file = *ref.TargetFile
			base.found = true
		} else {
			// The edge may predate resolution; try the index directly.
			defs, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: base.name, Type: store.SymbolClass})
			if err != nil {
				return nil, err
			}
			if len(defs) > 0 {
				base.file = defs[0].FilePath
				base.found = true
			}
		}
		bases = append(bases, base)
	}
	return bases, nil
}
