package graph

import (
	"context"

	"github.com/cerberusindex/cerberus/internal/store"
)

// MaxTracePaths bounds how many shortest paths a trace returns.
const MaxTracePaths = 3

// PathStep is one hop of a traced path.
type PathStep struct {
	Symbol string `json:"symbol"`
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
}

// PathTrace BFSes the forward call graph from source to target and
// returns up to MaxTracePaths shortest paths. No path within maxDepth
// yields an empty slice, not an error.
func PathTrace(ctx context.Context, st store.Store, source, target string, maxDepth int) ([][]PathStep, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	type queued struct {
		name string
		path []string
	}

	var found [][]string
	shortest := -1

	queue := []queued{{name: source, path: []string{source}}}
	for len(queue) > 0 && len(found) < MaxTracePaths {
		current := queue[0]
		queue = queue[1:]

		depth := len(current.path) - 1
		if shortest >= 0 && depth >= shortest {
			// Only paths of the shortest length are collected.
			continue
		}
		if depth >= maxDepth {
			continue
		}

		neighbors, err := callees(ctx, st, current.name)
		if err != nil {
			return nil, err
		}
		for _, nb := range neighbors {
			if builtinNames[nb.name] || contains(current.path, nb.name) {
				continue
			}
			path := append(append([]string{}, current.path...), nb.name)
			if nb.name == target {
				found = append(found, path)
				if shortest < 0 {
					shortest = len(path) - 1
				}
				if len(found) >= MaxTracePaths {
					break
				}
				continue
			}
			queue = append(queue, queued{name: nb.name, path: path})
		}
	}

	paths := make([][]PathStep, 0, len(found))
	for _, names := range found {
		steps := make([]PathStep, 0, len(names))
		for _, name := range names {
			node, err := nodeFor(ctx, st, name)
			if err != nil {
				return nil, err
			}
			steps = append(steps, PathStep{Symbol: name, File: node.File, Line: node.Line})
		}
		paths = append(paths, steps)
	}
	return paths, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
