// Package quality runs heuristic checks over the index: a pattern
// detector flagging structural smells, and a related-change predictor
// that uses the call and import graphs to guess what else a change to a
// symbol will touch.
package quality

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/cerberusindex/cerberus/internal/graph"
	"github.com/cerberusindex/cerberus/internal/store"
)

// Detection thresholds.
const (
	godClassMethods  = 20
	longFunctionSpan = 80
)

// Finding is one detected pattern.
type Finding struct {
	Kind    string `json:"kind"`
	File    string `json:"file"`
	Symbol  string `json:"symbol"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// DetectPatterns scans stored symbols for structural smells: god
// classes, overlong functions, missing docstrings on public classes, and
// mixed naming conventions within one file.
func DetectPatterns(ctx context.Context, st store.Store, files []string) ([]Finding, error) {
	var findings []Finding

	for _, file := range files {
		symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{FilePath: file})
		if err != nil {
			return nil, err
		}

		methodCount := make(map[string]int)
		snake, camel := 0, 0

		for _, sym := range symbols {
			switch sym.Type {
			case store.SymbolMethod:
				methodCount[sym.ParentClass]++
			case store.SymbolFunction:
				if span := sym.EndLine - sym.StartLine; span > longFunctionSpan {
					findings = append(findings, Finding{
						Kind: "long_function", File: file, Symbol: sym.Name, Line: sym.StartLine,
						Message: fmt.Sprintf("%q spans %d lines", sym.Name, span),
					})
				}
			case store.SymbolClass:
				if sym.Docstring == "" && !strings.HasPrefix(sym.Name, "_") {
					findings = append(findings, Finding{
						Kind: "missing_docstring", File: file, Symbol: sym.Name, Line: sym.StartLine,
						Message: fmt.Sprintf("public class %q has no docstring", sym.Name),
					})
				}
			}

			if sym.Type == store.SymbolFunction || sym.Type == store.SymbolMethod {
				switch {
				case strings.Contains(sym.Name, "_"):
					snake++
				case sym.Name != strings.ToLower(sym.Name):
					camel++
				}
			}
		}

		for class, count := range methodCount {
			if count > godClassMethods {
				findings = append(findings, Finding{
					Kind: "god_class", File: file, Symbol: class,
					Message: fmt.Sprintf("%q has %d methods", class, count),
				})
			}
		}
		if snake > 0 && camel > 0 {
			findings = append(findings, Finding{
				Kind: "mixed_naming", File: file,
				Message: fmt.Sprintf("%d snake_case and %d camelCase definitions in one file", snake, camel),
			})
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].File != findings[j].File {
			return findings[i].File < findings[j].File
		}
		return findings[i].Line < findings[j].Line
	})
	return findings, nil
}

// Prediction is one symbol likely affected by a change.
type Prediction struct {
	Symbol string  `json:"symbol"`
	File   string  `json:"file"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// PredictRelatedChanges estimates what changes alongside symbolName:
// direct callers score highest, transitive callers decay with distance,
// and co-importers of the defining file add weak signals.
func PredictRelatedChanges(ctx context.Context, st store.Store, symbolName string, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 10
	}

	scores := make(map[string]*Prediction)

	reverse, err := graph.ReverseGraph(ctx, st, symbolName, graph.TraversalOptions{MaxDepth: 3})
	if err != nil {
		return nil, err
	}
	depthOf := nodeDepths(reverse)
	for _, node := range reverse.Nodes {
		if node.Name == symbolName {
			continue
		}
		depth := depthOf[node.Name]
		if depth == 0 {
			depth = 1
		}
		score := 1.0 / float64(depth)
		scores[node.Name] = &Prediction{
			Symbol: node.Name, File: node.File, Score: score,
			Reason: fmt.Sprintf("calls %s (distance %d)", symbolName, depth),
		}
	}

	// Files importing the defining file often track its interface.
	defs, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: symbolName})
	if err != nil {
		return nil, err
	}
	if len(defs) > 0 {
		links, err := st.QueryImportLinks(ctx, store.ImportLinkFilter{})
		if err != nil {
			return nil, err
		}
		for _, link := range links {
			if link.DefinitionFile == nil || *link.DefinitionFile != defs[0].FilePath {
				continue
			}
			key := "<module> " + link.ImporterFile
			if existing, ok := scores[key]; ok {
				existing.Score += 0.2
				continue
			}
			scores[key] = &Prediction{
				Symbol: "<module>", File: link.ImporterFile, Score: 0.2,
				Reason: "imports " + defs[0].FilePath,
			}
		}
	}

	out := make([]Prediction, 0, len(scores))
	for _, p := range scores {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// nodeDepths recovers BFS depth per node from the edge list.
func nodeDepths(g *graph.Graph) map[string]int {
	adjacent := make(map[string][]string)
	for _, edge := range g.Edges {
		// Reverse graphs store edges caller->callee; walk them backwards.
		adjacent[edge.To] = append(adjacent[edge.To], edge.From)
	}

	depths := map[string]int{g.Root: 0}
	queue := []string{g.Root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacent[current] {
			if _, seen := depths[next]; seen {
				continue
			}
			depths[next] = depths[current] + 1
			queue = append(queue, next)
		}
	}
	return depths
}
