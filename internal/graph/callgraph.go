package graph

import (
	"context"
	"sort"

	"github.com/cerberusindex/cerberus/internal/store"
)

// Traversal caps. Breaching either sets Truncated.
const (
	DefaultMaxDepth = 5
	DefaultNodeCap  = 100
	DefaultEdgeCap  = 200
)

// builtinNames are universal callees filtered out of graphs: stdlib noise
// that would connect everything to everything.
var builtinNames = map[string]bool{
	"print": true, "len": true, "range": true, "str": true, "int": true,
	"float": true, "bool": true, "list": true, "dict": true, "set": true,
	"tuple": true, "type": true, "isinstance": true, "super": true,
	"enumerate": true, "zip": true, "map": true, "filter": true,
	"sorted": true, "open": true, "repr": true, "hasattr": true,
	"getattr": true, "setattr": true, "append": true, "make": true,
	"new": true, "panic": true, "recover": true, "copy": true,
	"delete": true, "cap": true, "println": true, "require": true,
}

// GraphNode is one symbol in a call graph.
type GraphNode struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// GraphEdge is one call edge; Kind is "call" or "method_call".
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

// Graph is a bounded call graph rooted at a symbol.
type Graph struct {
	Root            string      `json:"root"`
	Direction       string      `json:"direction"`
	Nodes           []GraphNode `json:"nodes"`
	Edges           []GraphEdge `json:"edges"`
	MaxDepthReached int         `json:"max_depth_reached"`
	Truncated       bool        `json:"truncated"`
}

// TraversalOptions bounds a graph walk; zero values take the defaults.
type TraversalOptions struct {
	MaxDepth int
	NodeCap  int
	EdgeCap  int
}

func (o TraversalOptions) withDefaults() TraversalOptions {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.NodeCap <= 0 {
		o.NodeCap = DefaultNodeCap
	}
	if o.EdgeCap <= 0 {
		o.EdgeCap = DefaultEdgeCap
	}
	return o
}

// ForwardGraph BFS-walks callees from symbolName.
func ForwardGraph(ctx context.Context, st store.Store, symbolName string, opts TraversalOptions) (*Graph, error) {
	return traverse(ctx, st, symbolName, "forward", opts)
}

// ReverseGraph BFS-walks callers into symbolName.
func ReverseGraph(ctx context.Context, st store.Store, symbolName string, opts TraversalOptions) (*Graph, error) {
	return traverse(ctx, st, symbolName, "reverse", opts)
}

func traverse(ctx context.Context, st store.Store, root, direction string, opts TraversalOptions) (*Graph, error) {
	opts = opts.withDefaults()
	g := &Graph{Root: root, Direction: direction}

	visited := map[string]bool{root: true}
	edgeSeen := make(map[string]bool)

	rootNode, err := nodeFor(ctx, st, root)
	if err != nil {
		return nil, err
	}
	g.Nodes = append(g.Nodes, rootNode)

	frontier := []string{root}
	for depth := 1; depth <= opts.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, name := range frontier {
			var neighbors []neighbor
			var err error
			if direction == "forward" {
				neighbors, err = callees(ctx, st, name)
			} else {
				neighbors, err = callers(ctx, st, name)
			}
			if err != nil {
				return nil, err
			}

			for _, nb := range neighbors {
				if builtinNames[nb.name] {
					continue
				}

				from, to := name, nb.name
				if direction == "reverse" {
					from, to = nb.name, name
				}
				edgeKey := from + "\x00" + to + "\x00" + nb.kind
				if !edgeSeen[edgeKey] {
					if len(g.Edges) >= opts.EdgeCap {
						g.Truncated = true
						continue
					}
					edgeSeen[edgeKey] = true
					g.Edges = append(g.Edges, GraphEdge{From: from, To: to, Kind: nb.kind, Line: nb.line})
				}

				if visited[nb.name] {
					continue
				}
				if len(g.Nodes) >= opts.NodeCap {
					g.Truncated = true
					continue
				}
				visited[nb.name] = true
				node, err := nodeFor(ctx, st, nb.name)
				if err != nil {
					return nil, err
				}
				g.Nodes = append(g.Nodes, node)
				if depth > g.MaxDepthReached {
					g.MaxDepthReached = depth
				}
				next = append(next, nb.name)
			}
		}
		frontier = next
	}
	return g, nil
}

type neighbor struct {
	name string
	kind string
	line int
}

// callees returns the names called from within symbolName's line span.
func callees(ctx context.Context, st store.Store, symbolName string) ([]neighbor, error) {
	defs, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: symbolName})
	if err != nil {
		return nil, err
	}
	defs = dedupeSymbols(defs)

	var out []neighbor
	for _, def := range defs {
		calls, err := st.QueryCalls(ctx, store.CallFilter{CallerFile: def.FilePath})
		if err != nil {
			return nil, err
		}
		for _, call := range calls {
			if call.Line >= def.StartLine && call.Line <= def.EndLine {
				out = append(out, neighbor{name: call.Callee, kind: "call", line: call.Line})
			}
		}

		methodCalls, err := st.QueryMethodCallsFiltered(ctx, store.MethodCallFilter{File: def.FilePath})
		if err != nil {
			return nil, err
		}
		for _, mc := range methodCalls {
			if mc.Line >= def.StartLine && mc.Line <= def.EndLine {
				out = append(out, neighbor{name: mc.Method, kind: "method_call", line: mc.Line})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].line != out[j].line {
			return out[i].line < out[j].line
		}
		return out[i].name < out[j].name
	})
	return out, nil
}

// callers returns the symbols whose spans contain a call to symbolName.
func callers(ctx context.Context, st store.Store, symbolName string) ([]neighbor, error) {
	var sites []struct {
		file string
		line int
		kind string
	}

	calls, err := st.QueryCalls(ctx, store.CallFilter{Callee: symbolName})
	if err != nil {
		return nil, err
	}
	for _, call := range calls {
		sites = append(sites, struct {
			file string
			line int
			kind string
		}{call.CallerFile, call.Line, "call"})
	}

	methodCalls, err := st.QueryMethodCallsFiltered(ctx, store.MethodCallFilter{Method: symbolName})
	if err != nil {
		return nil, err
	}
	for _, mc := range methodCalls {
		sites = append(sites, struct {
			file string
			line int
			kind string
		}{mc.CallerFile, mc.Line, "method_call"})
	}

	var out []neighbor
	seen := make(map[string]bool)
	for _, site := range sites {
		symbols, err := st.QuerySymbols(ctx, store.SymbolFilter{FilePath: site.file})
		if err != nil {
			return nil, err
		}
		caller := enclosingSymbolName(symbols, site.line)
		if caller == "<module>" || caller == symbolName {
			continue
		}
		key := caller + "\x00" + site.kind
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, neighbor{name: caller, kind: site.kind, line: site.line})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func nodeFor(ctx context.Context, st store.Store, name string) (GraphNode, error) {
	defs, err := st.QuerySymbols(ctx, store.SymbolFilter{Name: name})
	if err != nil {
		return GraphNode{}, err
	}
	node := GraphNode{Name: name}
	if len(defs) > 0 {
		defs = dedupeSymbols(defs)
		node.File = defs[0].FilePath
		node.Line = defs[0].StartLine
	}
	return node, nil
}
