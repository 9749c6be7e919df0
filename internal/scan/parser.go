package scan

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser wraps a tree-sitter parser. Not safe for concurrent use; the
// scanner keeps one per worker.
type Parser struct {
	parser   *sitter.Parser
	registry *Registry
}

// NewParser returns a parser over the default language registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: DefaultRegistry()}
}

// Parse parses source in the given language and returns the converted
// syntax tree.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	lang, ok := p.registry.ByName(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.parser.SetLanguage(lang.TS)
	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", language, err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse %s source: nil tree", language)
	}

	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Tree is a converted syntax tree plus the source it was parsed from.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a converted tree-sitter node. Field carries the grammar field
// name this node occupies in its parent (e.g. "name", "parameters"), which
// the extractors key on.
type Node struct {
	Type      string
	Field     string
	StartByte uint32
	EndByte   uint32
	StartRow  uint32 // 0-based
	EndRow    uint32 // 0-based
	HasError  bool
	Children  []*Node
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartRow:  tsNode.StartPoint().Row,
		EndRow:    tsNode.EndPoint().Row,
		HasError:  tsNode.HasError(),
		Children:  make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := 0; i < int(tsNode.ChildCount()); i++ {
		child := tsNode.Child(i)
		if child == nil {
			continue
		}
		converted := convertNode(child)
		converted.Field = tsNode.FieldNameForChild(i)
		node.Children = append(node.Children, converted)
	}
	return node
}

// StartLine returns the 1-based first line of the node.
func (n *Node) StartLine() int { return int(n.StartRow) + 1 }

// EndLine returns the 1-based last line of the node.
func (n *Node) EndLine() int { return int(n.EndRow) + 1 }

// Content returns the source text covered by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// ChildByField returns the first child occupying the given grammar field.
func (n *Node) ChildByField(field string) *Node {
	for _, child := range n.Children {
		if child.Field == field {
			return child
		}
	}
	return nil
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindAllByType recursively collects all nodes with the given type,
// including n itself.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node
	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}
	return result
}

// Walk traverses depth-first; fn returning false prunes the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// firstLine returns the node's first source line, trimmed, which serves as
// the free-text signature for most symbol kinds.
func firstLine(n *Node, source []byte) string {
	content := n.Content(source)
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			return trimRight(content[:i])
		}
	}
	return trimRight(content)
}

func trimRight(s string) string {
	for len(s) > 0 {
		c := s[len(s)-1]
		if c == ' ' || c == '\t' || c == '\r' || c == ':' || c == '{' {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	return s
}
