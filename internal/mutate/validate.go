package mutate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	cerrs "github.com/cerberusindex/cerberus/internal/errors"
	"github.com/cerberusindex/cerberus/internal/scan"
)

// validateSyntax checks the mutated content before anything touches disk.
// Languages with a grammar get a real parse; everything else gets the
// balanced-delimiter heuristic.
func validateSyntax(ctx context.Context, path string, content []byte) error {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := scan.DefaultRegistry().ByExtension(ext)
	if !ok {
		return validateBalanced(content)
	}

	parser := scan.NewParser()
	defer parser.Close()
	tree, err := parser.Parse(ctx, content, lang.Name)
	if err != nil {
		return err
	}
	if tree.Root.HasError {
		return cerrs.ValidationError(
			fmt.Sprintf("syntax error after edit in %s", path), nil).
			WithSuggestion("check the replacement code parses on its own")
	}
	return nil
}

// validateBalanced verifies (), [], {} nest correctly outside string
// literals — the minimum bar for non-inspectable file types.
func validateBalanced(content []byte) error {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var inString byte

	for i := 0; i < len(content); i++ {
		c := content[i]
		if inString != 0 {
			if c == '\\' {
				i++
			} else if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			inString = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return cerrs.ValidationError("unbalanced delimiters after edit", nil)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return cerrs.ValidationError("unclosed delimiters after edit", nil)
	}
	return nil
}
