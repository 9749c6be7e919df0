package mutate

import (
	"go/format"
	"path/filepath"
	"strings"
)

// autoFormat runs the per-language formatter over the mutated content.
// Formatting is best-effort and idempotent: an unformattable result is
// returned unchanged rather than failing the edit that already validated.
func autoFormat(path string, content []byte) []byte {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		formatted, err := format.Source(content)
		if err != nil {
			return content
		}
		return formatted
	default:
		return normalizeTrailingWhitespace(content)
	}
}

// normalizeTrailingWhitespace strips trailing spaces per line and ensures
// a single trailing newline. Applying it twice is a no-op.
func normalizeTrailingWhitespace(content []byte) []byte {
	lines := strings.Split(string(content), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	out = strings.TrimRight(out, "\n") + "\n"
	return []byte(out)
}
