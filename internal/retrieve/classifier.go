package retrieve

import (
	"regexp"
	"strings"
)

// identifierRegex matches a single code-identifier-shaped token: letters,
// digits, underscores, optionally dotted or double-coloned.
var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*([.:]{1,2}[A-Za-z_][A-Za-z0-9_]*)*$`)

// naturalWords are query terms that read as prose rather than code.
var naturalWords = map[string]bool{
	"how": true, "what": true, "where": true, "why": true, "when": true,
	"does": true, "the": true, "a": true, "an": true, "is": true,
	"are": true, "find": true, "show": true, "all": true, "that": true,
	"which": true, "to": true, "of": true, "in": true, "for": true,
	"with": true, "and": true, "or": true,
}

// ClassifyAuto picks a retrieval mode from the query's shape: a single
// identifier-like token goes keyword, a multi-word natural phrase goes
// semantic, anything mixed goes balanced.
func ClassifyAuto(query string) Mode {
	fields := strings.Fields(strings.TrimSpace(query))
	switch len(fields) {
	case 0:
		return ModeKeyword
	case 1:
		if identifierRegex.MatchString(fields[0]) {
			return ModeKeyword
		}
		return ModeBalanced
	}

	natural := 0
	codeLike := 0
	for _, field := range fields {
		if naturalWords[strings.ToLower(field)] {
			natural++
			continue
		}
		if looksLikeCode(field) {
			codeLike++
		}
	}

	if codeLike == 0 && natural > 0 {
		return ModeSemantic
	}
	if codeLike > 0 && natural > 0 {
		return ModeBalanced
	}
	if codeLike == len(fields) {
		return ModeKeyword
	}
	return ModeSemantic
}

// looksLikeCode reports camelCase, snake_case, dotted paths, or
// bracketed tokens.
func looksLikeCode(s string) bool {
	if strings.ContainsAny(s, "_.(){}[]:=") {
		return true
	}
	hasUpper := strings.ToLower(s) != s
	hasLower := strings.ToUpper(s) != s
	// Mixed case starting lowercase reads as a camelCase identifier.
	return hasUpper && hasLower && s[0] >= 'a' && s[0] <= 'z'
}
