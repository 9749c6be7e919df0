package scan

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language names used throughout the scanner.
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
)

// Language binds a language name to its tree-sitter grammar and file
// extensions.
type Language struct {
	Name       string
	Extensions []string
	TS         *sitter.Language
}

// Registry maps file extensions to languages.
type Registry struct {
	byName map[string]*Language
	byExt  map[string]*Language
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry with all built-in languages.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry builds a registry with the built-in languages registered.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*Language),
		byExt:  make(map[string]*Language),
	}
	r.register(&Language{Name: LangGo, Extensions: []string{".go"}, TS: golang.GetLanguage()})
	r.register(&Language{Name: LangPython, Extensions: []string{".py", ".pyi"}, TS: python.GetLanguage()})
	r.register(&Language{Name: LangJavaScript, Extensions: []string{".js", ".jsx", ".mjs"}, TS: javascript.GetLanguage()})
	r.register(&Language{Name: LangTypeScript, Extensions: []string{".ts"}, TS: typescript.GetLanguage()})
	r.register(&Language{Name: "tsx", Extensions: []string{".tsx"}, TS: tsx.GetLanguage()})
	return r
}

func (r *Registry) register(lang *Language) {
	r.byName[lang.Name] = lang
	for _, ext := range lang.Extensions {
		r.byExt[ext] = lang
	}
}

// ByName returns the language with the given name.
func (r *Registry) ByName(name string) (*Language, bool) {
	lang, ok := r.byName[name]
	return lang, ok
}

// ByExtension returns the language for a file extension.
func (r *Registry) ByExtension(ext string) (*Language, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	lang, ok := r.byExt[ext]
	return lang, ok
}

// SupportedExtensions returns every registered extension.
func (r *Registry) SupportedExtensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}
