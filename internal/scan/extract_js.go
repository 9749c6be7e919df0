package scan

import (
	"strings"

	"github.com/cerberusindex/cerberus/internal/store"
)

// extractJS collects declarations from JavaScript/TypeScript trees. The
// three grammars share the node types this extractor keys on.
func extractJS(tree *Tree, filePath string, rec *Record) {
	src := tree.Source
	jsWalk(tree.Root, src, filePath, "", rec)
}

func jsWalk(n *Node, src []byte, filePath, parentClass string, rec *Record) {
	switch n.Type {
	case "function_declaration", "generator_function_declaration":
		jsFunction(n, src, filePath, rec)
	case "class_declaration":
		jsClass(n, src, filePath, rec)
		return
	case "method_definition":
		jsMethod(n, src, filePath, parentClass, rec)
	case "lexical_declaration", "variable_declaration":
		jsVariable(n, src, filePath, parentClass == "", rec)
	case "import_statement":
		jsImport(n, src, filePath, rec)
	case "call_expression":
		jsCall(n, src, filePath, rec)
	case "new_expression":
		jsNew(n, src, filePath, rec)
	}

	for _, child := range n.Children {
		jsWalk(child, src, filePath, parentClass, rec)
	}
}

func jsFunction(n *Node, src []byte, filePath string, rec *Record) {
	name := n.ChildByField("name")
	if name == nil {
		return
	}
	rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
		Name:      name.Content(src),
		Type:      store.SymbolFunction,
		FilePath:  filePath,
		StartLine: n.StartLine(),
		EndLine:   n.EndLine(),
		Signature: firstLine(n, src),
	})
}

func jsClass(n *Node, src []byte, filePath string, rec *Record) {
	name := n.ChildByField("name")
	if name == nil {
		return
	}
	className := name.Content(src)
	rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
		Name:      className,
		Type:      store.SymbolClass,
		FilePath:  filePath,
		StartLine: n.StartLine(),
		EndLine:   n.EndLine(),
		Signature: firstLine(n, src),
	})

	if heritage := n.FindChildByType("class_heritage"); heritage != nil {
		for _, child := range heritage.Children {
			if child.Type == "identifier" {
				rec.References = append(rec.References,
					inheritsRef(filePath, className, child.Content(src), n.StartLine()))
			}
		}
	}

	if body := n.ChildByField("body"); body != nil {
		for _, child := range body.Children {
			jsWalk(child, src, filePath, className, rec)
		}
	}
}

func jsMethod(n *Node, src []byte, filePath, parentClass string, rec *Record) {
	name := n.ChildByField("name")
	if name == nil || parentClass == "" {
		return
	}
	rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
		Name:        name.Content(src),
		Type:        store.SymbolMethod,
		FilePath:    filePath,
		StartLine:   n.StartLine(),
		EndLine:     n.EndLine(),
		Signature:   firstLine(n, src),
		ParentClass: parentClass,
	})
}

// jsVariable records declarations outside class bodies, function-local
// ones included (the caller passes parentClass == "" as topLevel);
// arrow-function initializers become function symbols, everything else a
// variable symbol.
func jsVariable(n *Node, src []byte, filePath string, topLevel bool, rec *Record) {
	if !topLevel {
		return
	}
	for _, decl := range n.FindAllByType("variable_declarator") {
		name := decl.ChildByField("name")
		if name == nil || name.Type != "identifier" {
			continue
		}
		symType := store.SymbolVariable
		if value := decl.ChildByField("value"); value != nil &&
			(value.Type == "arrow_function" || value.Type == "function_expression" || value.Type == "function") {
			symType = store.SymbolFunction
		}
		rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
			Name:      name.Content(src),
			Type:      symType,
			FilePath:  filePath,
			StartLine: n.StartLine(),
			EndLine:   n.EndLine(),
			Signature: firstLine(n, src),
		})
	}
}

func jsImport(n *Node, src []byte, filePath string, rec *Record) {
	source := n.ChildByField("source")
	if source == nil {
		return
	}
	imp := &store.Import{
		ImporterFile:    filePath,
		ImportedModule:  strings.Trim(source.Content(src), `"'`),
		ImportLine:      n.StartLine(),
		ImportedSymbols: []string{},
	}
	if clause := n.FindChildByType("import_clause"); clause != nil {
		for _, spec := range clause.FindAllByType("import_specifier") {
			if name := spec.ChildByField("name"); name != nil {
				imp.ImportedSymbols = append(imp.ImportedSymbols, name.Content(src))
			}
		}
		for _, child := range clause.Children {
			if child.Type == "identifier" {
				imp.ImportedSymbols = append(imp.ImportedSymbols, child.Content(src))
			}
		}
	}
	rec.FileRecord.Imports = append(rec.FileRecord.Imports, imp)
}

func jsCall(n *Node, src []byte, filePath string, rec *Record) {
	fn := n.ChildByField("function")
	if fn == nil {
		return
	}

	switch fn.Type {
	case "identifier":
		rec.FileRecord.Calls = append(rec.FileRecord.Calls, &store.Call{
			CallerFile: filePath,
			Callee:     fn.Content(src),
			Line:       n.StartLine(),
		})
	case "member_expression":
		object := fn.ChildByField("object")
		property := fn.ChildByField("property")
		if object == nil || property == nil || object.Type != "identifier" {
			return
		}
		rec.FileRecord.MethodCalls = append(rec.FileRecord.MethodCalls, &store.MethodCall{
			CallerFile: filePath,
			Line:       n.StartLine(),
			Receiver:   object.Content(src),
			Method:     property.Content(src),
		})
	}
}

// jsNew records `new Foo()` as a call to Foo. No type binding for an
// assigned variable is recorded.
func jsNew(n *Node, src []byte, filePath string, rec *Record) {
	ctor := n.ChildByField("constructor")
	if ctor == nil || ctor.Type != "identifier" {
		return
	}
	rec.FileRecord.Calls = append(rec.FileRecord.Calls, &store.Call{
		CallerFile: filePath,
		Callee:     ctor.Content(src),
		Line:       n.StartLine(),
	})
}
