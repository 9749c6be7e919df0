package scan

import (
	"strings"

	"github.com/cerberusindex/cerberus/internal/store"
)

// extractPython walks a Python module tree collecting function, class, and
// method definitions, imports, calls, and variable-type bindings.
func extractPython(tree *Tree, filePath string, rec *Record) {
	src := tree.Source
	pyWalk(tree.Root, src, filePath, "", true, rec)
}

func pyWalk(n *Node, src []byte, filePath, parentClass string, topLevel bool, rec *Record) {
	switch n.Type {
	case "decorated_definition":
		if def := n.ChildByField("definition"); def != nil {
			// The symbol's span includes its decorators.
			pyDefinition(def, n, src, filePath, parentClass, rec)
		}
		return
	case "function_definition", "class_definition":
		pyDefinition(n, n, src, filePath, parentClass, rec)
		return
	case "import_statement":
		pyImport(n, src, filePath, rec)
	case "import_from_statement":
		pyImportFrom(n, src, filePath, rec)
	case "call":
		pyCall(n, src, filePath, parentClass, rec)
	case "assignment":
		pyAssignment(n, src, filePath, topLevel, rec)
	}

	for _, child := range n.Children {
		pyWalk(child, src, filePath, parentClass, topLevel, rec)
	}
}

// pyDefinition records a function/class/method symbol. span carries the
// decorated wrapper when decorators are present so line ranges cover them.
func pyDefinition(def, span *Node, src []byte, filePath, parentClass string, rec *Record) {
	nameNode := def.ChildByField("name")
	if nameNode == nil {
		return
	}
	name := nameNode.Content(src)

	sym := &store.Symbol{
		Name:      name,
		FilePath:  filePath,
		StartLine: span.StartLine(),
		EndLine:   span.EndLine(),
		Signature: firstLine(def, src),
		Docstring: pyDocstring(def, src),
	}

	switch def.Type {
	case "class_definition":
		sym.Type = store.SymbolClass
		rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, sym)
		for _, base := range pyBases(def, src) {
			rec.References = append(rec.References, inheritsRef(filePath, name, base, span.StartLine()))
		}
		// Recurse into the class body with this class as parent.
		if body := def.ChildByField("body"); body != nil {
			for _, child := range body.Children {
				pyWalk(child, src, filePath, name, false, rec)
			}
		}
	case "function_definition":
		if parentClass != "" {
			sym.Type = store.SymbolMethod
			sym.ParentClass = parentClass
		} else {
			sym.Type = store.SymbolFunction
		}
		rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, sym)
		if body := def.ChildByField("body"); body != nil {
			for _, child := range body.Children {
				pyWalk(child, src, filePath, parentClass, false, rec)
			}
		}
	}
}

// pyBases returns the superclass names of a class definition.
func pyBases(def *Node, src []byte) []string {
	supers := def.ChildByField("superclasses")
	if supers == nil {
		return nil
	}
	var bases []string
	for _, arg := range supers.Children {
		switch arg.Type {
		case "identifier":
			bases = append(bases, arg.Content(src))
		case "attribute":
			if attr := arg.ChildByField("attribute"); attr != nil {
				bases = append(bases, attr.Content(src))
			}
		}
	}
	return bases
}

// pyDocstring returns the leading string literal of a definition body.
func pyDocstring(def *Node, src []byte) string {
	body := def.ChildByField("body")
	if body == nil || len(body.Children) == 0 {
		return ""
	}
	first := body.Children[0]
	if first.Type != "expression_statement" || len(first.Children) == 0 {
		return ""
	}
	if str := first.Children[0]; str.Type == "string" {
		return strings.Trim(str.Content(src), "\"' \n\t")
	}
	return ""
}

func pyImport(n *Node, src []byte, filePath string, rec *Record) {
	for _, child := range n.Children {
		switch child.Type {
		case "dotted_name":
			rec.FileRecord.Imports = append(rec.FileRecord.Imports, &store.Import{
				ImporterFile:    filePath,
				ImportedModule:  child.Content(src),
				ImportLine:      n.StartLine(),
				ImportedSymbols: []string{},
			})
		case "aliased_import":
			if name := child.ChildByField("name"); name != nil {
				rec.FileRecord.Imports = append(rec.FileRecord.Imports, &store.Import{
					ImporterFile:    filePath,
					ImportedModule:  name.Content(src),
					ImportLine:      n.StartLine(),
					ImportedSymbols: []string{},
				})
			}
		}
	}
}

func pyImportFrom(n *Node, src []byte, filePath string, rec *Record) {
	module := n.ChildByField("module_name")
	if module == nil {
		return
	}

	imp := &store.Import{
		ImporterFile:    filePath,
		ImportedModule:  module.Content(src),
		ImportLine:      n.StartLine(),
		ImportedSymbols: []string{},
	}
	for _, child := range n.Children {
		if child == module {
			continue
		}
		switch child.Type {
		case "dotted_name", "identifier":
			imp.ImportedSymbols = append(imp.ImportedSymbols, child.Content(src))
		case "aliased_import":
			if name := child.ChildByField("name"); name != nil {
				imp.ImportedSymbols = append(imp.ImportedSymbols, name.Content(src))
			}
		case "wildcard_import":
			// Wildcard imports keep the symbol set empty.
			imp.ImportedSymbols = imp.ImportedSymbols[:0]
		}
	}
	rec.FileRecord.Imports = append(rec.FileRecord.Imports, imp)
}

func pyCall(n *Node, src []byte, filePath, parentClass string, rec *Record) {
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
	case "attribute":
		obj := fn.ChildByField("object")
		attr := fn.ChildByField("attribute")
		if obj == nil || attr == nil || obj.Type != "identifier" {
			return
		}
		mc := &store.MethodCall{
			CallerFile: filePath,
			Line:       n.StartLine(),
			Receiver:   obj.Content(src),
			Method:     attr.Content(src),
		}
		// self.method() inside a class body resolves immediately.
		if mc.Receiver == "self" && parentClass != "" {
			cls := parentClass
			mc.ReceiverType = &cls
		}
		rec.FileRecord.MethodCalls = append(rec.FileRecord.MethodCalls, mc)
	}
}

// pyAssignment records variable-type bindings from annotations and simple
// instantiations, and top-level assignments as variable symbols.
func pyAssignment(n *Node, src []byte, filePath string, topLevel bool, rec *Record) {
	left := n.ChildByField("left")
	if left == nil || left.Type != "identifier" {
		return
	}
	varName := left.Content(src)

	if typeNode := n.ChildByField("type"); typeNode != nil {
		rec.FileRecord.TypeInfos = append(rec.FileRecord.TypeInfos, &store.TypeInfo{
			Variable: varName,
			File:     filePath,
			Line:     n.StartLine(),
			TypeName: typeNode.Content(src),
		})
	} else if right := n.ChildByField("right"); right != nil && right.Type == "call" {
		if fn := right.ChildByField("function"); fn != nil && fn.Type == "identifier" {
			callee := fn.Content(src)
			// Uppercase callee is the instantiation heuristic.
			if callee != "" && callee[0] >= 'A' && callee[0] <= 'Z' {
				rec.FileRecord.TypeInfos = append(rec.FileRecord.TypeInfos, &store.TypeInfo{
					Variable: varName,
					File:     filePath,
					Line:     n.StartLine(),
					TypeName: callee,
				})
			}
		}
	}

	if topLevel {
		rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
			Name:      varName,
			Type:      store.SymbolVariable,
			FilePath:  filePath,
			StartLine: n.StartLine(),
			EndLine:   n.EndLine(),
			Signature: firstLine(n, src),
		})
	}
}
