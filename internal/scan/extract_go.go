package scan

import (
	"strings"

	"github.com/cerberusindex/cerberus/internal/store"
)

// extractGo collects declarations from a Go source tree. Struct types map
// to class symbols, interface types to interface symbols, and methods
// carry their receiver's type as parent class.
func extractGo(tree *Tree, filePath string, rec *Record) {
	src := tree.Source

	tree.Root.Walk(func(n *Node) bool {
		switch n.Type {
		case "function_declaration":
			goFunction(n, src, filePath, rec)
		case "method_declaration":
			goMethod(n, src, filePath, rec)
		case "type_declaration":
			goTypeDecl(n, src, filePath, rec)
		case "var_declaration", "const_declaration":
			goVarDecl(n, src, filePath, rec)
		case "import_declaration":
			goImports(n, src, filePath, rec)
		case "call_expression":
			goCall(n, src, filePath, rec)
		case "short_var_declaration":
			goShortVar(n, src, filePath, rec)
		}
		return true
	})
}

func goFunction(n *Node, src []byte, filePath string, rec *Record) {
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

func goMethod(n *Node, src []byte, filePath string, rec *Record) {
	name := n.ChildByField("name")
	if name == nil {
		return
	}
	rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
		Name:        name.Content(src),
		Type:        store.SymbolMethod,
		FilePath:    filePath,
		StartLine:   n.StartLine(),
		EndLine:     n.EndLine(),
		Signature:   firstLine(n, src),
		ParentClass: goReceiverType(n, src),
	})
}

// goReceiverType extracts the bare receiver type name from a method's
// receiver parameter list, stripping pointers and type parameters.
func goReceiverType(n *Node, src []byte) string {
	recv := n.ChildByField("receiver")
	if recv == nil {
		return ""
	}
	decl := recv.FindChildByType("parameter_declaration")
	if decl == nil {
		return ""
	}
	typeNode := decl.ChildByField("type")
	if typeNode == nil {
		return ""
	}
	name := typeNode.Content(src)
	name = strings.TrimPrefix(name, "*")
	if i := strings.IndexByte(name, '['); i > 0 {
		name = name[:i]
	}
	return name
}

func goTypeDecl(n *Node, src []byte, filePath string, rec *Record) {
	for _, spec := range n.FindAllByType("type_spec") {
		name := spec.ChildByField("name")
		typeNode := spec.ChildByField("type")
		if name == nil || typeNode == nil {
			continue
		}

		symType := store.SymbolClass
		if typeNode.Type == "interface_type" {
			symType = store.SymbolInterface
		}
		rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
			Name:      name.Content(src),
			Type:      symType,
			FilePath:  filePath,
			StartLine: n.StartLine(),
			EndLine:   n.EndLine(),
			Signature: firstLine(spec, src),
		})

		// Embedded struct fields act as inheritance edges.
		if typeNode.Type == "struct_type" {
			for _, field := range typeNode.FindAllByType("field_declaration") {
				if field.ChildByField("name") != nil {
					continue
				}
				if embedded := field.ChildByField("type"); embedded != nil {
					base := strings.TrimPrefix(embedded.Content(src), "*")
					if isIdentifierLike(base) {
						rec.References = append(rec.References,
							inheritsRef(filePath, name.Content(src), base, field.StartLine()))
					}
				}
			}
		}
	}
}

func goVarDecl(n *Node, src []byte, filePath string, rec *Record) {
	for _, spec := range n.Children {
		if spec.Type != "var_spec" && spec.Type != "const_spec" {
			continue
		}
		typeNode := spec.ChildByField("type")
		for _, child := range spec.Children {
			if child.Field != "name" || child.Type != "identifier" {
				continue
			}
			rec.FileRecord.Symbols = append(rec.FileRecord.Symbols, &store.Symbol{
				Name:      child.Content(src),
				Type:      store.SymbolVariable,
				FilePath:  filePath,
				StartLine: spec.StartLine(),
				EndLine:   spec.EndLine(),
				Signature: firstLine(spec, src),
			})
			if typeNode != nil {
				rec.FileRecord.TypeInfos = append(rec.FileRecord.TypeInfos, &store.TypeInfo{
					Variable: child.Content(src),
					File:     filePath,
					Line:     spec.StartLine(),
					TypeName: strings.TrimPrefix(typeNode.Content(src), "*"),
				})
			}
		}
	}
}

func goImports(n *Node, src []byte, filePath string, rec *Record) {
	for _, spec := range n.FindAllByType("import_spec") {
		path := spec.ChildByField("path")
		if path == nil {
			continue
		}
		module := strings.Trim(path.Content(src), `"`)
		rec.FileRecord.Imports = append(rec.FileRecord.Imports, &store.Import{
			ImporterFile:    filePath,
			ImportedModule:  module,
			ImportLine:      spec.StartLine(),
			ImportedSymbols: []string{},
		})
	}
}

func goCall(n *Node, src []byte, filePath string, rec *Record) {
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
	case "selector_expression":
		operand := fn.ChildByField("operand")
		field := fn.ChildByField("field")
		if operand == nil || field == nil || operand.Type != "identifier" {
			return
		}
		rec.FileRecord.MethodCalls = append(rec.FileRecord.MethodCalls, &store.MethodCall{
			CallerFile: filePath,
			Line:       n.StartLine(),
			Receiver:   operand.Content(src),
			Method:     field.Content(src),
		})
	}
}

// goShortVar records x := NewFoo() style bindings as type info.
func goShortVar(n *Node, src []byte, filePath string, rec *Record) {
	left := n.ChildByField("left")
	right := n.ChildByField("right")
	if left == nil || right == nil {
		return
	}
	ident := left.FindChildByType("identifier")
	call := right.FindChildByType("call_expression")
	if ident == nil || call == nil {
		return
	}
	fn := call.ChildByField("function")
	if fn == nil || fn.Type != "identifier" {
		return
	}
	callee := fn.Content(src)
	if strings.HasPrefix(callee, "New") && len(callee) > 3 {
		rec.FileRecord.TypeInfos = append(rec.FileRecord.TypeInfos, &store.TypeInfo{
			Variable: ident.Content(src),
			File:     filePath,
			Line:     n.StartLine(),
			TypeName: callee[3:],
		})
	}
}

func isIdentifierLike(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
