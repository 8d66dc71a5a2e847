package symbols

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// extractGo walks a Go AST and emits one Symbol per declaration, mirroring
// the node-type switch used elsewhere in the pack's tree-sitter binding
// (function_declaration / method_declaration / type_declaration), extended
// with struct field and interface method members.
func extractGo(path string, content []byte) ([]Symbol, error) {
	root, closeTree, err := parseTree(golang.GetLanguage(), content)
	if err != nil {
		return nil, err
	}
	defer closeTree()

	var syms []Symbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				syms = append(syms, goFuncSymbol(n, name, path, content, "", KindFunction))
			}
		case "method_declaration":
			name := n.ChildByFieldName("name")
			receiver := n.ChildByFieldName("receiver")
			if name != nil && receiver != nil {
				parent := receiverTypeName(receiver, content)
				syms = append(syms, goFuncSymbol(n, name, path, content, parent, KindMethod))
			}
		case "type_declaration":
			syms = append(syms, extractGoTypeDecl(n, path, content)...)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return syms, nil
}

func goFuncSymbol(n, name *sitter.Node, path string, content []byte, parent string, kind Kind) Symbol {
	nm := nodeText(name, content)
	sig := "func " + nm
	if parent != "" {
		sig = fmt.Sprintf("func (%s) %s", parent, nm)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		sig += nodeText(params, content)
	}
	if result := n.ChildByFieldName("result"); result != nil {
		sig += " " + nodeText(result, content)
	}
	startLine, startCol, endLine, endCol := nodeSpan(n)
	id := fmt.Sprintf("func:%s", nm)
	if parent != "" {
		id = fmt.Sprintf("method:%s.%s", parent, nm)
	}
	vis := VisibilityPrivate
	if isExported(nm) {
		vis = VisibilityPublic
	}
	return Symbol{
		ID: id, Name: nm, Kind: kind, Visibility: vis, Path: path, Signature: sig,
		ParentName: parent, StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
	}
}

func receiverTypeName(receiver *sitter.Node, content []byte) string {
	text := nodeText(receiver, content)
	// receiver is a parameter_list like "(r *Foo)"; strip parens/pointer/name.
	for i := 0; i < int(receiver.NamedChildCount()); i++ {
		param := receiver.NamedChild(i)
		if t := param.ChildByFieldName("type"); t != nil {
			tn := nodeText(t, content)
			for len(tn) > 0 && tn[0] == '*' {
				tn = tn[1:]
			}
			return tn
		}
	}
	return text
}

func extractGoTypeDecl(n *sitter.Node, path string, content []byte) []Symbol {
	var syms []Symbol
	for i := 0; i < int(n.NamedChildCount()); i++ {
		spec := n.NamedChild(i)
		if spec.Type() != "type_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		typeNode := spec.ChildByFieldName("type")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)
		kind := KindType
		sig := "type " + name
		vis := VisibilityPrivate
		if isExported(name) {
			vis = VisibilityPublic
		}
		startLine, startCol, endLine, endCol := nodeSpan(spec)

		if typeNode != nil {
			switch typeNode.Type() {
			case "struct_type":
				kind = KindStruct
				sig += " struct"
				syms = append(syms, extractGoStructFields(typeNode, name, path, content)...)
			case "interface_type":
				kind = KindInterface
				sig += " interface"
				syms = append(syms, extractGoInterfaceMethods(typeNode, name, path, content)...)
			}
		}

		syms = append(syms, Symbol{
			ID: fmt.Sprintf("%s:%s", kind, name), Name: name, Kind: kind, Visibility: vis,
			Path: path, Signature: sig, StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
		})
	}
	return syms
}

func extractGoStructFields(typeNode *sitter.Node, parent, path string, content []byte) []Symbol {
	var syms []Symbol
	fields := typeNode.ChildByFieldName("fields")
	if fields == nil {
		return nil
	}
	for i := 0; i < int(fields.NamedChildCount()); i++ {
		decl := fields.NamedChild(i)
		if decl.Type() != "field_declaration" {
			continue
		}
		nameNode := decl.ChildByFieldName("name")
		typeNode := decl.ChildByFieldName("type")
		if nameNode == nil {
			continue
		}
		fieldName := nodeText(nameNode, content)
		fieldType := nodeText(typeNode, content)
		vis := VisibilityPrivate
		if isExported(fieldName) {
			vis = VisibilityPublic
		}
		startLine, startCol, endLine, endCol := nodeSpan(decl)
		syms = append(syms, Symbol{
			ID: fmt.Sprintf("field:%s.%s", parent, fieldName), Name: fieldName, Kind: KindField,
			Visibility: vis, Path: path, Signature: fmt.Sprintf("%s %s", fieldName, fieldType),
			ParentName: parent, StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
		})
	}
	return syms
}

func extractGoInterfaceMethods(typeNode *sitter.Node, parent, path string, content []byte) []Symbol {
	var syms []Symbol
	for i := 0; i < int(typeNode.NamedChildCount()); i++ {
		spec := typeNode.NamedChild(i)
		if spec.Type() != "method_spec" {
			continue
		}
		nameNode := spec.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, content)
		sig := name
		if params := spec.ChildByFieldName("parameters"); params != nil {
			sig += nodeText(params, content)
		}
		if result := spec.ChildByFieldName("result"); result != nil {
			sig += " " + nodeText(result, content)
		}
		vis := VisibilityPrivate
		if isExported(name) {
			vis = VisibilityPublic
		}
		startLine, startCol, endLine, endCol := nodeSpan(spec)
		syms = append(syms, Symbol{
			ID: fmt.Sprintf("iface_method:%s.%s", parent, name), Name: name, Kind: KindInterfaceMeth,
			Visibility: vis, Path: path, Signature: sig, ParentName: parent,
			StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
		})
	}
	return syms
}
