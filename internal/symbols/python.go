package symbols

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

func extractPython(path string, content []byte) ([]Symbol, error) {
	root, closeTree, err := parseTree(python.GetLanguage(), content)
	if err != nil {
		return nil, err
	}
	defer closeTree()

	var syms []Symbol
	var walk func(n *sitter.Node, parent string)
	walk = func(n *sitter.Node, parent string) {
		switch n.Type() {
		case "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				startLine, startCol, endLine, endCol := nodeSpan(n)
				syms = append(syms, Symbol{
					ID: fmt.Sprintf("class:%s", nm), Name: nm, Kind: KindClass,
					Visibility: pythonVisibility(nm), Path: path, Signature: "class " + nm,
					StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
				})
				for i := 0; i < int(n.NamedChildCount()); i++ {
					walk(n.NamedChild(i), nm)
				}
				return
			}
		case "function_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				sig := "def " + nm
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += nodeText(params, content)
				}
				kind := KindFunction
				id := fmt.Sprintf("func:%s", nm)
				if parent != "" {
					kind = KindMethod
					id = fmt.Sprintf("method:%s.%s", parent, nm)
				}
				startLine, startCol, endLine, endCol := nodeSpan(n)
				syms = append(syms, Symbol{
					ID: id, Name: nm, Kind: kind, Visibility: pythonVisibility(nm), Path: path,
					Signature: sig, ParentName: parent, StartLine: startLine, StartCol: startCol,
					EndLine: endLine, EndCol: endCol,
				})
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), parent)
		}
	}
	walk(root, "")
	return syms, nil
}

func pythonVisibility(name string) Visibility {
	switch {
	case strings.HasPrefix(name, "__"):
		return VisibilityPrivate
	case strings.HasPrefix(name, "_"):
		return VisibilityProtected
	default:
		return VisibilityPublic
	}
}
