package symbols

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

func extractRust(path string, content []byte) ([]Symbol, error) {
	root, closeTree, err := parseTree(rust.GetLanguage(), content)
	if err != nil {
		return nil, err
	}
	defer closeTree()

	var syms []Symbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_item":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				sig := "fn " + nm
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += nodeText(params, content)
				}
				syms = append(syms, rustSymbol(n, nm, KindFunction, sig, path, rustHasPub(n, content)))
			}
		case "struct_item":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				syms = append(syms, rustSymbol(n, nm, KindStruct, "struct "+nm, path, rustHasPub(n, content)))
			}
		case "enum_item":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				syms = append(syms, rustSymbol(n, nm, KindEnum, "enum "+nm, path, rustHasPub(n, content)))
			}
		case "mod_item":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				syms = append(syms, rustSymbol(n, nm, KindModule, "mod "+nm, path, rustHasPub(n, content)))
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms, nil
}

func rustSymbol(n *sitter.Node, name string, kind Kind, sig, path string, public bool) Symbol {
	vis := VisibilityPrivate
	if public {
		vis = VisibilityPublic
	}
	startLine, startCol, endLine, endCol := nodeSpan(n)
	return Symbol{
		ID: fmt.Sprintf("%s:%s", kind, name), Name: name, Kind: kind, Visibility: vis,
		Path: path, Signature: sig, StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
	}
}

func rustHasPub(n *sitter.Node, content []byte) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "visibility_modifier" && nodeText(c, content) == "pub" {
			return true
		}
	}
	return false
}
