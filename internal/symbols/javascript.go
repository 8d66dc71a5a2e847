package symbols

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func extractJavaScript(path string, content []byte) ([]Symbol, error) {
	return extractJSLike(javascript.GetLanguage(), path, content)
}

func extractTypeScript(path string, content []byte) ([]Symbol, error) {
	root, closeTree, err := parseTree(typescript.GetLanguage(), content)
	if err != nil {
		return nil, err
	}
	defer closeTree()
	syms := walkJSLike(root, path, content)

	// TypeScript adds interface_declaration on top of the JS vocabulary.
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "interface_declaration" {
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				syms = append(syms, jsSymbol(n, nm, KindInterface, "interface "+nm, path, jsExported(n)))
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms, nil
}

func extractJSLike(lang *sitter.Language, path string, content []byte) ([]Symbol, error) {
	root, closeTree, err := parseTree(lang, content)
	if err != nil {
		return nil, err
	}
	defer closeTree()
	return walkJSLike(root, path, content), nil
}

// walkJSLike extracts the vocabulary common to JavaScript and TypeScript:
// classes, function declarations, lexical arrow/function bindings (exported
// or not),
// and import sources (import sources feed dependency-link style callers,
// not symbols; they're intentionally skipped here since this engine only
// reports definitions and references, not module graphs).
func walkJSLike(root *sitter.Node, path string, content []byte) []Symbol {
	var syms []Symbol
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "class_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				syms = append(syms, jsSymbol(n, nm, KindClass, "class "+nm, path, jsExported(n)))
			}
		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				nm := nodeText(name, content)
				sig := "function " + nm
				if params := n.ChildByFieldName("parameters"); params != nil {
					sig += nodeText(params, content)
				}
				syms = append(syms, jsSymbol(n, nm, KindFunction, sig, path, jsExported(n)))
			}
		case "lexical_declaration":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				child := n.NamedChild(i)
				if child.Type() != "variable_declarator" {
					continue
				}
				name := child.ChildByFieldName("name")
				value := child.ChildByFieldName("value")
				if name == nil || value == nil {
					continue
				}
				if value.Type() == "arrow_function" || value.Type() == "function" {
					nm := nodeText(name, content)
					syms = append(syms, jsSymbol(child, nm, KindFunction, fmt.Sprintf("const %s = ...", nm), path, jsExported(n)))
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)
	return syms
}

func jsSymbol(n *sitter.Node, name string, kind Kind, sig, path string, exported bool) Symbol {
	vis := VisibilityPrivate
	if exported {
		vis = VisibilityPublic
	}
	startLine, startCol, endLine, endCol := nodeSpan(n)
	id := strings.ToLower(string(kind)) + ":" + name
	return Symbol{
		ID: id, Name: name, Kind: kind, Visibility: vis, Path: path, Signature: sig,
		StartLine: startLine, StartCol: startCol, EndLine: endLine, EndCol: endCol,
	}
}

func jsExported(n *sitter.Node) bool {
	parent := n.Parent()
	return parent != nil && parent.Type() == "export_statement"
}
