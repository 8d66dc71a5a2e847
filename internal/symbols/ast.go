package symbols

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

// parseTree parses content with lang and returns the root node plus a
// closer the caller must invoke once extraction is done. A fresh parser is
// created per call rather than pooled on the Engine: sitter.Parser is not
// safe for concurrent reuse and the Engine itself is process-wide (spec
// §5), so pooling would need its own lock around every parse anyway.
func parseTree(lang *sitter.Language, content []byte) (*sitter.Node, func(), error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		parser.Close()
		return nil, func() {}, err
	}
	root := tree.RootNode()
	return root, func() {
		tree.Close()
		parser.Close()
	}, nil
}

// nodeText extracts a node's source text.
func nodeText(n *sitter.Node, content []byte) string {
	if n == nil {
		return ""
	}
	return n.Content(content)
}

// nodeSpan converts a node's tree-sitter points (0-indexed row/column) to
// the engine's 1-indexed line/column convention.
func nodeSpan(n *sitter.Node) (startLine, startCol, endLine, endCol int) {
	sp, ep := n.StartPoint(), n.EndPoint()
	return int(sp.Row) + 1, int(sp.Column) + 1, int(ep.Row) + 1, int(ep.Column) + 1
}

// isExported reports whether name starts with an uppercase letter, the Go
// convention also borrowed here as the generic "looks public" heuristic for
// languages without their own visibility keyword in view.
func isExported(name string) bool {
	return len(name) > 0 && name[0] >= 'A' && name[0] <= 'Z'
}
