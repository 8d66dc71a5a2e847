package refactor

import (
	"encoding/json"
	"strings"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
)

func init() {
	register("inline", planInline)
}

// inlineParams mirrors spec §4.9's inline(path, symbol|line+column).
type inlineParams struct {
	Path   string `json:"path"`
	Symbol string `json:"symbol"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// planInline replaces every reference to a field/constant/single-expression
// method with its initializer/body, when that body is a single textual
// expression the declaration line itself carries (the "semantically
// trivial" case spec §4.9 calls out); anything with a multi-statement body
// is rejected rather than guessed at.
func planInline(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p inlineParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}

	var target symbols.Symbol
	var err error
	if p.Symbol != "" {
		target, err = d.sym.FindSymbolByName(p.Path, p.Symbol)
	} else {
		target, err = d.sym.ResolveDefinition(p.Path, p.Line, p.Column)
	}
	if err != nil {
		return nil, nil, err
	}

	before, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}
	lines := strings.Split(before, "\n")
	if target.StartLine < 1 || target.EndLine > len(lines) {
		return nil, nil, ntserr.New(ntserr.KindInternal, "symbol span out of bounds for %s", p.Path)
	}

	expr, ok := trivialInitializer(lines[target.StartLine-1 : target.EndLine])
	if !ok {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "%s's body is not a single trivial expression; inline refuses to guess", target.Name)
	}

	refs, err := d.sym.FindReferences(d.root, p.Path, target.Name, symbols.ScopeProject, false)
	if err != nil {
		return nil, nil, err
	}

	byPath := make(map[string][]tokenReplacement)
	for _, r := range refs {
		byPath[r.Path] = append(byPath[r.Path], tokenReplacement{line: r.Line, col: r.Column, oldLen: len(target.Name), newText: expr})
	}

	var changes []FileChange
	for path, reps := range byPath {
		content, err := readFile(d, path)
		if err != nil {
			return nil, nil, err
		}
		changes = append(changes, FileChange{Path: path, Before: content, After: applyTokenReplacements(content, reps), Occurrences: len(reps)})
	}

	currentDefPathContent := before
	for _, c := range changes {
		if c.Path == p.Path {
			currentDefPathContent = c.After
			break
		}
	}
	defLines := strings.Split(currentDefPathContent, "\n")
	definitionAfter := replaceLineRange(defLines, target.StartLine, target.EndLine, nil)
	mergeOrAppendChange(&changes, p.Path, before, definitionAfter)

	return changes, nil, nil
}

// trivialInitializer recognizes `name = expr`, `name: type = expr` and
// single-return-statement function bodies (`func name(...) T { return expr }`),
// returning the right-hand expression.
func trivialInitializer(declLines []string) (string, bool) {
	joined := strings.Join(declLines, " ")
	if idx := strings.Index(joined, "return "); idx >= 0 && strings.Contains(joined, "{") {
		// Only a body whose first statement is the return qualifies.
		open := strings.Index(joined, "{")
		if open > idx || strings.TrimSpace(joined[open+1:idx]) != "" {
			return "", false
		}
		rest := joined[idx+len("return "):]
		rest = strings.TrimSuffix(strings.TrimSpace(rest), "}")
		rest = strings.TrimSuffix(strings.TrimSpace(rest), ";")
		if rest != "" && !strings.Contains(rest, "{") {
			return strings.TrimSpace(rest), true
		}
		return "", false
	}
	if len(declLines) != 1 {
		return "", false
	}
	line := declLines[0]
	eq := strings.Index(line, "=")
	if eq < 0 || eq == len(line)-1 {
		return "", false
	}
	rhs := strings.TrimSpace(line[eq+1:])
	rhs = strings.TrimSuffix(rhs, ";")
	if rhs == "" {
		return "", false
	}
	return rhs, true
}

func mergeOrAppendChange(changes *[]FileChange, path, before, after string) {
	for i, c := range *changes {
		if c.Path == path {
			(*changes)[i].After = after
			return
		}
	}
	*changes = append(*changes, FileChange{Path: path, Before: before, After: after, Occurrences: 1})
}
