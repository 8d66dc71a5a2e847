package refactor

import (
	"encoding/json"
	"strings"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

func init() {
	register("move", planMove)
}

// moveParams mirrors spec §4.9's move(path, targetPath, symbol|line+column,
// targetClass?).
type moveParams struct {
	Path        string `json:"path"`
	TargetPath  string `json:"targetPath"`
	Symbol      string `json:"symbol"`
	Line        int    `json:"line"`
	Column      int    `json:"column"`
	TargetClass string `json:"targetClass"`
}

// planMove relocates a declaration from path to targetPath. References to
// the symbol in other files are not rewritten (a diagnostic says so), and
// imports at either end are not fixed up: the declaration's text moves
// verbatim, which is
// correct for same-package Go moves and needs manual follow-up for
// cross-package or cross-language moves.
func planMove(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p moveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	if p.TargetPath == "" {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "move requires targetPath")
	}

	var target struct {
		Name               string
		StartLine, EndLine int
	}
	if p.Symbol != "" {
		sym, err := d.sym.FindSymbolByName(p.Path, p.Symbol)
		if err != nil {
			return nil, nil, err
		}
		target.Name, target.StartLine, target.EndLine = sym.Name, sym.StartLine, sym.EndLine
	} else {
		sym, err := d.sym.ResolveDefinition(p.Path, p.Line, p.Column)
		if err != nil {
			return nil, nil, err
		}
		target.Name, target.StartLine, target.EndLine = sym.Name, sym.StartLine, sym.EndLine
	}

	sourceBefore, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}
	sourceLines := strings.Split(sourceBefore, "\n")
	if target.StartLine < 1 || target.EndLine > len(sourceLines) {
		return nil, nil, ntserr.New(ntserr.KindInternal, "symbol span out of bounds for %s", p.Path)
	}
	moved := append([]string{}, sourceLines[target.StartLine-1:target.EndLine]...)
	sourceAfter := replaceLineRange(sourceLines, target.StartLine, target.EndLine, nil)

	targetBefore := ""
	if exists, _ := afero.Exists(d.fs, p.TargetPath); exists {
		targetBefore, err = readFile(d, p.TargetPath)
		if err != nil {
			return nil, nil, err
		}
	}
	targetAfter := insertBeforeClassClose(targetBefore, p.TargetClass, moved)

	changes := []FileChange{
		{Path: p.Path, Before: sourceBefore, After: sourceAfter, Occurrences: 1},
		{Path: p.TargetPath, Before: targetBefore, After: targetAfter, Occurrences: 1},
	}

	var diags []string
	diags = append(diags, "call sites and import statements for "+target.Name+" were not rewritten; verify cross-file references manually")
	return changes, diags, nil
}

// insertBeforeClassClose appends movedLines at the end of content, or, if
// targetClass is given and content contains a line ending in its opening
// brace, inserts the lines just before that class's closing brace.
func insertBeforeClassClose(content, targetClass string, movedLines []string) string {
	if content == "" {
		return strings.Join(movedLines, "\n")
	}
	if targetClass == "" {
		return strings.TrimRight(content, "\n") + "\n\n" + strings.Join(movedLines, "\n")
	}
	lines := strings.Split(content, "\n")
	openIdx := -1
	for i, l := range lines {
		if strings.Contains(l, targetClass) && strings.Contains(l, "{") {
			openIdx = i
			break
		}
	}
	if openIdx < 0 {
		return strings.TrimRight(content, "\n") + "\n\n" + strings.Join(movedLines, "\n")
	}
	depth := 0
	for i := openIdx; i < len(lines); i++ {
		depth += strings.Count(lines[i], "{") - strings.Count(lines[i], "}")
		if depth == 0 && i > openIdx {
			return replaceLineRange(lines, i+1, i, movedLines) // insert before the closing brace line
		}
	}
	return strings.TrimRight(content, "\n") + "\n\n" + strings.Join(movedLines, "\n")
}
