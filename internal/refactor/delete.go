package refactor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
)

func init() {
	register("delete", planDelete)
}

// deleteParams mirrors spec §4.9's delete(path, symbol, handleReferences).
type deleteParams struct {
	Path             string `json:"path"`
	Symbol           string `json:"symbol"`
	HandleReferences string `json:"handleReferences"`
}

// planDelete removes a symbol's definition and applies handleReferences to
// every remaining reference: "error" rejects the operation if any survive,
// "comment" comments out the line each reference sits on, "remove" deletes
// that line outright.
func planDelete(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p deleteParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	if p.Symbol == "" {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "delete requires symbol")
	}
	policy := p.HandleReferences
	if policy == "" {
		policy = "error"
	}

	target, err := d.sym.FindSymbolByName(p.Path, p.Symbol)
	if err != nil {
		return nil, nil, err
	}

	refs, err := d.sym.FindReferences(d.root, p.Path, p.Symbol, symbols.ScopeProject, false)
	if err != nil {
		return nil, nil, err
	}

	if policy == "error" && len(refs) > 0 {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument,
			"%s still has %s and handleReferences is \"error\"", p.Symbol, fmtOccurrences(len(refs), "reference"))
	}

	byPath := make(map[string][]int) // path -> line numbers to comment/remove
	for _, r := range refs {
		byPath[r.Path] = append(byPath[r.Path], r.Line)
	}

	var changes []FileChange
	definitionBefore, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}
	lines := strings.Split(definitionBefore, "\n")
	if target.StartLine < 1 || target.EndLine > len(lines) {
		return nil, nil, ntserr.New(ntserr.KindInternal, "symbol span out of bounds for %s", p.Path)
	}
	definitionAfter := replaceLineRange(lines, target.StartLine, target.EndLine, nil)
	changes = append(changes, FileChange{Path: p.Path, Before: definitionBefore, After: definitionAfter, Occurrences: 1})

	for path, lineNos := range byPath {
		if path == p.Path {
			continue // already removed along with the definition
		}
		before, err := readFile(d, path)
		if err != nil {
			return nil, nil, err
		}
		fileLines := strings.Split(before, "\n")
		switch policy {
		case "comment":
			marker := commentPrefixFor(path)
			for _, ln := range lineNos {
				if ln < 1 || ln > len(fileLines) {
					continue
				}
				line := fileLines[ln-1]
				indent := baseIndent(line)
				fileLines[ln-1] = indent + marker + strings.TrimPrefix(line, indent)
			}
		case "remove":
			toRemove := make(map[int]bool)
			for _, ln := range lineNos {
				toRemove[ln] = true
			}
			var kept []string
			for i, l := range fileLines {
				if !toRemove[i+1] {
					kept = append(kept, l)
				}
			}
			fileLines = kept
		}
		after := strings.Join(fileLines, "\n")
		changes = append(changes, FileChange{Path: path, Before: before, After: after, Occurrences: len(lineNos)})
	}

	var diags []string
	if len(refs) > 0 {
		diags = append(diags, fmt.Sprintf("%s handled per policy %q", fmtOccurrences(len(refs), "reference"), policy))
	}
	return changes, diags, nil
}

func commentPrefixFor(path string) string {
	switch {
	case strings.HasSuffix(path, ".py"), strings.HasSuffix(path, ".rb"):
		return "# "
	case strings.HasSuffix(path, ".html"):
		return "<!-- "
	default:
		return "// "
	}
}
