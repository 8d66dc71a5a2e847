package refactor

import (
	"encoding/json"
	"fmt"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
)

func init() {
	register("rename", planRename)
}

// renameParams mirrors spec §4.9's rename(path, symbol|line+column, newName,
// scope, kind?, hybridMode?, includeTextMatches?).
type renameParams struct {
	Path               string `json:"path"`
	Symbol             string `json:"symbol"`
	Line               int    `json:"line"`
	Column             int    `json:"column"`
	NewName            string `json:"newName"`
	Scope              string `json:"scope"`
	HybridMode         bool   `json:"hybridMode"`
	IncludeTextMatches bool   `json:"includeTextMatches"`
}

// planRename finds every reference to the target symbol per §4.8 and
// replaces the token at each applied occurrence. Semantic matches are
// always applied. Text-only matches are applied when they are the only
// signal available for the scope (project scope's reference search is
// always text-based, so it has nothing else to apply) or, for file/
// directory scope, when the caller opts in via hybridMode+includeTextMatches;
// otherwise they are reported in diagnostics but left untouched.
func planRename(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p renameParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	if p.NewName == "" {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "rename requires newName")
	}
	scope := symbols.Scope(p.Scope)
	if scope == "" {
		scope = symbols.ScopeFile
	}

	name := p.Symbol
	if name == "" {
		sym, err := d.sym.ResolveDefinition(p.Path, p.Line, p.Column)
		if err != nil {
			return nil, nil, err
		}
		name = sym.Name
	}

	refs, err := d.sym.FindReferences(d.root, p.Path, name, scope, true)
	if err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, ntserr.New(ntserr.KindSymbolNotFound, "no occurrences of %q found in scope %q", name, scope)
	}

	var applied []symbols.Reference
	var skipped int
	for _, r := range refs {
		switch {
		case r.Confidence == symbols.ConfidenceSemantic:
			applied = append(applied, r)
		case scope == symbols.ScopeProject:
			applied = append(applied, r)
		case p.HybridMode && p.IncludeTextMatches:
			applied = append(applied, r)
		default:
			skipped++
		}
	}

	byPath := make(map[string][]tokenReplacement)
	for _, r := range applied {
		byPath[r.Path] = append(byPath[r.Path], tokenReplacement{line: r.Line, col: r.Column, oldLen: len(name), newText: p.NewName})
	}

	var changes []FileChange
	for path, reps := range byPath {
		before, err := readFile(d, path)
		if err != nil {
			return nil, nil, err
		}
		after := applyTokenReplacements(before, reps)
		changes = append(changes, FileChange{Path: path, Before: before, After: after, Occurrences: len(reps)})
	}

	var diags []string
	if skipped > 0 {
		diags = append(diags, fmt.Sprintf("%s matched only by text scan and not applied (set hybridMode+includeTextMatches to include)", fmtOccurrences(skipped, "occurrence")))
	}
	if len(changes) == 0 {
		diags = append(diags, fmt.Sprintf("no occurrences of %q found in scope %q", name, scope))
	}
	return changes, diags, nil
}
