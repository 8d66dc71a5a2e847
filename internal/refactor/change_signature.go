package refactor

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
)

func init() {
	register("change_signature", planChangeSignature)
}

// paramEntry is one entry of changeSignatureParams.Parameters.
type paramEntry struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	DefaultValue string `json:"defaultValue"`
}

// changeSignatureParams mirrors spec §4.9's change_signature(path,
// symbol|methodName, newName?, parameters[]).
type changeSignatureParams struct {
	Path       string       `json:"path"`
	Symbol     string       `json:"symbol"`
	MethodName string       `json:"methodName"`
	NewName    string       `json:"newName"`
	Parameters []paramEntry `json:"parameters"`
}

var callArgsPattern = regexp.MustCompile(`\(([^()]*)\)`)

// planChangeSignature rewrites a declaration and every call site to match
// a new, ordered parameter list. Call sites keep their existing positional
// arguments and have missing trailing parameters filled with
// defaultValue; a required trailing parameter with no default at a call
// site that cannot supply one is a SignatureConflict (spec §4.9).
func planChangeSignature(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p changeSignatureParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	name := p.Symbol
	if name == "" {
		name = p.MethodName
	}
	if name == "" {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "change_signature requires symbol or methodName")
	}
	newName := p.NewName
	if newName == "" {
		newName = name
	}

	target, err := d.sym.FindSymbolByName(p.Path, name)
	if err != nil {
		return nil, nil, err
	}

	refs, err := d.sym.FindReferences(d.root, p.Path, name, symbols.ScopeProject, false)
	if err != nil {
		return nil, nil, err
	}

	// Verify every call site can be satisfied before mutating anything.
	for _, r := range refs {
		content, err := readFile(d, r.Path)
		if err != nil {
			return nil, nil, err
		}
		lines := strings.Split(content, "\n")
		if r.Line < 1 || r.Line > len(lines) {
			continue
		}
		argCount := callArgCount(lines[r.Line-1], r.Column, name)
		for i := argCount; i < len(p.Parameters); i++ {
			if p.Parameters[i].DefaultValue == "" {
				return nil, nil, ntserr.New(ntserr.KindSignatureConflict,
					"%s:%d calls %s with %s but parameter %q has no default", r.Path, r.Line, name, fmtOccurrences(argCount, "argument"), p.Parameters[i].Name)
			}
		}
	}

	byPath := make(map[string][]tokenReplacement)
	for _, r := range refs {
		content, err := readFile(d, r.Path)
		if err != nil {
			return nil, nil, err
		}
		lines := strings.Split(content, "\n")
		if r.Line < 1 || r.Line > len(lines) {
			continue
		}
		newCall := rewriteCallSite(lines[r.Line-1], r.Column, name, newName, p.Parameters)
		byPath[r.Path] = append(byPath[r.Path], tokenReplacement{line: r.Line, col: r.Column, oldLen: endOfCall(lines[r.Line-1], r.Column, name), newText: newCall})
	}

	var changes []FileChange
	for path, reps := range byPath {
		before, err := readFile(d, path)
		if err != nil {
			return nil, nil, err
		}
		changes = append(changes, FileChange{Path: path, Before: before, After: applyTokenReplacements(before, reps), Occurrences: len(reps)})
	}

	declBefore, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}
	declLines := strings.Split(declBefore, "\n")
	if target.StartLine < 1 || target.StartLine > len(declLines) {
		return nil, nil, ntserr.New(ntserr.KindInternal, "symbol span out of bounds for %s", p.Path)
	}
	lang := symbols.LanguageFor(filepath.Ext(p.Path))
	newSig := buildSignature(lang, newName, p.Parameters)
	declLines[target.StartLine-1] = replaceDeclSignature(declLines[target.StartLine-1], name, newSig)
	declAfter := strings.Join(declLines, "\n")
	mergeOrAppendChange(&changes, p.Path, declBefore, declAfter)

	return changes, nil, nil
}

// callArgCount counts comma-separated arguments in the call following
// name at (approximately) column col on line.
func callArgCount(line string, col int, name string) int {
	idx := findCallParen(line, col, name)
	if idx < 0 {
		return 0
	}
	m := callArgsPattern.FindStringSubmatchIndex(line[idx:])
	if m == nil {
		return 0
	}
	inner := strings.TrimSpace(line[idx:][m[2]:m[3]])
	if inner == "" {
		return 0
	}
	return len(strings.Split(inner, ","))
}

func findCallParen(line string, col int, name string) int {
	start := col - 1
	if start < 0 || start > len(line) {
		start = 0
	}
	rel := strings.Index(line[start:], name)
	if rel < 0 {
		return strings.Index(line, name+"(")
	}
	return start + rel
}

func endOfCall(line string, col int, name string) int {
	idx := findCallParen(line, col, name)
	if idx < 0 {
		return len(name)
	}
	closeIdx := strings.Index(line[idx:], ")")
	if closeIdx < 0 {
		return len(name)
	}
	return idx + closeIdx + 1 - (col - 1)
}

// rewriteCallSite replaces `name(existing args)` with `newName(existing
// args, defaultsForMissingTrailingParams)`.
func rewriteCallSite(line string, col int, name, newName string, params []paramEntry) string {
	idx := findCallParen(line, col, name)
	if idx < 0 {
		return line
	}
	m := callArgsPattern.FindStringSubmatchIndex(line[idx:])
	if m == nil {
		return line
	}
	inner := strings.TrimSpace(line[idx:][m[2]:m[3]])
	var args []string
	if inner != "" {
		for _, a := range strings.Split(inner, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}
	for i := len(args); i < len(params); i++ {
		args = append(args, params[i].DefaultValue)
	}
	return newName + "(" + strings.Join(args, ", ") + ")"
}

// buildSignature renders a parameter list in the target language's native
// declaration order. Go, Python, Rust and TypeScript put the name before the
// type (Python, Rust and TypeScript with a colon); everything this engine only parses via the
// generic fallback (Java, Kotlin, C, C++, C#, PHP, ...) declares the type
// first, so that ordering is the default rather than Go's.
func buildSignature(lang symbols.Language, name string, params []paramEntry) string {
	var parts []string
	for _, p := range params {
		switch lang {
		case symbols.LangGo:
			if p.Type != "" {
				parts = append(parts, p.Name+" "+p.Type)
			} else {
				parts = append(parts, p.Name)
			}
		case symbols.LangPython, symbols.LangRust, symbols.LangTypeScript:
			if p.Type != "" {
				parts = append(parts, p.Name+": "+p.Type)
			} else {
				parts = append(parts, p.Name)
			}
		case symbols.LangJavaScript:
			parts = append(parts, p.Name)
		default:
			if p.Type != "" {
				parts = append(parts, p.Type+" "+p.Name)
			} else {
				parts = append(parts, p.Name)
			}
		}
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// replaceDeclSignature swaps `oldName(...)` for newSig on a declaration
// line, leaving everything before the name (func/def/visibility keywords,
// return type prefix) untouched.
func replaceDeclSignature(line, oldName, newSig string) string {
	idx := strings.Index(line, oldName+"(")
	if idx < 0 {
		return line
	}
	closeIdx := strings.Index(line[idx:], ")")
	if closeIdx < 0 {
		return line
	}
	return line[:idx] + newSig + line[idx+closeIdx+1:]
}
