package refactor

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

func init() {
	register("extract_method", planExtractMethod)
}

// extractMethodParams mirrors spec §4.9's extract_method(path, startLine,
// endLine | codePattern, methodName, accessModifier?, returnType?).
type extractMethodParams struct {
	Path           string `json:"path"`
	StartLine      int    `json:"startLine"`
	EndLine        int    `json:"endLine"`
	CodePattern    string `json:"codePattern"`
	MethodName     string `json:"methodName"`
	AccessModifier string `json:"accessModifier"`
	ReturnType     string `json:"returnType"`
}

var (
	identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
	declarationPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*(?::?=|:)`)
	returnPattern      = regexp.MustCompile(`\breturn\b`)
)

// planExtractMethod lifts [startLine, endLine] into a new function, using a
// line-based heuristic data-flow pass rather than full use-def analysis:
// identifiers assigned within the range (via `:=`, `var`, `let`, `const`)
// are treated as locals; every other identifier referenced in the range
// becomes a parameter. This covers the common case (a short, self-contained
// block) without claiming full compiler-grade liveness analysis.
func planExtractMethod(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p extractMethodParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	if p.MethodName == "" {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "extract_method requires methodName")
	}

	before, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}

	startLine, endLine := p.StartLine, p.EndLine
	if p.CodePattern != "" {
		startLine, endLine, err = locatePattern(before, p.CodePattern)
		if err != nil {
			return nil, nil, err
		}
	}

	lines, rangeLines, ok := extractLines(before, startLine, endLine)
	if !ok {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "range %d-%d out of bounds for %s", startLine, endLine, p.Path)
	}

	locals := make(map[string]bool)
	used := make(map[string]bool)
	var params []string
	for _, line := range rangeLines {
		for _, m := range declarationPattern.FindAllStringSubmatch(line, -1) {
			locals[m[1]] = true
		}
	}
	for _, line := range rangeLines {
		for _, id := range identifierPattern.FindAllString(line, -1) {
			if locals[id] || isKeywordOrBuiltin(id) {
				continue
			}
			if !used[id] {
				used[id] = true
				params = append(params, id)
			}
		}
	}

	needsReturn := false
	for _, line := range rangeLines {
		if returnPattern.MatchString(line) {
			needsReturn = true
			break
		}
	}

	indent := baseIndent(rangeLines[0])
	unit := indentUnit(before)
	signature := methodSignature(p.MethodName, p.AccessModifier, p.ReturnType, params, needsReturn)

	var method []string
	method = append(method, signature)
	for _, line := range rangeLines {
		method = append(method, unit+strings.TrimPrefix(line, indent))
	}
	method = append(method, "}")

	call := indent + callExpression(p.MethodName, params, needsReturn)

	after := replaceLineRange(lines, startLine, endLine, []string{call})
	afterLines := strings.Split(after, "\n")
	afterLines = append(afterLines, "", strings.Join(method, "\n"))
	after = strings.Join(afterLines, "\n")

	return []FileChange{{Path: p.Path, Before: before, After: after, Occurrences: 1}}, nil, nil
}

func locatePattern(text, pattern string) (int, int, error) {
	lines := strings.Split(text, "\n")
	needle := strings.TrimSpace(pattern)
	for i, l := range lines {
		if strings.Contains(l, needle) {
			return i + 1, i + 1, nil
		}
	}
	return 0, 0, ntserr.New(ntserr.KindInvalidArgument, "codePattern %q not found", pattern)
}

func methodSignature(name, access, returnType string, params []string, needsReturn bool) string {
	ret := returnType
	if ret == "" && needsReturn {
		ret = "any"
	}
	sig := "func " + name + "(" + strings.Join(paramList(params), ", ") + ")"
	if ret != "" {
		sig += " " + ret
	}
	return sig + " {"
}

func paramList(params []string) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		out = append(out, p+" any")
	}
	return out
}

func callExpression(name string, params []string, needsReturn bool) string {
	call := name + "(" + strings.Join(params, ", ") + ")"
	if needsReturn {
		return "return " + call
	}
	return call
}

var builtinIdentifiers = map[string]bool{
	"if": true, "else": true, "for": true, "return": true, "func": true, "var": true,
	"const": true, "let": true, "def": true, "fn": true, "true": true, "false": true,
	"nil": true, "null": true, "None": true, "int": true, "string": true, "bool": true,
}

func isKeywordOrBuiltin(id string) bool {
	return builtinIdentifiers[id]
}
