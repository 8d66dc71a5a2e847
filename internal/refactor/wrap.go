package refactor

import (
	"encoding/json"
	"strings"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

func init() {
	register("wrap", planWrap)
}

// wrapParams mirrors spec §4.9's wrap(path, startLine, endLine, wrapper).
type wrapParams struct {
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Wrapper   string `json:"wrapper"`
}

// wrapTemplate gives the opening/closing lines for a wrapper kind. %s in
// Open/Close is replaced with the range's base indent.
type wrapTemplate struct {
	Open  []string
	Close []string
}

var wrapTemplates = map[string]wrapTemplate{
	"try_catch":          {Open: []string{"%stry {"}, Close: []string{"%s} catch (Exception e) {", "%s\t// handle", "%s}"}},
	"try_finally":        {Open: []string{"%stry {"}, Close: []string{"%s} finally {", "%s}"}},
	"try_with_resources": {Open: []string{"%stry {"}, Close: []string{"%s}"}},
	"if":                 {Open: []string{"%sif (condition) {"}, Close: []string{"%s}"}},
	"if_else":            {Open: []string{"%sif (condition) {"}, Close: []string{"%s} else {", "%s}"}},
	"for":                {Open: []string{"%sfor (int i = 0; i < n; i++) {"}, Close: []string{"%s}"}},
	"foreach":            {Open: []string{"%sfor (var item : items) {"}, Close: []string{"%s}"}},
	"while":              {Open: []string{"%swhile (condition) {"}, Close: []string{"%s}"}},
	"synchronized":       {Open: []string{"%ssynchronized (this) {"}, Close: []string{"%s}"}},
	"custom":             {Open: []string{"%s{"}, Close: []string{"%s}"}},
}

// planWrap encloses [startLine, endLine] with the chosen wrapper's fixed
// C/Java-style template from wrapTemplates (the same whatever the file's
// language), re-indenting the enclosed body by one extra indent unit.
func planWrap(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p wrapParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	tmpl, ok := wrapTemplates[p.Wrapper]
	if !ok {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "unknown wrapper %q", p.Wrapper)
	}

	before, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}
	lines, rangeLines, ok := extractLines(before, p.StartLine, p.EndLine)
	if !ok {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "range %d-%d out of bounds for %s", p.StartLine, p.EndLine, p.Path)
	}

	indent := baseIndent(rangeLines[0])
	unit := indentUnit(before)

	var body []string
	for _, l := range rangeLines {
		body = append(body, unit+l)
	}

	var block []string
	for _, o := range tmpl.Open {
		block = append(block, withIndent(o, indent))
	}
	block = append(block, body...)
	for _, c := range tmpl.Close {
		block = append(block, withIndent(c, indent))
	}

	after := replaceLineRange(lines, p.StartLine, p.EndLine, block)
	return []FileChange{{Path: p.Path, Before: before, After: after, Occurrences: 1}}, nil, nil
}

func withIndent(tmpl, indent string) string {
	return strings.Replace(tmpl, "%s", indent, -1)
}
