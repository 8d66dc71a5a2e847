package refactor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
)

func init() {
	register("generate", planGenerate)
}

// fieldSpec is one entry of generateParams.Fields.
type fieldSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// generateParams mirrors spec §4.9's generate(path, symbol(className), what,
// fields?).
type generateParams struct {
	Path   string      `json:"path"`
	Symbol string      `json:"symbol"`
	What   string      `json:"what"`
	Fields []fieldSpec `json:"fields"`
}

// planGenerate synthesizes members for a target class/struct. Languages
// with struct-style types (Go) get the member appended as a standalone
// function/method after the type declaration, since Go has no "inside the
// class" insertion point; other languages insert immediately after the
// symbol's closing line, which is the best available anchor the generic
// extractor tracks.
func planGenerate(d *Dispatcher, raw json.RawMessage) ([]FileChange, []string, error) {
	var p generateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, nil, err
	}
	if p.Symbol == "" {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "generate requires symbol (the target class/struct name)")
	}

	target, err := d.sym.FindSymbolByName(p.Path, p.Symbol)
	if err != nil {
		return nil, nil, err
	}

	fields := p.Fields
	if len(fields) == 0 {
		fields = structFieldsOf(d, p.Path, p.Symbol)
	}
	if len(fields) == 0 {
		return nil, nil, ntserr.New(ntserr.KindInvalidArgument, "generate found no fields for %s and none were supplied", p.Symbol)
	}

	before, err := readFile(d, p.Path)
	if err != nil {
		return nil, nil, err
	}

	block := generateMembers(target.Name, p.What, fields)
	lines := strings.Split(before, "\n")
	insertAt := target.EndLine
	if insertAt > len(lines) {
		insertAt = len(lines)
	}
	out := make([]string, 0, len(lines)+len(block)+2)
	out = append(out, lines[:insertAt]...)
	out = append(out, "")
	out = append(out, block...)
	out = append(out, lines[insertAt:]...)
	after := strings.Join(out, "\n")

	return []FileChange{{Path: p.Path, Before: before, After: after, Occurrences: len(block)}}, nil, nil
}

func structFieldsOf(d *Dispatcher, path, className string) []fieldSpec {
	syms, err := d.sym.ListSymbols(path)
	if err != nil {
		return nil
	}
	var fields []fieldSpec
	for _, s := range syms {
		if s.Kind != symbols.KindField || s.ParentName != className {
			continue
		}
		parts := strings.SplitN(s.Signature, " ", 2)
		ft := ""
		if len(parts) == 2 {
			ft = parts[1]
		}
		fields = append(fields, fieldSpec{Name: s.Name, Type: ft})
	}
	return fields
}

func generateMembers(className, what string, fields []fieldSpec) []string {
	recv := strings.ToLower(className[:1])
	switch what {
	case "getter":
		return getterLines(recv, className, fields)
	case "setter":
		return setterLines(recv, className, fields)
	case "accessors":
		lines := getterLines(recv, className, fields)
		lines = append(lines, "")
		lines = append(lines, setterLines(recv, className, fields)...)
		return lines
	case "constructor":
		return constructorLines(className, fields)
	case "builder":
		return builderLines(className, fields)
	case "equals_hashcode":
		return equalsHashLines(recv, className, fields)
	case "toString":
		return toStringLines(recv, className, fields)
	default:
		return []string{fmt.Sprintf("// unsupported generate target %q", what)}
	}
}

func getterLines(recv, className string, fields []fieldSpec) []string {
	var out []string
	for _, f := range fields {
		out = append(out,
			fmt.Sprintf("func (%s *%s) Get%s() %s {", recv, className, export(f.Name), f.Type),
			fmt.Sprintf("\treturn %s.%s", recv, f.Name),
			"}", "")
	}
	return trimTrailingBlank(out)
}

func setterLines(recv, className string, fields []fieldSpec) []string {
	var out []string
	for _, f := range fields {
		out = append(out,
			fmt.Sprintf("func (%s *%s) Set%s(value %s) {", recv, className, export(f.Name), f.Type),
			fmt.Sprintf("\t%s.%s = value", recv, f.Name),
			"}", "")
	}
	return trimTrailingBlank(out)
}

func constructorLines(className string, fields []fieldSpec) []string {
	var params []string
	var assigns []string
	for _, f := range fields {
		params = append(params, fmt.Sprintf("%s %s", lowerFirst(f.Name), f.Type))
		assigns = append(assigns, fmt.Sprintf("\t\t%s: %s,", f.Name, lowerFirst(f.Name)))
	}
	out := []string{fmt.Sprintf("func New%s(%s) *%s {", className, strings.Join(params, ", "), className)}
	out = append(out, fmt.Sprintf("\treturn &%s{", className))
	out = append(out, assigns...)
	out = append(out, "\t}", "}")
	return out
}

func builderLines(className string, fields []fieldSpec) []string {
	builderName := className + "Builder"
	out := []string{
		fmt.Sprintf("type %s struct {", builderName),
		fmt.Sprintf("\ttarget %s", className),
		"}", "",
		fmt.Sprintf("func New%s() *%s {", builderName, builderName),
		fmt.Sprintf("\treturn &%s{}", builderName),
		"}", "",
	}
	for _, f := range fields {
		out = append(out,
			fmt.Sprintf("func (b *%s) With%s(value %s) *%s {", builderName, export(f.Name), f.Type, builderName),
			fmt.Sprintf("\tb.target.%s = value", f.Name),
			"\treturn b",
			"}", "")
	}
	out = append(out,
		fmt.Sprintf("func (b *%s) Build() %s {", builderName, className),
		"\treturn b.target",
		"}")
	return out
}

func equalsHashLines(recv, className string, fields []fieldSpec) []string {
	var cmp []string
	for _, f := range fields {
		cmp = append(cmp, fmt.Sprintf("%s.%s == other.%s", recv, f.Name, f.Name))
	}
	out := []string{
		fmt.Sprintf("func (%s *%s) Equal(other *%s) bool {", recv, className, className),
		fmt.Sprintf("\treturn %s", strings.Join(cmp, " && ")),
		"}", "",
		fmt.Sprintf("func (%s *%s) Hash() uint64 {", recv, className),
		"\th := fnv.New64a()",
	}
	for _, f := range fields {
		out = append(out, fmt.Sprintf("\tfmt.Fprintf(h, \"%%v|\", %s.%s)", recv, f.Name))
	}
	out = append(out, "\treturn h.Sum64()", "}")
	return out
}

func toStringLines(recv, className string, fields []fieldSpec) []string {
	var parts []string
	var args []string
	for _, f := range fields {
		parts = append(parts, f.Name+"=%v")
		args = append(args, recv+"."+f.Name)
	}
	format := className + "{" + strings.Join(parts, ", ") + "}"
	return []string{
		fmt.Sprintf("func (%s *%s) String() string {", recv, className),
		fmt.Sprintf("\treturn fmt.Sprintf(%q, %s)", format, strings.Join(args, ", ")),
		"}",
	}
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func export(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func lowerFirst(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}
