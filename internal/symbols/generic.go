package symbols

import (
	"strings"

	"github.com/wasilibs/go-re2"
)

// genericDefPattern recognizes the handful of declaration keywords shared
// by most C-family and scripting languages (spec §4.8's minimum language
// list includes several this engine has no tree-sitter grammar for: Java,
// Kotlin, C, C++, C#, PHP, HTML). It trades precision for coverage: no
// nesting, no body span, one match per line.
var genericDefPattern = re2.MustCompile(`(?m)^[ \t]*(?:export[ \t]+|public[ \t]+|private[ \t]+|protected[ \t]+|internal[ \t]+|static[ \t]+|final[ \t]+|abstract[ \t]+|virtual[ \t]+|async[ \t]+)*(class|interface|struct|enum|function|def|fn|func)[ \t]+([A-Za-z_][A-Za-z0-9_]*)`)

var genericKeywordKind = map[string]Kind{
	"class":     KindClass,
	"interface": KindInterface,
	"struct":    KindStruct,
	"enum":      KindEnum,
	"function":  KindFunction,
	"def":       KindFunction,
	"fn":        KindFunction,
	"func":      KindFunction,
}

// genericMethodPattern recognizes a bare `[modifiers] returnType name(params)`
// method declaration with no leading keyword (e.g. Java/C#/C++ interface and
// class members: "void run(String task);", "public int size() {"). It is
// tried after genericDefPattern and requires two space-separated identifiers
// before the parameter list so plain statements ("if (x)", "return foo()")
// don't parse as a single-token declaration; genericNonDeclTypes filters the
// remaining false positives where the "return type" token is itself a
// control-flow or expression keyword.
var genericMethodPattern = re2.MustCompile(`(?m)^[ \t]*(?:public[ \t]+|private[ \t]+|protected[ \t]+|internal[ \t]+|static[ \t]+|final[ \t]+|abstract[ \t]+|virtual[ \t]+|override[ \t]+|async[ \t]+|synchronized[ \t]+|native[ \t]+)*([A-Za-z_][A-Za-z0-9_<>\[\],.]*)[ \t]+([A-Za-z_][A-Za-z0-9_]*)[ \t]*\(([^()]*)\)[ \t]*(?:;|\{|$)`)

// genericNonDeclTypes excludes matches of genericMethodPattern whose
// "return type" token is actually a control-flow keyword or the start of a
// statement rather than a real type, and keywords genericDefPattern already
// owns (to avoid emitting the same declaration twice).
var genericNonDeclTypes = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"else": true, "do": true, "try": true, "finally": true,
	"return": true, "throw": true, "new": true, "yield": true,
	"delete": true, "typeof": true, "await": true, "case": true,
	"class": true, "interface": true, "struct": true, "enum": true,
	"function": true, "def": true, "fn": true, "func": true,
}

// extractGeneric scans content line by line for genericDefPattern, then for
// genericMethodPattern on lines the former didn't already claim. Used for
// every file extension LanguageFor does not map to a tree-sitter grammar.
func extractGeneric(path string, content []byte) ([]Symbol, error) {
	text := string(content)
	lines := strings.Split(text, "\n")

	var syms []Symbol
	for i, line := range lines {
		lineNo := i + 1
		claimed := false

		matches := genericDefPattern.FindAllStringSubmatchIndex(line, -1)
		for _, m := range matches {
			keyword := line[m[2]:m[3]]
			name := line[m[4]:m[5]]
			kind := genericKeywordKind[keyword]
			col := m[4] + 1
			syms = append(syms, Symbol{
				ID:         string(kind) + ":" + name,
				Name:       name,
				Kind:       kind,
				Visibility: VisibilityPublic,
				Path:       path,
				Signature:  strings.TrimSpace(line),
				StartLine:  lineNo,
				StartCol:   col,
				EndLine:    lineNo,
				EndCol:     col + len(name),
			})
			claimed = true
		}
		if claimed {
			continue
		}

		for _, m := range genericMethodPattern.FindAllStringSubmatchIndex(line, -1) {
			returnType := line[m[2]:m[3]]
			name := line[m[4]:m[5]]
			if genericNonDeclTypes[returnType] {
				continue
			}
			col := m[4] + 1
			syms = append(syms, Symbol{
				ID:         string(KindMethod) + ":" + name,
				Name:       name,
				Kind:       KindMethod,
				Visibility: VisibilityPublic,
				Path:       path,
				Signature:  strings.TrimSpace(line),
				StartLine:  lineNo,
				StartCol:   col,
				EndLine:    lineNo,
				EndCol:     col + len(name),
			})
		}
	}
	return syms, nil
}
