// Package symbols implements the Symbol Engine (spec §4.8): language-aware
// symbol extraction, definition lookup, and reference search, backed by
// tree-sitter for the languages it can fully parse and a line-oriented
// fallback extractor for everything else.
package symbols

// Kind enumerates the symbol kinds the engine can emit. Not every language
// extractor produces every kind.
type Kind string

const (
	KindFunction       Kind = "function"
	KindMethod         Kind = "method"
	KindType           Kind = "type"
	KindStruct         Kind = "struct"
	KindInterface      Kind = "interface"
	KindInterfaceMeth  Kind = "interface_method"
	KindField          Kind = "field"
	KindClass          Kind = "class"
	KindEnum           Kind = "enum"
	KindModule         Kind = "module"
	KindVariable       Kind = "variable"
	KindConstant       Kind = "constant"
)

// Visibility is a coarse, language-normalized access level.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
)

// Symbol is one definition extracted from a source file (spec §4.8
// "extractSymbol(node, nodeType, path, content, parentName) -> Symbol?").
type Symbol struct {
	ID         string
	Name       string
	Kind       Kind
	Visibility Visibility
	Path       string
	Signature  string
	ParentName string
	StartLine  int
	EndLine    int
	StartCol   int
	EndCol     int
}

// contains reports whether line is within [s.StartLine, s.EndLine].
func (s Symbol) contains(line, column int) bool {
	if line < s.StartLine || line > s.EndLine {
		return false
	}
	if line == s.StartLine && column < s.StartCol {
		return false
	}
	if line == s.EndLine && s.EndCol > 0 && column > s.EndCol {
		return false
	}
	return true
}

// Reference is one occurrence (definition or use) of a symbol name.
type Reference struct {
	Path         string
	Line         int
	Column       int
	IsDefinition bool
	Confidence   Confidence
}

// Confidence tags a reference found via AST analysis versus plain text
// scanning (spec §4.9 rename's hybridMode: SEMANTIC | TEXT_ONLY).
type Confidence string

const (
	ConfidenceSemantic Confidence = "SEMANTIC"
	ConfidenceTextOnly Confidence = "TEXT_ONLY"
)

// Scope bounds a findReferences search (spec §4.8).
type Scope string

const (
	ScopeFile      Scope = "file"
	ScopeDirectory Scope = "directory"
	ScopeProject   Scope = "project"
)

// Language identifies which extractor parses a file.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangRust       Language = "rust"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangGeneric    Language = "generic"
)

// languageByExtension dispatches a file extension to its Language (spec
// §4.8's minimum language list). Extensions not listed here still resolve
// to LangGeneric via LanguageFor's default case, so every file is at least
// line-scanned.
var languageByExtension = map[string]Language{
	".go":    LangGo,
	".py":    LangPython,
	".rs":    LangRust,
	".js":    LangJavaScript,
	".jsx":   LangJavaScript,
	".mjs":   LangJavaScript,
	".ts":    LangTypeScript,
	".tsx":   LangTypeScript,
}

// LanguageFor returns the Language responsible for ext (including the
// leading dot, as returned by filepath.Ext). Unrecognized extensions fall
// back to LangGeneric rather than UnsupportedLanguage: the spec's "minimum"
// language list (Java, Kotlin, C, C++, C#, PHP, HTML, ...) still gets
// useful, if coarser, symbol/reference support from the generic extractor.
func LanguageFor(ext string) Language {
	if lang, ok := languageByExtension[ext]; ok {
		return lang
	}
	return LangGeneric
}
