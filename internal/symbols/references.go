package symbols

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	goahocorasick "github.com/BobuSumisu/aho-corasick"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	jslang "github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/spf13/afero"
	re2 "github.com/wasilibs/go-re2"
	"golang.org/x/sync/errgroup"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// projectScanConcurrency bounds how many candidate files are read and
// regex-matched at once during a project-scope reference scan.
const projectScanConcurrency = 8

func sitterLanguageFor(lang Language) *sitter.Language {
	switch lang {
	case LangGo:
		return golang.GetLanguage()
	case LangPython:
		return python.GetLanguage()
	case LangRust:
		return rust.GetLanguage()
	case LangJavaScript:
		return jslang.GetLanguage()
	case LangTypeScript:
		return typescript.GetLanguage()
	default:
		return nil
	}
}

// FindReferences implements spec §4.8's findReferences: file and directory
// scopes walk the AST (falling back to a text scan for languages with no
// tree-sitter grammar registered here); project scope always uses a
// text-based scan over root, per spec, even for AST-backed languages.
func (e *Engine) FindReferences(root, path, name string, scope Scope, includeDefinition bool) ([]Reference, error) {
	switch scope {
	case ScopeFile:
		return e.referencesInFile(path, name, includeDefinition)
	case ScopeDirectory:
		return e.referencesInDirectory(filepath.Dir(path), name, includeDefinition)
	case ScopeProject:
		return e.referencesInProject(root, name, includeDefinition)
	default:
		return nil, ntserr.New(ntserr.KindInvalidArgument, "unknown reference scope %q", scope)
	}
}

func (e *Engine) referencesInFile(path, name string, includeDefinition bool) ([]Reference, error) {
	content, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindNotFound, err, "reading %s", path)
	}
	lang := LanguageFor(filepath.Ext(path))
	sitterLang := sitterLanguageFor(lang)
	if sitterLang == nil {
		return textReferences(path, string(content), name), nil
	}

	root, closeTree, err := parseTree(sitterLang, content)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "parsing %s for references", path)
	}
	defer closeTree()

	defLines := definitionLinesFor(path, content, lang, name)

	var refs []Reference
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.ChildCount() == 0 && strings.Contains(n.Type(), "identifier") && nodeText(n, content) == name {
			line, col, _, _ := nodeSpan(n)
			refs = append(refs, Reference{Path: path, Line: line, Column: col, IsDefinition: defLines[line], Confidence: ConfidenceSemantic})
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	if !includeDefinition {
		refs = filterDefinitions(refs)
	}
	return refs, nil
}

// definitionLinesFor approximates "this occurrence is the definition" by
// comparing against the start line of every same-named Symbol the whole-file
// extractor already found; exact identifier-token spans aren't tracked
// separately from the enclosing declaration's span.
func definitionLinesFor(path string, content []byte, lang Language, name string) map[int]bool {
	fn, ok := extractors[lang]
	if !ok {
		return nil
	}
	syms, err := fn(path, content)
	if err != nil {
		return nil
	}
	lines := make(map[int]bool)
	for _, s := range syms {
		if s.Name == name {
			lines[s.StartLine] = true
		}
	}
	return lines
}

func filterDefinitions(refs []Reference) []Reference {
	kept := refs[:0]
	for _, r := range refs {
		if !r.IsDefinition {
			kept = append(kept, r)
		}
	}
	return kept
}

func (e *Engine) referencesInDirectory(dir, name string, includeDefinition bool) ([]Reference, error) {
	infos, err := afero.ReadDir(e.fs, dir)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindNotFound, err, "reading directory %s", dir)
	}
	var all []Reference
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		refs, err := e.referencesInFile(filepath.Join(dir, info.Name()), name, includeDefinition)
		if err != nil {
			continue // unreadable/unparseable file: skip rather than fail the whole scope
		}
		all = append(all, refs...)
	}
	return all, nil
}

// referencesInProject scans every file under root using aho-corasick as a
// cheap substring prefilter (spec §4.8 "project scope always uses a
// text-based scan... fast grep over candidate files"), then a word-boundary
// regex over the prefiltered candidates to pin exact line/column matches.
func (e *Engine) referencesInProject(root, name string, includeDefinition bool) ([]Reference, error) {
	trie := goahocorasick.NewTrieBuilder().AddStrings([]string{name}).Build()
	boundary := re2.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)

	var candidates []string
	err := afero.Walk(e.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		content, readErr := afero.ReadFile(e.fs, path)
		if readErr != nil {
			return nil
		}
		if len(trie.MatchString(string(content))) > 0 {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "scanning %s for references", root)
	}

	// Reading and regex-matching each candidate is independent work, so it
	// fans out across a bounded pool instead of running one file at a time.
	var mu sync.Mutex
	var all []Reference
	g := new(errgroup.Group)
	g.SetLimit(projectScanConcurrency)
	for _, path := range candidates {
		path := path
		g.Go(func() error {
			content, err := afero.ReadFile(e.fs, path)
			if err != nil {
				return nil // unreadable file: skip rather than fail the whole scan
			}
			refs := textReferencesWithPattern(path, string(content), boundary)
			if len(refs) == 0 {
				return nil
			}
			defLines := definitionLinesFor(path, content, LanguageFor(filepath.Ext(path)), name)
			for i := range refs {
				refs[i].IsDefinition = defLines[refs[i].Line]
			}
			mu.Lock()
			all = append(all, refs...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // every goroutine above always returns nil; errors are per-file skips

	if !includeDefinition {
		all = filterDefinitions(all)
	}
	return all, nil
}

func textReferences(path, text, name string) []Reference {
	pattern := re2.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	return textReferencesWithPattern(path, text, pattern)
}

func textReferencesWithPattern(path, text string, pattern *re2.Regexp) []Reference {
	lines := strings.Split(text, "\n")
	var refs []Reference
	for i, line := range lines {
		for _, loc := range pattern.FindAllStringIndex(line, -1) {
			refs = append(refs, Reference{Path: path, Line: i + 1, Column: loc[0] + 1, Confidence: ConfidenceTextOnly})
		}
	}
	return refs
}
