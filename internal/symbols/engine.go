package symbols

import (
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/diffkit"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// extractor is the per-language entry point every parser in this package
// implements (spec §4.8 "extractSymbol(node, nodeType, path, content,
// parentName) -> Symbol?", generalized here to a whole-file pass that
// returns every Symbol in one walk rather than being invoked node-by-node).
type extractor func(path string, content []byte) ([]Symbol, error)

var extractors = map[Language]extractor{
	LangGo:         extractGo,
	LangPython:     extractPython,
	LangRust:       extractRust,
	LangJavaScript: extractJavaScript,
	LangTypeScript: extractTypeScript,
	LangGeneric:    extractGeneric,
}

// Engine is the process-wide Symbol Engine (spec §4.8, §5 "process-wide but
// keyed by (path, mtime, size, crc) so cross-task reads are safe").
type Engine struct {
	fs    afero.Fs
	cache *parseCache
}

// NewEngine creates an Engine reading through fs, with an LRU parse cache
// bounded at cacheSize entries (0 selects the package default).
func NewEngine(fs afero.Fs, cacheSize int) *Engine {
	return &Engine{fs: fs, cache: newParseCache(cacheSize)}
}

// Invalidate drops path's cached parse (spec §4.8: invoked by the
// Transaction Manager after any commit touching path).
func (e *Engine) Invalidate(path string) {
	e.cache.invalidate(path)
}

func (e *Engine) parse(path string) (*parseResult, error) {
	info, err := e.fs.Stat(path)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindNotFound, err, "stat %s", path)
	}
	content, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindNotFound, err, "reading %s", path)
	}
	key := cacheKey{path: path, size: info.Size(), mtime: info.ModTime().UnixNano(), crc: diffkit.CRC32C(content)}
	if cached, ok := e.cache.get(key); ok {
		return cached, nil
	}
	res, err := e.parseContent(path, content)
	if err != nil {
		return nil, err
	}
	e.cache.put(key, res)
	return res, nil
}

// parseContent runs the extractor for path's language over content without
// touching the filesystem or the cache (spec §4.8 "virtual parse variant
// accepts in-memory content for preview flows").
func (e *Engine) parseContent(path string, content []byte) (*parseResult, error) {
	lang := LanguageFor(filepath.Ext(path))
	fn, ok := extractors[lang]
	if !ok {
		return nil, ntserr.New(ntserr.KindUnsupportedLanguage, "no extractor registered for %s", lang).
			WithSuggestions(enabledLanguageNames()...)
	}
	syms, err := fn(path, content)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "parsing %s", path)
	}
	return &parseResult{language: lang, symbols: syms, content: content}, nil
}

func enabledLanguageNames() []string {
	names := make([]string, 0, len(extractors))
	for lang := range extractors {
		names = append(names, string(lang))
	}
	return names
}

// ListSymbols returns every definition in path (spec §4.8).
func (e *Engine) ListSymbols(path string) ([]Symbol, error) {
	res, err := e.parse(path)
	if err != nil {
		return nil, err
	}
	return res.symbols, nil
}

// ListSymbolsVirtual is ListSymbols over in-memory content, bypassing the
// filesystem and the cache (preview flows, spec §4.8).
func (e *Engine) ListSymbolsVirtual(path string, content []byte) ([]Symbol, error) {
	res, err := e.parseContent(path, content)
	if err != nil {
		return nil, err
	}
	return res.symbols, nil
}

// SymbolsAt returns every definition whose span contains (line, column)
// (spec §4.8), in the order the extractor listed them (not sorted by
// nesting).
func (e *Engine) SymbolsAt(path string, line, column int) ([]Symbol, error) {
	syms, err := e.ListSymbols(path)
	if err != nil {
		return nil, err
	}
	var hits []Symbol
	for _, s := range syms {
		if s.contains(line, column) {
			hits = append(hits, s)
		}
	}
	return hits, nil
}

// ResolveDefinition returns the single best definition at (line, column):
// the narrowest symbol whose span contains the point (spec §4.8).
func (e *Engine) ResolveDefinition(path string, line, column int) (Symbol, error) {
	hits, err := e.SymbolsAt(path, line, column)
	if err != nil {
		return Symbol{}, err
	}
	if len(hits) == 0 {
		return Symbol{}, ntserr.New(ntserr.KindSymbolNotFound, "no definition at %s:%d:%d", path, line, column)
	}
	best := hits[0]
	for _, s := range hits[1:] {
		if (s.EndLine-s.StartLine) < (best.EndLine - best.StartLine) {
			best = s
		}
	}
	return best, nil
}

// FindSymbolByName locates a definition by exact name within path, used by
// callers (e.g. the refactor dispatcher) that address a symbol by name
// rather than by point.
func (e *Engine) FindSymbolByName(path, name string) (Symbol, error) {
	syms, err := e.ListSymbols(path)
	if err != nil {
		return Symbol{}, err
	}
	var matches []Symbol
	for _, s := range syms {
		if s.Name == name {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return Symbol{}, ntserr.New(ntserr.KindSymbolNotFound, "no symbol named %q in %s", name, path)
	case 1:
		return matches[0], nil
	default:
		suggestions := make([]string, 0, len(matches))
		for _, m := range matches {
			suggestions = append(suggestions, string(m.Kind)+":"+m.Name)
		}
		return Symbol{}, ntserr.New(ntserr.KindAmbiguousSymbol, "%d symbols named %q in %s", len(matches), name, path).
			WithSuggestions(suggestions...)
	}
}
