package ntsadapt

import (
	"context"
	"encoding/json"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
)

func init() {
	registerTool(toolSpec{
		name:        "nts_list_symbols",
		description: "List every symbol the Symbol Engine can extract from a file.",
		schema: obj(map[string]any{
			"taskId": strProp("task id"),
			"path":   strProp("path to a source file"),
		}, "taskId", "path"),
		handler: handleListSymbols,
	})
	registerTool(toolSpec{
		name:        "nts_symbols_at",
		description: "List the symbols whose span contains a given line/column.",
		schema: obj(map[string]any{
			"taskId": strProp("task id"),
			"path":   strProp("path to a source file"),
			"line":   intProp("1-indexed line"),
			"column": intProp("1-indexed column"),
		}, "taskId", "path", "line"),
		handler: handleSymbolsAt,
	})
	registerTool(toolSpec{
		name:        "nts_resolve_definition",
		description: "Resolve the symbol definition at a given line/column to its declaring Symbol.",
		schema: obj(map[string]any{
			"taskId": strProp("task id"),
			"path":   strProp("path to a source file"),
			"line":   intProp("1-indexed line"),
			"column": intProp("1-indexed column"),
		}, "taskId", "path", "line"),
		handler: handleResolveDefinition,
	})
	registerTool(toolSpec{
		name:        "nts_find_references",
		description: "Find references to a named symbol within a file, directory, or the whole project (project scope always text-scans).",
		schema: obj(map[string]any{
			"taskId":            strProp("task id"),
			"path":              strProp("path used to anchor file/directory scope"),
			"name":              strProp("symbol name to search for"),
			"scope":             strProp("one of file, directory, project"),
			"includeDefinition": boolProp("include the declaring occurrence in results"),
		}, "taskId", "path", "name", "scope"),
		handler: handleFindReferences,
	})
}

func handleListSymbols(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
		Path   string `json:"path"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	if _, _, err := s.taskRuntime(ctx, args.TaskID); err != nil {
		return toolResult{}, err
	}
	path, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	syms, err := s.eng.Sym.ListSymbols(path)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{"symbols": syms})
}

func handleSymbolsAt(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
		Path   string `json:"path"`
		Line   int    `json:"line"`
		Column int    `json:"column"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	if _, _, err := s.taskRuntime(ctx, args.TaskID); err != nil {
		return toolResult{}, err
	}
	path, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	syms, err := s.eng.Sym.SymbolsAt(path, args.Line, args.Column)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{"symbols": syms})
}

func handleResolveDefinition(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
		Path   string `json:"path"`
		Line   int    `json:"line"`
		Column int    `json:"column"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	if _, _, err := s.taskRuntime(ctx, args.TaskID); err != nil {
		return toolResult{}, err
	}
	path, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	sym, err := s.eng.Sym.ResolveDefinition(path, args.Line, args.Column)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{"symbol": sym})
}

func handleFindReferences(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID            string `json:"taskId"`
		Path              string `json:"path"`
		Name              string `json:"name"`
		Scope             string `json:"scope"`
		IncludeDefinition bool   `json:"includeDefinition"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	if _, _, err := s.taskRuntime(ctx, args.TaskID); err != nil {
		return toolResult{}, err
	}
	path, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	scope := symbols.Scope(args.Scope)
	switch scope {
	case symbols.ScopeFile, symbols.ScopeDirectory, symbols.ScopeProject:
	default:
		return toolResult{}, ntserr.New(ntserr.KindInvalidArgument, "unknown reference scope %q", args.Scope)
	}

	refs, err := s.eng.Sym.FindReferences(s.eng.Paths.GetRoot(), path, args.Name, scope, args.IncludeDefinition)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{"references": refs})
}
