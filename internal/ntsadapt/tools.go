package ntsadapt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// toolSpec describes one dispatch-table entry: its MCP-facing schema and
// the handler that implements it against the core (spec §6 "tool-dispatch
// table that hands a (task-id, tool-name, arguments) tuple to the core").
type toolSpec struct {
	name        string
	description string
	schema      map[string]any
	handler     func(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error)
}

var toolRegistry []toolSpec

func registerTool(spec toolSpec) {
	toolRegistry = append(toolRegistry, spec)
}

func obj(properties map[string]any, required ...string) map[string]any {
	m := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func strProp(desc string) map[string]any  { return map[string]any{"type": "string", "description": desc} }
func intProp(desc string) map[string]any  { return map[string]any{"type": "integer", "description": desc} }
func boolProp(desc string) map[string]any { return map[string]any{"type": "boolean", "description": desc} }
func anyProp(desc string) map[string]any  { return map[string]any{"description": desc} }

func (s *Server) handleToolsList() (any, *rpcError) {
	type toolDescriptor struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"inputSchema"`
	}
	out := make([]toolDescriptor, 0, len(toolRegistry))
	for _, t := range toolRegistry {
		out = append(out, toolDescriptor{Name: t.name, Description: t.description, InputSchema: t.schema})
	}
	return map[string]any{"tools": out}, nil
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid tools/call params: %v", err)}
	}

	var spec *toolSpec
	for i := range toolRegistry {
		if toolRegistry[i].name == call.Name {
			spec = &toolRegistry[i]
			break
		}
	}
	if spec == nil {
		return nil, &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown tool %q", call.Name)}
	}

	result, err := spec.handler(ctx, s, call.Arguments)
	if err != nil {
		return nil, &rpcError{Code: codeToolError, Message: toolErrorMessage(err)}
	}
	return result, nil
}

// toolErrorMessage renders a core ntserr.Error as a single-line message
// carrying a SCREAMING_SNAKE error code, e.g. "TOKEN_REQUIRED: token
// required for a.txt" (spec S1 checks the literal substring "TOKEN_REQUIRED").
func toolErrorMessage(err error) string {
	var e *ntserr.Error
	if errors.As(err, &e) {
		msg := e.Message
		if msg == "" {
			msg = string(e.Kind)
		}
		text := fmt.Sprintf("%s: %s", screamingSnake(string(e.Kind)), msg)
		for _, s := range e.Suggestions {
			text += fmt.Sprintf(" (suggestion: %s)", s)
		}
		return text
	}
	return err.Error()
}

func screamingSnake(camel string) string {
	out := make([]byte, 0, len(camel)+8)
	for i := 0; i < len(camel); i++ {
		c := camel[i]
		if c >= 'A' && c <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			out = append(out, c)
			continue
		}
		out = append(out, c-'a'+'A')
	}
	return string(out)
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return ntserr.Wrap(ntserr.KindInvalidArgument, err, "decoding tool arguments")
	}
	return nil
}

func jsonResult(v any) (toolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolResult{}, ntserr.Wrap(ntserr.KindInternal, err, "encoding tool result")
	}
	return textResult(string(b)), nil
}
