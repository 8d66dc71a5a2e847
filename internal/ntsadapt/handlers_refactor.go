package ntsadapt

import (
	"context"
	"encoding/json"
)

func init() {
	registerTool(toolSpec{
		name:        "nts_refactor_preview",
		description: "Plan a named refactor operation (rename, generate, delete, wrap, extract_method, inline, change_signature, move, batch) and report the diff without touching disk.",
		schema: obj(map[string]any{
			"taskId":    strProp("task id"),
			"operation": strProp("refactor operation name"),
			"params":    anyProp("operation-specific parameters"),
		}, "taskId", "operation", "params"),
		handler: handleRefactorPreview,
	})
	registerTool(toolSpec{
		name:        "nts_refactor_execute",
		description: "Run a named refactor operation end to end inside one transaction and commit the result.",
		schema: obj(map[string]any{
			"taskId":    strProp("task id"),
			"operation": strProp("refactor operation name"),
			"params":    anyProp("operation-specific parameters"),
		}, "taskId", "operation", "params"),
		handler: handleRefactorExecute,
	})
}

func handleRefactorPreview(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID    string          `json:"taskId"`
		Operation string          `json:"operation"`
		Params    json.RawMessage `json:"params"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	result, err := rt.Refactor.Preview(args.Operation, args.Params)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(result)
}

func handleRefactorExecute(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID    string          `json:"taskId"`
		Operation string          `json:"operation"`
		Params    json.RawMessage `json:"params"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	result, err := rt.Refactor.Execute(args.Operation, args.Params)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(result)
}
