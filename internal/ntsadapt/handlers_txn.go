package ntsadapt

import (
	"context"
	"encoding/json"
	"fmt"
)

func init() {
	registerTool(toolSpec{
		name:        "nts_checkpoint",
		description: "Record a named checkpoint marker on the task's UNDO stack, transparent to smart undo.",
		schema: obj(map[string]any{
			"taskId": strProp("task id"),
			"name":   strProp("checkpoint name"),
		}, "taskId", "name"),
		handler: handleCheckpoint,
	})
	registerTool(toolSpec{
		name:        "nts_rollback",
		description: "Restore all files to the state recorded at a named checkpoint, discarding everything committed after it.",
		schema: obj(map[string]any{
			"taskId": strProp("task id"),
			"name":   strProp("checkpoint name"),
		}, "taskId", "name"),
		handler: handleRollback,
	})
	registerTool(toolSpec{
		name:        "nts_undo",
		description: "Pop and restore the top entry of the UNDO stack (smart undo: alias-graph resolution, dirty-directory partial undo, CRC recovery, git suggestions).",
		schema:      obj(map[string]any{"taskId": strProp("task id")}, "taskId"),
		handler:     handleUndo,
	})
	registerTool(toolSpec{
		name:        "nts_redo",
		description: "Pop and reapply the top entry of the REDO stack. Suspended after a process restart until a fresh undo repopulates it.",
		schema:      obj(map[string]any{"taskId": strProp("task id")}, "taskId"),
		handler:     handleRedo,
	})
}

func handleCheckpoint(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
		Name   string `json:"name"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	position, err := rt.Txn.CreateCheckpoint(args.Name)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{"name": args.Name, "position": position})
}

func handleRollback(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
		Name   string `json:"name"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	if err := rt.Txn.RollbackToCheckpoint(args.Name); err != nil {
		return toolResult{}, err
	}
	return textResult(fmt.Sprintf("Rolled back to checkpoint %q.", args.Name)), nil
}

func handleUndo(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	result, err := rt.Txn.SmartUndo()
	if err != nil {
		return toolResult{}, err
	}
	for _, p := range result.RestoredPaths {
		s.eng.Sym.Invalidate(p)
	}
	return jsonResult(map[string]any{
		"entryId":        result.EntryID,
		"status":         result.Status,
		"restoredPaths":  result.RestoredPaths,
		"skippedPaths":   result.SkippedPaths,
		"gitSuggestions": result.GitSuggestions,
	})
}

func handleRedo(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	result, err := rt.Txn.Redo()
	if err != nil {
		return toolResult{}, err
	}
	for _, p := range result.RestoredPaths {
		s.eng.Sym.Invalidate(p)
	}
	return jsonResult(map[string]any{
		"entryId":       result.EntryID,
		"status":        result.Status,
		"restoredPaths": result.RestoredPaths,
	})
}
