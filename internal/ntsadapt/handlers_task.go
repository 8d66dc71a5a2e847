package ntsadapt

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nefrols/nts-mcp-fs/internal/engine"
	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/tasks"
)

func init() {
	registerTool(toolSpec{
		name:        "nts_init",
		description: "Create or reactivate a task context; taskId is optional.",
		schema: obj(map[string]any{
			"taskId":     strProp("existing or desired task id; omitted or unknown ids create a fresh task"),
			"workingDir": strProp("working directory for the task, defaults to the configured primary root"),
		}),
		handler: handleInit,
	})
	registerTool(toolSpec{
		name:        "nts_status",
		description: "Report a task's counters: edits since last verify, undo/redo stack depth, active todo pointer.",
		schema:      obj(map[string]any{"taskId": strProp("task id")}, "taskId"),
		handler:     handleStatus,
	})
	registerTool(toolSpec{
		name:        "nts_list_checkpoints",
		description: "List named checkpoints recorded on a task's UNDO stack.",
		schema:      obj(map[string]any{"taskId": strProp("task id")}, "taskId"),
		handler:     handleListCheckpoints,
	})
	registerTool(toolSpec{
		name:        "nts_describe_token",
		description: "Decode a LAT token for diagnostics without validating it against a path.",
		schema:      obj(map[string]any{"token": strProp("encoded LAT token")}, "token"),
		handler:     handleDescribeToken,
	})
}

func handleInit(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID     string `json:"taskId"`
		WorkingDir string `json:"workingDir"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	id := args.TaskID
	created := false
	if id == "" {
		id = uuid.NewString()
		created = true
	} else {
		created = !s.eng.Tasks.ExistsOnDisk(id) && !s.eng.Tasks.IsActiveInMemory(id)
	}
	workingDir := args.WorkingDir
	if workingDir == "" {
		workingDir = s.eng.Paths.GetRoot()
	}

	t, _, err := s.eng.GetOrCreateTask(ctx, id, tasks.CreateTaskOptions{WorkingDir: workingDir})
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{
		"taskId":     t.ID,
		"created":    created,
		"workingDir": t.WorkingDir,
	})
}

func (s *Server) taskRuntime(ctx context.Context, id string) (*tasks.Task, *engine.TaskRuntime, error) {
	return s.eng.GetOrCreateTask(ctx, id, tasks.CreateTaskOptions{WorkingDir: s.eng.Paths.GetRoot()})
}

func handleStatus(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	t, _, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}

	store := t.JournalStore()
	undo, err := store.GetEntries(journal.StackUndo)
	if err != nil {
		return toolResult{}, err
	}
	redo, err := store.GetEntries(journal.StackRedo)
	if err != nil {
		return toolResult{}, err
	}
	edits, _ := store.GetCounter("global_edits")

	return jsonResult(map[string]any{
		"taskId":           t.ID,
		"workingDir":       t.WorkingDir,
		"activeTodo":       t.ActiveTodoPointer,
		"editsSinceVerify": edits,
		"undoDepth":        len(undo),
		"redoDepth":        len(redo),
	})
}

func handleListCheckpoints(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID string `json:"taskId"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	t, _, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}

	entries, err := t.JournalStore().GetEntries(journal.StackUndo)
	if err != nil {
		return toolResult{}, err
	}
	type checkpoint struct {
		Name     string `json:"name"`
		Position int64  `json:"position"`
	}
	var out []checkpoint
	for _, e := range entries {
		if e.Type == journal.EntryCheckpoint {
			out = append(out, checkpoint{Name: e.CheckpointName, Position: e.Position})
		}
	}
	return jsonResult(map[string]any{"checkpoints": out})
}

func handleDescribeToken(_ context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		Token string `json:"token"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	// Describing a token requires no particular task's token set (HMAC
	// verification only depends on the process-wide secret), so the
	// engine's own diagnostic token set, which shares that secret, decodes
	// it.
	tok, err := s.eng.DescribeToken(args.Token)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(map[string]any{
		"startLine":  tok.StartLine,
		"endLine":    tok.EndLine,
		"crc":        tok.CRC,
		"totalLines": tok.TotalLines,
		"issuedAt":   tok.IssuedAt,
	})
}
