package ntsadapt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// defaultRunTimeout bounds nts_run when the caller omits timeoutSeconds
// (spec §5: every external process call carries a mandatory timeout).
const defaultRunTimeout = 30 * time.Second

func init() {
	registerTool(toolSpec{
		name:        "nts_run",
		description: "Run an external command under the task's working directory with a mandatory timeout. Commands still running when the timeout elapses are left running in the background for nts_poll_process.",
		schema: obj(map[string]any{
			"taskId":         strProp("task id"),
			"command":        strProp("executable name"),
			"args":           anyProp("array of string arguments"),
			"timeoutSeconds": intProp("seconds to wait before backgrounding the process, default 30"),
		}, "taskId", "command"),
		handler: handleRun,
	})
	registerTool(toolSpec{
		name:        "nts_poll_process",
		description: "Poll a backgrounded process started by nts_run for completion and tailing output.",
		schema: obj(map[string]any{
			"taskId":    strProp("task id"),
			"handle":    strProp("handle returned by nts_run"),
			"tailBytes": intProp("maximum trailing output bytes to return, default 8192"),
		}, "taskId", "handle"),
		handler: handlePollProcess,
	})
}

func handleRun(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID         string   `json:"taskId"`
		Command        string   `json:"command"`
		Args           []string `json:"args"`
		TimeoutSeconds int      `json:"timeoutSeconds"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	t, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	if args.Command == "" {
		return toolResult{}, ntserr.New(ntserr.KindInvalidArgument, "command is required")
	}
	timeout := defaultRunTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}

	result, err := rt.Processes.Run(ctx, t.WorkingDir, args.Command, args.Args, timeout)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(result)
}

func handlePollProcess(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID    string `json:"taskId"`
		Handle    string `json:"handle"`
		TailBytes int    `json:"tailBytes"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	_, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	tail := args.TailBytes
	if tail <= 0 {
		tail = 8192
	}
	result, err := rt.Processes.Poll(args.Handle, tail)
	if err != nil {
		return toolResult{}, err
	}
	return jsonResult(result)
}
