package ntsadapt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/diffkit"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

func init() {
	registerTool(toolSpec{
		name:        "nts_read",
		description: "Read a file (or a line range) through the Path Registry and Encoding Probe, issuing a Line Access Token for the range read.",
		schema: obj(map[string]any{
			"taskId":    strProp("task id"),
			"path":      strProp("path to read, relative to the task's working directory or a configured root"),
			"startLine": intProp("1-indexed start line; omit for the whole file"),
			"endLine":   intProp("1-indexed end line, inclusive; omit for the whole file"),
		}, "taskId", "path"),
		handler: handleRead,
	})
	registerTool(toolSpec{
		name:        "nts_edit",
		description: "Replace a line range (or a batch of disjoint ranges via operations) in a file. Requires a LAT token obtained from nts_read covering every edited range.",
		schema: obj(map[string]any{
			"taskId":      strProp("task id"),
			"path":        strProp("path to edit"),
			"startLine":   intProp("1-indexed start line of a single edit"),
			"endLine":     intProp("1-indexed end line of a single edit, inclusive; defaults to startLine"),
			"content":     strProp("replacement text for a single edit (conflicts with operations)"),
			"token":       strProp("LAT token for a single edit"),
			"operations":  anyProp("array of {startLine,endLine,content,token} for a batch of disjoint edits (conflicts with content; the top-level token is ignored)"),
			"description": strProp("human-readable description recorded on the resulting journal entry"),
		}, "taskId", "path"),
		handler: handleEdit,
	})
	registerTool(toolSpec{
		name:        "nts_move",
		description: "Move or rename a file, transferring its LAT tokens and recording a path-alias edge.",
		schema: obj(map[string]any{
			"taskId":     strProp("task id"),
			"path":       strProp("current path"),
			"targetPath": strProp("destination path"),
		}, "taskId", "path", "targetPath"),
		handler: handleMove,
	})
}

func handleRead(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID    string `json:"taskId"`
		Path      string `json:"path"`
		StartLine int    `json:"startLine"`
		EndLine   int    `json:"endLine"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	t, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}

	path, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	if err := rt.Txn.CheckExternal(path); err != nil {
		return toolResult{}, err
	}

	content, charset, err := s.eng.Probe.ReadText(path)
	if err != nil {
		return toolResult{}, err
	}
	total := diffkit.LineCount(content)

	start, end := args.StartLine, args.EndLine
	if start == 0 && end == 0 {
		start, end = 1, total
	}
	if end == 0 {
		end = start
	}
	rangeText, err := diffkit.RangeText(content, start, end)
	if err != nil {
		return toolResult{}, err
	}
	crc, err := diffkit.CRC32CRange(content, start, end)
	if err != nil {
		return toolResult{}, err
	}

	token := t.Tokens().RegisterRead(path, start, end, crc, total)
	return jsonResult(map[string]any{
		"path":       path,
		"charset":    charset,
		"startLine":  start,
		"endLine":    end,
		"totalLines": total,
		"content":    rangeText,
		"token":      token,
	})
}

// editOp is one requested textual replacement within nts_edit.
type editOp struct {
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	Content   string `json:"content"`
	Token     string `json:"token"`
}

func handleEdit(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID      string          `json:"taskId"`
		Path        string          `json:"path"`
		StartLine   int             `json:"startLine"`
		EndLine     int             `json:"endLine"`
		Content     *string         `json:"content"`
		Token       string          `json:"token"`
		Operations  json.RawMessage `json:"operations"`
		Description string          `json:"description"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	if args.Content != nil && len(args.Operations) > 0 {
		return toolResult{}, ntserr.New(ntserr.KindInvalidArgument, "CONFLICT: ambiguous edit shape")
	}

	var ops []editOp
	switch {
	case len(args.Operations) > 0:
		if err := decodeArgs(args.Operations, &ops); err != nil {
			return toolResult{}, err
		}
	case args.Content != nil:
		end := args.EndLine
		if end == 0 {
			end = args.StartLine
		}
		ops = []editOp{{StartLine: args.StartLine, EndLine: end, Content: *args.Content, Token: args.Token}}
	default:
		return toolResult{}, ntserr.New(ntserr.KindInvalidArgument, "edit requires either content or operations")
	}
	if len(ops) == 0 {
		return toolResult{}, ntserr.New(ntserr.KindInvalidArgument, "no edit operations supplied")
	}

	t, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}
	path, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	if err := rt.Txn.CheckExternal(path); err != nil {
		return toolResult{}, err
	}

	before, err := afero.ReadFile(s.eng.Fs, path)
	if err != nil {
		return toolResult{}, ntserr.Wrap(ntserr.KindNotFound, err, "reading %s", path)
	}
	beforeText := string(before)

	currentCRC := func(start, end int) (uint32, error) { return diffkit.CRC32CRange(beforeText, start, end) }
	for i, op := range ops {
		if op.Token == "" {
			return toolResult{}, ntserr.New(ntserr.KindTokenRequired, "token required for %s", path)
		}
		if _, err := t.Tokens().Validate(op.Token, path, op.StartLine, op.EndLine, currentCRC); err != nil {
			return toolResult{}, err
		}
		if op.EndLine < op.StartLine {
			return toolResult{}, ntserr.New(ntserr.KindInvalidArgument, "operation %d has endLine < startLine", i)
		}
	}

	after, err := applyLineEdits(beforeText, ops)
	if err != nil {
		return toolResult{}, err
	}

	if err := rt.Txn.Begin(args.Description); err != nil {
		return toolResult{}, err
	}
	if err := rt.Txn.Backup(path); err != nil {
		_ = rt.Txn.Rollback()
		return toolResult{}, err
	}
	if err := afero.WriteFile(s.eng.Fs, path, []byte(after), 0o644); err != nil {
		_ = rt.Txn.Rollback()
		return toolResult{}, ntserr.Wrap(ntserr.KindInternal, err, "writing %s", path)
	}
	txnID, err := rt.Txn.Commit(args.Description)
	if err != nil {
		return toolResult{}, err
	}
	s.eng.Sym.Invalidate(path)

	for _, op := range ops {
		t.Tokens().InvalidateIntersecting(path, op.StartLine, op.EndLine)
	}
	total := diffkit.LineCount(after)
	fullCRC := diffkit.CRC32C([]byte(after))
	newToken := t.Tokens().RegisterFullAccess(path, fullCRC, total)

	diffText := diffkit.UnifiedDiff(beforeText, after, path)
	added, deleted := diffkit.LineStats(diffText)

	text := fmt.Sprintf(
		"Edited %s (transaction %d). %d line(s) added, %d removed.\nDiff:\n%s\n[NEW TOKEN: %s]",
		path, txnID, added, deleted, diffText, newToken,
	)
	return textResult(text), nil
}

// applyLineEdits replaces each op's [StartLine,EndLine] range in text with
// its Content, processing ranges from the bottom of the file up so that
// earlier (lower-numbered) ranges are unaffected by edits applied after
// them in this pass.
func applyLineEdits(text string, ops []editOp) (string, error) {
	lines := diffkit.Lines(text)
	sorted := make([]editOp, len(ops))
	copy(sorted, ops)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartLine > sorted[j].StartLine })

	for _, op := range sorted {
		if op.StartLine < 1 || op.EndLine > len(lines) || op.EndLine < op.StartLine {
			return "", ntserr.New(ntserr.KindInvalidArgument, "edit range [%d,%d] out of bounds for %d lines", op.StartLine, op.EndLine, len(lines))
		}
		var replacement []string
		if op.Content != "" {
			replacement = diffkit.Lines(op.Content)
		}
		lines = append(lines[:op.StartLine-1], append(replacement, lines[op.EndLine:]...)...)
	}
	if len(lines) == 0 {
		return "", nil
	}
	return strings.Join(lines, "\n") + "\n", nil
}

func handleMove(ctx context.Context, s *Server, raw json.RawMessage) (toolResult, error) {
	var args struct {
		TaskID     string `json:"taskId"`
		Path       string `json:"path"`
		TargetPath string `json:"targetPath"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return toolResult{}, err
	}
	t, rt, err := s.taskRuntime(ctx, args.TaskID)
	if err != nil {
		return toolResult{}, err
	}

	src, err := s.eng.Paths.Sanitize(args.Path, true)
	if err != nil {
		return toolResult{}, err
	}
	dst, err := s.eng.Paths.Sanitize(args.TargetPath, false)
	if err != nil {
		return toolResult{}, err
	}

	content, err := afero.ReadFile(s.eng.Fs, src)
	if err != nil {
		return toolResult{}, ntserr.Wrap(ntserr.KindNotFound, err, "reading %s", src)
	}

	if err := rt.Txn.Begin(fmt.Sprintf("move %s -> %s", src, dst)); err != nil {
		return toolResult{}, err
	}
	if err := rt.Txn.Backup(src); err != nil {
		_ = rt.Txn.Rollback()
		return toolResult{}, err
	}
	if err := rt.Txn.Backup(dst); err != nil {
		_ = rt.Txn.Rollback()
		return toolResult{}, err
	}
	if err := s.eng.Fs.Remove(src); err != nil {
		_ = rt.Txn.Rollback()
		return toolResult{}, ntserr.Wrap(ntserr.KindInternal, err, "removing %s", src)
	}
	if err := afero.WriteFile(s.eng.Fs, dst, content, 0o644); err != nil {
		_ = rt.Txn.Rollback()
		return toolResult{}, ntserr.Wrap(ntserr.KindInternal, err, "writing %s", dst)
	}
	txnID, err := rt.Txn.Commit(fmt.Sprintf("move %s -> %s", src, dst))
	if err != nil {
		return toolResult{}, err
	}

	t.Tokens().MoveTokens(src, dst)
	s.eng.Sym.Invalidate(src)
	s.eng.Sym.Invalidate(dst)

	return jsonResult(map[string]any{
		"from":          src,
		"to":            dst,
		"transactionId": txnID,
	})
}
