// Package refactor implements the Refactor Dispatcher (spec §4.9): named,
// multi-file operations that compose the Symbol Engine, the Transaction
// Manager and LAT into a single preview/execute contract. The named-operation
// registry is a constructor map keyed by operation name.
package refactor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/diffkit"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
	"github.com/nefrols/nts-mcp-fs/internal/txn"
)

// FileChange is one file's planned before/after content, produced by an
// operation's plan step before anything is written to disk.
type FileChange struct {
	Path        string
	Before      string
	After       string
	Occurrences int
}

// ChangeSummary is the user-facing description of one FileChange in a
// Result (spec §4.9 "the result's changes list names both files"; spec §3
// "detail triples of {line, before, after}, optional unified-diff, optional
// post-edit CRC and line-count").
type ChangeSummary struct {
	Path        string                `json:"path"`
	Occurrences int                   `json:"occurrences"`
	Diff        string                `json:"diff"`
	Details     []diffkit.ChangeDetail `json:"details,omitempty"`
	AfterCRC    uint32                `json:"afterCrc,omitempty"`
	AfterLines  int                   `json:"afterLines,omitempty"`
	Removed     bool                  `json:"removed,omitempty"`
}

// Status values for Result (spec §3 Refactoring Result: "success | preview |
// error | no-changes | partial").
const (
	StatusOK        = "ok"
	StatusPartial   = "partial"
	StatusPreview   = "preview"
	StatusNoChanges = "no-changes"
	StatusError     = "error"
)

// Result is returned by both Preview and Execute.
type Result struct {
	Status        string          `json:"status"`
	Operation     string          `json:"operation"`
	TransactionID int64           `json:"transactionId,omitempty"`
	Changes       []ChangeSummary `json:"changes"`
	AffectedFiles int             `json:"affectedFiles"`
	TotalChanges  int             `json:"totalChanges"`
	Error         string          `json:"error,omitempty"`
	Suggestions   []string        `json:"suggestions,omitempty"`
	Diagnostics   []string        `json:"diagnostics,omitempty"`
}

// errorResult builds the *error*-status Result spec §3 names, carrying the
// failure's message and any suggestions alongside the Go error every caller
// still checks first; it lets a caller that wants the failure in-band (e.g.
// for logging alongside a batch's partial results) inspect it without
// re-parsing err.
func errorResult(operation string, err error) *Result {
	res := &Result{Status: StatusError, Operation: operation, Error: err.Error()}
	var nerr *ntserr.Error
	if errors.As(err, &nerr) {
		res.Suggestions = nerr.Suggestions
	}
	return res
}

// planFunc computes the set of file edits an operation would make, without
// touching disk. Every named operation registers one of these.
type planFunc func(d *Dispatcher, params json.RawMessage) ([]FileChange, []string, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]planFunc)
)

// register adds an operation's plan function to the dispatcher-wide
// registry. Called from each operation file's init().
func register(name string, fn planFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
}

// Operations lists every registered operation name, sorted.
func Operations() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (planFunc, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	if !ok {
		return nil, ntserr.New(ntserr.KindInvalidArgument, "unknown refactor operation %q (available: %v)", name, Operations())
	}
	return fn, nil
}

// Dispatcher composes the Symbol Engine and Transaction Manager for one
// task's refactor calls (spec §4.9: "Compose symbol engine + transaction
// manager + LAT into named operations").
type Dispatcher struct {
	fs   afero.Fs
	mgr  *txn.Manager
	sym  *symbols.Engine
	root string
}

// NewDispatcher builds a Dispatcher bound to one task's filesystem view,
// Transaction Manager and the process-wide Symbol Engine. root is the
// project root used for project-scope reference searches.
func NewDispatcher(fs afero.Fs, mgr *txn.Manager, sym *symbols.Engine, root string) *Dispatcher {
	return &Dispatcher{fs: fs, mgr: mgr, sym: sym, root: root}
}

// Preview runs an operation's plan step and reports what would change,
// without opening a transaction or touching disk (spec §4.9 "preview(params)
// -> result (no disk mutation)").
func (d *Dispatcher) Preview(name string, params json.RawMessage) (*Result, error) {
	if name == "batch" {
		return d.previewBatch(params)
	}
	fn, err := lookup(name)
	if err != nil {
		return nil, err
	}
	changes, diags, err := fn(d, params)
	if err != nil {
		return errorResult(name, err), err
	}
	status := StatusPreview
	if len(changes) == 0 {
		status = StatusNoChanges
	}
	affected, total := aggregateCounts(changes)
	return &Result{
		Status:        status,
		Operation:     name,
		Changes:       summarize(changes),
		AffectedFiles: affected,
		TotalChanges:  total,
		Diagnostics:   diags,
	}, nil
}

// previewBatch plans every step against the current on-disk state without
// opening a transaction. Unlike Execute's batch, steps are not applied to
// disk between each other, so a preview of a batch whose later steps touch
// a file an earlier step also touches will not reflect the earlier step's
// edits; that limitation is called out in the diagnostics.
func (d *Dispatcher) previewBatch(raw json.RawMessage) (*Result, error) {
	var p batchParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	var allChanges []FileChange
	var diags []string
	touched := make(map[string]bool)
	for _, step := range p.Operations {
		fn, err := lookup(step.Operation)
		if err != nil {
			return errorResult("batch", err), err
		}
		changes, stepDiags, err := fn(d, step.Params)
		if err != nil {
			return errorResult("batch", err), err
		}
		for _, c := range changes {
			if touched[c.Path] {
				diags = append(diags, fmt.Sprintf("%s is touched by more than one step; preview does not compose intra-batch edits to the same file", c.Path))
			}
			touched[c.Path] = true
		}
		allChanges = append(allChanges, changes...)
		diags = append(diags, stepDiags...)
	}
	status := StatusPreview
	if len(allChanges) == 0 {
		status = StatusNoChanges
	}
	affected, total := aggregateCounts(allChanges)
	return &Result{
		Status:        status,
		Operation:     "batch",
		Changes:       summarize(allChanges),
		AffectedFiles: affected,
		TotalChanges:  total,
		Diagnostics:   diags,
	}, nil
}

// Execute runs an operation end to end: opens a transaction, records
// pre-image snapshots, applies the plan's textual changes, invalidates the
// parse cache for every touched file, then commits (spec §4.9 steps 1-5).
// batch is handled separately since it spans multiple plan functions inside
// one transaction.
func (d *Dispatcher) Execute(name string, params json.RawMessage) (*Result, error) {
	if name == "batch" {
		return d.executeBatch(params)
	}

	fn, err := lookup(name)
	if err != nil {
		return errorResult(name, err), err
	}
	changes, diags, err := fn(d, params)
	if err != nil {
		return errorResult(name, err), err
	}
	if len(changes) == 0 {
		return &Result{Status: StatusNoChanges, Operation: name, Diagnostics: diags}, nil
	}

	if err := d.mgr.Begin(name); err != nil {
		return errorResult(name, err), err
	}
	if err := d.applyChanges(changes); err != nil {
		_ = d.mgr.Rollback()
		return errorResult(name, err), err
	}
	txnID, err := d.mgr.Commit(name)
	if err != nil {
		return errorResult(name, err), err
	}
	affected, total := aggregateCounts(changes)
	return &Result{
		Status:        StatusOK,
		Operation:     name,
		TransactionID: txnID,
		Changes:       summarize(changes),
		AffectedFiles: affected,
		TotalChanges:  total,
		Diagnostics:   diags,
	}, nil
}

// applyChanges backs up every touched path, writes its After content, and
// invalidates the Symbol Engine's cache for it. Must be called within an
// open transaction.
func (d *Dispatcher) applyChanges(changes []FileChange) error {
	for _, c := range changes {
		if err := d.mgr.Backup(c.Path); err != nil {
			return err
		}
	}
	for _, c := range changes {
		if c.After == "" && c.Before != "" {
			if err := d.fs.Remove(c.Path); err != nil {
				return ntserr.Wrap(ntserr.KindInternal, err, "removing %s", c.Path)
			}
			d.sym.Invalidate(c.Path)
			continue
		}
		if err := afero.WriteFile(d.fs, c.Path, []byte(c.After), 0o644); err != nil {
			return ntserr.Wrap(ntserr.KindInternal, err, "writing %s", c.Path)
		}
		d.sym.Invalidate(c.Path)
	}
	return nil
}

func summarize(changes []FileChange) []ChangeSummary {
	out := make([]ChangeSummary, 0, len(changes))
	for _, c := range changes {
		removed := c.After == "" && c.Before != ""
		summary := ChangeSummary{
			Path:        c.Path,
			Occurrences: c.Occurrences,
			Diff:        diffkit.UnifiedDiff(c.Before, c.After, c.Path),
			Details:     diffkit.ChangeDetails(c.Before, c.After),
			Removed:     removed,
		}
		if !removed {
			summary.AfterCRC = diffkit.CRC32C([]byte(c.After))
			summary.AfterLines = diffkit.LineCount(c.After)
		}
		out = append(out, summary)
	}
	return out
}

// aggregateCounts reports the number of distinct files touched and the
// total occurrence count across them (spec §3 "affected-file count,
// total-change count").
func aggregateCounts(changes []FileChange) (affectedFiles, totalChanges int) {
	for _, c := range changes {
		affectedFiles++
		totalChanges += c.Occurrences
	}
	return affectedFiles, totalChanges
}

func readFile(d *Dispatcher, path string) (string, error) {
	content, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return "", ntserr.Wrap(ntserr.KindNotFound, err, "reading %s", path)
	}
	return string(content), nil
}

func decodeParams(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return ntserr.Wrap(ntserr.KindInvalidArgument, err, "decoding operation parameters")
	}
	return nil
}

func fmtOccurrences(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
