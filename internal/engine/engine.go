// Package engine wires every subsystem into one explicit context structure
// (spec §9 design note: "make these explicit context structures instead of
// process-wide globals"). An Engine owns the process-wide pieces (Path
// Registry, Symbol Engine, Task Registry, LAT HMAC secret, telemetry) and
// constructs the per-task pieces (Transaction Manager, Refactor Dispatcher,
// process executor) on demand.
package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/config"
	"github.com/nefrols/nts-mcp-fs/internal/encprobe"
	"github.com/nefrols/nts-mcp-fs/internal/lat"
	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
	"github.com/nefrols/nts-mcp-fs/internal/pathreg"
	"github.com/nefrols/nts-mcp-fs/internal/procexec"
	"github.com/nefrols/nts-mcp-fs/internal/refactor"
	"github.com/nefrols/nts-mcp-fs/internal/symbols"
	"github.com/nefrols/nts-mcp-fs/internal/tasks"
	"github.com/nefrols/nts-mcp-fs/internal/telemetry"
	"github.com/nefrols/nts-mcp-fs/internal/txn"
)

// hmacSecretBytes is the LAT signing secret's length. Regenerated fresh on
// every process start (spec §5: "on restart a new secret is generated, all
// pre-restart tokens become TokenMalformed").
const hmacSecretBytes = 32

// Engine is the top-level composition root. Every field is explicit so a
// test can construct a minimal Engine without reaching for package-level
// state.
type Engine struct {
	Config *config.Config
	Paths  *pathreg.Registry
	Fs     afero.Fs
	Tasks  *tasks.Registry
	Sym    *symbols.Engine
	Tele   *telemetry.Reporter
	Probe  *encprobe.Probe

	hmacSecret []byte
	// diagTokens is a throwaway, never-issuing TokenSet that shares the
	// process-wide HMAC secret, used only to decode tokens for
	// diagnostics (DescribeToken) without needing any particular task's
	// own token set.
	diagTokens *lat.TokenSet

	runtimeMu sync.Mutex
	// taskRuntime holds the per-task pieces that depend on a task's own
	// journal/tokens (Transaction Manager, Refactor Dispatcher, process
	// executor); keyed by task id so repeated lookups reuse one instance.
	taskRuntime map[string]*TaskRuntime
}

// TaskRuntime bundles the per-task subsystems built on top of a tasks.Task.
type TaskRuntime struct {
	Txn       *txn.Manager
	Refactor  *refactor.Dispatcher
	Processes *procexec.Manager
}

// New builds an Engine from resolved configuration. fs is injectable for
// tests (afero.NewMemMapFs()); production callers pass afero.NewOsFs().
func New(ctx context.Context, cfg *config.Config, fs afero.Fs) (*Engine, error) {
	secret := make([]byte, hmacSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "generating LAT HMAC secret")
	}

	paths := pathreg.New(fs, cfg.PrimaryRoot, cfg.AdditionalRoots...)
	taskRegistry := tasks.NewRegistry(cfg.PrimaryRoot, secret)
	symEngine := symbols.NewEngine(fs, 0)
	tele := telemetry.New(cfg.TelemetryEnabled, cfg.TelemetryAPIKey)
	probe := encprobe.New(fs, cfg.DefaultCodePage)

	logging.Info(ctx, "engine initialized", "primary_root", cfg.PrimaryRoot, "telemetry", cfg.TelemetryEnabled)

	return &Engine{
		Config:      cfg,
		Paths:       paths,
		Fs:          fs,
		Tasks:       taskRegistry,
		Sym:         symEngine,
		Tele:        tele,
		Probe:       probe,
		hmacSecret:  secret,
		diagTokens:  lat.NewTokenSet(secret),
		taskRuntime: make(map[string]*TaskRuntime),
	}, nil
}

// DescribeToken decodes an encoded LAT for diagnostics, verifying its HMAC
// against the process-wide secret but without checking it against any
// particular path or current file content (spec SPEC_FULL.md §C
// "describeToken").
func (e *Engine) DescribeToken(encoded string) (lat.Token, error) {
	return e.diagTokens.Describe(encoded)
}

// Close releases process-wide resources (telemetry flush).
func (e *Engine) Close() {
	e.Tele.Close()
}

// GetOrCreateTask returns a task's runtime, creating or reactivating the
// underlying tasks.Task and attaching its Transaction Manager if this is
// the runtime's first use this process. SuspendRedo is called exactly once,
// immediately after constructing a Manager for a task that already existed
// on disk but was not yet live in memory (a reactivation), per
// SPEC_FULL.md §E.6: a stale REDO entry from before restart must not be
// replayed against alias-graph state that reactivation does not restore.
func (e *Engine) GetOrCreateTask(ctx context.Context, id string, opts tasks.CreateTaskOptions) (*tasks.Task, *TaskRuntime, error) {
	wasLive := e.Tasks.IsActiveInMemory(id)
	wasOnDisk := e.Tasks.ExistsOnDisk(id)

	t, err := e.Tasks.GetOrCreate(ctx, id, opts)
	if err != nil {
		return nil, nil, err
	}

	e.runtimeMu.Lock()
	defer e.runtimeMu.Unlock()

	if rt, ok := e.taskRuntime[id]; ok {
		return t, rt, nil
	}

	mgr := txn.NewManager(e.Fs, t.JournalStore(), t.Tokens(), e.Config.PrimaryRoot, e.Config.UndoRetention)
	if !wasLive && wasOnDisk {
		mgr.SuspendRedo()
	}
	t.AttachTransactions(mgr)

	dispatcher := refactor.NewDispatcher(e.Fs, mgr, e.Sym, e.Config.PrimaryRoot)

	rt := &TaskRuntime{
		Txn:       mgr,
		Refactor:  dispatcher,
		Processes: procexec.NewManager(),
	}
	e.taskRuntime[id] = rt
	return t, rt, nil
}

// TaskRuntimeFor returns an already-constructed runtime for a live task, or
// an error if the task has no runtime yet (it must go through
// GetOrCreateTask first).
func (e *Engine) TaskRuntimeFor(id string) (*TaskRuntime, error) {
	e.runtimeMu.Lock()
	defer e.runtimeMu.Unlock()
	rt, ok := e.taskRuntime[id]
	if !ok {
		return nil, ntserr.New(ntserr.KindNotFound, "no active runtime for task %q", id)
	}
	return rt, nil
}

// DropTaskRuntime discards a task's runtime without touching its durable
// journal, so a subsequent GetOrCreateTask reactivates it cleanly (used by
// tests; nothing in request handling calls it).
func (e *Engine) DropTaskRuntime(id string) {
	e.runtimeMu.Lock()
	defer e.runtimeMu.Unlock()
	delete(e.taskRuntime, id)
}

// String renders a short diagnostic summary (active task count, configured
// roots).
func (e *Engine) String() string {
	e.runtimeMu.Lock()
	defer e.runtimeMu.Unlock()
	return fmt.Sprintf("nts-mcp-fs engine: roots=%v tasks_live=%d", e.Paths.GetRoots(), len(e.taskRuntime))
}
