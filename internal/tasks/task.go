// Package tasks implements the Task Context Registry (spec §4.5): lifecycle
// and isolation of per-task state. A Task owns its journal store handle, its
// LAT token set, and its transaction manager exclusively; nothing here is
// shared across tasks.
package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/lat"
	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// Task represents a unit of mediated work bound to an agent-supplied or
// generated id. A task exclusively owns a journal store, a LAT set and a
// transaction manager; see sub-handles below.
type Task struct {
	// ID is the task identifier (spec §3).
	ID string
	// CreatedAt is when the task was first created (not reactivated).
	CreatedAt time.Time
	// LastActivity is updated on every operation routed through this task.
	LastActivity time.Time
	// WorkingDir is the task's working directory, typically the primary root.
	WorkingDir string
	// Metadata is free-form string metadata persisted via saveJournal.
	Metadata map[string]string
	// ActiveTodoPointer names the currently active todo plan file, if any.
	ActiveTodoPointer string
	// EditsSinceVerify counts mutating operations since the last verify-ish
	// tool call; reset by callers that track that notion (not by this
	// package).
	EditsSinceVerify int64

	dir string

	mu       sync.Mutex
	journal  *journal.Store
	tokens   *lat.TokenSet
	txnReady bool // set once a transaction manager has been attached

	// transactions is attached lazily by internal/txn.Manager because txn
	// depends on tasks, not the other way around; see AttachTransactions.
	transactions any
}

// CreateTaskOptions configures task creation (spec §4.5).
type CreateTaskOptions struct {
	WorkingDir string
}

// Registry is the process-wide Task Context Registry (spec §4.5). It is
// safe for concurrent use; per-task exclusivity is the caller's
// responsibility (spec §5: a task is single-writer by contract).
type Registry struct {
	mu        sync.Mutex
	tasksRoot string // <primaryRoot>/.nts/tasks
	hmacSecret []byte

	tasks map[string]*Task

	currentMu sync.Mutex
	current   map[int64]string // goroutine-ish request-scope key -> task id, see current()/setCurrent()
}

// NewRegistry creates a Task Context Registry rooted at <primaryRoot>/.nts/tasks
// (spec §6 "Persisted state layout"). hmacSecret is the process-wide LAT
// signing secret (regenerated on every restart per spec §5).
func NewRegistry(primaryRoot string, hmacSecret []byte) *Registry {
	return &Registry{
		tasksRoot:  filepath.Join(primaryRoot, ".nts", "tasks"),
		hmacSecret: hmacSecret,
		tasks:      make(map[string]*Task),
		current:    make(map[int64]string),
	}
}

func (r *Registry) taskDir(id string) string {
	return filepath.Join(r.tasksRoot, id)
}

// GetOrCreate returns the in-memory task context for id, creating (or
// reactivating, per ExistsOnDisk) it if necessary. Agent-chosen ids are
// honoured (spec §4.5 reactivation policy).
func (r *Registry) GetOrCreate(ctx context.Context, id string, opts CreateTaskOptions) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		return t, nil
	}

	if r.existsOnDiskLocked(id) {
		return r.reactivateLocked(ctx, id)
	}

	return r.createLocked(ctx, id, opts)
}

func (r *Registry) createLocked(ctx context.Context, id string, opts CreateTaskOptions) (*Task, error) {
	dir := r.taskDir(id)
	if err := os.MkdirAll(filepath.Join(dir, "todos"), 0o755); err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "creating task directory for %s", id)
	}
	if err := os.MkdirAll(filepath.Join(dir, "snapshots"), 0o755); err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "creating task snapshots directory for %s", id)
	}

	store, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	t := &Task{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		WorkingDir:   opts.WorkingDir,
		Metadata:     make(map[string]string),
		dir:          dir,
		journal:      store,
		tokens:       lat.NewTokenSet(r.hmacSecret),
	}
	r.tasks[id] = t
	logging.Info(ctx, "task created", "task_id", id, "dir", dir)

	if err := t.saveJournalLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// ExistsOnDisk reports whether a durable journal exists for id, regardless
// of in-memory state.
func (r *Registry) ExistsOnDisk(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.existsOnDiskLocked(id)
}

func (r *Registry) existsOnDiskLocked(id string) bool {
	_, err := os.Stat(filepath.Join(r.taskDir(id), "journal.db"))
	return err == nil
}

// IsActiveInMemory reports whether id currently has live in-memory state.
func (r *Registry) IsActiveInMemory(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

// Reactivate rebuilds in-memory state for id from its durable journal: the
// creation time, working directory, active-todo pointer and the
// edits_since_verify counter. Tokens, the alias graph and free-form
// Metadata are NOT restored; LastActivity is set to now (spec §4.5/§3).
func (r *Registry) Reactivate(ctx context.Context, id string) (*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		return t, nil
	}
	return r.reactivateLocked(ctx, id)
}

func (r *Registry) reactivateLocked(ctx context.Context, id string) (*Task, error) {
	dir := r.taskDir(id)
	store, err := journal.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		return nil, err
	}

	t := &Task{
		ID:         id,
		dir:        dir,
		Metadata:   make(map[string]string),
		journal:    store,
		tokens:     lat.NewTokenSet(r.hmacSecret), // fresh: tokens are not restored
		CreatedAt:  time.Now(),
		LastActivity: time.Now(),
	}

	if createdAt, ok, err := store.GetMetadata("created_at"); err == nil && ok {
		if parsed, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			t.CreatedAt = parsed
		}
	}
	if wd, ok, err := store.GetMetadata("working_dir"); err == nil && ok {
		t.WorkingDir = wd
	}
	if todo, ok, err := store.GetMetadata("active_todo"); err == nil && ok {
		t.ActiveTodoPointer = todo
	}
	if edits, err := store.GetCounter("edits_since_verify"); err == nil {
		t.EditsSinceVerify = edits
	}

	r.tasks[id] = t
	logging.Info(ctx, "task reactivated", "task_id", id, "dir", dir)
	return t, nil
}

// Current returns the task id associated with requestKey (spec §4.5
// "thread-associated current task"; a request handler is single-threaded
// per task, so requestKey is typically the handling goroutine's request
// sequence number, supplied by the adapter).
func (r *Registry) Current(requestKey int64) (string, bool) {
	r.currentMu.Lock()
	defer r.currentMu.Unlock()
	id, ok := r.current[requestKey]
	return id, ok
}

// SetCurrent associates requestKey with the given task id for the duration
// of one request.
func (r *Registry) SetCurrent(requestKey int64, id string) {
	r.currentMu.Lock()
	defer r.currentMu.Unlock()
	r.current[requestKey] = id
}

// ClearCurrent removes the association for requestKey once a request
// completes.
func (r *Registry) ClearCurrent(requestKey int64) {
	r.currentMu.Lock()
	defer r.currentMu.Unlock()
	delete(r.current, requestKey)
}

// ListOnDisk returns every task id with a durable journal under tasksRoot,
// sorted, for the CLI's task list/show commands. A task can be listed here
// without being active in memory.
func (r *Registry) ListOnDisk() ([]string, error) {
	entries, err := os.ReadDir(r.tasksRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "listing task directories under %s", r.tasksRoot)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.tasksRoot, e.Name(), "journal.db")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ResetAll destroys all in-memory task state (test hook, spec §4.5). When
// alsoOnDisk is true, the on-disk task directories are removed as well.
func (r *Registry) ResetAll(alsoOnDisk bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.tasks {
		t.journal.Close()
		delete(r.tasks, id)
	}
	r.currentMu.Lock()
	r.current = make(map[int64]string)
	r.currentMu.Unlock()

	if alsoOnDisk {
		if err := os.RemoveAll(r.tasksRoot); err != nil {
			return ntserr.Wrap(ntserr.KindInternal, err, "removing task directories under %s", r.tasksRoot)
		}
	}
	return nil
}

// Dir returns the task's persisted-state directory
// (<root>/.nts/tasks/<id>/, spec §6).
func (t *Task) Dir() string { return t.dir }

// JournalStore returns the task's journal store sub-handle (spec §4.5).
func (t *Task) JournalStore() *journal.Store { return t.journal }

// Tokens returns the task's LAT token-set sub-handle (spec §4.5).
func (t *Task) Tokens() *lat.TokenSet { return t.tokens }

// Transactions returns the task's transaction-manager sub-handle, attached
// via AttachTransactions by internal/txn at task-creation time.
func (t *Task) Transactions() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transactions
}

// AttachTransactions binds a transaction manager to this task. Typed as
// `any` here because internal/txn imports internal/tasks, not vice versa;
// callers type-assert to *txn.Manager.
func (t *Task) AttachTransactions(mgr any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transactions = mgr
	t.txnReady = true
}

// Touch updates LastActivity in memory; it is not written to the journal.
func (t *Task) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LastActivity = time.Now()
}

// SetActiveTodo records the active-todo pointer and persists it.
func (t *Task) SetActiveTodo(pointer string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ActiveTodoPointer = pointer
	return t.saveJournalLocked()
}

// SetMetadata sets a free-form metadata key and persists it.
func (t *Task) SetMetadata(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Metadata[key] = value
	return t.saveJournalLocked()
}

// SaveJournal persists task-level metadata: working directory, dates, the
// active-todo pointer and free-form metadata (spec §4.5).
func (t *Task) SaveJournal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveJournalLocked()
}

func (t *Task) saveJournalLocked() error {
	store := t.journal
	if err := store.SetMetadata("created_at", t.CreatedAt.Format(time.RFC3339Nano)); err != nil {
		return err
	}
	if err := store.SetMetadata("working_dir", t.WorkingDir); err != nil {
		return err
	}
	if err := store.SetMetadata("active_todo", t.ActiveTodoPointer); err != nil {
		return err
	}
	for k, v := range t.Metadata {
		if err := store.SetMetadata("meta:"+k, v); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the task's journal store handle. The registry, not the
// task, owns the close lifecycle for process shutdown; this is exposed for
// tests that create a Task without a Registry.
func (t *Task) Close() error {
	if t.journal == nil {
		return nil
	}
	return t.journal.Close()
}

func (t *Task) String() string {
	return fmt.Sprintf("Task{ID: %s, WorkingDir: %s}", t.ID, t.WorkingDir)
}
