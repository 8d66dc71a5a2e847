package txn

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/lat"
)

func newTestManager(t *testing.T, workRoot string) (*Manager, afero.Fs, *journal.Store) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tokens := lat.NewTokenSet([]byte("secret"))
	mgr := NewManager(fs, store, tokens, workRoot, 0)
	return mgr, fs, store
}

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	return string(b)
}

func TestBeginBackupCommitRoundTrip(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	writeFile(t, fs, "/proj/a.go", "package a\n")

	if err := mgr.Begin("edit a.go"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := mgr.Backup("/proj/a.go"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	writeFile(t, fs, "/proj/a.go", "package a\n\nfunc F() {}\n")

	entryID, err := mgr.Commit("add F")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if entryID == 0 {
		t.Errorf("Commit() entryID = 0, want nonzero")
	}
	if mgr.State() != StateIdle {
		t.Errorf("State() after commit = %v, want Idle", mgr.State())
	}
}

func TestBeginRejectsNestedOpen(t *testing.T) {
	mgr, _, _ := newTestManager(t, "")
	if err := mgr.Begin("first"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := mgr.Begin("second"); err == nil {
		t.Errorf("Begin() while open = nil error, want error")
	}
}

func TestRollbackRestoresPreImage(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	writeFile(t, fs, "/proj/a.go", "original\n")

	if err := mgr.Begin("edit"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := mgr.Backup("/proj/a.go"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	writeFile(t, fs, "/proj/a.go", "mutated\n")

	if err := mgr.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "original\n" {
		t.Errorf("content after rollback = %q, want %q", got, "original\n")
	}
	if mgr.State() != StateIdle {
		t.Errorf("State() after rollback = %v, want Idle", mgr.State())
	}
}

func TestRollbackRemovesCreatedFile(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")

	if err := mgr.Begin("create"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := mgr.Backup("/proj/new.go"); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	writeFile(t, fs, "/proj/new.go", "package new\n")

	if err := mgr.Rollback(); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if exists, _ := afero.Exists(fs, "/proj/new.go"); exists {
		t.Errorf("file exists after rollback of a create, want removed")
	}
}

func commitSimpleEdit(t *testing.T, mgr *Manager, fs afero.Fs, path, before, after string) int64 {
	t.Helper()
	if before != "" {
		writeFile(t, fs, path, before)
	}
	if err := mgr.Begin("edit " + path); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := mgr.Backup(path); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	writeFile(t, fs, path, after)
	entryID, err := mgr.Commit("edit " + path)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	return entryID
}

func TestCheckpointAndRollbackToCheckpoint(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")

	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	if _, err := mgr.CreateCheckpoint("before-v3"); err != nil {
		t.Fatalf("CreateCheckpoint() error = %v", err)
	}
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "", "v3\n")

	if err := mgr.RollbackToCheckpoint("before-v3"); err != nil {
		t.Fatalf("RollbackToCheckpoint() error = %v", err)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "v2\n" {
		t.Errorf("content after RollbackToCheckpoint = %q, want %q", got, "v2\n")
	}
}

func TestSmartUndoHappyPath(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")

	result, err := mgr.SmartUndo()
	if err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	if result.Status != journal.StatusOK {
		t.Errorf("SmartUndo() status = %v, want OK", result.Status)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "v1\n" {
		t.Errorf("content after SmartUndo = %q, want %q", got, "v1\n")
	}
}

func TestSmartUndoSkipsCheckpointTransparently(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	if _, err := mgr.CreateCheckpoint("cp1"); err != nil {
		t.Fatalf("CreateCheckpoint() error = %v", err)
	}

	result, err := mgr.SmartUndo()
	if err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "v1\n" {
		t.Errorf("content after SmartUndo past checkpoint = %q, want %q", got, "v1\n")
	}
	_ = result
}

func TestSmartUndoNoOperations(t *testing.T) {
	mgr, _, _ := newTestManager(t, "")
	if _, err := mgr.SmartUndo(); err == nil {
		t.Errorf("SmartUndo() on empty stack = nil error, want error")
	}
}

func TestSmartUndoDirtyDirectoryMarksStuck(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	entryID := commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	_ = entryID

	// A sibling file appears after the transaction, with a newer mtime.
	writeFile(t, fs, "/proj/b.go", "new sibling\n")
	if mf, ok := fs.(*afero.MemMapFs); ok {
		_ = mf
	}
	// Force the sibling's mtime ahead of the transaction's recorded time.
	future := time.Now().Add(1 * time.Hour)
	if err := fs.Chtimes("/proj/b.go", future, future); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	result, err := mgr.SmartUndo()
	if err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	if result.Status != journal.StatusStuck {
		t.Errorf("SmartUndo() status = %v, want STUCK (dirty directory)", result.Status)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "v1\n" {
		t.Errorf("content after dirty-directory SmartUndo = %q, want %q (restore still happens)", got, "v1\n")
	}
}

func TestSmartUndoCRCRecoveryAfterRename(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "/proj")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")

	// Simulate an out-of-band rename: a.go is gone, and moved.go holds its
	// pre-image, whose CRC is what the recovery scan matches against.
	if err := fs.Remove("/proj/a.go"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	writeFile(t, fs, "/proj/moved.go", "v1\n")

	result, err := mgr.SmartUndo()
	if err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	if len(result.RestoredPaths) != 1 || result.RestoredPaths[0] != "/proj/moved.go" {
		t.Errorf("RestoredPaths = %v, want [/proj/moved.go]", result.RestoredPaths)
	}
	if got := readFile(t, fs, "/proj/moved.go"); got != "v1\n" {
		t.Errorf("content of recovered file = %q, want %q", got, "v1\n")
	}
}

func TestSmartUndoMissingFileNoRecoveryMarksStuck(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	if err := fs.Remove("/proj/a.go"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	result, err := mgr.SmartUndo()
	if err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	if result.Status != journal.StatusStuck {
		t.Errorf("SmartUndo() status = %v, want STUCK", result.Status)
	}
	if len(result.SkippedPaths) != 1 {
		t.Errorf("SkippedPaths = %v, want one entry", result.SkippedPaths)
	}
}

func TestRedoReappliesChange(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")

	if _, err := mgr.SmartUndo(); err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "v1\n" {
		t.Fatalf("precondition: content after undo = %q, want v1", got)
	}

	result, err := mgr.Redo()
	if err != nil {
		t.Fatalf("Redo() error = %v", err)
	}
	if result.Status != journal.StatusOK {
		t.Errorf("Redo() status = %v, want OK", result.Status)
	}
	if got := readFile(t, fs, "/proj/a.go"); got != "v2\n" {
		t.Errorf("content after redo = %q, want %q", got, "v2\n")
	}
}

func TestSuspendRedoBlocksUntilFreshSmartUndo(t *testing.T) {
	mgr, fs, _ := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "", "v3\n")
	if _, err := mgr.SmartUndo(); err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}

	// Simulate reconstructing the Manager after a task reactivation.
	mgr.SuspendRedo()
	if _, err := mgr.Redo(); err == nil {
		t.Errorf("Redo() while suspended = nil error, want error")
	}

	if _, err := mgr.SmartUndo(); err != nil {
		t.Fatalf("SmartUndo() after suspend error = %v", err)
	}
	if _, err := mgr.Redo(); err != nil {
		t.Errorf("Redo() after fresh SmartUndo error = %v, want nil (suspension lifted)", err)
	}
}

func TestRedoNoOperations(t *testing.T) {
	mgr, _, _ := newTestManager(t, "")
	if _, err := mgr.Redo(); err == nil {
		t.Errorf("Redo() on empty stack = nil error, want error")
	}
}

func TestCommitClearsRedoStack(t *testing.T) {
	mgr, fs, store := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	if _, err := mgr.SmartUndo(); err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	redoEntries, err := store.GetEntries(journal.StackRedo)
	if err != nil {
		t.Fatalf("GetEntries(redo) error = %v", err)
	}
	if len(redoEntries) != 1 {
		t.Fatalf("redo stack before new commit = %d entries, want 1", len(redoEntries))
	}

	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "", "v3\n")

	redoEntries, err = store.GetEntries(journal.StackRedo)
	if err != nil {
		t.Fatalf("GetEntries(redo) error = %v", err)
	}
	if len(redoEntries) != 0 {
		t.Errorf("redo stack after new commit = %d entries, want 0 (cleared)", len(redoEntries))
	}
}

func TestRetentionEvictsOldestUndoEntry(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tokens := lat.NewTokenSet([]byte("secret"))
	mgr := NewManager(fs, store, tokens, "", 2)

	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "", "v3\n")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "", "v4\n")

	if _, err := mgr.SmartUndo(); err != nil {
		t.Fatalf("SmartUndo() error = %v", err)
	}
	entries, err := store.GetEntries(journal.StackUndo)
	if err != nil {
		t.Fatalf("GetEntries(undo) error = %v", err)
	}
	if len(entries) > 2 {
		t.Errorf("undo stack after retention = %d entries, want <= 2", len(entries))
	}
}

func TestCheckExternalDetectsOutOfBandModification(t *testing.T) {
	mgr, fs, store := newTestManager(t, "")
	commitSimpleEdit(t, mgr, fs, "/proj/a.go", "v1\n", "v2\n")

	// No external change yet.
	if err := mgr.CheckExternal("/proj/a.go"); err != nil {
		t.Fatalf("CheckExternal() error = %v", err)
	}
	entries, err := store.GetEntriesForFile("/proj/a.go")
	if err != nil {
		t.Fatalf("GetEntriesForFile() error = %v", err)
	}
	before := len(entries)

	// Modify the file outside the transaction manager.
	writeFile(t, fs, "/proj/a.go", "externally edited\n")
	if err := mgr.CheckExternal("/proj/a.go"); err != nil {
		t.Fatalf("CheckExternal() error = %v", err)
	}

	entries, err = store.GetEntriesForFile("/proj/a.go")
	if err != nil {
		t.Fatalf("GetEntriesForFile() error = %v", err)
	}
	if len(entries) != before+1 {
		t.Fatalf("entries for file after external edit = %d, want %d", len(entries), before+1)
	}
	last := entries[len(entries)-1]
	if last.Type != journal.EntryExternal {
		t.Errorf("last entry type = %v, want EXTERNAL", last.Type)
	}
}

func TestCheckExternalUntouchedPathIsNoop(t *testing.T) {
	mgr, _, _ := newTestManager(t, "")
	if err := mgr.CheckExternal("/proj/never-touched.go"); err != nil {
		t.Errorf("CheckExternal() on untouched path error = %v, want nil", err)
	}
}
