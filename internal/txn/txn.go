// Package txn implements the Transaction Manager (spec §4.6): the
// begin/backup/commit/rollback state machine, checkpoints, Smart Undo,
// Redo, and the bounded UNDO-retention policy. One Manager is owned
// exclusively by one task (spec §3 ownership rules).
package txn

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/diffkit"
	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/lat"
	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// State is the per-task transaction state machine (spec §4.6).
type State string

const (
	StateIdle State = "IDLE"
	StateOpen State = "OPEN"
)

// backup is a captured pre-image for one path within the currently open
// transaction.
type backup struct {
	existed bool
	content []byte
	crc     uint32
	size    int64
}

// Manager drives one task's transaction lifecycle against its journal
// store and LAT token set.
type Manager struct {
	fs       afero.Fs
	store    *journal.Store
	tokens   *lat.TokenSet
	workRoot string // working tree root used for CRC recovery + GitSuggest; "" disables both
	retention int

	mu            sync.Mutex
	state         State
	instruction   string
	backups       map[string]*backup
	opened        time.Time
	redoSuspended bool
}

// SuspendRedo marks the REDO stack as untrustworthy until the next
// successful SmartUndo repopulates it. Call this once after reconstructing
// a Manager for a reactivated task (spec SPEC_FULL.md §E.1): REDO entries
// persisted before a restart depend on in-memory alias-graph state that is
// not restored, so a fresh process must not silently redo them.
func (m *Manager) SuspendRedo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redoSuspended = true
}

// NewManager creates a Manager bound to one task's journal store and LAT
// token set. retention is the UNDO stack cap (spec §4.6 default 50).
func NewManager(fs afero.Fs, store *journal.Store, tokens *lat.TokenSet, workRoot string, retention int) *Manager {
	if retention <= 0 {
		retention = 50
	}
	return &Manager{
		fs:        fs,
		store:     store,
		tokens:    tokens,
		workRoot:  workRoot,
		retention: retention,
		state:     StateIdle,
	}
}

// State returns the manager's current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin opens a transaction. Fails if one is already open (the adapter is
// expected to serialize requests per task, spec §5, so this indicates a
// caller bug rather than contention).
func (m *Manager) Begin(instruction string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateOpen {
		return ntserr.New(ntserr.KindInvalidArgument, "a transaction is already open for this task")
	}
	m.state = StateOpen
	m.instruction = instruction
	m.backups = make(map[string]*backup)
	m.opened = time.Now()
	return nil
}

// Backup records a pre-image snapshot for path, idempotent within the
// currently open transaction (spec §4.6).
func (m *Manager) Backup(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return ntserr.New(ntserr.KindInvalidArgument, "no transaction is open")
	}
	if _, already := m.backups[path]; already {
		return nil
	}

	exists, err := afero.Exists(m.fs, path)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "checking existence of %s", path)
	}
	if !exists {
		m.backups[path] = &backup{existed: false}
		return nil
	}

	content, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "reading pre-image of %s", path)
	}
	m.backups[path] = &backup{
		existed: true,
		content: content,
		crc:     diffkit.CRC32C(content),
		size:    int64(len(content)),
	}
	return nil
}

// Commit computes per-file diffs between pre-image and the current
// on-disk content for every backed-up path, writes one TRANSACTION entry
// with all snapshots and diff stats, clears the REDO stack, evicts the
// oldest UNDO entries beyond the retention cap, and returns to Idle (spec
// §4.6).
func (m *Manager) Commit(description string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return 0, ntserr.New(ntserr.KindInvalidArgument, "no transaction is open")
	}

	maxPos, err := m.store.GetMaxPosition(journal.StackUndo)
	if err != nil {
		return 0, err
	}
	position := maxPos + 1

	entryID, err := m.store.InsertEntry(journal.Entry{
		Stack:       journal.StackUndo,
		Type:        journal.EntryTransaction,
		Position:    position,
		Timestamp:   time.Now(),
		Description: description,
		Instruction: m.instruction,
	})
	if err != nil {
		return 0, err
	}

	paths := sortedKeys(m.backups)
	for _, path := range paths {
		b := m.backups[path]

		var after []byte
		exists, err := afero.Exists(m.fs, path)
		if err != nil {
			return 0, ntserr.Wrap(ntserr.KindInternal, err, "checking post-image existence of %s", path)
		}
		if exists {
			after, err = afero.ReadFile(m.fs, path)
			if err != nil {
				return 0, ntserr.Wrap(ntserr.KindInternal, err, "reading post-image of %s", path)
			}
		}

		var before []byte
		if b.existed {
			before = b.content
		}

		var snapContent []byte
		if !b.existed {
			snapContent = nil
		} else {
			snapContent = before
		}
		afterCRC := diffkit.CRC32C(after)
		if err := m.store.InsertSnapshot(entryID, path, snapContent, b.size, b.crc); err != nil {
			return 0, err
		}

		diffText := diffkit.UnifiedDiff(string(before), string(after), path)
		added, deleted := diffkit.LineStats(diffText)
		if err := m.store.InsertDiffStats(entryID, path, added, deleted, "", diffText); err != nil {
			return 0, err
		}
		if err := m.store.SetMetadata(fileCRCMetadataKey(path), fmt.Sprintf("%d", afterCRC)); err != nil {
			return 0, err
		}

		if findings, err := scanForSecrets(path, after); err == nil && len(findings) > 0 {
			logging.Warn(context.Background(), "possible secret committed", "path", path, "findings", len(findings))
			if err := m.store.SetMetadata(secretFindingsMetadataKey(entryID, path), strings.Join(findings, "; ")); err != nil {
				return 0, err
			}
		}
	}

	if err := m.store.ClearStack(journal.StackRedo); err != nil {
		return 0, err
	}
	if err := m.enforceRetention(); err != nil {
		return 0, err
	}
	if _, err := m.store.IncrementCounter("global_edits", 1); err != nil {
		return 0, err
	}

	m.state = StateIdle
	m.backups = nil
	return entryID, nil
}

// Rollback restores every backed-up file from its pre-image and discards
// the transaction (spec §4.6). This is what the adapter invokes on any
// exception escaping an operation body.
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return ntserr.New(ntserr.KindInvalidArgument, "no transaction is open")
	}

	for path, b := range m.backups {
		if err := m.restoreOne(path, b); err != nil {
			return err
		}
	}
	m.state = StateIdle
	m.backups = nil
	return nil
}

func (m *Manager) restoreOne(path string, b *backup) error {
	if !b.existed {
		if err := m.fs.Remove(path); err != nil && !isNotExist(err) {
			return ntserr.Wrap(ntserr.KindInternal, err, "removing %s during restore", path)
		}
		return nil
	}
	if err := afero.WriteFile(m.fs, path, b.content, 0o644); err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "restoring pre-image of %s", path)
	}
	return nil
}

func isNotExist(err error) bool {
	return err != nil && afero.IsNotExist(err)
}

func (m *Manager) updateFileCRC(path string, crc uint32) error {
	return m.store.SetMetadata(fileCRCMetadataKey(path), fmt.Sprintf("%d", crc))
}

// CreateCheckpoint appends a CHECKPOINT entry naming a position in the
// UNDO stack (spec §4.6).
func (m *Manager) CreateCheckpoint(name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	maxPos, err := m.store.GetMaxPosition(journal.StackUndo)
	if err != nil {
		return 0, err
	}
	position := maxPos + 1
	return m.store.InsertEntry(journal.Entry{
		Stack:          journal.StackUndo,
		Type:           journal.EntryCheckpoint,
		Position:       position,
		Timestamp:      time.Now(),
		CheckpointName: name,
	})
}

// RollbackToCheckpoint undoes every TRANSACTION entry after checkpoint
// name, in reverse order, moving each to the REDO stack (spec §4.6).
func (m *Manager) RollbackToCheckpoint(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok, err := m.store.FindCheckpointPosition(journal.StackUndo, name)
	if err != nil {
		return err
	}
	if !ok {
		return ntserr.New(ntserr.KindCheckpointNotFound, "no checkpoint named %q", name)
	}

	entries, err := m.store.GetEntriesAfterPosition(journal.StackUndo, pos)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Type != journal.EntryTransaction {
			continue
		}
		if err := m.restoreEntrySnapshots(entry); err != nil {
			return err
		}
		if err := m.moveToRedo(entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) restoreEntrySnapshots(entry journal.Entry) error {
	snaps, err := m.store.GetSnapshots(entry.ID)
	if err != nil {
		return err
	}
	for _, snap := range snaps {
		target := snap.Path
		if m.tokens != nil {
			target = m.tokens.Alias().Resolve(snap.Path)
		}
		b := &backup{existed: !snap.WasCreated(), content: snap.Content, crc: snap.CRC, size: snap.Size}
		if err := m.restoreOne(target, b); err != nil {
			return err
		}
		if err := m.updateFileCRC(target, snap.CRC); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) moveToRedo(entry journal.Entry) error {
	maxRedo, err := m.store.GetMaxPosition(journal.StackRedo)
	if err != nil {
		return err
	}
	return m.store.MoveEntry(entry.ID, journal.StackRedo, maxRedo+1)
}

func (m *Manager) moveToUndoWithRetention(entry journal.Entry) error {
	maxUndo, err := m.store.GetMaxPosition(journal.StackUndo)
	if err != nil {
		return err
	}
	if err := m.store.MoveEntry(entry.ID, journal.StackUndo, maxUndo+1); err != nil {
		return err
	}
	return m.enforceRetention()
}

func (m *Manager) enforceRetention() error {
	for {
		entries, err := m.store.GetEntries(journal.StackUndo)
		if err != nil {
			return err
		}
		if len(entries) <= m.retention {
			return nil
		}
		if err := m.store.DeleteOldestEntry(journal.StackUndo); err != nil {
			return err
		}
	}
}

// UndoResult reports the outcome of a SmartUndo call (spec §4.6).
type UndoResult struct {
	EntryID        int64
	Status         journal.EntryStatus
	RestoredPaths  []string
	SkippedPaths   []string
	GitSuggestions []GitSuggestion
}

// SmartUndo restores the top TRANSACTION entry of the UNDO stack,
// resolving moved/renamed targets via the alias graph, falling back to a
// dirty-directory partial undo or a CRC recovery scan, and as a last
// resort surfacing a GitSuggest hint (spec §4.6).
func (m *Manager) SmartUndo() (*UndoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok, err := m.store.GetLastEntry(journal.StackUndo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ntserr.New(ntserr.KindNoOperationsToUndo, "no operations to undo")
	}

	// A CHECKPOINT marker at the top of the stack is transparent to undo:
	// move it aside onto REDO and continue to the TRANSACTION beneath it.
	for entry.Type == journal.EntryCheckpoint {
		if err := m.moveToRedo(entry); err != nil {
			return nil, err
		}
		entry, ok, err = m.store.GetLastEntry(journal.StackUndo)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ntserr.New(ntserr.KindNoOperationsToUndo, "no operations to undo")
		}
	}

	if entry.Type == journal.EntryExternal {
		if err := m.moveToRedo(entry); err != nil {
			return nil, err
		}
		return &UndoResult{EntryID: entry.ID, Status: journal.StatusStuck}, ntserr.New(
			ntserr.KindPartialUndo, "entry %d records an externally modified file with no pre-image to restore", entry.ID)
	}

	result, recoveryErr := m.smartUndoTransaction(entry)
	if recoveryErr != nil {
		return result, recoveryErr
	}
	if err := m.moveToRedo(entry); err != nil {
		return nil, err
	}
	m.redoSuspended = false
	if result.Status != journal.StatusOK {
		if err := m.store.SetMetadata(fmt.Sprintf("entry_status:%d", entry.ID), string(result.Status)); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (m *Manager) smartUndoTransaction(entry journal.Entry) (*UndoResult, error) {
	snaps, err := m.store.GetSnapshots(entry.ID)
	if err != nil {
		return nil, err
	}

	recorded := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		recorded[s.Path] = true
	}

	result := &UndoResult{EntryID: entry.ID, Status: journal.StatusOK}

	for _, snap := range snaps {
		target := snap.Path
		if m.tokens != nil {
			target = m.tokens.Alias().Resolve(snap.Path)
		}

		exists, _ := afero.Exists(m.fs, target)
		if exists {
			dirty, newFiles := m.dirtyDirectory(target, entry.Timestamp, recorded)
			if dirty {
				result.Status = journal.StatusStuck
				result.SkippedPaths = append(result.SkippedPaths, newFiles...)
				// Still safe to restore this specific recorded path even
				// though siblings are dirty.
			}
			b := &backup{existed: !snap.WasCreated(), content: snap.Content, crc: snap.CRC, size: snap.Size}
			if err := m.restoreOne(target, b); err != nil {
				return result, err
			}
			if err := m.updateFileCRC(target, snap.CRC); err != nil {
				return result, err
			}
			result.RestoredPaths = append(result.RestoredPaths, target)
			continue
		}

		// Target missing: attempt CRC recovery across the working tree.
		recoveredPath, found, err := m.crcRecoveryScan(snap.CRC)
		if err != nil {
			return result, err
		}
		if found {
			b := &backup{existed: !snap.WasCreated(), content: snap.Content, crc: snap.CRC, size: snap.Size}
			if err := m.restoreOne(recoveredPath, b); err != nil {
				return result, err
			}
			if err := m.updateFileCRC(recoveredPath, snap.CRC); err != nil {
				return result, err
			}
			result.RestoredPaths = append(result.RestoredPaths, recoveredPath)
			continue
		}

		if m.workRoot != "" {
			suggestions, err := FindGitSuggestions(m.workRoot, snap.CRC, 5)
			if err == nil && len(suggestions) > 0 {
				result.Status = journal.StatusStuck
				result.GitSuggestions = append(result.GitSuggestions, suggestions...)
				continue
			}
		}

		result.Status = journal.StatusStuck
		result.SkippedPaths = append(result.SkippedPaths, target)
	}

	return result, nil
}

// dirtyDirectory reports whether target's directory contains any file
// whose mtime is after txnTime and whose path was not part of this
// transaction's recorded snapshots (spec §4.6 "dirty directory" heuristic,
// see SPEC_FULL.md §E).
func (m *Manager) dirtyDirectory(target string, txnTime time.Time, recorded map[string]bool) (bool, []string) {
	dir := parentDir(target)
	infos, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return false, nil
	}
	var dirty []string
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		p := joinDir(dir, info.Name())
		if recorded[p] {
			continue
		}
		if info.ModTime().After(txnTime) {
			dirty = append(dirty, p)
		}
	}
	return len(dirty) > 0, dirty
}

// crcRecoveryScan walks every file under the manager's filesystem root
// looking for a unique file whose current CRC32C matches target. Used
// when a snapshot's recorded path no longer exists and the alias graph
// has no edge for it (spec §4.6 step 4).
func (m *Manager) crcRecoveryScan(target uint32) (string, bool, error) {
	if m.workRoot == "" {
		return "", false, nil
	}
	var matches []string
	err := afero.Walk(m.fs, m.workRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the scan
		}
		if info.IsDir() {
			return nil
		}
		content, readErr := afero.ReadFile(m.fs, path)
		if readErr != nil {
			return nil
		}
		if diffkit.CRC32C(content) == target {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", false, ntserr.Wrap(ntserr.KindInternal, err, "scanning working tree for CRC recovery")
	}
	if len(matches) == 1 {
		return matches[0], true, nil
	}
	return "", false, nil
}

// Redo restores the top REDO entry by reapplying its recorded diff (or
// re-materialising a created file) and moves it back to UNDO (spec §4.6).
func (m *Manager) Redo() (*UndoResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.redoSuspended {
		return nil, ntserr.New(ntserr.KindNoOperationsToRedo, "No operations to redo")
	}

	entry, ok, err := m.store.GetLastEntry(journal.StackRedo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ntserr.New(ntserr.KindNoOperationsToRedo, "No operations to redo")
	}

	if entry.Type == journal.EntryCheckpoint || entry.Type == journal.EntryExternal {
		if err := m.moveToUndoWithRetention(entry); err != nil {
			return nil, err
		}
		return &UndoResult{EntryID: entry.ID, Status: journal.StatusOK}, nil
	}

	snaps, err := m.store.GetSnapshots(entry.ID)
	if err != nil {
		return nil, err
	}
	result := &UndoResult{EntryID: entry.ID, Status: journal.StatusOK}

	for _, snap := range snaps {
		diffText, ok, err := m.store.GetUnifiedDiff(entry.ID, snap.Path)
		if err != nil {
			return result, err
		}
		target := snap.Path
		if m.tokens != nil {
			target = m.tokens.Alias().Resolve(snap.Path)
		}

		var before string
		if !snap.WasCreated() {
			before = string(snap.Content)
		}

		var after string
		if ok && diffText != "" {
			after, err = diffkit.ApplyUnifiedDiff(before, diffText)
			if err != nil {
				result.Status = journal.StatusStuck
				result.SkippedPaths = append(result.SkippedPaths, target)
				continue
			}
		} else {
			after = before
		}

		if err := afero.WriteFile(m.fs, target, []byte(after), 0o644); err != nil {
			return result, ntserr.Wrap(ntserr.KindInternal, err, "re-applying redo for %s", target)
		}
		if err := m.updateFileCRC(target, diffkit.CRC32C([]byte(after))); err != nil {
			return result, err
		}
		result.RestoredPaths = append(result.RestoredPaths, target)
	}

	if err := m.moveToUndoWithRetention(entry); err != nil {
		return nil, err
	}
	return result, nil
}

func fileCRCMetadataKey(path string) string { return "file_crc:" + path }

func secretFindingsMetadataKey(entryID int64, path string) string {
	return fmt.Sprintf("secret_findings:%d:%s", entryID, path)
}

// CheckExternal compares path's current CRC against the most recently
// recorded post-image CRC; if they differ, appends an EXTERNAL entry
// before the caller proceeds (spec §4.6). A path the journal has never
// touched has nothing to compare against and is left alone.
func (m *Manager) CheckExternal(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	recordedStr, ok, err := m.store.GetMetadata(fileCRCMetadataKey(path))
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var lastCRC uint32
	if _, err := fmt.Sscanf(recordedStr, "%d", &lastCRC); err != nil {
		return nil
	}

	exists, err := afero.Exists(m.fs, path)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "checking %s for external modification", path)
	}
	if !exists {
		return nil
	}
	content, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "reading %s for external-modification check", path)
	}
	currentCRC := diffkit.CRC32C(content)
	if currentCRC == lastCRC {
		return nil
	}

	maxPos, err := m.store.GetMaxPosition(journal.StackUndo)
	if err != nil {
		return err
	}
	if _, err := m.store.InsertEntry(journal.Entry{
		Stack:        journal.StackUndo,
		Type:         journal.EntryExternal,
		Position:     maxPos + 1,
		Timestamp:    time.Now(),
		AffectedPath: path,
		PrevCRC:      lastCRC,
		HasPrevCRC:   true,
		CurCRC:       currentCRC,
		HasCurCRC:    true,
	}); err != nil {
		return err
	}
	return m.store.SetMetadata(fileCRCMetadataKey(path), fmt.Sprintf("%d", currentCRC))
}

func parentDir(path string) string {
	return filepath.Dir(path)
}

func joinDir(dir, name string) string {
	return filepath.Join(dir, name)
}

func sortedKeys(m map[string]*backup) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
