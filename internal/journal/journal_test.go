package journal

import (
	"hash/crc32"
	"testing"
	"time"
)

var castagnoliTestTable = crc32.MakeTable(crc32.Castagnoli)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetEntries(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertEntry(Entry{
		Stack:       StackUndo,
		Type:        EntryTransaction,
		Position:    0,
		Timestamp:   time.Unix(1000, 0).UTC(),
		Description: "rename foo to bar",
	})
	if err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}
	if id == 0 {
		t.Fatalf("InsertEntry() returned id = 0")
	}

	entries, err := s.GetEntries(StackUndo)
	if err != nil {
		t.Fatalf("GetEntries() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("GetEntries() returned %d entries, want 1", len(entries))
	}
	if entries[0].Description != "rename foo to bar" {
		t.Errorf("entry description = %q, want %q", entries[0].Description, "rename foo to bar")
	}
	if entries[0].Type != EntryTransaction {
		t.Errorf("entry type = %q, want %q", entries[0].Type, EntryTransaction)
	}
}

func TestGetMaxPositionEmptyStack(t *testing.T) {
	s := newTestStore(t)

	max, err := s.GetMaxPosition(StackUndo)
	if err != nil {
		t.Fatalf("GetMaxPosition() error = %v", err)
	}
	if max != -1 {
		t.Errorf("GetMaxPosition() on empty stack = %d, want -1", max)
	}
}

func TestGetLastEntry(t *testing.T) {
	s := newTestStore(t)

	for i := int64(0); i < 3; i++ {
		if _, err := s.InsertEntry(Entry{
			Stack:     StackUndo,
			Type:      EntryTransaction,
			Position:  i,
			Timestamp: time.Now(),
		}); err != nil {
			t.Fatalf("InsertEntry() error = %v", err)
		}
	}

	last, ok, err := s.GetLastEntry(StackUndo)
	if err != nil {
		t.Fatalf("GetLastEntry() error = %v", err)
	}
	if !ok {
		t.Fatalf("GetLastEntry() ok = false, want true")
	}
	if last.Position != 2 {
		t.Errorf("GetLastEntry() position = %d, want 2", last.Position)
	}
}

func TestClearStackRemovesSnapshotsAndDiffStats(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: 0, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}
	if err := s.InsertSnapshot(id, "a.go", []byte("package a\n"), 10, CRC32CForTest([]byte("package a\n"))); err != nil {
		t.Fatalf("InsertSnapshot() error = %v", err)
	}
	if err := s.InsertDiffStats(id, "a.go", 1, 0, "", "--- a/a.go\n+++ b/a.go\n"); err != nil {
		t.Fatalf("InsertDiffStats() error = %v", err)
	}

	if err := s.ClearStack(StackUndo); err != nil {
		t.Fatalf("ClearStack() error = %v", err)
	}

	entries, err := s.GetEntries(StackUndo)
	if err != nil {
		t.Fatalf("GetEntries() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("GetEntries() after ClearStack = %d entries, want 0", len(entries))
	}
	snaps, err := s.GetSnapshots(id)
	if err != nil {
		t.Fatalf("GetSnapshots() error = %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("GetSnapshots() after ClearStack = %d snapshots, want 0", len(snaps))
	}
	stats, err := s.GetDiffStats(id)
	if err != nil {
		t.Fatalf("GetDiffStats() error = %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("GetDiffStats() after ClearStack = %d diff stats, want 0", len(stats))
	}
}

func TestMoveEntryBetweenStacks(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: 0, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}
	if err := s.MoveEntry(id, StackRedo, 0); err != nil {
		t.Fatalf("MoveEntry() error = %v", err)
	}

	undo, err := s.GetEntries(StackUndo)
	if err != nil {
		t.Fatalf("GetEntries(UNDO) error = %v", err)
	}
	if len(undo) != 0 {
		t.Errorf("GetEntries(UNDO) after move = %d, want 0", len(undo))
	}
	redo, err := s.GetEntries(StackRedo)
	if err != nil {
		t.Fatalf("GetEntries(REDO) error = %v", err)
	}
	if len(redo) != 1 {
		t.Fatalf("GetEntries(REDO) after move = %d, want 1", len(redo))
	}
}

func TestDeleteOldestEntryEnforcesRetention(t *testing.T) {
	s := newTestStore(t)

	const n = 5
	for i := int64(0); i < n; i++ {
		if _, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: i, Timestamp: time.Now()}); err != nil {
			t.Fatalf("InsertEntry() error = %v", err)
		}
	}

	if err := s.DeleteOldestEntry(StackUndo); err != nil {
		t.Fatalf("DeleteOldestEntry() error = %v", err)
	}

	entries, err := s.GetEntries(StackUndo)
	if err != nil {
		t.Fatalf("GetEntries() error = %v", err)
	}
	if len(entries) != n-1 {
		t.Fatalf("GetEntries() after DeleteOldestEntry = %d, want %d", len(entries), n-1)
	}
	if entries[0].Position != 1 {
		t.Errorf("oldest remaining position = %d, want 1", entries[0].Position)
	}
}

func TestSnapshotRoundTripIncludingCreated(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: 0, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}

	content := []byte("line one\nline two\n")
	if err := s.InsertSnapshot(id, "existing.go", content, int64(len(content)), CRC32CForTest(content)); err != nil {
		t.Fatalf("InsertSnapshot(existing) error = %v", err)
	}
	if err := s.InsertSnapshot(id, "created.go", nil, 0, 0); err != nil {
		t.Fatalf("InsertSnapshot(created) error = %v", err)
	}

	snaps, err := s.GetSnapshots(id)
	if err != nil {
		t.Fatalf("GetSnapshots() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("GetSnapshots() len = %d, want 2", len(snaps))
	}

	byPath := map[string]Snapshot{}
	for _, snap := range snaps {
		byPath[snap.Path] = snap
	}
	if byPath["existing.go"].WasCreated() {
		t.Errorf("existing.go snapshot reports WasCreated() = true")
	}
	if string(byPath["existing.go"].Content) != string(content) {
		t.Errorf("existing.go content = %q, want %q", byPath["existing.go"].Content, content)
	}
	if !byPath["created.go"].WasCreated() {
		t.Errorf("created.go snapshot reports WasCreated() = false")
	}
}

func TestSnapshotCompressesLargeContent(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: 0, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}

	big := make([]byte, blobCompressionThreshold+1024)
	for i := range big {
		big[i] = byte('a' + i%26)
	}
	if err := s.InsertSnapshot(id, "big.go", big, int64(len(big)), CRC32CForTest(big)); err != nil {
		t.Fatalf("InsertSnapshot(big) error = %v", err)
	}

	snaps, err := s.GetSnapshots(id)
	if err != nil {
		t.Fatalf("GetSnapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("GetSnapshots() len = %d, want 1", len(snaps))
	}
	if string(snaps[0].Content) != string(big) {
		t.Errorf("decompressed content does not round-trip for large snapshot")
	}
}

func TestMetadataSetGetDelete(t *testing.T) {
	s := newTestStore(t)

	if _, ok, err := s.GetMetadata("task_name"); err != nil || ok {
		t.Fatalf("GetMetadata() on unset key = (_, %v, %v), want (_, false, nil)", ok, err)
	}
	if err := s.SetMetadata("task_name", "refactor-auth"); err != nil {
		t.Fatalf("SetMetadata() error = %v", err)
	}
	value, ok, err := s.GetMetadata("task_name")
	if err != nil || !ok {
		t.Fatalf("GetMetadata() = (_, %v, %v), want (_, true, nil)", ok, err)
	}
	if value != "refactor-auth" {
		t.Errorf("GetMetadata() = %q, want %q", value, "refactor-auth")
	}
	if err := s.DeleteMetadata("task_name"); err != nil {
		t.Fatalf("DeleteMetadata() error = %v", err)
	}
	if _, ok, err := s.GetMetadata("task_name"); err != nil || ok {
		t.Errorf("GetMetadata() after delete = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestCounterIncrement(t *testing.T) {
	s := newTestStore(t)

	v, err := s.IncrementCounter("ops_applied", 1)
	if err != nil {
		t.Fatalf("IncrementCounter() error = %v", err)
	}
	if v != 1 {
		t.Errorf("IncrementCounter() first call = %d, want 1", v)
	}
	v, err = s.IncrementCounter("ops_applied", 4)
	if err != nil {
		t.Fatalf("IncrementCounter() error = %v", err)
	}
	if v != 5 {
		t.Errorf("IncrementCounter() second call = %d, want 5", v)
	}
	stored, err := s.GetCounter("ops_applied")
	if err != nil {
		t.Fatalf("GetCounter() error = %v", err)
	}
	if stored != 5 {
		t.Errorf("GetCounter() = %d, want 5", stored)
	}
}

func TestFindCheckpointPosition(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: 0, Timestamp: time.Now()}); err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}
	if _, err := s.InsertEntry(Entry{
		Stack: StackUndo, Type: EntryCheckpoint, Position: 1, Timestamp: time.Now(),
		CheckpointName: "before-refactor",
	}); err != nil {
		t.Fatalf("InsertEntry(checkpoint) error = %v", err)
	}

	pos, ok, err := s.FindCheckpointPosition(StackUndo, "before-refactor")
	if err != nil {
		t.Fatalf("FindCheckpointPosition() error = %v", err)
	}
	if !ok {
		t.Fatalf("FindCheckpointPosition() ok = false, want true")
	}
	if pos != 1 {
		t.Errorf("FindCheckpointPosition() = %d, want 1", pos)
	}

	if _, ok, err := s.FindCheckpointPosition(StackUndo, "does-not-exist"); err != nil || ok {
		t.Errorf("FindCheckpointPosition(missing) = (_, %v, %v), want (_, false, nil)", ok, err)
	}
}

func TestGetEntriesAfterPositionOrdersDescending(t *testing.T) {
	s := newTestStore(t)

	for i := int64(0); i < 4; i++ {
		if _, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: i, Timestamp: time.Now()}); err != nil {
			t.Fatalf("InsertEntry() error = %v", err)
		}
	}

	after, err := s.GetEntriesAfterPosition(StackUndo, 1)
	if err != nil {
		t.Fatalf("GetEntriesAfterPosition() error = %v", err)
	}
	if len(after) != 2 {
		t.Fatalf("GetEntriesAfterPosition() len = %d, want 2", len(after))
	}
	if after[0].Position != 3 || after[1].Position != 2 {
		t.Errorf("GetEntriesAfterPosition() order = [%d,%d], want [3,2]", after[0].Position, after[1].Position)
	}
}

func TestGetEntriesForFileAndAllAffectedFiles(t *testing.T) {
	s := newTestStore(t)

	id, err := s.InsertEntry(Entry{Stack: StackUndo, Type: EntryTransaction, Position: 0, Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("InsertEntry() error = %v", err)
	}
	if err := s.InsertSnapshot(id, "a.go", []byte("x"), 1, 0); err != nil {
		t.Fatalf("InsertSnapshot() error = %v", err)
	}
	if _, err := s.InsertEntry(Entry{
		Stack: StackUndo, Type: EntryExternal, Position: 1, Timestamp: time.Now(), AffectedPath: "b.go",
	}); err != nil {
		t.Fatalf("InsertEntry(external) error = %v", err)
	}

	forA, err := s.GetEntriesForFile("a.go")
	if err != nil {
		t.Fatalf("GetEntriesForFile(a.go) error = %v", err)
	}
	if len(forA) != 1 {
		t.Fatalf("GetEntriesForFile(a.go) len = %d, want 1", len(forA))
	}

	forB, err := s.GetEntriesForFile("b.go")
	if err != nil {
		t.Fatalf("GetEntriesForFile(b.go) error = %v", err)
	}
	if len(forB) != 1 || forB[0].Type != EntryExternal {
		t.Fatalf("GetEntriesForFile(b.go) = %+v, want one EXTERNAL entry", forB)
	}

	files, err := s.GetAllAffectedFiles()
	if err != nil {
		t.Fatalf("GetAllAffectedFiles() error = %v", err)
	}
	seen := map[string]bool{}
	for _, f := range files {
		seen[f] = true
	}
	if !seen["a.go"] || !seen["b.go"] {
		t.Errorf("GetAllAffectedFiles() = %v, want to contain a.go and b.go", files)
	}
}

// CRC32CForTest mirrors internal/diffkit.CRC32C without importing it, to
// keep this package's test dependencies to the standard library.
func CRC32CForTest(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTestTable)
}
