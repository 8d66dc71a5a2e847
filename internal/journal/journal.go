// Package journal implements the Journal Store (spec §4.4): a durable,
// per-task relational store of entries, snapshots, diff stats, metadata and
// counters, backed by modernc.org/sqlite (pure Go, CGo-free). A store may be
// opened against a real file or ":memory:" to force in-memory mode for
// tests, matching the spec's "a process may force in-memory mode for tests"
// requirement.
package journal

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/mod/semver"

	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// schemaVersion is compared against the "schema_version" metadata row via
// golang.org/x/mod/semver so a store opened by an older binary against a
// newer on-disk schema fails loudly instead of silently misreading columns
// a later migration added.
const schemaVersion = "v1.0.0"

// Stack identifies which of the two journal stacks an entry belongs to.
type Stack string

const (
	StackUndo Stack = "UNDO"
	StackRedo Stack = "REDO"
)

// EntryType distinguishes the three kinds of journal entry (spec §3).
type EntryType string

const (
	EntryTransaction EntryType = "TRANSACTION"
	EntryCheckpoint  EntryType = "CHECKPOINT"
	EntryExternal    EntryType = "EXTERNAL"
)

// EntryStatus records post-hoc Smart Undo outcomes against an entry.
type EntryStatus string

const (
	StatusOK     EntryStatus = ""
	StatusStuck  EntryStatus = "STUCK"
	StatusPartial EntryStatus = "PARTIAL"
)

// Entry is a single journal record (spec §3).
type Entry struct {
	ID             int64
	Stack          Stack
	Type           EntryType
	Position       int64
	Timestamp      time.Time
	Description    string
	Instruction    string
	Status         EntryStatus
	CheckpointName string
	AffectedPath   string
	PrevCRC        uint32
	HasPrevCRC     bool
	CurCRC         uint32
	HasCurCRC      bool
}

// Snapshot is a file pre-image captured by a TRANSACTION entry (spec §3).
type Snapshot struct {
	EntryID   int64
	Path      string
	Content   []byte // nil means the file did not exist (wasCreated)
	Size      int64
	CRC       uint32
}

// WasCreated reports whether this snapshot records a file creation.
func (s Snapshot) WasCreated() bool { return s.Content == nil }

// DiffStat is a per-file diff summary captured by a TRANSACTION entry
// (spec §3).
type DiffStat struct {
	EntryID        int64
	Path           string
	LinesAdded     int
	LinesDeleted   int
	AffectedBlocks string
	DiffText       string
}

// Store is the per-task durable journal, single-connection-serialized per
// the spec's concurrency model (§4.4, §9).
type Store struct {
	db       *sql.DB
	zEncoder *zstd.Encoder
	zDecoder *zstd.Decoder
}

// blobCompressionThreshold is the snapshot size above which content is
// zstd-compressed before storage (spec requires supporting BLOBs "well
// beyond 1 MiB"; compressing large ones keeps the sqlite file bounded).
const blobCompressionThreshold = 64 * 1024

// Open opens (creating if necessary) the journal store at path. Pass
// ":memory:" to force an in-memory database for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ntserr.Wrap(ntserr.KindInternal, err, "creating journal directory for %s", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "opening journal store %s", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "setting busy_timeout")
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			return nil, ntserr.Wrap(ntserr.KindInternal, err, "setting WAL mode")
		}
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "setting synchronous mode")
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "creating zstd decoder")
	}

	s := &Store{db: db, zEncoder: enc, zDecoder: dec}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.checkSchemaVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// checkSchemaVersion records schemaVersion on a fresh store and rejects
// opening a store stamped with a newer schema than this binary understands.
// A store stamped with an older (but still comparable) version is accepted;
// future migrations would run here once schemaVersion advances past v1.0.0.
func (s *Store) checkSchemaVersion() error {
	stored, ok, err := s.GetMetadata("schema_version")
	if err != nil {
		return err
	}
	if !ok {
		return s.SetMetadata("schema_version", schemaVersion)
	}
	if semver.Compare(stored, schemaVersion) > 0 {
		return ntserr.New(ntserr.KindInternal,
			"journal store schema %s is newer than this binary supports (%s)", stored, schemaVersion)
	}
	return nil
}

// Close releases the store's resources.
func (s *Store) Close() error {
	s.zDecoder.Close()
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stack TEXT NOT NULL,
			type TEXT NOT NULL,
			position INTEGER NOT NULL,
			ts DATETIME NOT NULL,
			description TEXT,
			instruction TEXT,
			status TEXT,
			checkpoint_name TEXT,
			affected_path TEXT,
			prev_crc INTEGER,
			has_prev_crc INTEGER NOT NULL DEFAULT 0,
			cur_crc INTEGER,
			has_cur_crc INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_stack_position ON entries(stack, position)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_affected_path ON entries(affected_path)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			entry_id INTEGER NOT NULL,
			path TEXT NOT NULL,
			content BLOB,
			compressed INTEGER NOT NULL DEFAULT 0,
			is_null INTEGER NOT NULL DEFAULT 0,
			size INTEGER NOT NULL,
			crc INTEGER NOT NULL,
			PRIMARY KEY (entry_id, path)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_path ON snapshots(path)`,
		`CREATE TABLE IF NOT EXISTS diff_stats (
			entry_id INTEGER NOT NULL,
			path TEXT NOT NULL,
			lines_added INTEGER NOT NULL,
			lines_deleted INTEGER NOT NULL,
			affected_blocks TEXT,
			diff_text TEXT,
			PRIMARY KEY (entry_id, path)
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS counters (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL DEFAULT 0
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return ntserr.Wrap(ntserr.KindInternal, err, "running migration: %s", stmt)
		}
	}
	return nil
}

// InsertEntry inserts a new journal entry. position must be unique within
// stack (spec: positions are gap-free and monotone per stack).
func (s *Store) InsertEntry(e Entry) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO entries (stack, type, position, ts, description, instruction, status, checkpoint_name, affected_path, prev_crc, has_prev_crc, cur_crc, has_cur_crc)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Stack, e.Type, e.Position, e.Timestamp, e.Description, e.Instruction, e.Status, e.CheckpointName, e.AffectedPath,
		nullableCRC(e.HasPrevCRC, e.PrevCRC), e.HasPrevCRC, nullableCRC(e.HasCurCRC, e.CurCRC), e.HasCurCRC,
	)
	if err != nil {
		return 0, ntserr.Wrap(ntserr.KindInternal, err, "inserting journal entry at position %d", e.Position)
	}
	return res.LastInsertId()
}

func nullableCRC(has bool, crc uint32) any {
	if !has {
		return nil
	}
	return int64(crc)
}

func (s *Store) scanEntry(row interface {
	Scan(dest ...any) error
}) (Entry, error) {
	var e Entry
	var prevCRC, curCRC sql.NullInt64
	var status, checkpointName, affectedPath, description, instruction sql.NullString
	if err := row.Scan(&e.ID, &e.Stack, &e.Type, &e.Position, &e.Timestamp, &description, &instruction, &status, &checkpointName, &affectedPath, &prevCRC, &e.HasPrevCRC, &curCRC, &e.HasCurCRC); err != nil {
		return Entry{}, err
	}
	e.Description = description.String
	e.Instruction = instruction.String
	e.Status = EntryStatus(status.String)
	e.CheckpointName = checkpointName.String
	e.AffectedPath = affectedPath.String
	if prevCRC.Valid {
		e.PrevCRC = uint32(prevCRC.Int64)
	}
	if curCRC.Valid {
		e.CurCRC = uint32(curCRC.Int64)
	}
	return e, nil
}

const entryColumns = "id, stack, type, position, ts, description, instruction, status, checkpoint_name, affected_path, prev_crc, has_prev_crc, cur_crc, has_cur_crc"

// GetEntries returns every entry in stack, ordered by position ascending.
func (s *Store) GetEntries(stack Stack) ([]Entry, error) {
	rows, err := s.db.Query(`SELECT `+entryColumns+` FROM entries WHERE stack = ? ORDER BY position ASC`, stack)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying entries for %s", stack)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, ntserr.Wrap(ntserr.KindInternal, err, "scanning entry")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetLastEntry returns the entry at the highest position in stack, or
// (Entry{}, false, nil) if the stack is empty.
func (s *Store) GetLastEntry(stack Stack) (Entry, bool, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE stack = ? ORDER BY position DESC LIMIT 1`, stack)
	e, err := s.scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, ntserr.Wrap(ntserr.KindInternal, err, "querying last entry for %s", stack)
	}
	return e, true, nil
}

// GetMaxPosition returns the highest position in stack, or -1 if empty.
func (s *Store) GetMaxPosition(stack Stack) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(position) FROM entries WHERE stack = ?`, stack).Scan(&max); err != nil {
		return 0, ntserr.Wrap(ntserr.KindInternal, err, "querying max position for %s", stack)
	}
	if !max.Valid {
		return -1, nil
	}
	return max.Int64, nil
}

// ClearStack atomically deletes every entry (and associated snapshots/diff
// stats) in stack.
func (s *Store) ClearStack(stack Stack) error {
	tx, err := s.db.Begin()
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "beginning clear-stack transaction")
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rows, err := tx.Query(`SELECT id FROM entries WHERE stack = ?`, stack)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "selecting entries to clear")
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if _, err := tx.Exec(`DELETE FROM snapshots WHERE entry_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM diff_stats WHERE entry_id = ?`, id); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE stack = ?`, stack); err != nil {
		return err
	}
	return tx.Commit()
}

// MoveEntry relocates an entry to a new stack/position (used by rollback,
// smartUndo and redo to transfer entries between UNDO and REDO).
func (s *Store) MoveEntry(id int64, newStack Stack, newPosition int64) error {
	_, err := s.db.Exec(`UPDATE entries SET stack = ?, position = ? WHERE id = ?`, newStack, newPosition, id)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "moving entry %d to %s@%d", id, newStack, newPosition)
	}
	return nil
}

// DeleteOldestEntry removes the lowest-position entry in stack, for bounded
// UNDO retention (spec §4.6).
func (s *Store) DeleteOldestEntry(stack Stack) error {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM entries WHERE stack = ? ORDER BY position ASC LIMIT 1`, stack).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "finding oldest entry in %s", stack)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM diff_stats WHERE entry_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertSnapshot stores a file pre-image for entryID. content nil marks the
// file as created by the transaction (spec: "BLOB content may be null").
func (s *Store) InsertSnapshot(entryID int64, path string, content []byte, size int64, crc uint32) error {
	isNull := content == nil
	compressed := false
	stored := content
	if !isNull && len(content) > blobCompressionThreshold {
		stored = s.zEncoder.EncodeAll(content, nil)
		compressed = true
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO snapshots (entry_id, path, content, compressed, is_null, size, crc) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entryID, path, stored, compressed, isNull, size, crc,
	)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "inserting snapshot for %s", path)
	}
	return nil
}

// GetSnapshots returns every snapshot recorded against entryID.
func (s *Store) GetSnapshots(entryID int64) ([]Snapshot, error) {
	rows, err := s.db.Query(`SELECT path, content, compressed, is_null, size, crc FROM snapshots WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying snapshots for entry %d", entryID)
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var content []byte
		var compressed, isNull bool
		if err := rows.Scan(&snap.Path, &content, &compressed, &isNull, &snap.Size, &snap.CRC); err != nil {
			return nil, err
		}
		if isNull {
			snap.Content = nil
		} else if compressed {
			decoded, err := s.zDecoder.DecodeAll(content, nil)
			if err != nil {
				return nil, ntserr.Wrap(ntserr.KindInternal, err, "decompressing snapshot for %s", snap.Path)
			}
			snap.Content = decoded
		} else {
			snap.Content = content
		}
		snap.EntryID = entryID
		out = append(out, snap)
	}
	return out, rows.Err()
}

// InsertDiffStats records a per-file diff summary against entryID.
func (s *Store) InsertDiffStats(entryID int64, path string, added, deleted int, blocks, diffText string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO diff_stats (entry_id, path, lines_added, lines_deleted, affected_blocks, diff_text) VALUES (?, ?, ?, ?, ?, ?)`,
		entryID, path, added, deleted, blocks, diffText,
	)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "inserting diff stats for %s", path)
	}
	return nil
}

// GetDiffStats returns every diff stat recorded against entryID.
func (s *Store) GetDiffStats(entryID int64) ([]DiffStat, error) {
	rows, err := s.db.Query(`SELECT path, lines_added, lines_deleted, affected_blocks, diff_text FROM diff_stats WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying diff stats for entry %d", entryID)
	}
	defer rows.Close()
	var out []DiffStat
	for rows.Next() {
		var d DiffStat
		if err := rows.Scan(&d.Path, &d.LinesAdded, &d.LinesDeleted, &d.AffectedBlocks, &d.DiffText); err != nil {
			return nil, err
		}
		d.EntryID = entryID
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetUnifiedDiff returns the stored diff text for path within entryID.
func (s *Store) GetUnifiedDiff(entryID int64, path string) (string, bool, error) {
	var diffText string
	err := s.db.QueryRow(`SELECT diff_text FROM diff_stats WHERE entry_id = ? AND path = ?`, entryID, path).Scan(&diffText)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, ntserr.Wrap(ntserr.KindInternal, err, "querying diff text for %s", path)
	}
	return diffText, true, nil
}

// FindCheckpointPosition returns the position of the CHECKPOINT entry named
// name within stack.
func (s *Store) FindCheckpointPosition(stack Stack, name string) (int64, bool, error) {
	var pos int64
	err := s.db.QueryRow(
		`SELECT position FROM entries WHERE stack = ? AND type = ? AND checkpoint_name = ? ORDER BY position DESC LIMIT 1`,
		stack, EntryCheckpoint, name,
	).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, ntserr.Wrap(ntserr.KindInternal, err, "finding checkpoint %s", name)
	}
	return pos, true, nil
}

// GetEntriesAfterPosition returns entries in stack at position > pos,
// ordered by position descending (spec §4.6 rollback-to-checkpoint order).
func (s *Store) GetEntriesAfterPosition(stack Stack, pos int64) ([]Entry, error) {
	rows, err := s.db.Query(`SELECT `+entryColumns+` FROM entries WHERE stack = ? AND position > ? ORDER BY position DESC`, stack, pos)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying entries after position %d", pos)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetMetadata upserts a string key/value pair.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "setting metadata %s", key)
	}
	return nil
}

// GetMetadata returns the value for key, or ("", false, nil) if unset.
func (s *Store) GetMetadata(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, ntserr.Wrap(ntserr.KindInternal, err, "getting metadata %s", key)
	}
	return value, true, nil
}

// DeleteMetadata removes key, if present.
func (s *Store) DeleteMetadata(key string) error {
	_, err := s.db.Exec(`DELETE FROM metadata WHERE key = ?`, key)
	return err
}

// SetCounter sets counter key to value.
func (s *Store) SetCounter(key string, value int64) error {
	_, err := s.db.Exec(`INSERT INTO counters (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return ntserr.Wrap(ntserr.KindInternal, err, "setting counter %s", key)
	}
	return nil
}

// GetCounter returns the value of counter key, or 0 if unset.
func (s *Store) GetCounter(key string) (int64, error) {
	var value int64
	err := s.db.QueryRow(`SELECT value FROM counters WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, ntserr.Wrap(ntserr.KindInternal, err, "getting counter %s", key)
	}
	return value, nil
}

// IncrementCounter atomically adds delta to counter key and returns the new
// value.
func (s *Store) IncrementCounter(key string, delta int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck

	var value int64
	err = tx.QueryRow(`SELECT value FROM counters WHERE key = ?`, key).Scan(&value)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	value += delta
	if _, err := tx.Exec(`INSERT INTO counters (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return value, nil
}

// GetEntriesForFile returns the union of (entries with a snapshot for
// path) and (EXTERNAL entries with affected_path = path), ordered by time.
func (s *Store) GetEntriesForFile(path string) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT `+prefixColumns("e")+` FROM entries e
		 WHERE e.id IN (SELECT entry_id FROM snapshots WHERE path = ?)
		    OR (e.type = ? AND e.affected_path = ?)
		 ORDER BY e.ts ASC`,
		path, EntryExternal, path,
	)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying entries for file %s", path)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetAllAffectedFiles returns every distinct path referenced by a snapshot
// or an EXTERNAL entry.
func (s *Store) GetAllAffectedFiles() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT path FROM snapshots
		 UNION
		 SELECT DISTINCT affected_path FROM entries WHERE type = ? AND affected_path != ''`,
		EntryExternal,
	)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying affected files")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetAllEntries returns the union of both stacks, ordered by timestamp.
func (s *Store) GetAllEntries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT ` + entryColumns + ` FROM entries ORDER BY ts ASC`)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "querying all entries")
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := s.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func prefixColumns(alias string) string {
	cols := []string{"id", "stack", "type", "position", "ts", "description", "instruction", "status", "checkpoint_name", "affected_path", "prev_crc", "has_prev_crc", "cur_crc", "has_cur_crc"}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}
