package txn

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/lat"
)

func TestWatcherDetectsExternalWrite(t *testing.T) {
	root := t.TempDir()
	// The watcher reports absolute OS paths, so the Manager must address
	// files by those same paths.
	fs := afero.NewOsFs()
	path := filepath.Join(root, "watched.go")
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tokens := lat.NewTokenSet([]byte("secret"))
	mgr := NewManager(fs, store, tokens, root, 0)

	commitSimpleEdit(t, mgr, fs, path, "v1\n", "v2\n")

	w, err := NewWatcher(mgr, root)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(path, []byte("externally edited\n"), 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := store.GetEntriesForFile(path)
		if err == nil {
			for _, e := range entries {
				if e.Type == journal.EntryExternal {
					return
				}
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("watcher did not journal an EXTERNAL entry for the out-of-band write")
}
