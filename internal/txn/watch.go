package txn

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// Watcher pushes real filesystem write events into CheckExternal so an
// external modification is journaled as soon as it happens rather than
// waiting for the next request that happens to touch the same path
// (spec §4.6's EXTERNAL entry; §5's "external-modification detection" as a
// shared, process-wide concern). Only meaningful against a real OS
// filesystem whose paths are the absolute paths fsnotify reports; nothing
// in the engine starts one.
type Watcher struct {
	fsw *fsnotify.Watcher
	mgr *Manager
}

// NewWatcher creates a Watcher rooted at workRoot. It does not start
// watching until Run is called.
func NewWatcher(mgr *Manager, workRoot string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "creating filesystem watcher")
	}
	if err := fsw.Add(workRoot); err != nil {
		fsw.Close()
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "watching %s", workRoot)
	}
	return &Watcher{fsw: fsw, mgr: mgr}, nil
}

// Run consumes events until ctx is cancelled or the watcher is closed.
// Write events are forwarded to the Manager's CheckExternal; errors from a
// single CheckExternal call are logged, not fatal, since a spurious EXTERNAL
// entry is far cheaper than missing real ones.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.mgr.CheckExternal(ev.Name); err != nil {
				logging.Warn(ctx, "external-modification check failed", "path", ev.Name, "error", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn(ctx, "filesystem watcher error", "error", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
