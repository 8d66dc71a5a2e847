// Package procexec runs external processes (build tools, VCS commands) on
// behalf of a task with a mandatory timeout (spec §5). A process that has
// not finished when its timeout expires is left running in the background
// and registered under a task-local handle; later requests poll it with
// Poll instead of blocking on it.
package procexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntserr"
)

// Status is a process's terminal or in-flight state.
type Status string

const (
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
	StatusTimedOut Status = "timed_out" // exceeded the caller's timeout, still running in background
	StatusFailed   Status = "failed"    // could not be started
)

// Result is returned by Run once the process either finishes inside the
// caller's timeout or is handed off to background execution.
type Result struct {
	Handle   string `json:"handle"`
	Status   Status `json:"status"`
	ExitCode int    `json:"exitCode,omitempty"`
	Output   string `json:"output"`
}

// process tracks one invocation's pty, accumulated output, and completion
// state for later polling.
type process struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	pty      *os.File
	buf      bytes.Buffer
	done     bool
	exitCode int
	waitErr  error
	started  time.Time
}

// Manager owns every in-flight or recently-finished process for one task.
// A task's Dispatcher/Engine wiring constructs one Manager per task so
// handles never leak across tasks.
type Manager struct {
	mu        sync.Mutex
	processes map[string]*process
	nextID    int64
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{processes: make(map[string]*process)}
}

// Run starts command/args in dir with a pty attached and waits up to
// timeout for it to finish. If it finishes in time, Result reports its
// final status, exit code, and full captured output. If timeout elapses
// first, the process is left running and Result reports StatusTimedOut
// with a handle for Poll; the process is not killed.
func (m *Manager) Run(ctx context.Context, dir, name string, args []string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return nil, ntserr.New(ntserr.KindInvalidArgument, "procexec requires a positive timeout")
	}

	cmd := exec.CommandContext(context.Background(), name, args...) // detached from ctx: a cancel must not orphan the pty without bookkeeping
	cmd.Dir = dir

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, ntserr.Wrap(ntserr.KindInternal, err, "starting %s", name)
	}

	p := &process{cmd: cmd, pty: f, started: time.Now()}
	handle := m.register(p)

	waitDone := make(chan struct{})
	go p.pump(waitDone)

	select {
	case <-waitDone:
		p.mu.Lock()
		defer p.mu.Unlock()
		return &Result{
			Handle:   handle,
			Status:   StatusExited,
			ExitCode: p.exitCode,
			Output:   p.buf.String(),
		}, nil
	case <-time.After(timeout):
		logging.Info(ctx, "procexec timeout, continuing in background", "handle", handle, "command", name)
		p.mu.Lock()
		defer p.mu.Unlock()
		return &Result{
			Handle: handle,
			Status: StatusTimedOut,
			Output: p.buf.String(),
		}, nil
	}
}

// pump reads pty output until the process exits, then records its exit
// code. Runs for the lifetime of the process regardless of whether Run's
// caller is still waiting.
func (p *process) pump(done chan<- struct{}) {
	buf := make([]byte, 4096)
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			p.mu.Lock()
			p.buf.Write(buf[:n])
			p.mu.Unlock()
		}
		if err != nil {
			break // pty closes when the child's side does
		}
	}
	waitErr := p.cmd.Wait()
	p.mu.Lock()
	p.done = true
	p.waitErr = waitErr
	if p.cmd.ProcessState != nil {
		p.exitCode = p.cmd.ProcessState.ExitCode()
	}
	p.mu.Unlock()
	close(done)
}

func (m *Manager) register(p *process) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	handle := fmt.Sprintf("proc-%d", m.nextID)
	m.processes[handle] = p
	return handle
}

// Poll reports a backgrounded process's current status and output tail
// without blocking. tailBytes limits how much of the accumulated output is
// returned (0 means the whole buffer).
func (m *Manager) Poll(handle string, tailBytes int) (*Result, error) {
	m.mu.Lock()
	p, ok := m.processes[handle]
	m.mu.Unlock()
	if !ok {
		return nil, ntserr.New(ntserr.KindNotFound, "no backgrounded process with handle %q", handle)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.buf.String()
	if tailBytes > 0 && len(out) > tailBytes {
		out = out[len(out)-tailBytes:]
	}

	if !p.done {
		return &Result{Handle: handle, Status: StatusRunning, Output: out}, nil
	}
	return &Result{Handle: handle, Status: StatusExited, ExitCode: p.exitCode, Output: out}, nil
}

// Forget releases a finished process's buffered output. Polling an
// unfinished process's handle after Forget is an error; callers should only
// forget handles once they've consumed the final result.
func (m *Manager) Forget(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processes, handle)
}
