package procexec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunFinishesWithinTimeout(t *testing.T) {
	m := NewManager()
	res, err := m.Run(context.Background(), t.TempDir(), "echo", []string{"hello"}, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusExited, res.Status)
	require.Equal(t, 0, res.ExitCode)
	require.Contains(t, res.Output, "hello")
}

func TestRunTimesOutAndPollCompletes(t *testing.T) {
	m := NewManager()
	res, err := m.Run(context.Background(), t.TempDir(), "sh", []string{"-c", "sleep 0.3; echo done"}, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, StatusTimedOut, res.Status)
	require.NotEmpty(t, res.Handle)

	require.Eventually(t, func() bool {
		poll, err := m.Poll(res.Handle, 0)
		return err == nil && poll.Status == StatusExited
	}, 2*time.Second, 20*time.Millisecond)

	final, err := m.Poll(res.Handle, 0)
	require.NoError(t, err)
	require.Equal(t, StatusExited, final.Status)
	require.Contains(t, final.Output, "done")
}

func TestPollUnknownHandle(t *testing.T) {
	m := NewManager()
	_, err := m.Poll("proc-999", 0)
	require.Error(t, err)
}

func TestPollRespectsTailBytes(t *testing.T) {
	m := NewManager()
	res, err := m.Run(context.Background(), t.TempDir(), "printf", []string{"0123456789"}, 2*time.Second)
	require.NoError(t, err)

	tail, err := m.Poll(res.Handle, 4)
	require.NoError(t, err)
	require.Equal(t, "6789", tail.Output)
}

func TestForgetRemovesHandle(t *testing.T) {
	m := NewManager()
	res, err := m.Run(context.Background(), t.TempDir(), "echo", []string{"x"}, 2*time.Second)
	require.NoError(t, err)

	m.Forget(res.Handle)
	_, err = m.Poll(res.Handle, 0)
	require.Error(t, err)
}

func TestRunRequiresPositiveTimeout(t *testing.T) {
	m := NewManager()
	_, err := m.Run(context.Background(), t.TempDir(), "echo", []string{"x"}, 0)
	require.Error(t, err)
}
