package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmdHasServeAndTaskSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["task"])
}

func TestTaskListOnEmptyRootReportsNone(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"task", "list"})
	t.Setenv("PROJECT_ROOT", t.TempDir())

	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "no tasks found")
}
