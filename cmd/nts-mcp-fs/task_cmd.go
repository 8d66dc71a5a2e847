package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nefrols/nts-mcp-fs/internal/journal"
	"github.com/nefrols/nts-mcp-fs/internal/tasks"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect persisted task state",
	}
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	return cmd
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task with durable state under the configured root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := buildEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer eng.Close()

			ids, err := eng.Tasks.ListOnDisk()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tasks found")
				return nil
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newTaskShowCmd() *cobra.Command {
	var taskID string
	c := &cobra.Command{
		Use:   "show [taskId]",
		Short: "Show a task's counters and undo/redo stack depth. Prompts with a picker when no id is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			id := taskID
			if len(args) > 0 {
				id = args[0]
			}
			if id == "" {
				ids, err := eng.Tasks.ListOnDisk()
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no tasks found")
					return nil
				}
				if err := huh.NewForm(
					huh.NewGroup(
						huh.NewSelect[string]().
							Title("Select a task").
							Options(huh.NewOptions(ids...)...).
							Value(&id),
					),
				).Run(); err != nil {
					return fmt.Errorf("task picker: %w", err)
				}
			}

			t, _, err := eng.GetOrCreateTask(ctx, id, tasks.CreateTaskOptions{WorkingDir: eng.Paths.GetRoot()})
			if err != nil {
				return err
			}

			store := t.JournalStore()
			undo, err := store.GetEntries(journal.StackUndo)
			if err != nil {
				return err
			}
			redo, err := store.GetEntries(journal.StackRedo)
			if err != nil {
				return err
			}
			edits, _ := store.GetCounter("global_edits")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "task:            %s\n", t.ID)
			fmt.Fprintf(out, "working dir:     %s\n", t.WorkingDir)
			fmt.Fprintf(out, "active todo:     %s\n", t.ActiveTodoPointer)
			fmt.Fprintf(out, "edits (counter): %d\n", edits)
			fmt.Fprintf(out, "undo depth:      %d\n", len(undo))
			fmt.Fprintf(out, "redo depth:      %d\n", len(redo))
			return nil
		},
	}
	c.Flags().StringVar(&taskID, "task-id", "", "task id (alternative to the positional argument)")
	return c
}
