// Command nts-mcp-fs is the stdio entrypoint for the tool server: it wires
// configuration, the core Engine, and a cobra root command exposing `serve`
// (the JSON-RPC adapter loop) and `task` (offline inspection of persisted
// task state).
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nefrols/nts-mcp-fs/internal/config"
	"github.com/nefrols/nts-mcp-fs/internal/engine"
	"github.com/nefrols/nts-mcp-fs/internal/logging"
)

var (
	debugFlag   bool
	logFileFlag string
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCmd builds the nts-mcp-fs root command.
func NewRootCmd() *cobra.Command {
	sessionID := uuid.NewString()

	root := &cobra.Command{
		Use:   "nts-mcp-fs",
		Short: "Transactional, capability-gated file-editing tool server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			debug, logFile := debugFlag, logFileFlag
			if v, err := strconv.ParseBool(os.Getenv("MCP_DEBUG")); err == nil && v {
				debug = true
			}
			if logFile == "" {
				logFile = os.Getenv("MCP_LOG_FILE")
			}
			cleanup, err := logging.Init(debug, logFile, sessionID)
			if err != nil {
				return err
			}
			cmd.Root().SetContext(context.WithValue(cmd.Context(), ctxCleanupKey{}, cleanup))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cleanup, ok := cmd.Context().Value(ctxCleanupKey{}).(func()); ok && cleanup != nil {
				cleanup()
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable verbose diagnostics (also via MCP_DEBUG)")
	root.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "redirect diagnostics to a file (also via MCP_LOG_FILE)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newTaskCmd())
	return root
}

type ctxCleanupKey struct{}

// buildEngine loads configuration and constructs an *engine.Engine against
// the real filesystem, shared by every subcommand that touches task state.
func buildEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if debugFlag {
		cfg.Debug = true
	}
	if logFileFlag != "" {
		cfg.LogFile = logFileFlag
	}
	return engine.New(ctx, cfg, afero.NewOsFs())
}
