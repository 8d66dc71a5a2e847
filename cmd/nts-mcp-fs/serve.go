package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nefrols/nts-mcp-fs/internal/logging"
	"github.com/nefrols/nts-mcp-fs/internal/ntsadapt"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the line-delimited JSON-RPC stdio adapter against stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.Close()

			logging.Info(ctx, "nts-mcp-fs serving", "root", eng.Paths.GetRoot())
			srv := ntsadapt.NewServer(eng)
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
