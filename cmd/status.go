package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Query the arpguard daemon for its overall status.

Shows: version, uptime, interfaces, guard state and configuration generation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStatus(ctx context.Context, client Client, out io.Writer) error {
	return query(out, "daemon_status", func() (*command.Response, error) { return client.Status(ctx) })
}
