package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show runtime statistics",
	Long: `Query the arpguard daemon for runtime statistics.

Shows: binding and attacker counts, proxy queue depth, dispatcher counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

func runStats(ctx context.Context, client Client, out io.Writer) error {
	return query(out, "daemon_stats", func() (*command.Response, error) { return client.Stats(ctx) })
}
