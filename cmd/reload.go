package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/core"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload configuration",
	Long: `Ask the daemon to re-read its configuration file.

Falls back to SIGHUP through the PID file when the socket does not answer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), newClient(), cmd.OutOrStdout(), pidFile)
	},
}

func runReload(ctx context.Context, client Client, out io.Writer, pid string) error {
	resp, err := client.ConfigReload(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrDaemonNotRunning) || pid == "" {
			return fmt.Errorf("failed to reload: %w", err)
		}
		if serr := signalDaemon(pid, syscall.SIGHUP); serr != nil {
			return fmt.Errorf("failed to reload: %w", serr)
		}
		fmt.Fprintln(out, "✓ SIGHUP sent")
		return nil
	}
	if resp.Error != nil {
		return fmt.Errorf("failed to reload: %s", resp.Error.Message)
	}
	fmt.Fprintln(out, "✓ Configuration reloaded successfully")
	return nil
}
