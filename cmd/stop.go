package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/daemon"
)

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the arpguard daemon",
	Long: `Stop the arpguard daemon gracefully.

The shutdown request is sent over the Unix Domain Socket. When the socket
does not answer, SIGTERM is sent to the process named in the PID file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), newClient(), cmd.OutOrStdout(), pidFile)
	},
}

// signalDaemon is replaced in tests.
var signalDaemon = daemon.Signal

func runStop(ctx context.Context, client Client, out io.Writer, pid string) error {
	resp, err := client.Shutdown(ctx)
	if err == nil {
		if resp.Error != nil {
			return fmt.Errorf("daemon_shutdown failed: %s", resp.Error.Message)
		}
		fmt.Fprintln(out, "✓ Shutdown requested")
		return nil
	}
	if !errors.Is(err, core.ErrDaemonNotRunning) || pid == "" {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	if serr := signalDaemon(pid, syscall.SIGTERM); serr != nil {
		return fmt.Errorf("failed to stop daemon: %w", serr)
	}
	fmt.Fprintln(out, "✓ SIGTERM sent")
	return nil
}
