package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run arpguard daemon in foreground",
	Long: `Run the arpguard daemon process in foreground.

The daemon will:
  1. Load global configuration from config file
  2. Initialize logging and metrics
  3. Open a capture link on every configured interface
  4. Start UDS server for CLI control
  5. Start Kafka command consumer and alert publisher (if configured)
  6. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Unset flags fall back to the control section of the config file.
		sock, pid := socketPath, pidFile
		if !cmd.Flags().Changed("socket") {
			sock = ""
		}
		if !cmd.Flags().Changed("pidfile") {
			pid = ""
		}
		return runDaemon(sock, pid)
	},
}

func runDaemon(sock, pid string) error {
	d, err := daemon.New(configFile, sock, pid)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Blocks until shutdown
	return d.Run()
}
