// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/engine"
)

var (
	// Global flags
	configFile string
	socketPath string
	pidFile    string
	timeout    time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arpguard",
	Short: "arpguard - ARP handler with gateway impersonation guard",
	Long: `arpguard answers and learns from IPv4 ARP traffic on the configured interfaces
the way a host network stack does, and refuses bindings that would let another
host impersonate the default gateway.

Features:
  - RFC 826 request/reply handling with arp_ignore / arp_filter / arp_announce semantics
  - Gateway guard: attacker registry, poisoned binding invalidation, Kafka alerts
  - Proxy ARP with delayed replies and static proxy entries
  - Local control: CLI via Unix Domain Socket
  - Remote control: Kafka command subscription`,
	Version:       engine.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/arpguard/config.yml",
		"config file path")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "/var/run/arpguard.sock",
		"daemon socket path")
	rootCmd.PersistentFlags().StringVarP(&pidFile, "pidfile", "p", "/var/run/arpguard.pid",
		"PID file path")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"control request timeout")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(neighCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(attackerCmd)
	rootCmd.AddCommand(resolveCmd)
}
