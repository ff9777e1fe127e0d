package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var resolveIface string

var resolveCmd = &cobra.Command{
	Use:   "resolve <address>",
	Short: "Solicit a binding for address and wait for the answer",
	Long: `Send requests for address on an interface, following the configured
unicast / broadcast probe budget, and print the resulting binding.

The daemon answers once the binding is confirmed or the budget is spent;
raise --timeout for long retransmit intervals.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd.Context(), newClient(), cmd.OutOrStdout(), resolveIface, args[0])
	},
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveIface, "interface", "i", "", "interface name")
	resolveCmd.MarkFlagRequired("interface")
}

func runResolve(ctx context.Context, client Client, out io.Writer, iface, addr string) error {
	return query(out, "resolve", func() (*command.Response, error) { return client.Resolve(ctx, iface, addr) })
}
