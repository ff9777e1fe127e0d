package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var neighCmd = &cobra.Command{
	Use:   "neigh",
	Short: "Inspect and manage the binding cache",
}

var (
	neighIface     string
	neighPermanent bool
)

var neighListCmd = &cobra.Command{
	Use:   "list",
	Short: "List bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNeighList(cmd.Context(), newClient(), cmd.OutOrStdout(), neighIface)
	},
}

var neighAddCmd = &cobra.Command{
	Use:   "add <address> <hardware-addr>",
	Short: "Install an administrative binding",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNeighAdd(cmd.Context(), newClient(), cmd.OutOrStdout(), command.NeighParams{
			Interface:    neighIface,
			Address:      args[0],
			HardwareAddr: args[1],
			Permanent:    neighPermanent,
		})
	},
}

var neighFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Remove dynamic bindings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNeighFlush(cmd.Context(), newClient(), cmd.OutOrStdout(), neighIface)
	},
}

func init() {
	neighCmd.PersistentFlags().StringVarP(&neighIface, "interface", "i", "", "interface name (empty = all)")
	neighAddCmd.Flags().BoolVar(&neighPermanent, "permanent", false, "never expire or override the binding")
	neighCmd.AddCommand(neighListCmd, neighAddCmd, neighFlushCmd)
}

func runNeighList(ctx context.Context, client Client, out io.Writer, iface string) error {
	return query(out, "neigh_list", func() (*command.Response, error) { return client.NeighList(ctx, iface) })
}

func runNeighAdd(ctx context.Context, client Client, out io.Writer, params command.NeighParams) error {
	return query(out, "neigh_add", func() (*command.Response, error) { return client.NeighAdd(ctx, params) })
}

func runNeighFlush(ctx context.Context, client Client, out io.Writer, iface string) error {
	return query(out, "neigh_flush", func() (*command.Response, error) { return client.NeighFlush(ctx, iface) })
}
