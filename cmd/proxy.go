package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manage proxy ARP entries",
}

var proxyIface string

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proxy entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		return query(cmd.OutOrStdout(), "proxy_list", func() (*command.Response, error) {
			return client.ProxyList(cmd.Context())
		})
	},
}

var proxyAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Answer requests for address on behalf of another host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProxy(cmd.Context(), newClient(), cmd.OutOrStdout(), true, args[0], proxyIface)
	},
}

var proxyDeleteCmd = &cobra.Command{
	Use:     "delete <address>",
	Aliases: []string{"del"},
	Short:   "Remove a proxy entry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProxy(cmd.Context(), newClient(), cmd.OutOrStdout(), false, args[0], proxyIface)
	},
}

func init() {
	proxyCmd.PersistentFlags().StringVarP(&proxyIface, "interface", "i", "", "interface name (empty = any)")
	proxyCmd.AddCommand(proxyListCmd, proxyAddCmd, proxyDeleteCmd)
}

func runProxy(ctx context.Context, client Client, out io.Writer, add bool, addr, iface string) error {
	if add {
		return query(out, "proxy_add", func() (*command.Response, error) { return client.ProxyAdd(ctx, addr, iface) })
	}
	return query(out, "proxy_delete", func() (*command.Response, error) { return client.ProxyDelete(ctx, addr, iface) })
}
