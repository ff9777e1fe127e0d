package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var attackerCmd = &cobra.Command{
	Use:   "attacker",
	Short: "Inspect the gateway impersonator registry",
}

var attackerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded impersonators",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		return query(cmd.OutOrStdout(), "attacker_list", func() (*command.Response, error) {
			return client.AttackerList(cmd.Context())
		})
	},
}

var attackerClearCmd = &cobra.Command{
	Use:   "clear [hardware-addr]",
	Short: "Forget one impersonator, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hw := ""
		if len(args) == 1 {
			hw = args[0]
		}
		return runAttackerClear(cmd.Context(), newClient(), cmd.OutOrStdout(), hw)
	},
}

func init() {
	attackerCmd.AddCommand(attackerListCmd, attackerClearCmd)
}

func runAttackerClear(ctx context.Context, client Client, out io.Writer, hw string) error {
	return query(out, "attacker_clear", func() (*command.Response, error) { return client.AttackerClear(ctx, hw) })
}
