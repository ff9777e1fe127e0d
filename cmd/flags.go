package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/command"
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "Show or change runtime flags",
	Long: `Show or change runtime flags of a scope.

A scope is "guard", "defaults" or an interface name.

Examples:
  arpguard flags get guard
  arpguard flags set eth0 arp_ignore=2 proxy_delay=200ms
  arpguard flags set guard enabled=false`,
}

var flagsGetCmd = &cobra.Command{
	Use:   "get [scope]",
	Short: "Show the flags of a scope (default guard)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := "guard"
		if len(args) == 1 {
			scope = args[0]
		}
		return runFlagsGet(cmd.Context(), newClient(), cmd.OutOrStdout(), scope)
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "set <scope> key=value...",
	Short: "Change flags of a scope",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFlagsSet(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0], args[1:])
	},
}

func init() {
	flagsCmd.AddCommand(flagsGetCmd, flagsSetCmd)
}

func runFlagsGet(ctx context.Context, client Client, out io.Writer, scope string) error {
	return query(out, "flags_get", func() (*command.Response, error) { return client.FlagsGet(ctx, scope) })
}

func runFlagsSet(ctx context.Context, client Client, out io.Writer, scope string, pairs []string) error {
	values, err := parseFlagValues(pairs)
	if err != nil {
		return err
	}
	return query(out, "flags_set", func() (*command.Response, error) { return client.FlagsSet(ctx, scope, values) })
}

// parseFlagValues turns key=value pairs into typed values. Booleans and
// integers are converted; anything else, durations included, stays a string.
func parseFlagValues(pairs []string) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid flag %q, expected key=value", p)
		}
		if b, err := strconv.ParseBool(v); err == nil {
			values[k] = b
		} else if n, err := strconv.Atoi(v); err == nil {
			values[k] = n
		} else {
			values[k] = v
		}
	}
	return values, nil
}
