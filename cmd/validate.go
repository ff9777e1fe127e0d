package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/arpguard/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file given with --config without
starting the daemon. With --print the effective configuration, defaults
included, is written as YAML.

Examples:
  arpguard validate -c /etc/arpguard/config.yml
  arpguard validate -c config.yml --print`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, validatePrint, cmd.OutOrStdout())
	},
}

var validatePrint bool

func init() {
	validateCmd.Flags().BoolVar(&validatePrint, "print", false,
		"print the effective configuration")
}

func runValidate(path string, print bool, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	if _, err := cfg.Runtime(); err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	if print {
		data, err := cfg.Dump()
		if err != nil {
			return fmt.Errorf("failed to dump config: %w", err)
		}
		fmt.Fprint(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "VALID: %d interface(s), %d proxy entr(ies), routes from %s, guard enabled=%t\n",
		len(cfg.Interfaces),
		len(cfg.Proxy.Entries),
		cfg.Routes.Backend,
		cfg.Guard.Enabled,
	)
	return nil
}
