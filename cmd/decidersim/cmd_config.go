package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Config prints the configuration decidersim would run with, after
the config file and DECIDERSIM_* environment overrides are applied.
The admin key is never printed.

Examples:
  decidersim config                         # YAML
  decidersim config --json                  # JSON
  DECIDERSIM_AGENTS=80 decidersim config    # Check an override`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")

			redacted := *cfg
			redacted.API.AdminKey = cfg.API.RedactedAdminKey()

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(redacted)
			}
			data, err := redacted.Marshal()
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}
