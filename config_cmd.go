package main

import (
	"github.com/spf13/cobra"

	"github.com/syahrul84/ElvisAPI/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.RenderEffective(resolvedCfg, cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init <server-url>",
		Short: "Write a commented config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := flagConfigPath
			if path == "" {
				path = config.ReadEnvOverrides().ConfigPath
			}

			if path == "" {
				path = config.DefaultConfigPath()
			}

			if err := config.WriteTemplate(path, args[0]); err != nil {
				return err
			}

			statusf("Wrote %s\n", path)

			return nil
		},
	})

	return cmd
}
