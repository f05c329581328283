package main

import (
	"github.com/spf13/cobra"

	"github.com/blingpick/blingpick/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the station configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			return config.RenderEffective(cc.Cfg, cmd.OutOrStdout())
		},
	})

	return cmd
}
