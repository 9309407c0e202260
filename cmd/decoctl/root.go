package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:          "decoctl",
		Short:        "Operate a DeCo ledger host",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newTokenCmd(v),
		newEventsCmd(v),
		newMigrateCmd(),
	)
	return rootCmd
}
