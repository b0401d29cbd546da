package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jpibz/wbash/core/config"
)

// initCmd writes the default configuration.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the configuration in the current directory.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		_, err := config.Initialize(".")
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
