package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpibz/wbash/core/translate"
)

// builtinsCmd lists every command the translation registry knows and the
// backend tiers it can reach.
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the commands the translation registry knows.",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := translate.NewRegistry()

		for _, name := range registry.Names() {
			rule, _ := registry.Lookup(name)
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", name, strings.Join(rule.Tiers(), ", "))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
