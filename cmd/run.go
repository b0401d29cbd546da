package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpibz/wbash/core"
)

var (
	runTimeout time.Duration
	runWorkdir string
)

// runCmd executes one command line and prints the result contract: exit
// code, stdout, then a marked stderr section.
var runCmd = &cobra.Command{
	Use:   "run [flags] -- COMMAND...",
	Short: "Run a Unix command line on this host.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		invoker, err := buildInvoker(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		res, err := invoker.Invoke(cmd.Context(), core.Invocation{
			Command:    strings.Join(args, " "),
			Timeout:    runTimeout,
			WorkingDir: runWorkdir,
			Env:        os.Environ(),
		})
		if err != nil {
			return err
		}

		fmt.Fprint(cmd.OutOrStdout(), res.Render())
		return nil
	},
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "override the configured timeout")
	runCmd.Flags().StringVar(&runWorkdir, "workdir", "", "virtual working directory")
	rootCmd.AddCommand(runCmd)
}
