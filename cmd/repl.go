package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/spf13/cobra"

	"github.com/jpibz/wbash/core"
)

// replCmd is an interactive loop over the engine, mainly for poking at
// translations on a live host.
var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Run commands interactively.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		invoker, err := buildInvoker(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "wbash> ",
			InterruptPrompt: "^C",
		})
		if err != nil {
			return err
		}
		defer rl.Close()

		for {
			line, err := rl.Readline()
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				continue
			case errors.Is(err, io.EOF):
				return nil
			case err != nil:
				return err
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			res, err := invoker.Invoke(cmd.Context(), core.Invocation{
				Command: line,
				Env:     os.Environ(),
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
				continue
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Render())
		}
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}
