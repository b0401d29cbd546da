package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jpibz/wbash/core/pipeline"
)

// explainCmd shows the analysis and chosen strategy for a command line
// without running anything.
var explainCmd = &cobra.Command{
	Use:   "explain -- COMMAND...",
	Short: "Show how a command line would run, without running it.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		invoker, err := buildInvoker(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		analysis, strat, err := invoker.Explain(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		heading := color.New(color.Bold)
		value := color.New(color.FgCyan)

		heading.Fprintln(out, "Analysis")
		fmt.Fprintf(out, "  signature:  %s\n", value.Sprint(analysis.Signature))
		fmt.Fprintf(out, "  stages:     %d\n", analysis.StageCount)
		fmt.Fprintf(out, "  complexity: %s\n", analysis.Complexity)
		for _, flag := range analysisFlags(analysis) {
			fmt.Fprintf(out, "  %s\n", flag)
		}

		heading.Fprintln(out, "Strategy")
		for s := &strat; s != nil; s = s.Fallback {
			marker := "->"
			if s != &strat {
				marker = "   falls back to"
			}
			fmt.Fprintf(out, "  %s %s (%s)\n", marker, value.Sprint(s.Kind), s.Reason)
			if len(s.SplitPoints) > 0 {
				fmt.Fprintf(out, "     split points: %v\n", s.SplitPoints)
			}
		}
		return nil
	},
}

func analysisFlags(a pipeline.Analysis) []string {
	var flags []string
	add := func(on bool, name string) {
		if on {
			flags = append(flags, name)
		}
	}
	add(a.HasPipeline, "pipeline")
	add(a.HasChain, "chain")
	add(a.HasRedirection, "redirection")
	add(a.HasStderrRedir, "stderr redirection")
	add(a.HasProcessSubst, "process substitution")
	add(a.HasControlBlock, "control structure")
	add(a.HasSubshell, "subshell")
	return flags
}

func init() {
	rootCmd.AddCommand(explainCmd)
}
