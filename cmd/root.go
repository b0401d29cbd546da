package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"

	"github.com/spf13/cobra"

	"github.com/jpibz/wbash/core"
	"github.com/jpibz/wbash/core/backend"
	"github.com/jpibz/wbash/core/config"
)

var cfgPath string

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// buildInvoker wires the execution service and engine from the loaded
// configuration. Diagnostics go to the application log next to the config
// file; stderr is the fallback when the log cannot be opened.
func buildInvoker(stderr io.Writer) (*core.Invoker, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var logDest io.Writer = stderr
	if fd, err := cfg.OpenAppLog(); err == nil {
		logDest = fd
	} else {
		fmt.Fprintf(stderr, "couldn't open %s, logging to stderr: %v\n", config.AppLogName, err)
	}
	logger := log.New(logDest, "", log.LstdFlags)

	names := make([]string, 0, len(cfg.Shell.NativeBinaries))
	for name := range cfg.Shell.NativeBinaries {
		names = append(names, name)
	}
	service := backend.NewLocal(backend.Options{
		PosixShellCandidates: cfg.Shell.PosixCandidates,
		NativeBinaries:       names,
		NativeBinaryPaths:    cfg.Shell.NativeBinaries,
		ScriptShell:          cfg.Shell.ScriptShell,
	})

	return core.NewInvoker(cfg, service, logger)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "wbash",
	Short: "Unix command runner for non-POSIX hosts",
	Long: `Runs Unix shell command lines on hosts without a native bash by
expanding them locally and routing each piece to the best available
backend: built-in primitives, native binaries, an installed POSIX
shell, or synthesized host-shell scripts.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", ".", "config path")
}
