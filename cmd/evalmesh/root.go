package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/evalmesh/logging"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	store     string
	logLevel  string
	logFormat string
}

func (g *globalFlags) logger() *logging.EvalLogger {
	return logging.NewSlogLogger(logging.ParseLevel(g.logLevel), g.logFormat, false)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "evalmesh",
		Short:         "Concurrent evaluation runner for LLM-backed work functions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&g.store, "store", "", "run store: badger:<dir>, file:<dir> or memory")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format (text or json)")
	root.AddCommand(newRunCmd(g))
	root.AddCommand(newShowCmd(g))
	root.AddCommand(newListCmd(g))
	return root
}
