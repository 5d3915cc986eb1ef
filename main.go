package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/zero8dotdev/godspeed-cli/config"
	"github.com/zero8dotdev/godspeed-cli/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("godspeed command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		logLevel string
		logJSON  bool
	)
	root := &cobra.Command{
		Use:           "godspeed",
		Short:         "Godspeed project tooling and remote editing bridge",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := config.Get().LogLevel
			if logLevel != "" {
				level = logLevel
			}
			log.SetLevel(level)
			if logJSON {
				log.SetOutput(os.Stderr)
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON lines")

	root.AddCommand(newBridgeCmd())
	root.AddCommand(newScriptCmds()...)
	root.AddCommand(newCreateCmd())
	root.AddCommand(newSnapshotCmd())
	root.AddCommand(newAttachCmd())

	return root
}
