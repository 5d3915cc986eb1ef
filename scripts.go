package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zero8dotdev/godspeed-cli/bridge"
	"github.com/zero8dotdev/godspeed-cli/config"
	"github.com/zero8dotdev/godspeed-cli/project"
)

func newScriptCmds() []*cobra.Command {
	return []*cobra.Command{
		newScriptCmd(bridge.CommandDev, "Run the godspeed project in development mode"),
		newScriptCmd(bridge.CommandServe, "Run the godspeed project with NODE_ENV=production"),
		newScriptCmd(bridge.CommandBuild, "Build the godspeed project"),
		newScriptCmd(bridge.CommandClean, "Clean the godspeed project build output"),
	}
}

// newScriptCmd runs a lifecycle script in the current directory, the same way
// the bridge runs it for a remote client
func newScriptCmd(command bridge.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(command),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := project.Check(dir); err != nil {
				return fmt.Errorf("%s is not a Godspeed Framework project: %w", dir, err)
			}

			cfg := config.Get()
			dispatcher := bridge.NewDispatcher(project.Validator{}, project.NewRunner(cfg.ScriptRunner, cfg.StopGrace))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return dispatcher.Dispatch(ctx, command, dir)
		},
	}
}
