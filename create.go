package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zero8dotdev/godspeed-cli/config"
	"github.com/zero8dotdev/godspeed-cli/project"
)

func newCreateCmd() *cobra.Command {
	var fromTemplate string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new godspeed project in the current directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := config.Get().TemplatePath
			if fromTemplate != "" {
				template = fromTemplate
			}

			dir, err := os.Getwd()
			if err != nil {
				return err
			}
			if err := project.NewScaffolder(template).Create(cmd.Context(), dir, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created project %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&fromTemplate, "from-template", "", "directory or archive to create the project from")
	return cmd
}
