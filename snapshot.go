package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zero8dotdev/godspeed-cli/fs"
)

func newSnapshotCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "snapshot [dir]",
		Short: "Print the file list the bridge would send for a directory",
		Long: "Print the file list the bridge would send for a directory.\n\n" +
			"Skipped directories: " + strings.Join(fs.IgnoreSet(), ", "),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}

			records, err := fs.NewSnapshotter(cwd).Snapshot(cmd.Context(), abs)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(records)
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the output")
	return cmd
}
