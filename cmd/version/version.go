// Package versioncmder
package versioncmder

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/pkg/utils"
)

type VersionCommander struct {
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit and build time of this binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmder.short {
				fmt.Fprintln(cmd.OutOrStdout(), utils.Version)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\nSha: %s\nBuilt at: %s\nGo: %s\n",
				utils.Version, utils.Sha, utils.Buildtime, runtime.Version())
			return nil
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print the version number only")

	return cmd
}
