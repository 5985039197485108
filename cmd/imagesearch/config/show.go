package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/cmd/imagesearch/stack"
	"github.com/totenbilder/imagesearch/pkg/config"
)

type showCommander struct {
	reveal bool
}

const showLongDesc string = `Print the effective configuration as TOML.

Defaults, config.toml and environment variables are merged the same way
the other commands merge them. Credentials are masked unless --reveal is
given.`

const showShortDesc string = "Print the effective configuration"

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stack.LoadConfig(cmd, nil, config.Requirements{})
			if err != nil {
				return err
			}
			if !cmder.reveal {
				cfg = cfg.Redacted()
			}

			out, err := config.EncodeTOML(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().BoolVar(&cmder.reveal, "reveal", false, "Print credentials in clear text")

	return cmd
}
