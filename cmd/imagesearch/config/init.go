package configcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/pkg/config"
)

type initCommander struct {
	overwrite bool
}

const initLongDesc string = `Write a config.toml holding the default configuration.

The file is created in --config-dir, or in the working directory when no
directory is given. An existing file is kept unless --overwrite is set.`

const initShortDesc string = "Write a default config.toml"

func newInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, _ := cmd.Flags().GetString("config-dir")
			if dir == "" {
				dir = "."
			}

			path, err := cmder.run(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cmder.overwrite, "overwrite", false, "Replace an existing config.toml")

	return cmd
}

func (c *initCommander) run(dir string) (string, error) {
	path := filepath.Join(dir, "config.toml")

	if !c.overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%s already exists, use --overwrite to replace it", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
	}

	out, err := config.EncodeTOML(config.NewDefaultConfig())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
