// Package configcmder provides the config command for inspecting and
// creating imagesearch configuration files.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Inspect and create imagesearch configuration.

Configuration is read from config.toml in --config-dir (default: the
working directory, then ~/.imagesearch). Environment variables override
file values and CLI flags override both.

Keys use dotted notation matching the TOML section structure, and map to
IMAGESEARCH_<SECTION>_<KEY> environment variables:
  api.listen, api.api_key, api.cors_origins,
  vector_store.provider, vector_store.target, vector_store.collection,
  object_store.endpoint, object_store.bucket, object_store.prefix,
  embedding.target, embedding.image_model, embedding.text_model,
  indexer.workers, search.default_limit, events.provider, metadata.database_url

Examples:
  imagesearch config init
  imagesearch config show`

const configShortDesc string = "Inspect and create imagesearch configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}
