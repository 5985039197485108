// Package imagesearchcmder
package imagesearchcmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/totenbilder/imagesearch/cmd/imagesearch/config"
	indexcmder "github.com/totenbilder/imagesearch/cmd/imagesearch/index"
	payloadcmder "github.com/totenbilder/imagesearch/cmd/imagesearch/payload"
	searchcmder "github.com/totenbilder/imagesearch/cmd/imagesearch/search"
	servecmder "github.com/totenbilder/imagesearch/cmd/imagesearch/serve"
	versioncmder "github.com/totenbilder/imagesearch/cmd/version"
)

const imageSearchLongDesc string = `imagesearch indexes the images of an S3-compatible bucket as CLIP
embeddings and answers text and visual similarity queries over them.

Run services using:
  imagesearch serve              Run the search and indexing API
  imagesearch index              Index the bucket once and exit
  imagesearch search <query>     Query the index from the terminal
  imagesearch payload sync       Copy metadata from PostgreSQL onto indexed images
  imagesearch config show        Print the effective configuration`

const imageSearchShortDesc string = "imagesearch - image indexing and search"

func NewImageSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "imagesearch",
		Short:        imageSearchShortDesc,
		Long:         imageSearchLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory containing config.toml (default: ./ then ~/.imagesearch)")
	cmd.PersistentFlags().String("log-format", "pretty", "Log format: text, json or pretty")
	cmd.PersistentFlags().Bool("log-source", false, "Add the source file and line to log records")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(indexcmder.NewIndexCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(payloadcmder.NewPayloadCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
