// Package payloadcmder provides commands that maintain the metadata payload
// of indexed images.
package payloadcmder

import (
	"github.com/spf13/cobra"
)

const payloadLongDesc string = `Maintain the metadata stored alongside indexed images.

The nid and delta of every image live in a MySQL (or PostgreSQL) table
keyed by filename. Use subcommands to copy them onto the indexed points
and to find rows whose image was never indexed:
  imagesearch payload sync --all
  imagesearch payload sync --filename 1234.jpg
  imagesearch payload missing`

const payloadShortDesc string = "Maintain indexed image metadata"

func NewPayloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payload",
		Short: payloadShortDesc,
		Long:  payloadLongDesc,
	}

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newMissingCmd())

	return cmd
}
