// Package indexcmder provides the one-shot index cobra command.
package indexcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/cmd/imagesearch/stack"
	"github.com/totenbilder/imagesearch/pkg/config"
)

type indexCommander struct {
	force       bool
	key         string
	bucket      string
	prefix      string
	workers     int
	provider    string
	target      string
	collection  string
	sqlitePath  string
	embedTarget string
	dims        uint

	out    io.Writer
	logger *slog.Logger
}

var indexFlags = []string{
	config.FlagBucket,
	config.FlagPrefix,
	config.FlagWorkers,
	config.FlagVectorStoreProvider,
	config.FlagVectorStoreTarget,
	config.FlagCollection,
	config.FlagSQLitePath,
	config.FlagEmbeddingTarget,
	config.FlagEmbeddingDims,
}

var indexRequirements = config.Requirements{
	ObjectStore: true,
	VectorStore: true,
	Embedding:   true,
	Events:      true,
}

const indexLongDesc string = `Index the configured bucket once and exit.

Every image under the prefix that is not yet in the index is fetched,
embedded and written. --force re-embeds images that are already indexed.
--key indexes a single object key (always overwriting).

The run summary is printed as JSON on stdout:
  imagesearch index
  imagesearch index --force --workers 8
  imagesearch index --key fotos/1234.jpg`

const indexShortDesc string = "Index the bucket once"

func NewIndexCmd() *cobra.Command {
	cmder := &indexCommander{}

	cmd := &cobra.Command{
		Use:   "index",
		Short: indexShortDesc,
		Long:  indexLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stack.LoadConfig(cmd, indexFlags, indexRequirements)
			if err != nil {
				return err
			}
			cmder.logger, err = stack.NewLogger(cmd)
			if err != nil {
				return err
			}
			cmder.out = cmd.OutOrStdout()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx, cfg)
		},
	}

	cmd.Flags().BoolVarP(&cmder.force, "force", "f", false, "Re-embed images that are already indexed")
	cmd.Flags().StringVarP(&cmder.key, "key", "k", "", "Index a single object key")
	cmd.MarkFlagsMutuallyExclusive("force", "key")

	config.AddStringFlag(cmd, config.Flags, config.FlagBucket, &cmder.bucket)
	config.AddStringFlag(cmd, config.Flags, config.FlagPrefix, &cmder.prefix)
	config.AddIntFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTarget, &cmder.embedTarget)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.dims)

	return cmd
}

func (c *indexCommander) run(ctx context.Context, cfg *config.Config) error {
	s, err := stack.Build(ctx, cfg, c.logger, indexRequirements)
	if err != nil {
		return err
	}
	defer s.Close()

	ix, err := s.NewIndexer()
	if err != nil {
		return err
	}
	defer ix.Close()

	if c.key != "" {
		p, err := ix.IndexOne(ctx, c.key)
		if err != nil {
			return err
		}
		return writeJSON(c.out, map[string]string{
			"filename":  p.Payload.Filename,
			"point_id":  p.ID,
			"image_url": p.Payload.ImageURL,
		})
	}

	result, err := ix.Run(ctx, c.force)
	if result != nil {
		if werr := writeJSON(c.out, result); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("index run: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
