package payloadcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/cmd/imagesearch/stack"
	"github.com/totenbilder/imagesearch/pkg/config"
	"github.com/totenbilder/imagesearch/pkg/metadata"
)

type syncCommander struct {
	filename    string
	all         bool
	quiet       bool
	databaseURL string
	metadataDB  string
	prefix      string
	provider    string
	target      string
	collection  string
	sqlitePath  string

	out    io.Writer
	logger *slog.Logger
}

var syncFlags = []string{
	config.FlagDatabaseURL,
	config.FlagMetadataProvider,
	config.FlagPrefix,
	config.FlagVectorStoreProvider,
	config.FlagVectorStoreTarget,
	config.FlagCollection,
	config.FlagSQLitePath,
}

var syncRequirements = config.Requirements{
	VectorStore: true,
	Metadata:    true,
}

const syncLongDesc string = `Copy nid and delta from the metadata table onto indexed images.

Each filename is mapped to its object key by prepending the configured
prefix. Rows without an indexed image are skipped. With --all every row
is processed and a summary of updated, skipped and failed rows is printed.`

const syncShortDesc string = "Sync metadata onto indexed images"

func newSyncCmd() *cobra.Command {
	cmder := &syncCommander{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: syncShortDesc,
		Long:  syncLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stack.LoadConfig(cmd, syncFlags, syncRequirements)
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

	cmd.Flags().StringVar(&cmder.filename, "filename", "", "Sync a single filename")
	cmd.Flags().BoolVar(&cmder.all, "all", false, "Sync every row of the metadata table")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Hide the progress bar")
	cmd.MarkFlagsMutuallyExclusive("filename", "all")
	cmd.MarkFlagsOneRequired("filename", "all")

	config.AddStringFlag(cmd, config.Flags, config.FlagDatabaseURL, &cmder.databaseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagMetadataProvider, &cmder.metadataDB)
	config.AddStringFlag(cmd, config.Flags, config.FlagPrefix, &cmder.prefix)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)

	return cmd
}

func (c *syncCommander) run(ctx context.Context, cfg *config.Config) error {
	s, err := stack.Build(ctx, cfg, c.logger, syncRequirements)
	if err != nil {
		return err
	}
	defer s.Close()

	syncer, err := s.NewSyncer()
	if err != nil {
		return err
	}

	if c.filename != "" {
		rec, err := syncer.SyncOne(ctx, c.filename)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Updated %s (nid=%s, delta=%s)\n", syncer.Key(rec.Filename), show(rec.NID), show(rec.Delta))
		return nil
	}

	return c.syncAll(ctx, s.Metadata, syncer)
}

func (c *syncCommander) syncAll(ctx context.Context, src metadata.Source, syncer *metadata.Syncer) error {
	var progress func()
	if !c.quiet {
		total, err := src.Count(ctx)
		if err != nil {
			return fmt.Errorf("counting metadata rows: %w", err)
		}
		bar := newProgressBar(total)
		progress = func() { _ = bar.Add(1) }
	}

	result, err := syncer.SyncAll(ctx, progress)
	if result != nil {
		fmt.Fprintf(c.out, "Updated: %d\nSkipped: %d\nFailed:  %d\n", result.Updated, result.Skipped, result.Failed)
	}
	return err
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Syncing payloads[reset]"),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}

func show(v *int64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%d", *v)
}
