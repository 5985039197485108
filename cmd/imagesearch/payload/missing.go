package payloadcmder

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
	"github.com/totenbilder/imagesearch/pkg/metadata"
)

type missingCommander struct {
	jsonOut     bool
	skipBucket  bool
	databaseURL string
	metadataDB  string
	bucket      string
	prefix      string
	provider    string
	target      string
	collection  string
	sqlitePath  string

	out    io.Writer
	logger *slog.Logger
}

var missingFlags = []string{
	config.FlagDatabaseURL,
	config.FlagMetadataProvider,
	config.FlagBucket,
	config.FlagPrefix,
	config.FlagVectorStoreProvider,
	config.FlagVectorStoreTarget,
	config.FlagCollection,
	config.FlagSQLitePath,
}

const missingLongDesc string = `List metadata rows whose image is not in the vector index.

Every filename is mapped to its object key like "payload sync" does. Keys
without an indexed point are then checked against the bucket listing:
  ready to index     the object exists and can be indexed
  missing in bucket  the row points at an object that does not exist

Use --skip-bucket to compare against the index only.`

const missingShortDesc string = "List metadata rows without an indexed image"

func newMissingCmd() *cobra.Command {
	cmder := &missingCommander{}

	cmd := &cobra.Command{
		Use:   "missing",
		Short: missingShortDesc,
		Long:  missingLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stack.LoadConfig(cmd, missingFlags, cmder.requirements())
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

	cmd.Flags().BoolVar(&cmder.jsonOut, "json", false, "Print the report as JSON")
	cmd.Flags().BoolVar(&cmder.skipBucket, "skip-bucket", false, "Do not check the bucket for missing keys")

	config.AddStringFlag(cmd, config.Flags, config.FlagDatabaseURL, &cmder.databaseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagMetadataProvider, &cmder.metadataDB)
	config.AddStringFlag(cmd, config.Flags, config.FlagBucket, &cmder.bucket)
	config.AddStringFlag(cmd, config.Flags, config.FlagPrefix, &cmder.prefix)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)

	return cmd
}

func (c *missingCommander) requirements() config.Requirements {
	return config.Requirements{
		ObjectStore: !c.skipBucket,
		VectorStore: true,
		Metadata:    true,
	}
}

func (c *missingCommander) run(ctx context.Context, cfg *config.Config) error {
	s, err := stack.Build(ctx, cfg, c.logger, c.requirements())
	if err != nil {
		return err
	}
	defer s.Close()

	syncer, err := s.NewSyncer()
	if err != nil {
		return err
	}

	report, err := syncer.Missing(ctx, s.Store)
	if err != nil {
		return err
	}
	return c.print(report)
}

func (c *missingCommander) print(report *metadata.MissingReport) error {
	if c.jsonOut {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(c.out, "Records:  %d\nIndexed:  %d\nMissing:  %d\n", report.Records, report.Indexed, len(report.Missing))
	if !report.BucketChecked {
		for _, key := range report.Missing {
			fmt.Fprintf(c.out, "  %s\n", key)
		}
		return nil
	}

	fmt.Fprintf(c.out, "\nReady to index (%d):\n", len(report.ReadyToIndex))
	for _, key := range report.ReadyToIndex {
		fmt.Fprintf(c.out, "  %s\n", key)
	}
	fmt.Fprintf(c.out, "\nMissing in bucket (%d):\n", len(report.MissingInBucket))
	for _, key := range report.MissingInBucket {
		fmt.Fprintf(c.out, "  %s\n", key)
	}
	return nil
}
