// Package servecmder provides the imagesearch API server cobra command.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/api"
	"github.com/totenbilder/imagesearch/cmd/imagesearch/stack"
	"github.com/totenbilder/imagesearch/pkg/config"
)

type serveCommander struct {
	listen      string
	bucket      string
	prefix      string
	workers     int
	provider    string
	target      string
	collection  string
	sqlitePath  string
	embedTarget string
	dims        uint
	databaseURL string
	metadataDB  string

	logger *slog.Logger
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagBucket,
	config.FlagPrefix,
	config.FlagWorkers,
	config.FlagVectorStoreProvider,
	config.FlagVectorStoreTarget,
	config.FlagCollection,
	config.FlagSQLitePath,
	config.FlagEmbeddingTarget,
	config.FlagEmbeddingDims,
	config.FlagDatabaseURL,
	config.FlagMetadataProvider,
}

var serveRequirements = config.Requirements{
	ObjectStore: true,
	VectorStore: true,
	Embedding:   true,
	APIKey:      true,
	Events:      true,
}

const serveLongDesc string = `Run the imagesearch API server.

The embedding models are loaded before the server accepts connections; a
failure to load them aborts startup. The payload endpoints are served when
a metadata database is configured and answer 503 otherwise.

Endpoints:
  GET  /health             Liveness and readiness
  POST /api/search         Text or similar-image search (JSON body)
  GET  /api/search         Same, via query parameters
  POST /api/index          Start a bulk index run (X-API-Key)
  POST /api/index-one      Index one object key (X-API-Key)
  GET  /api/index/status   Current and last run (X-API-Key)
  POST /api/update-payload Sync metadata in the background (X-API-Key)
  GET  /api/missing-in-index
                           Metadata rows without an indexed image (X-API-Key)`

const serveShortDesc string = "Run the imagesearch API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := stack.LoadConfig(cmd, serveFlags, serveRequirements)
			if err != nil {
				return err
			}
			cmder.logger, err = stack.NewLogger(cmd)
			if err != nil {
				return err
			}
			return cmder.run(cmd.Context(), cfg)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagBucket, &cmder.bucket)
	config.AddStringFlag(cmd, config.Flags, config.FlagPrefix, &cmder.prefix)
	config.AddIntFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTarget, &cmder.embedTarget)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.dims)
	config.AddStringFlag(cmd, config.Flags, config.FlagDatabaseURL, &cmder.databaseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagMetadataProvider, &cmder.metadataDB)

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	req := serveRequirements
	if stack.MetadataConfigured(cfg) {
		req.Metadata = true
		if err := config.Validate(cfg, req); err != nil {
			return err
		}
	}

	s, err := stack.Build(ctx, cfg, c.logger, req)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Encoder.Load(ctx); err != nil {
		return fmt.Errorf("loading embedding models: %w", err)
	}

	ix, err := s.NewIndexer()
	if err != nil {
		return err
	}
	// Cancels and drains a background run before the stack closes.
	defer ix.Close()

	searcher, err := s.NewSearch()
	if err != nil {
		return err
	}

	var payload api.PayloadSyncer
	if s.Metadata != nil {
		runner, err := s.NewPayloadRunner()
		if err != nil {
			return err
		}
		defer runner.Close()
		payload = runner
	} else {
		c.logger.Info("no metadata database configured, payload endpoints disabled")
	}

	server, err := api.NewServer(api.Config{
		ListenAddr:  cfg.API.Listen,
		APIKey:      cfg.API.APIKey,
		CORSOrigins: cfg.API.CORSOrigins,
		Bucket:      cfg.ObjectStore.Bucket,
		Searcher:    searcher,
		Indexer:     ix,
		Payload:     payload,
		Encoder:     s.Encoder,
		Index:       s.Index,
	}, c.logger.With("component", "api"))
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(); err != nil {
		c.logger.Error("shutting down API server", "error", err)
	}
	return nil
}
