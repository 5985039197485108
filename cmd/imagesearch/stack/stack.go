// Package stack loads configuration and builds the components shared by the
// imagesearch commands.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/totenbilder/imagesearch/pkg/config"
	"github.com/totenbilder/imagesearch/pkg/encoder"
	"github.com/totenbilder/imagesearch/pkg/encoder/openai"
	"github.com/totenbilder/imagesearch/pkg/eventstream"
	eventstreamutils "github.com/totenbilder/imagesearch/pkg/eventstream/utils"
	"github.com/totenbilder/imagesearch/pkg/index"
	indexutils "github.com/totenbilder/imagesearch/pkg/index/utils"
	"github.com/totenbilder/imagesearch/pkg/indexer"
	"github.com/totenbilder/imagesearch/pkg/logger"
	"github.com/totenbilder/imagesearch/pkg/metadata"
	metadatautils "github.com/totenbilder/imagesearch/pkg/metadata/utils"
	"github.com/totenbilder/imagesearch/pkg/objectstore"
	"github.com/totenbilder/imagesearch/pkg/search"
)

// LoadConfig reads the effective configuration for cmd, binding the given
// registry flags on top, and validates it against req.
func LoadConfig(cmd *cobra.Command, flagKeys []string, req config.Requirements) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg, req); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the logger selected by the global --debug, --log-format
// and --log-source flags. Logs go to stderr so command output stays pipeable.
func NewLogger(cmd *cobra.Command) (*slog.Logger, error) {
	debug, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return nil, fmt.Errorf("could not get debug flag: %w", err)
	}
	raw, _ := cmd.Flags().GetString("log-format")
	format, err := logger.ParseFormat(raw)
	if err != nil {
		return nil, err
	}
	source, _ := cmd.Flags().GetBool("log-source")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithFormat(format),
		logger.WithSource(source),
		logger.WithWriter(os.Stderr),
	), nil
}

// Stack holds the components a command asked for. Fields for components
// that were not requested are nil.
type Stack struct {
	Config *config.Config
	Logger *slog.Logger

	Store     objectstore.Store
	Encoder   *encoder.Encoder
	Index     index.Index
	Publisher eventstream.Publisher
	Metadata  metadata.Source

	closers []func() error
}

// Build creates the components required by req.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, req config.Requirements) (*Stack, error) {
	s := &Stack{Config: cfg, Logger: log}

	if err := s.build(ctx, req); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stack) build(ctx context.Context, req config.Requirements) error {
	cfg := s.Config

	if req.ObjectStore {
		oc := objectstore.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			Bucket:          cfg.ObjectStore.Bucket,
			Prefix:          cfg.ObjectStore.Prefix,
			PublicBaseURL:   cfg.ObjectStore.PublicBaseURL,
		}
		s.Store = objectstore.NewS3(objectstore.NewS3Client(oc), oc, s.Logger.With("component", "objectstore"))
	}

	if req.Embedding {
		backend, err := openai.New(openai.Config{
			BaseURL:    cfg.Embedding.Target,
			APIKey:     cfg.Embedding.APIKey,
			ImageModel: cfg.Embedding.ImageModel,
			TextModel:  cfg.Embedding.TextModel,
		})
		if err != nil {
			return fmt.Errorf("creating embedding backend: %w", err)
		}
		enc, err := encoder.New(backend, encoder.Config{
			Dimensions:   int(cfg.Embedding.Dimensions),
			MaxImageSide: cfg.Embedding.MaxImageSide,
		}, s.Logger.With("component", "encoder"))
		if err != nil {
			_ = backend.Close()
			return err
		}
		s.Encoder = enc
		s.closers = append(s.closers, enc.Close)
	}

	if req.VectorStore {
		idx, err := indexutils.NewIndex(ctx, &indexutils.NewIndexOpts{
			ProviderType: cfg.VectorStore.Provider,
			Target:       cfg.VectorStore.Target,
			APIKey:       cfg.VectorStore.APIKey,
			TLS:          cfg.VectorStore.TLS,
			Collection:   cfg.VectorStore.Collection,
			SQLitePath:   cfg.VectorStore.SQLitePath,
			Dimensions:   cfg.Embedding.Dimensions,
			Logger:       s.Logger.With("component", "index"),
		})
		if err != nil {
			return fmt.Errorf("creating vector index: %w", err)
		}
		s.Index = idx
		s.closers = append(s.closers, idx.Close)
	}

	if req.Events {
		pub, err := eventstreamutils.NewPublisher(eventstreamutils.NewPublisherOpts{
			ProviderType: cfg.Events.Provider,
			Brokers:      cfg.Events.Brokers,
			Topic:        cfg.Events.Topic,
			Logger:       s.Logger.With("component", "eventstream"),
		})
		if err != nil {
			return fmt.Errorf("creating event publisher: %w", err)
		}
		s.Publisher = pub
		s.closers = append(s.closers, pub.Close)
	}

	if req.Metadata {
		src, err := metadatautils.NewSource(ctx, metadatautils.NewSourceOpts{
			ProviderType: cfg.Metadata.Provider,
			DatabaseURL:  cfg.Metadata.DatabaseURL,
			Host:         cfg.Metadata.Host,
			User:         cfg.Metadata.User,
			Password:     cfg.Metadata.Password,
			Name:         cfg.Metadata.Name,
			Table:        cfg.Metadata.Table,
		})
		if err != nil {
			return fmt.Errorf("connecting to metadata database: %w", err)
		}
		s.Metadata = src
		s.closers = append(s.closers, src.Close)
	}

	return nil
}

// NewIndexer wires an indexer over the stack.
func (s *Stack) NewIndexer() (*indexer.Indexer, error) {
	return indexer.New(&indexer.Config{
		Store:      s.Store,
		Encoder:    s.Encoder,
		Index:      s.Index,
		Publisher:  s.Publisher,
		NumWorkers: s.Config.Indexer.Workers,
		BatchSize:  s.Config.Indexer.BatchSize,
		FetchRPS:   s.Config.Indexer.FetchRPS,
		FetchBurst: s.Config.Indexer.FetchBurst,
		Logger:     s.Logger.With("component", "indexer"),
	})
}

// NewSearch wires a search service over the stack.
func (s *Stack) NewSearch() (*search.Service, error) {
	return search.New(&search.Config{
		Encoder:      s.Encoder,
		Index:        s.Index,
		URLs:         objectstore.URLBuilder(s.Config.ObjectStore.PublicBaseURL),
		DefaultLimit: s.Config.Search.DefaultLimit,
		MaxLimit:     s.Config.Search.MaxLimit,
		Logger:       s.Logger.With("component", "search"),
	})
}

// NewSyncer wires a metadata syncer over the stack.
func (s *Stack) NewSyncer() (*metadata.Syncer, error) {
	return metadata.NewSyncer(s.Metadata, s.Index, s.Config.ObjectStore.Prefix, s.Logger.With("component", "metadata"))
}

// NewPayloadRunner wires a background payload sync runner over the stack.
// The object store, when built, backs its missing check.
func (s *Stack) NewPayloadRunner() (*metadata.Runner, error) {
	syncer, err := s.NewSyncer()
	if err != nil {
		return nil, err
	}
	return metadata.NewRunner(syncer, s.Store, s.Logger.With("component", "payload"))
}

// MetadataConfigured reports whether cfg names a metadata database.
func MetadataConfigured(cfg *config.Config) bool {
	return cfg.Metadata.DatabaseURL != "" || cfg.Metadata.Host != ""
}

// Close releases every component in reverse creation order.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
