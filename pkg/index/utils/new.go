// Package indexutils builds the configured index backend.
package indexutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/index/memory"
	"github.com/totenbilder/imagesearch/pkg/index/qdrant"
	"github.com/totenbilder/imagesearch/pkg/index/sqlitevec"
)

type NewIndexOpts struct {
	ProviderType string
	Target       string
	APIKey       string
	TLS          bool
	Collection   string
	SQLitePath   string
	Dimensions   uint
	Logger       *slog.Logger
}

func NewIndex(ctx context.Context, o *NewIndexOpts) (index.Index, error) {
	switch o.ProviderType {
	case "qdrant":
		return qdrant.New(ctx, qdrant.Config{
			Target:     o.Target,
			APIKey:     o.APIKey,
			TLS:        o.TLS,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "sqlite":
		return sqlitevec.New(sqlitevec.Config{
			DBPath:     o.SQLitePath,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "memory":
		return memory.New(int(o.Dimensions)), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
