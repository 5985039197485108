// Package api provides the HTTP API for searching and indexing images.
package api

import (
	"context"

	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/indexer"
	"github.com/totenbilder/imagesearch/pkg/metadata"
	"github.com/totenbilder/imagesearch/pkg/search"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// APIKey guards the indexing endpoints via the X-API-Key header.
	APIKey string

	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string

	// Bucket is reported back when a bulk run is started.
	Bucket string

	Searcher Searcher
	Indexer  Indexer

	// Payload is optional. Without it the payload endpoints answer 503.
	Payload PayloadSyncer

	// Encoder and Index are optional and only feed /health.
	Encoder ReadyChecker
	Index   Pinger
}

// Searcher answers search requests.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Result, error)
}

// Indexer starts and reports index runs.
type Indexer interface {
	Start(force bool) (string, error)
	IndexOne(ctx context.Context, key string) (*index.Point, error)
	Status() indexer.Status
}

// PayloadSyncer starts payload syncs and reports unindexed records.
type PayloadSyncer interface {
	Start(req metadata.SyncRequest) error
	Missing(ctx context.Context) (*metadata.MissingReport, error)
}

// ReadyChecker reports whether the embedding models are loaded.
type ReadyChecker interface {
	Ready() bool
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
