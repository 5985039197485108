// Package search answers ranked similarity queries against the image index,
// either for a text query or for an already indexed reference image.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/objectstore"
)

const (
	defaultLimit    = 30
	defaultMaxLimit = 100
)

// TextEncoder embeds query text. *encoder.Encoder satisfies it.
type TextEncoder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Request is a search request. Exactly one of Query and SimilarTo must be set.
type Request struct {
	Query string `json:"query,omitempty"`

	// SimilarTo is the object key of an indexed reference image.
	SimilarTo string `json:"similar,omitempty"`

	// Limit caps the number of results. Zero selects the default; values
	// above the maximum are clamped.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// Delta is "alle" (or empty), "0" or ">0".
	Delta string `json:"delta,omitempty"`
}

// Result is one ranked match.
type Result struct {
	Filename string  `json:"filename"`
	ImageURL string  `json:"image_url"`
	Score    float64 `json:"score"`
}

// Config is the configuration for a Service.
type Config struct {
	Encoder TextEncoder
	Index   index.Index

	// URLs rebuilds public image URLs from filenames.
	URLs objectstore.URLBuilder

	DefaultLimit int
	MaxLimit     int

	Logger *slog.Logger
}

// Service is safe for concurrent use.
type Service struct {
	config *Config
	logger *slog.Logger
}

// New creates a Service.
func New(c *Config) (*Service, error) {
	if c.Encoder == nil {
		return nil, errors.New("text encoder is required")
	}
	if c.Index == nil {
		return nil, errors.New("index is required")
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = defaultMaxLimit
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = defaultLimit
	}
	c.DefaultLimit = min(c.DefaultLimit, c.MaxLimit)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Service{config: c, logger: c.Logger}, nil
}

// Search embeds the request and returns matches in descending score order.
func (s *Service) Search(ctx context.Context, req Request) ([]Result, error) {
	q, err := s.query(req)
	if err != nil {
		return nil, err
	}

	query := strings.TrimSpace(req.Query)
	similar := strings.TrimSpace(req.SimilarTo)

	if query != "" {
		q.Vector, err = s.config.Encoder.EmbedText(ctx, query)
		if err != nil {
			return nil, err
		}
	} else {
		ref, err := s.config.Index.FindByFilename(ctx, similar)
		if err != nil {
			return nil, err
		}
		if ref == nil {
			return nil, fmt.Errorf("%w: reference image not found: %s", errdefs.ErrNotFound, similar)
		}
		q.Vector = ref.Vector
	}

	hits, err := s.config.Index.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Filename: h.Payload.Filename,
			ImageURL: s.config.URLs.URL(h.Payload.Filename),
			Score:    round3(h.Score),
		})
	}

	s.logger.Debug("search served",
		"query", query,
		"similar", similar,
		"limit", q.Limit,
		"offset", q.Offset,
		"results", len(results),
	)
	return results, nil
}

// query validates req and builds the query without its vector.
func (s *Service) query(req Request) (index.Query, error) {
	hasQuery := strings.TrimSpace(req.Query) != ""
	hasSimilar := strings.TrimSpace(req.SimilarTo) != ""
	switch {
	case hasQuery && hasSimilar:
		return index.Query{}, errdefs.Invalid("query", "query and similar are mutually exclusive")
	case !hasQuery && !hasSimilar:
		return index.Query{}, errdefs.Invalid("query", "either query or similar is required")
	}

	if req.Limit < 0 {
		return index.Query{}, errdefs.Invalid("limit", "must not be negative")
	}
	if req.Offset < 0 {
		return index.Query{}, errdefs.Invalid("offset", "must not be negative")
	}

	limit := req.Limit
	if limit == 0 {
		limit = s.config.DefaultLimit
	}
	limit = min(limit, s.config.MaxLimit)

	delta, err := index.ParseDelta(req.Delta)
	if err != nil {
		return index.Query{}, err
	}

	return index.Query{
		Limit:  limit,
		Offset: req.Offset,
		Filter: index.Filter{Delta: delta},
	}, nil
}

func round3(score float32) float64 {
	return math.Round(float64(score)*1000) / 1000
}
