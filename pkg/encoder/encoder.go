// Package encoder maps images and text into one shared embedding space.
//
// An Encoder wraps a Backend serving two model variants, a vision model for
// images and a multilingual text model trained against it, and guarantees
// that every vector it returns has the configured dimension and unit length.
package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

// Backend computes raw embeddings. Implementations must be safe for
// concurrent use.
type Backend interface {
	// EmbedImage embeds a JPEG encoded image with the vision model.
	EmbedImage(ctx context.Context, jpeg []byte) ([]float32, error)

	// EmbedText embeds text with the text model.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	Close() error
}

// Config holds Encoder settings.
type Config struct {
	// Dimensions is the length every embedding must have.
	Dimensions int

	// MaxImageSide bounds the longer image side sent to the backend.
	// Zero sends images at their original size.
	MaxImageSide int
}

// Encoder is safe for concurrent use.
type Encoder struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	once    sync.Once
	loadErr error
	ready   atomic.Bool
}

// New creates an Encoder. Models are loaded on first use or by Load.
func New(backend Backend, cfg Config, logger *slog.Logger) (*Encoder, error) {
	if backend == nil {
		return nil, errors.New("encoder backend is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("encoder dimensions must be positive, got %d", cfg.Dimensions)
	}
	return &Encoder{backend: backend, cfg: cfg, logger: logger}, nil
}

// Load embeds a sample with both model variants once and checks their output dimension.
// The outcome is remembered; later calls return the same error.
func (e *Encoder) Load(ctx context.Context) error {
	e.once.Do(func() {
		e.loadErr = e.warmup(ctx)
		if e.loadErr != nil {
			e.logger.Error("embedding models failed to load", "error", e.loadErr)
			return
		}
		e.ready.Store(true)
		e.logger.Info("embedding models loaded", "dimensions", e.cfg.Dimensions)
	})
	return e.loadErr
}

func (e *Encoder) warmup(ctx context.Context) error {
	tv, err := e.backend.EmbedText(ctx, "warmup")
	if err != nil {
		return fmt.Errorf("loading text model: %w", err)
	}
	if len(tv) != e.cfg.Dimensions {
		return fmt.Errorf("text model returned %d dimensions, expected %d", len(tv), e.cfg.Dimensions)
	}

	iv, err := e.backend.EmbedImage(ctx, warmupImage())
	if err != nil {
		return fmt.Errorf("loading image model: %w", err)
	}
	if len(iv) != e.cfg.Dimensions {
		return fmt.Errorf("image model returned %d dimensions, expected %d", len(iv), e.cfg.Dimensions)
	}
	return nil
}

// Ready reports whether the models loaded successfully.
func (e *Encoder) Ready() bool { return e.ready.Load() }

// Dimensions returns the embedding length.
func (e *Encoder) Dimensions() int { return e.cfg.Dimensions }

// EmbedImage embeds encoded image bytes (JPEG, PNG, GIF or WebP).
// Undecodable input fails with errdefs.ErrEncoding.
func (e *Encoder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	if err := e.Load(ctx); err != nil {
		return nil, err
	}

	jpeg, err := prepareImage(data, e.cfg.MaxImageSide)
	if err != nil {
		return nil, err
	}

	v, err := e.backend.EmbedImage(ctx, jpeg)
	if err != nil {
		return nil, fmt.Errorf("embedding image: %w", err)
	}
	return e.finish(v)
}

// EmbedText embeds a query string. Blank text fails with errdefs.ErrEncoding.
func (e *Encoder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", errdefs.ErrEncoding)
	}
	if err := e.Load(ctx); err != nil {
		return nil, err
	}

	v, err := e.backend.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return e.finish(v)
}

func (e *Encoder) finish(v []float32) ([]float32, error) {
	if len(v) != e.cfg.Dimensions {
		return nil, fmt.Errorf("backend returned %d dimensions, expected %d", len(v), e.cfg.Dimensions)
	}
	if !Normalize(v) {
		return nil, fmt.Errorf("%w: zero embedding", errdefs.ErrEncoding)
	}
	return v, nil
}

// Close releases the backend.
func (e *Encoder) Close() error {
	return e.backend.Close()
}
