// Package openai implements encoder.Backend against an OpenAI-compatible
// embeddings server that serves both CLIP variants, such as Infinity.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/totenbilder/imagesearch/pkg/encoder"
	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

const (
	// DefaultImageModel is the vision half of CLIP ViT-B/32.
	DefaultImageModel = "clip-ViT-B-32"

	// DefaultTextModel is the multilingual text encoder aligned with DefaultImageModel.
	DefaultTextModel = "sentence-transformers/clip-ViT-B-32-multilingual-v1"
)

// Config holds connection settings.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:7997".
	BaseURL string

	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string

	ImageModel string
	TextModel  string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// Backend is safe for concurrent use.
type Backend struct {
	client     openai.Client
	imageModel string
	textModel  string
}

var _ encoder.Backend = (*Backend)(nil)

// New creates a Backend.
func New(cfg Config) (*Backend, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("embedding server URL is required")
	}
	if cfg.ImageModel == "" {
		cfg.ImageModel = DefaultImageModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "unused"
	}

	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(cfg.HTTPClient),
	)

	return &Backend{
		client:     client,
		imageModel: cfg.ImageModel,
		textModel:  cfg.TextModel,
	}, nil
}

// EmbedImage sends the image as a base64 data URI with modality=image.
func (b *Backend) EmbedImage(ctx context.Context, jpeg []byte) ([]float32, error) {
	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	return b.embed(ctx, b.imageModel, uri, option.WithJSONSet("modality", "image"))
}

func (b *Backend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return b.embed(ctx, b.textModel, text)
}

func (b *Backend) embed(ctx context.Context, model, input string, opts ...option.RequestOption) ([]float32, error) {
	resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(input)},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}, opts...)
	if err != nil {
		return nil, classify(model, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("model %s returned no embedding", model)
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		out[i] = float32(f)
	}
	return out, nil
}

// classify marks inputs the server rejected as errdefs.ErrEncoding.
func classify(model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: model %s rejected input: %w", errdefs.ErrEncoding, model, err)
		}
	}
	return fmt.Errorf("model %s: %w", model, err)
}

// Close is a no-op; the HTTP client holds no per-backend resources.
func (b *Backend) Close() error { return nil }
