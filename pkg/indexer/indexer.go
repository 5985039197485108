// Package indexer builds the vector index from the images in the object store.
//
// An Indexer runs at most one bulk run at a time. A run lists the bucket
// lazily and fans the keys out to a bounded pool of workers; each worker skips
// keys that are already indexed (unless forced), fetches and embeds the image,
// and upserts the point under an id derived from the key.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/eventstream"
	"github.com/totenbilder/imagesearch/pkg/eventstream/nop"
	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/objectstore"
)

var (
	defaultNumWorkers = 4
	defaultBatchSize  = 1
)

// ErrClosed is returned when a run is requested after Close.
var ErrClosed = errors.New("indexer closed")

// ImageEncoder embeds encoded image bytes. *encoder.Encoder satisfies it.
type ImageEncoder interface {
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
}

// Config is the configuration for an Indexer.
type Config struct {
	Store   objectstore.Store
	Encoder ImageEncoder
	Index   index.Index

	// Publisher receives index events. Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// NumWorkers is the number of concurrent workers per run (defaults to 4).
	NumWorkers int

	// BatchSize is the number of points a worker buffers before upserting
	// (defaults to 1).
	BatchSize int

	// FetchRPS limits object fetches per second across all workers.
	// Zero or less disables throttling.
	FetchRPS   float64
	FetchBurst int

	Logger *slog.Logger
}

// Indexer owns bulk runs. It is safe for concurrent use.
type Indexer struct {
	config *Config
	logger *slog.Logger

	// ctx scopes background runs started with Start; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	current *run
	last    *Result
	closed  bool
}

// New creates an Indexer.
func New(c *Config) (*Indexer, error) {
	if c.Store == nil {
		return nil, errors.New("object store is required")
	}
	if c.Encoder == nil {
		return nil, errors.New("encoder is required")
	}
	if c.Index == nil {
		return nil, errors.New("index is required")
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Indexer{
		config: c,
		logger: c.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start schedules a bulk run in the background and returns its id. The job
// state is claimed before the run is scheduled, so a second Start fails with
// errdefs.ErrAlreadyRunning until the first run has finished.
func (ix *Indexer) Start(force bool) (string, error) {
	r, err := ix.begin(force)
	if err != nil {
		return "", err
	}

	go func() {
		defer ix.wg.Done()
		if _, err := ix.execute(ix.ctx, r); err != nil {
			ix.logger.Error("index run failed", "run_id", r.id, "error", err)
		}
	}()

	return r.id, nil
}

// Run performs a bulk run synchronously. It shares the single-flight guard
// with Start, and Close cancels it like a background run.
func (ix *Indexer) Run(ctx context.Context, force bool) (*Result, error) {
	r, err := ix.begin(force)
	if err != nil {
		return nil, err
	}
	defer ix.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ix.ctx, cancel)
	defer stop()

	return ix.execute(ctx, r)
}

// IndexOne fetches, embeds and upserts a single key, always overwriting an
// existing point. Errors are returned as they occur and nothing is written on
// failure.
func (ix *Indexer) IndexOne(ctx context.Context, key string) (*index.Point, error) {
	if key == "" {
		return nil, errdefs.Invalid("filename", "is required")
	}

	p, err := ix.embed(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	if err := ix.config.Index.Upsert(ctx, *p); err != nil {
		return nil, fmt.Errorf("upserting %s: %w", key, err)
	}

	ix.logger.Info("image indexed", "key", key, "id", p.ID)
	ix.publishIndexed(ctx, "", true, *p)
	return p, nil
}

// Status returns a snapshot of the job state.
func (ix *Indexer) Status() Status {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := Status{Running: ix.current != nil, Last: ix.last}
	if ix.current != nil {
		s.Current = ix.current.snapshot()
	}
	return s
}

// Close cancels a background run and waits for it to drain. The Indexer
// accepts no new runs afterwards.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	ix.closed = true
	ix.mu.Unlock()

	ix.cancel()
	ix.wg.Wait()
	return nil
}

// begin claims the job state and reserves a slot in wg, so a run that
// begins before Close is always waited for. The caller must call wg.Done.
func (ix *Indexer) begin(force bool) (*run, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return nil, ErrClosed
	}
	if ix.current != nil {
		return nil, fmt.Errorf("%w: run %s", errdefs.ErrAlreadyRunning, ix.current.id)
	}

	ix.current = &run{id: uuid.NewString(), force: force, started: time.Now().UTC()}
	ix.wg.Add(1)
	return ix.current, nil
}

// end releases the job state and records the final result.
func (ix *Indexer) end(r *run, result *Result) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.current == r {
		ix.current = nil
	}
	ix.last = result
}

// execute drives one run to completion. The job state is released on every
// path.
func (ix *Indexer) execute(ctx context.Context, r *run) (*Result, error) {
	log := ix.logger.With("run_id", r.id)
	log.Info("index run started", "bucket", ix.config.Store.Bucket(), "force", r.force)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if ix.config.FetchRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(ix.config.FetchRPS), max(ix.config.FetchBurst, 1))
	}

	p := newPool(ctx, ix, r, limiter, log)
	listErr := p.feed(ctx, ix.config.Store.Keys(ctx))
	p.close()

	result := r.snapshot()
	result.FinishedAt = time.Now().UTC()
	if listErr != nil {
		result.Error = listErr.Error()
	}
	ix.end(r, result)
	ix.publishCompleted(result)

	if listErr != nil {
		log.Error("index run aborted",
			"processed", result.Processed,
			"skipped", result.Skipped,
			"failed", result.Failed,
			"error", listErr,
		)
		return result, fmt.Errorf("listing objects: %w", listErr)
	}

	log.Info("index run finished",
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// embed builds the point for key. limiter may be nil.
func (ix *Indexer) embed(ctx context.Context, key string, limiter *rate.Limiter) (*index.Point, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	data, err := ix.config.Store.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	vec, err := ix.config.Encoder.EmbedImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", key, err)
	}

	return &index.Point{
		ID:     PointID(key),
		Vector: vec,
		Payload: index.Payload{
			Filename: key,
			ImageURL: ix.config.Store.PublicURL(key),
		},
	}, nil
}

func (ix *Indexer) publishIndexed(ctx context.Context, runID string, forced bool, p index.Point) {
	err := ix.config.Publisher.PublishImageIndexed(context.WithoutCancel(ctx), &eventstream.ImageIndexedEvent{
		Envelope: eventstream.NewEnvelope(eventstream.EventTypeImageIndexed),
		RunID:    runID,
		Bucket:   ix.config.Store.Bucket(),
		Key:      p.Payload.Filename,
		PointID:  p.ID,
		ImageURL: p.Payload.ImageURL,
		Forced:   forced,
	})
	if err != nil {
		ix.logger.Warn("publishing image event failed", "key", p.Payload.Filename, "error", err)
	}
}

func (ix *Indexer) publishCompleted(result *Result) {
	err := ix.config.Publisher.PublishRunCompleted(context.Background(), &eventstream.RunCompletedEvent{
		Envelope:    eventstream.NewEnvelope(eventstream.EventTypeRunCompleted),
		RunID:       result.RunID,
		Bucket:      ix.config.Store.Bucket(),
		Force:       result.Force,
		StartedAt:   result.StartedAt,
		CompletedAt: result.FinishedAt,
		DurationMs:  result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		Processed:   result.Processed,
		Skipped:     result.Skipped,
		Failed:      result.Failed,
		Error:       result.Error,
	})
	if err != nil {
		ix.logger.Warn("publishing run event failed", "run_id", result.RunID, "error", err)
	}
}
