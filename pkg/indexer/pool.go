package indexer

import (
	"context"
	"iter"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/totenbilder/imagesearch/pkg/index"
)

// pool fans the keys of one run out to a fixed set of workers. Every key is
// queued exactly once, so no two workers ever write the same point.
type pool struct {
	ix      *Indexer
	run     *run
	limiter *rate.Limiter
	queue   chan string
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func newPool(ctx context.Context, ix *Indexer, r *run, limiter *rate.Limiter, logger *slog.Logger) *pool {
	p := &pool{
		ix:      ix,
		run:     r,
		limiter: limiter,
		queue:   make(chan string, ix.config.NumWorkers),
		logger:  logger,
	}

	p.wg.Add(ix.config.NumWorkers)
	for i := range ix.config.NumWorkers {
		go p.worker(ctx, i)
	}
	return p
}

// feed queues keys until the listing is exhausted. A listing error stops
// feeding and is returned.
func (p *pool) feed(ctx context.Context, keys iter.Seq2[string, error]) error {
	for key, err := range keys {
		if err != nil {
			return err
		}
		select {
		case p.queue <- key:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// close stops the workers once the queued keys are drained.
func (p *pool) close() {
	close(p.queue)
	p.wg.Wait()
}

// worker processes queued keys and buffers points until a batch is full.
func (p *pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	batch := make([]index.Point, 0, p.ix.config.BatchSize)
	for key := range p.queue {
		point := p.process(ctx, key)
		if point == nil {
			continue
		}
		batch = append(batch, *point)
		if len(batch) >= p.ix.config.BatchSize {
			p.flush(ctx, batch)
			batch = batch[:0]
		}
	}
	p.flush(ctx, batch)

	p.logger.Debug("index worker done", "worker", id)
}

// process returns the point to write for key, or nil when the key was
// skipped or failed.
func (p *pool) process(ctx context.Context, key string) *index.Point {
	if !p.run.force {
		exists, err := p.ix.config.Index.Exists(ctx, key)
		if err != nil {
			p.fail(key, err)
			return nil
		}
		if exists {
			p.run.skipped.Add(1)
			p.logger.Debug("image already indexed", "key", key)
			return nil
		}
	}

	point, err := p.ix.embed(ctx, key, p.limiter)
	if err != nil {
		p.fail(key, err)
		return nil
	}
	return point
}

// flush upserts a batch. A failed upsert marks every key in it as failed.
func (p *pool) flush(ctx context.Context, batch []index.Point) {
	if len(batch) == 0 {
		return
	}

	if err := p.ix.config.Index.Upsert(ctx, batch...); err != nil {
		for _, point := range batch {
			p.fail(point.Payload.Filename, err)
		}
		return
	}

	p.run.processed.Add(int64(len(batch)))
	for _, point := range batch {
		p.logger.Info("image indexed", "key", point.Payload.Filename, "id", point.ID)
		p.ix.publishIndexed(ctx, p.run.id, p.run.force, point)
	}
}

func (p *pool) fail(key string, err error) {
	p.run.failed.Add(1)
	p.logger.Error("indexing image failed", "key", key, "error", err)
}
