package indexer_test

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/totenbilder/imagesearch/pkg/encoder"
	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/eventstream"
	"github.com/totenbilder/imagesearch/pkg/index/memory"
	"github.com/totenbilder/imagesearch/pkg/indexer"
	"github.com/totenbilder/imagesearch/pkg/logger"
	testutils "github.com/totenbilder/imagesearch/pkg/utils/test"
)

const prefix = "totenbilder/"

var (
	red   = color.RGBA{R: 220, G: 10, B: 10, A: 255}
	green = color.RGBA{R: 10, G: 220, B: 10, A: 255}
)

// gatedEncoder blocks every embed call until the gate is opened.
type gatedEncoder struct {
	inner   indexer.ImageEncoder
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedEncoder(inner indexer.ImageEncoder) *gatedEncoder {
	return &gatedEncoder{inner: inner, gate: make(chan struct{}), entered: make(chan struct{})}
}

func (g *gatedEncoder) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.EmbedImage(ctx, data)
}

func (g *gatedEncoder) open() { close(g.gate) }

type recordingPublisher struct {
	mu      sync.Mutex
	indexed []*eventstream.ImageIndexedEvent
	runs    []*eventstream.RunCompletedEvent
	err     error
}

func (p *recordingPublisher) PublishImageIndexed(_ context.Context, e *eventstream.ImageIndexedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.indexed = append(p.indexed, e)
	return p.err
}

func (p *recordingPublisher) PublishRunCompleted(_ context.Context, e *eventstream.RunCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.indexed), len(p.runs)
}

var _ = Describe("Indexer", func() {
	var (
		ctx       context.Context
		bucket    *testutils.FakeBucket
		backend   *testutils.MockBackend
		enc       *encoder.Encoder
		store     *memory.Index
		idx       *testutils.RecordingIndex
		publisher *recordingPublisher
	)

	newIndexer := func(e indexer.ImageEncoder) *indexer.Indexer {
		ix, err := indexer.New(&indexer.Config{
			Store:      bucket,
			Encoder:    e,
			Index:      idx,
			Publisher:  publisher,
			NumWorkers: 2,
			Logger:     logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(ix.Close)
		return ix
	}

	BeforeEach(func() {
		ctx = context.Background()
		bucket = testutils.NewFakeBucket(prefix)
		backend = testutils.NewMockBackend()
		var err error
		enc, err = encoder.New(backend, encoder.Config{Dimensions: 4, MaxImageSide: 8}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		store = memory.New(4)
		idx = testutils.NewRecordingIndex(store)
		publisher = &recordingPublisher{}
	})

	Describe("New", func() {
		It("requires its collaborators", func() {
			_, err := indexer.New(&indexer.Config{Encoder: enc, Index: idx})
			Expect(err).To(HaveOccurred())
			_, err = indexer.New(&indexer.Config{Store: bucket, Index: idx})
			Expect(err).To(HaveOccurred())
			_, err = indexer.New(&indexer.Config{Store: bucket, Encoder: enc})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("PointID", func() {
		It("is deterministic per key", func() {
			Expect(indexer.PointID(prefix + "a.jpg")).To(Equal(indexer.PointID(prefix + "a.jpg")))
			Expect(indexer.PointID(prefix + "a.jpg")).NotTo(Equal(indexer.PointID(prefix + "b.jpg")))
			Expect(indexer.PointID(prefix + "a.jpg")).To(MatchRegexp(`^[0-9a-f]{8}-[0-9a-f]{4}-5[0-9a-f]{3}-`))
		})
	})

	Describe("Run", func() {
		BeforeEach(func() {
			bucket.Put(prefix+"a.jpg", testutils.SolidJPEG(red))
			bucket.Put(prefix+"b.jpg", testutils.SolidJPEG(green))
		})

		It("writes, then skips, then overwrites when forced", func() {
			ix := newIndexer(enc)

			res, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed).To(Equal(2))
			Expect(res.Skipped).To(Equal(0))
			Expect(idx.Upserted()).To(ConsistOf(prefix+"a.jpg", prefix+"b.jpg"))

			idx.Reset()
			res, err = ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed).To(Equal(0))
			Expect(res.Skipped).To(Equal(2))
			Expect(idx.Upserted()).To(BeEmpty())

			idx.Reset()
			res, err = ix.Run(ctx, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed).To(Equal(2))
			Expect(idx.Upserted()).To(ConsistOf(prefix+"a.jpg", prefix+"b.jpg"))

			Expect(store.Len()).To(Equal(2))
		})

		It("stores points under the derived id with the public url", func() {
			ix := newIndexer(enc)
			_, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())

			p, err := store.FindByFilename(ctx, prefix+"a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(p).NotTo(BeNil())
			Expect(p.ID).To(Equal(indexer.PointID(prefix + "a.jpg")))
			Expect(p.Payload.ImageURL).To(Equal("https://cdn.example.com/" + prefix + "a.jpg"))
		})

		It("does not fetch images that are already indexed", func() {
			ix := newIndexer(enc)
			_, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			_, err = ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(bucket.Fetches(prefix + "a.jpg")).To(Equal(1))
		})

		It("ignores non-image keys", func() {
			bucket.Put(prefix+"notes.txt", []byte("hello"))
			bucket.Put(prefix, nil)
			ix := newIndexer(enc)

			res, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed + res.Skipped + res.Failed).To(Equal(2))
		})

		It("counts per-key failures without aborting", func() {
			bucket.Put(prefix+"broken.jpg", []byte("not an image"))
			bucket.FailFetch(prefix+"b.jpg", errdefs.ErrStoreUnavailable)
			ix := newIndexer(enc)

			res, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed).To(Equal(1))
			Expect(res.Failed).To(Equal(2))
			Expect(idx.Upserted()).To(ConsistOf(prefix + "a.jpg"))
		})

		It("marks a failed batch as failed", func() {
			idx.FailUpserts(errdefs.ErrIndexUnavailable)
			ix := newIndexer(enc)

			res, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Failed).To(Equal(2))
			Expect(res.Processed).To(Equal(0))
		})

		It("buffers points per worker up to the batch size", func() {
			bucket.Put(prefix+"c.jpg", testutils.SolidJPEG(red))
			ix, err := indexer.New(&indexer.Config{
				Store:      bucket,
				Encoder:    enc,
				Index:      idx,
				NumWorkers: 1,
				BatchSize:  2,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(ix.Close)

			res, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed).To(Equal(3))
			Expect(store.Len()).To(Equal(3))
		})

		It("aborts on listing failures and releases the job state", func() {
			bucket.FailList(errdefs.ErrStoreUnavailable)
			ix := newIndexer(enc)

			res, err := ix.Run(ctx, false)
			Expect(err).To(MatchError(errdefs.ErrStoreUnavailable))
			Expect(res.Error).NotTo(BeEmpty())
			Expect(ix.Status().Running).To(BeFalse())
			Expect(ix.Status().Last).To(Equal(res))

			bucket.FailList(nil)
			_, err = ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("publishes an event per image and per run", func() {
			ix := newIndexer(enc)
			_, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())

			images, runs := publisher.counts()
			Expect(images).To(Equal(2))
			Expect(runs).To(Equal(1))
			Expect(publisher.runs[0].Processed).To(Equal(2))
			Expect(publisher.indexed[0].Bucket).To(Equal("test-bucket"))
		})

		It("keeps indexing when publishing fails", func() {
			publisher.err = errors.New("broker down")
			ix := newIndexer(enc)

			res, err := ix.Run(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Processed).To(Equal(2))
		})
	})

	Describe("Start", func() {
		BeforeEach(func() {
			bucket.Put(prefix+"a.jpg", testutils.SolidJPEG(red))
			bucket.Put(prefix+"b.jpg", testutils.SolidJPEG(green))
		})

		It("allows a single active run", func() {
			gated := newGatedEncoder(enc)
			ix := newIndexer(gated)

			runID, err := ix.Start(false)
			Expect(err).NotTo(HaveOccurred())
			Expect(runID).NotTo(BeEmpty())

			_, err = ix.Start(true)
			Expect(err).To(MatchError(errdefs.ErrAlreadyRunning))
			_, err = ix.Run(ctx, false)
			Expect(err).To(MatchError(errdefs.ErrAlreadyRunning))

			Eventually(gated.entered).Should(BeClosed())
			status := ix.Status()
			Expect(status.Running).To(BeTrue())
			Expect(status.Current.RunID).To(Equal(runID))

			gated.open()
			Eventually(func() bool { return ix.Status().Running }).Should(BeFalse())

			status = ix.Status()
			Expect(status.Last.RunID).To(Equal(runID))
			Expect(status.Last.Processed).To(Equal(2))

			_, err = ix.Start(false)
			Expect(err).NotTo(HaveOccurred())
		})

		It("cancels and drains the background run on Close", func() {
			gated := newGatedEncoder(enc)
			ix := newIndexer(gated)

			_, err := ix.Start(false)
			Expect(err).NotTo(HaveOccurred())
			Eventually(gated.entered).Should(BeClosed())

			done := make(chan struct{})
			go func() {
				defer close(done)
				Expect(ix.Close()).To(Succeed())
			}()
			Eventually(done, time.Second).Should(BeClosed())

			Expect(ix.Status().Running).To(BeFalse())
			Expect(idx.Upserted()).To(BeEmpty())

			_, err = ix.Start(false)
			Expect(err).To(MatchError(indexer.ErrClosed))
		})

		It("waits for a run that started while Close was racing it", func() {
			for range 200 {
				ix, err := indexer.New(&indexer.Config{
					Store:   testutils.NewFakeBucket(prefix),
					Encoder: enc,
					Index:   memory.New(4),
					Logger:  logger.Nop(),
				})
				Expect(err).NotTo(HaveOccurred())

				var (
					wg       sync.WaitGroup
					startErr error
				)
				wg.Add(2)
				go func() {
					defer wg.Done()
					_, startErr = ix.Start(false)
				}()
				go func() {
					defer wg.Done()
					_ = ix.Close()
				}()
				wg.Wait()

				if startErr == nil {
					status := ix.Status()
					Expect(status.Running).To(BeFalse())
					Expect(status.Last).NotTo(BeNil())
				} else {
					Expect(startErr).To(MatchError(indexer.ErrClosed))
				}
			}
		})
	})

	Describe("Close", func() {
		It("cancels and drains a synchronous run", func() {
			bucket.Put(prefix+"a.jpg", testutils.SolidJPEG(red))
			gated := newGatedEncoder(enc)
			ix := newIndexer(gated)

			type outcome struct {
				result *indexer.Result
				err    error
			}
			ran := make(chan outcome, 1)
			go func() {
				r, err := ix.Run(ctx, false)
				ran <- outcome{r, err}
			}()
			Eventually(gated.entered).Should(BeClosed())

			Expect(ix.Close()).To(Succeed())

			var got outcome
			Eventually(ran, time.Second).Should(Receive(&got))
			Expect(got.result).NotTo(BeNil())
			Expect(ix.Status().Running).To(BeFalse())
			Expect(idx.Upserted()).To(BeEmpty())
		})
	})

	Describe("IndexOne", func() {
		It("overwrites the point for one key", func() {
			bucket.Put(prefix+"a.jpg", testutils.SolidJPEG(red))
			ix := newIndexer(enc)

			p, err := ix.IndexOne(ctx, prefix+"a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).To(Equal(indexer.PointID(prefix + "a.jpg")))

			_, err = ix.IndexOne(ctx, prefix+"a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(idx.Upserted()).To(HaveLen(2))
			Expect(store.Len()).To(Equal(1))

			images, _ := publisher.counts()
			Expect(images).To(Equal(2))
		})

		It("reports missing objects as not found", func() {
			ix := newIndexer(enc)
			_, err := ix.IndexOne(ctx, prefix+"missing.jpg")
			Expect(err).To(MatchError(errdefs.ErrNotFound))
			Expect(idx.Upserted()).To(BeEmpty())
		})

		It("reports corrupt images as encoding errors and writes nothing", func() {
			bucket.Put(prefix+"broken.jpg", []byte("definitely not a jpeg"))
			ix := newIndexer(enc)

			_, err := ix.IndexOne(ctx, prefix+"broken.jpg")
			Expect(err).To(MatchError(errdefs.ErrEncoding))
			Expect(idx.Upserted()).To(BeEmpty())
			Expect(store.Len()).To(Equal(0))
		})

		It("surfaces index failures", func() {
			bucket.Put(prefix+"a.jpg", testutils.SolidJPEG(red))
			idx.FailUpserts(errdefs.ErrIndexUnavailable)
			ix := newIndexer(enc)

			_, err := ix.IndexOne(ctx, prefix+"a.jpg")
			Expect(err).To(MatchError(errdefs.ErrIndexUnavailable))
		})

		It("requires a key", func() {
			ix := newIndexer(enc)
			_, err := ix.IndexOne(ctx, "")
			Expect(err).To(MatchError(errdefs.ErrValidation))
		})
	})
})
