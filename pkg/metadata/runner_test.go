package metadata_test

import (
	"context"
	"iter"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/index/memory"
	"github.com/totenbilder/imagesearch/pkg/logger"
	"github.com/totenbilder/imagesearch/pkg/metadata"
	testutils "github.com/totenbilder/imagesearch/pkg/utils/test"
)

// gatedSource holds Records until the gate is opened or the context ends.
type gatedSource struct {
	*testutils.MemorySource
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedSource) Records(ctx context.Context) iter.Seq2[metadata.Record, error] {
	inner := g.MemorySource.Records(ctx)
	return func(yield func(metadata.Record, error) bool) {
		close(g.entered)
		select {
		case <-g.gate:
		case <-ctx.Done():
			yield(metadata.Record{}, ctx.Err())
			return
		}
		inner(yield)
	}
}

var _ = Describe("Runner", func() {
	var (
		ctx    context.Context
		store  *memory.Index
		source *gatedSource
		runner *metadata.Runner
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.New(2)
		Expect(store.Upsert(ctx,
			index.Point{ID: "id-a", Vector: []float32{1, 0}, Payload: index.Payload{Filename: "totenbilder/a.jpg"}},
		)).To(Succeed())

		source = &gatedSource{
			MemorySource: testutils.NewMemorySource(metadata.Record{Filename: "a.jpg", NID: i64(7), Delta: i64(2)}),
			gate:         make(chan struct{}),
			entered:      make(chan struct{}),
		}
		syncer, err := metadata.NewSyncer(source, store, "totenbilder/", logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		runner, err = metadata.NewRunner(syncer, nil, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(runner.Close)
	})

	nidOf := func() *int64 {
		p, err := store.FindByFilename(ctx, "totenbilder/a.jpg")
		Expect(err).NotTo(HaveOccurred())
		return p.Payload.NID
	}

	It("requires a filename or all", func() {
		Expect(runner.Start(metadata.SyncRequest{})).To(MatchError(errdefs.ErrValidation))
	})

	It("patches a single filename in the background", func() {
		Expect(runner.Start(metadata.SyncRequest{Filename: "a.jpg"})).To(Succeed())
		Eventually(nidOf).ShouldNot(BeNil())
		Expect(*nidOf()).To(Equal(int64(7)))
		Eventually(runner.Running).Should(BeFalse())
	})

	It("allows a single active sync", func() {
		Expect(runner.Start(metadata.SyncRequest{All: true})).To(Succeed())
		Eventually(source.entered).Should(BeClosed())

		Expect(runner.Running()).To(BeTrue())
		Expect(runner.Start(metadata.SyncRequest{Filename: "a.jpg"})).To(MatchError(errdefs.ErrAlreadyRunning))

		close(source.gate)
		Eventually(runner.Running).Should(BeFalse())
		Expect(*nidOf()).To(Equal(int64(7)))
	})

	It("cancels the active sync on Close and refuses new ones", func() {
		Expect(runner.Start(metadata.SyncRequest{All: true})).To(Succeed())
		Eventually(source.entered).Should(BeClosed())

		done := make(chan struct{})
		go func() {
			defer close(done)
			Expect(runner.Close()).To(Succeed())
		}()
		Eventually(done, time.Second).Should(BeClosed())

		Expect(nidOf()).To(BeNil())
		Expect(runner.Start(metadata.SyncRequest{All: true})).To(MatchError(metadata.ErrClosed))
	})

	It("reports missing records without a bucket", func() {
		close(source.gate)
		report, err := runner.Missing(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Records).To(Equal(1))
		Expect(report.Missing).To(BeEmpty())
		Expect(report.BucketChecked).To(BeFalse())
	})
})
