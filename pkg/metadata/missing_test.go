package metadata_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/index/memory"
	"github.com/totenbilder/imagesearch/pkg/logger"
	"github.com/totenbilder/imagesearch/pkg/metadata"
	testutils "github.com/totenbilder/imagesearch/pkg/utils/test"
)

var _ = Describe("Missing", func() {
	var (
		ctx    context.Context
		store  *memory.Index
		source *testutils.MemorySource
		bucket *testutils.FakeBucket
		syncer *metadata.Syncer
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memory.New(2)
		Expect(store.Upsert(ctx,
			index.Point{ID: "id-a", Vector: []float32{1, 0}, Payload: index.Payload{Filename: "totenbilder/a.jpg"}},
		)).To(Succeed())

		source = testutils.NewMemorySource(
			metadata.Record{Filename: "a.jpg"},
			metadata.Record{Filename: "totenbilder/b.jpg"},
			metadata.Record{Filename: "c.jpg"},
			metadata.Record{Filename: "b.jpg"},
		)

		bucket = testutils.NewFakeBucket("totenbilder/")
		bucket.Put("totenbilder/a.jpg", []byte("a"))
		bucket.Put("totenbilder/b.jpg", []byte("b"))

		var err error
		syncer, err = metadata.NewSyncer(source, store, "totenbilder/", logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("splits unindexed records by bucket presence", func() {
		report, err := syncer.Missing(ctx, bucket)
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Records).To(Equal(3))
		Expect(report.Indexed).To(Equal(1))
		Expect(report.Missing).To(Equal([]string{"totenbilder/b.jpg", "totenbilder/c.jpg"}))
		Expect(report.BucketChecked).To(BeTrue())
		Expect(report.ReadyToIndex).To(Equal([]string{"totenbilder/b.jpg"}))
		Expect(report.MissingInBucket).To(Equal([]string{"totenbilder/c.jpg"}))
	})

	It("skips the bucket check without a bucket", func() {
		report, err := syncer.Missing(ctx, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(report.Missing).To(HaveLen(2))
		Expect(report.BucketChecked).To(BeFalse())
		Expect(report.ReadyToIndex).To(BeEmpty())
		Expect(report.MissingInBucket).To(BeEmpty())
	})

	It("does not prefix filenames twice", func() {
		Expect(syncer.Key("totenbilder/b.jpg")).To(Equal("totenbilder/b.jpg"))
		Expect(syncer.Key("b.jpg")).To(Equal("totenbilder/b.jpg"))
	})

	It("fails when the source fails", func() {
		boom := errors.New("connection reset")
		source.FailAfter(boom)

		_, err := syncer.Missing(ctx, bucket)
		Expect(err).To(MatchError(boom))
	})

	It("fails when the bucket listing fails", func() {
		boom := errors.New("list denied")
		bucket.FailList(boom)

		_, err := syncer.Missing(ctx, bucket)
		Expect(err).To(MatchError(boom))
	})
})
