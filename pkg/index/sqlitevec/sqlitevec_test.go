package sqlitevec_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
	"github.com/totenbilder/imagesearch/pkg/index/sqlitevec"
	"github.com/totenbilder/imagesearch/pkg/logger"
)

func int64p(v int64) *int64 { return &v }

var _ = Describe("Index", func() {
	var (
		idx *sqlitevec.Index
		ctx context.Context
	)

	Describe("New", func() {
		It("requires a database path", func() {
			_, err := sqlitevec.New(sqlitevec.Config{Dimensions: 4}, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("database path is required")))
		})

		It("requires dimensions", func() {
			_, err := sqlitevec.New(sqlitevec.Config{DBPath: ":memory:"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("with an in-memory database", func() {
		BeforeEach(func() {
			ctx = context.Background()
			var err error
			idx, err = sqlitevec.New(sqlitevec.Config{DBPath: ":memory:", Dimensions: 3}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(idx.Close)
		})

		It("satisfies index.Index", func() {
			var _ index.Index = idx
		})

		It("upserts idempotently and finds points by filename", func() {
			p := index.Point{ID: "id-a", Vector: []float32{1, 0, 0}, Payload: index.Payload{Filename: "a.jpg", ImageURL: "u/a.jpg"}}
			Expect(idx.Upsert(ctx, p)).To(Succeed())
			p.Vector = []float32{0, 1, 0}
			Expect(idx.Upsert(ctx, p)).To(Succeed())

			got, err := idx.FindByFilename(ctx, "a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("id-a"))
			Expect(got.Vector).To(Equal([]float32{0, 1, 0}))
			Expect(got.Payload.ImageURL).To(Equal("u/a.jpg"))

			ok, err := idx.Exists(ctx, "a.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			hits, err := idx.Search(ctx, index.Query{Vector: []float32{0, 1, 0}, Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(1))
		})

		It("reports absent filenames", func() {
			ok, err := idx.Exists(ctx, "nope.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			got, err := idx.FindByFilename(ctx, "nope.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeNil())
		})

		It("ranks by cosine similarity with id tie-break and windowing", func() {
			Expect(idx.Upsert(ctx,
				index.Point{ID: "id-c", Vector: []float32{0, 0, 1}, Payload: index.Payload{Filename: "c.jpg"}},
				index.Point{ID: "id-b", Vector: []float32{1, 0, 0}, Payload: index.Payload{Filename: "b.jpg"}},
				index.Point{ID: "id-a", Vector: []float32{2, 0, 0}, Payload: index.Payload{Filename: "a.jpg"}},
			)).To(Succeed())

			hits, err := idx.Search(ctx, index.Query{Vector: []float32{1, 0, 0}, Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(hits).To(HaveLen(3))
			Expect(hits[0].ID).To(Equal("id-a"))
			Expect(hits[1].ID).To(Equal("id-b"))
			Expect(hits[2].ID).To(Equal("id-c"))
			Expect(hits[0].Score).To(BeNumerically("~", 1, 1e-5))

			page, err := idx.Search(ctx, index.Query{Vector: []float32{1, 0, 0}, Limit: 1, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(HaveLen(1))
			Expect(page[0].ID).To(Equal("id-b"))
		})

		It("patches payload and filters on delta", func() {
			Expect(idx.Upsert(ctx,
				index.Point{ID: "id-a", Vector: []float32{1, 0, 0}, Payload: index.Payload{Filename: "a.jpg"}},
				index.Point{ID: "id-b", Vector: []float32{1, 0, 0}, Payload: index.Payload{Filename: "b.jpg"}},
			)).To(Succeed())
			Expect(idx.PatchPayload(ctx, "id-a", index.Patch{NID: int64p(11), Delta: int64p(0)})).To(Succeed())
			Expect(idx.PatchPayload(ctx, "id-b", index.Patch{Delta: int64p(4)})).To(Succeed())

			zero, err := idx.Search(ctx, index.Query{Vector: []float32{1, 0, 0}, Limit: 10, Filter: index.Filter{Delta: index.DeltaZero}})
			Expect(err).NotTo(HaveOccurred())
			Expect(zero).To(HaveLen(1))
			Expect(zero[0].ID).To(Equal("id-a"))
			Expect(*zero[0].Payload.NID).To(Equal(int64(11)))

			pos, err := idx.Search(ctx, index.Query{Vector: []float32{1, 0, 0}, Limit: 10, Filter: index.Filter{Delta: index.DeltaPositive}})
			Expect(err).NotTo(HaveOccurred())
			Expect(pos).To(HaveLen(1))
			Expect(pos[0].ID).To(Equal("id-b"))
			Expect(pos[0].Payload.NID).To(BeNil())
		})

		It("fails to patch unknown points", func() {
			err := idx.PatchPayload(ctx, "missing", index.Patch{NID: int64p(1)})
			Expect(err).To(MatchError(errdefs.ErrNotFound))
		})

		It("rejects wrong dimensions", func() {
			err := idx.Upsert(ctx, index.Point{ID: "x", Vector: []float32{1}})
			Expect(err).To(MatchError(errdefs.ErrValidation))
		})
	})
})
