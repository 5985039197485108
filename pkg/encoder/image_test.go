package encoder

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("prepareImage", func() {
	pngOf := func(w, h int) []byte {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := range img.Pix {
			img.Pix[i] = 200
		}
		img.Set(0, 0, color.Black)
		var buf bytes.Buffer
		Expect(png.Encode(&buf, img)).To(Succeed())
		return buf.Bytes()
	}

	It("shrinks the longer side to the bound and re-encodes as JPEG", func() {
		out, err := prepareImage(pngOf(40, 20), 10)
		Expect(err).NotTo(HaveOccurred())

		cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("jpeg"))
		Expect(cfg.Width).To(Equal(10))
		Expect(cfg.Height).To(Equal(5))
	})

	It("keeps small images at their size", func() {
		out, err := prepareImage(pngOf(6, 9), 10)
		Expect(err).NotTo(HaveOccurred())
		cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Width).To(Equal(6))
		Expect(cfg.Height).To(Equal(9))
	})
})

var _ = Describe("fitWithin", func() {
	DescribeTable("scales down preserving aspect",
		func(w, h, maxSide, ww, wh int, scaled bool) {
			gw, gh, ok := fitWithin(w, h, maxSide)
			Expect(ok).To(Equal(scaled))
			Expect(gw).To(Equal(ww))
			Expect(gh).To(Equal(wh))
		},
		Entry("landscape", 896, 448, 448, 448, 224, true),
		Entry("portrait", 300, 900, 450, 150, 450, true),
		Entry("already small", 100, 50, 448, 100, 50, false),
		Entry("unbounded", 5000, 5000, 0, 5000, 5000, false),
		Entry("thin strip keeps one pixel", 10000, 1, 100, 100, 1, true),
	)
})
