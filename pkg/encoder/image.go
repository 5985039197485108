package encoder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/totenbilder/imagesearch/pkg/errdefs"
)

const jpegQuality = 90

// prepareImage decodes data, shrinks it so neither side exceeds maxSide and
// re-encodes it as JPEG.
func prepareImage(data []byte, maxSide int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", errdefs.ErrEncoding)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding image: %w", errdefs.ErrEncoding, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: %s image has no pixels", errdefs.ErrEncoding, format)
	}

	if w, h, ok := fitWithin(b.Dx(), b.Dy(), maxSide); ok {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: re-encoding image: %w", errdefs.ErrEncoding, err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales (w, h) down so the longer side equals maxSide. ok is false
// when no scaling is needed.
func fitWithin(w, h, maxSide int) (int, int, bool) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h, false
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w), true
	}
	return max(1, w*maxSide/h), maxSide, true
}

// warmupImage is a small gray JPEG used to exercise the vision model at load.
func warmupImage() []byte {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}
