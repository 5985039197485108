package testutils

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"sync/atomic"
)

// MockBackend is an encoder.Backend whose image vectors follow the mean color
// of the image, so similar colors land close together.
type MockBackend struct {
	// Dims is the vector length. Must be at least 3.
	Dims int

	// Texts maps query text to the vector returned for it.
	Texts map[string][]float32

	mu        sync.Mutex
	imageErr  error
	textErr   error
	imageHits atomic.Int64
	textHits  atomic.Int64
}

// NewMockBackend creates a MockBackend with 4 dimensions.
func NewMockBackend() *MockBackend {
	return &MockBackend{Dims: 4, Texts: make(map[string][]float32)}
}

// FailImages makes EmbedImage return err (nil to stop failing).
func (m *MockBackend) FailImages(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imageErr = err
}

// FailTexts makes EmbedText return err (nil to stop failing).
func (m *MockBackend) FailTexts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textErr = err
}

// ImageCalls counts EmbedImage calls.
func (m *MockBackend) ImageCalls() int { return int(m.imageHits.Load()) }

// TextCalls counts EmbedText calls.
func (m *MockBackend) TextCalls() int { return int(m.textHits.Load()) }

func (m *MockBackend) EmbedImage(_ context.Context, data []byte) ([]float32, error) {
	m.imageHits.Add(1)
	m.mu.Lock()
	err := m.imageErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var r, g, b, n float64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			b += float64(cb)
			n++
		}
	}

	v := make([]float32, m.Dims)
	v[0] = float32(r/n/0xffff) + 0.01
	v[1] = float32(g/n/0xffff) + 0.01
	v[2] = float32(b/n/0xffff) + 0.01
	return v, nil
}

func (m *MockBackend) EmbedText(_ context.Context, text string) ([]float32, error) {
	m.textHits.Add(1)
	m.mu.Lock()
	err := m.textErr
	v, ok := m.Texts[text]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if ok {
		return append([]float32(nil), v...), nil
	}

	v = make([]float32, m.Dims)
	for i := range v {
		v[i] = 0.5
	}
	return v, nil
}

func (m *MockBackend) Close() error { return nil }

// SolidJPEG returns a 16x16 JPEG filled with c.
func SolidJPEG(c color.RGBA) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, solid(c), &jpeg.Options{Quality: 95})
	return buf.Bytes()
}

// SolidPNG returns a 16x16 PNG filled with c.
func SolidPNG(c color.RGBA) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, solid(c))
	return buf.Bytes()
}

func solid(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
