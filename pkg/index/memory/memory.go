// Package memory is an in-process index backend used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/totenbilder/imagesearch/pkg/encoder"
	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/index"
)

// Index keeps points in maps guarded by a RWMutex. Vectors are copied on the
// way in and out so callers cannot mutate stored state.
type Index struct {
	mu         sync.RWMutex
	dims       int
	points     map[string]index.Point
	byFilename map[string]string
}

var _ index.Index = (*Index)(nil)

// New creates an empty Index for vectors of dims dimensions.
func New(dims int) *Index {
	return &Index{
		dims:       dims,
		points:     make(map[string]index.Point),
		byFilename: make(map[string]string),
	}
}

func (m *Index) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byFilename[key]
	return ok, nil
}

func (m *Index) Upsert(_ context.Context, points ...index.Point) error {
	if err := index.CheckDimensions(m.dims, points...); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		if old, ok := m.points[p.ID]; ok && old.Payload.Filename != p.Payload.Filename {
			delete(m.byFilename, old.Payload.Filename)
		}
		m.points[p.ID] = clonePoint(p)
		m.byFilename[p.Payload.Filename] = p.ID
	}
	return nil
}

func (m *Index) FindByFilename(_ context.Context, key string) (*index.Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byFilename[key]
	if !ok {
		return nil, nil
	}
	p := clonePoint(m.points[id])
	return &p, nil
}

func (m *Index) Search(_ context.Context, q index.Query) ([]index.Hit, error) {
	if err := index.CheckQuery(m.dims, q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	hits := make([]index.Hit, 0, len(m.points))
	for _, p := range m.points {
		if !q.Filter.Match(p.Payload) {
			continue
		}
		hits = append(hits, index.Hit{
			ID:      p.ID,
			Score:   encoder.Cosine(q.Vector, p.Vector),
			Payload: clonePayload(p.Payload),
		})
	}
	m.mu.RUnlock()

	index.SortHits(hits)
	return index.Window(hits, q.Offset, q.Limit), nil
}

func (m *Index) PatchPayload(_ context.Context, id string, patch index.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[id]
	if !ok {
		return fmt.Errorf("point %s: %w", id, errdefs.ErrNotFound)
	}
	if patch.NID != nil {
		p.Payload.NID = ptr(*patch.NID)
	}
	if patch.Delta != nil {
		p.Payload.Delta = ptr(*patch.Delta)
	}
	m.points[id] = p
	return nil
}

// Len returns the number of stored points.
func (m *Index) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *Index) Ping(context.Context) error { return nil }

func (m *Index) Close() error { return nil }

func clonePoint(p index.Point) index.Point {
	return index.Point{
		ID:      p.ID,
		Vector:  slices.Clone(p.Vector),
		Payload: clonePayload(p.Payload),
	}
}

func clonePayload(p index.Payload) index.Payload {
	out := index.Payload{Filename: p.Filename, ImageURL: p.ImageURL}
	if p.NID != nil {
		out.NID = ptr(*p.NID)
	}
	if p.Delta != nil {
		out.Delta = ptr(*p.Delta)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
