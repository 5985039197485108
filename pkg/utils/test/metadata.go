package testutils

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/metadata"
)

// MemorySource is an in-memory metadata.Source. Records are yielded in
// insertion order.
type MemorySource struct {
	mu      sync.Mutex
	records []metadata.Record
	readErr error
}

// NewMemorySource creates a source holding records.
func NewMemorySource(records ...metadata.Record) *MemorySource {
	return &MemorySource{records: slices.Clone(records)}
}

// FailAfter makes Records yield err once every stored record was yielded.
func (m *MemorySource) FailAfter(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

func (m *MemorySource) Lookup(_ context.Context, filename string) (*metadata.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Filename == filename {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: no metadata for filename %s", errdefs.ErrNotFound, filename)
}

func (m *MemorySource) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *MemorySource) Records(context.Context) iter.Seq2[metadata.Record, error] {
	m.mu.Lock()
	records := slices.Clone(m.records)
	readErr := m.readErr
	m.mu.Unlock()

	return func(yield func(metadata.Record, error) bool) {
		for _, r := range records {
			if !yield(r, nil) {
				return
			}
		}
		if readErr != nil {
			yield(metadata.Record{}, readErr)
		}
	}
}

func (m *MemorySource) Close() error { return nil }

var _ metadata.Source = (*MemorySource)(nil)
