package testutils

import (
	"context"
	"sync"

	"github.com/totenbilder/imagesearch/pkg/index"
)

// RecordingIndex wraps an index.Index, counts writes and can inject failures.
type RecordingIndex struct {
	index.Index

	mu        sync.Mutex
	upserted  []string
	upsertErr error
	existsErr error
	searchErr error
}

// NewRecordingIndex wraps inner.
func NewRecordingIndex(inner index.Index) *RecordingIndex {
	return &RecordingIndex{Index: inner}
}

// FailUpserts makes Upsert return err (nil to stop failing).
func (r *RecordingIndex) FailUpserts(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertErr = err
}

// FailExists makes Exists return err.
func (r *RecordingIndex) FailExists(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.existsErr = err
}

// FailSearch makes Search return err.
func (r *RecordingIndex) FailSearch(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchErr = err
}

// Upserted returns the filenames written so far, one entry per write.
func (r *RecordingIndex) Upserted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.upserted...)
}

// Reset clears the write log.
func (r *RecordingIndex) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserted = nil
}

func (r *RecordingIndex) Exists(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	err := r.existsErr
	r.mu.Unlock()
	if err != nil {
		return false, err
	}
	return r.Index.Exists(ctx, key)
}

func (r *RecordingIndex) Upsert(ctx context.Context, points ...index.Point) error {
	r.mu.Lock()
	err := r.upsertErr
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if err := r.Index.Upsert(ctx, points...); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range points {
		r.upserted = append(r.upserted, p.Payload.Filename)
	}
	return nil
}

func (r *RecordingIndex) Search(ctx context.Context, q index.Query) ([]index.Hit, error) {
	r.mu.Lock()
	err := r.searchErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.Index.Search(ctx, q)
}
