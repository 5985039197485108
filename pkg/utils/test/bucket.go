package testutils

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/totenbilder/imagesearch/pkg/errdefs"
	"github.com/totenbilder/imagesearch/pkg/objectstore"
)

// FakeBucket is an in-memory objectstore.Store. Keys are listed in sorted
// order, PageSize at a time.
type FakeBucket struct {
	Name     string
	Prefix   string
	BaseURL  string
	PageSize int

	mu        sync.Mutex
	objects   map[string][]byte
	fetchErrs map[string]error
	listErr   error
	fetches   map[string]int
}

// NewFakeBucket creates an empty bucket serving keys under prefix.
func NewFakeBucket(prefix string) *FakeBucket {
	return &FakeBucket{
		Name:      "test-bucket",
		Prefix:    prefix,
		BaseURL:   "https://cdn.example.com",
		PageSize:  2,
		objects:   make(map[string][]byte),
		fetchErrs: make(map[string]error),
		fetches:   make(map[string]int),
	}
}

// Put stores an object.
func (b *FakeBucket) Put(key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
}

// Remove deletes an object so later fetches report it missing.
func (b *FakeBucket) Remove(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
}

// FailFetch makes Fetch(key) return err.
func (b *FakeBucket) FailFetch(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetchErrs[key] = err
}

// FailList makes every ListPage call return err.
func (b *FakeBucket) FailList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// Fetches returns how often key was fetched.
func (b *FakeBucket) Fetches(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches[key]
}

func (b *FakeBucket) Bucket() string { return b.Name }

func (b *FakeBucket) ListPage(ctx context.Context, token string) (objectstore.Page, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.Page{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return objectstore.Page{}, b.listErr
	}

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if objectstore.IsImageKey(b.Prefix, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	start := 0
	if token != "" {
		if _, err := fmt.Sscanf(token, "%d", &start); err != nil {
			return objectstore.Page{}, fmt.Errorf("bad token %q", token)
		}
	}
	start = min(start, len(keys))
	end := min(start+max(b.PageSize, 1), len(keys))

	page := objectstore.Page{Keys: slices.Clone(keys[start:end])}
	if end < len(keys) {
		page.NextToken = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (b *FakeBucket) Keys(ctx context.Context) iter.Seq2[string, error] {
	return objectstore.Walk(ctx, b)
}

func (b *FakeBucket) Fetch(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches[key]++
	if err := b.fetchErrs[key]; err != nil {
		return nil, err
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("fetching %s: %w", key, errdefs.ErrNotFound)
	}
	return slices.Clone(data), nil
}

func (b *FakeBucket) PublicURL(key string) string {
	return objectstore.URLBuilder(b.BaseURL).URL(key)
}

var _ objectstore.Store = (*FakeBucket)(nil)
